package githubapi_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/temirov/ghpages/internal/githubapi"
)

type failingHTTPDoer struct{}

func (failingHTTPDoer) Do(*http.Request) (*http.Response, error) {
	return nil, errors.New("network unreachable")
}

func newTestClient(t *testing.T, handler http.Handler) (*githubapi.Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client, creationError := githubapi.NewClientWithBaseURL(server.Client(), server.URL)
	require.NoError(t, creationError)
	return client, server
}

func TestNewClientRequiresHTTPClient(t *testing.T) {
	client, creationError := githubapi.NewClient(nil)
	require.ErrorIs(t, creationError, githubapi.ErrHTTPClientNotConfigured)
	require.Nil(t, client)
}

func TestGetAuthenticatedUserParsesLoginAndScopes(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		require.Equal(t, "/user", request.URL.Path)
		require.Equal(t, "Bearer token-value", request.Header.Get("Authorization"))
		require.Equal(t, "application/vnd.github.v3+json", request.Header.Get("Accept"))
		require.NotEmpty(t, request.Header.Get("User-Agent"))
		writer.Header().Set("X-OAuth-Scopes", "repo, workflow")
		writer.WriteHeader(http.StatusOK)
		_, _ = writer.Write([]byte(`{"login":"alice"}`))
	}))

	user, userError := client.GetAuthenticatedUser(context.Background(), "token-value")
	require.NoError(t, userError)
	require.Equal(t, "alice", user.Login)
	require.True(t, user.HasScope("repo"))
	require.True(t, user.HasScope("workflow"))
	require.False(t, user.HasScope("gist"))
}

func TestGetAuthenticatedUserMapsUnauthorizedToInvalidToken(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
		writer.WriteHeader(http.StatusUnauthorized)
	}))

	_, userError := client.GetAuthenticatedUser(context.Background(), "stale")
	require.ErrorIs(t, userError, githubapi.ErrInvalidToken)
}

func TestGetAuthenticatedUserReportsUnexpectedStatus(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
		writer.WriteHeader(http.StatusBadGateway)
	}))

	_, userError := client.GetAuthenticatedUser(context.Background(), "token")
	var statusError githubapi.StatusError
	require.ErrorAs(t, userError, &statusError)
	require.Equal(t, http.StatusBadGateway, statusError.StatusCode)
}

func TestCheckRepositoryExistsFailsClosed(t *testing.T) {
	failingClient, creationError := githubapi.NewClient(failingHTTPDoer{})
	require.NoError(t, creationError)
	require.False(t, failingClient.CheckRepositoryExists(context.Background(), "alice", "blog", "token"))

	missingClient, _ := newTestClient(t, http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
		writer.WriteHeader(http.StatusNotFound)
	}))
	require.False(t, missingClient.CheckRepositoryExists(context.Background(), "alice", "blog", "token"))

	presentClient, _ := newTestClient(t, http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		require.Equal(t, "/repos/alice/blog", request.URL.Path)
		writer.WriteHeader(http.StatusOK)
		_, _ = writer.Write([]byte(`{}`))
	}))
	require.True(t, presentClient.CheckRepositoryExists(context.Background(), "alice", "blog", "token"))
}

func TestCreateRepositoryReturnsCandidate(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		require.Equal(t, http.MethodPost, request.Method)
		require.Equal(t, "/user/repos", request.URL.Path)
		writer.WriteHeader(http.StatusCreated)
		_, _ = writer.Write([]byte(`{
			"name": "blog",
			"full_name": "alice/blog",
			"ssh_url": "git@github.com:alice/blog.git",
			"html_url": "https://github.com/alice/blog",
			"owner": {"login": "alice"}
		}`))
	}))

	candidate, creationError := client.CreateRepository(context.Background(), "blog", "token", "Static site")
	require.NoError(t, creationError)
	require.Equal(t, "blog", candidate.Name)
	require.Equal(t, "alice", candidate.Owner)
	require.Equal(t, "alice/blog", candidate.FullName)
	require.Equal(t, "git@github.com:alice/blog.git", candidate.SSHURL)
	require.Equal(t, "https://github.com/alice/blog", candidate.HTMLURL)
}

func TestCreateRepositorySurfacesServerMessage(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
		writer.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = writer.Write([]byte(`{"message":"name already exists on this account"}`))
	}))

	_, creationError := client.CreateRepository(context.Background(), "blog", "token", "")
	var serverError githubapi.CreationError
	require.ErrorAs(t, creationError, &serverError)
	require.Equal(t, http.StatusUnprocessableEntity, serverError.StatusCode)
	require.Contains(t, creationError.Error(), "name already exists on this account")
}

func TestCheckPagesStatusMapsNotFoundToUnknown(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
		writer.WriteHeader(http.StatusNotFound)
	}))

	status, statusError := client.CheckPagesStatus(context.Background(), "alice", "blog", "token")
	require.NoError(t, statusError)
	require.Equal(t, githubapi.PagesBuildStateUnknown, status.State)
	require.Empty(t, status.URL)
}

func TestCheckPagesStatusParsesBuildState(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		require.Equal(t, "/repos/alice/blog/pages/builds/latest", request.URL.Path)
		writer.WriteHeader(http.StatusOK)
		_, _ = writer.Write([]byte(`{"status":"built","url":"https://api.github.com/repos/alice/blog/pages/builds/latest"}`))
	}))

	status, statusError := client.CheckPagesStatus(context.Background(), "alice", "blog", "token")
	require.NoError(t, statusError)
	require.Equal(t, githubapi.PagesBuildStateBuilt, status.State)
	require.NotEmpty(t, status.URL)
}
