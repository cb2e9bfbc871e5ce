package githubapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

const (
	defaultBaseURLConstant              = "https://api.github.com"
	userEndpointConstant                = "/user"
	repositoryEndpointTemplateConstant  = "/repos/%s/%s"
	createRepositoryEndpointConstant    = "/user/repos"
	pagesBuildEndpointTemplateConstant  = "/repos/%s/%s/pages/builds/latest"
	acceptHeaderNameConstant            = "Accept"
	acceptHeaderValueConstant           = "application/vnd.github.v3+json"
	userAgentHeaderNameConstant         = "User-Agent"
	userAgentHeaderValueConstant        = "ghpages-deploy"
	authorizationHeaderNameConstant     = "Authorization"
	authorizationHeaderTemplateConstant = "Bearer %s"
	contentTypeHeaderNameConstant       = "Content-Type"
	contentTypeJSONValueConstant        = "application/json"
	oauthScopesHeaderNameConstant       = "X-OAuth-Scopes"
	scopesSeparatorConstant             = ","
	httpClientMissingMessageConstant    = "http client not configured"
	invalidTokenMessageConstant         = "invalid or expired token"
	requestFailureTemplateConstant      = "GitHub API request failed: %w"
	statusFailureTemplateConstant       = "GitHub API request returned status %d"
	decodeFailureTemplateConstant       = "GitHub API response decoding failed: %w"
	encodeFailureTemplateConstant       = "GitHub API payload encoding failed: %w"
	creationFailureTemplateConstant     = "repository creation failed: %s"
	unknownCreationFailureConstant      = "unknown error"
)

// PagesBuildState enumerates the Pages build states surfaced by the API.
type PagesBuildState string

// Recognized Pages build states.
const (
	PagesBuildStateBuilt    PagesBuildState = PagesBuildState("built")
	PagesBuildStateBuilding PagesBuildState = PagesBuildState("building")
	PagesBuildStateErrored  PagesBuildState = PagesBuildState("errored")
	PagesBuildStateUnknown  PagesBuildState = PagesBuildState("unknown")
)

// AuthenticatedUser describes the token owner and the scopes granted to the token.
type AuthenticatedUser struct {
	Login  string
	Scopes []string
}

// HasScope reports whether the granted scopes include the requested one.
func (user AuthenticatedUser) HasScope(requestedScope string) bool {
	for _, grantedScope := range user.Scopes {
		if strings.EqualFold(strings.TrimSpace(grantedScope), requestedScope) {
			return true
		}
	}
	return false
}

// RepositoryCandidate describes a repository suitable for Pages publishing.
type RepositoryCandidate struct {
	Name     string
	Owner    string
	FullName string
	SSHURL   string
	HTMLURL  string
}

// PagesStatus captures the latest Pages build state and the served URL.
type PagesStatus struct {
	State PagesBuildState
	URL   string
}

// HTTPDoer abstracts HTTP execution for testability.
type HTTPDoer interface {
	Do(request *http.Request) (*http.Response, error)
}

// ErrHTTPClientNotConfigured indicates the client was constructed without an HTTP client.
var ErrHTTPClientNotConfigured = errors.New(httpClientMissingMessageConstant)

// ErrInvalidToken indicates the supplied token was rejected by GitHub.
var ErrInvalidToken = errors.New(invalidTokenMessageConstant)

// StatusError reports an unexpected HTTP status code.
type StatusError struct {
	StatusCode int
}

// Error describes the unexpected status.
func (statusError StatusError) Error() string {
	return fmt.Sprintf(statusFailureTemplateConstant, statusError.StatusCode)
}

// CreationError surfaces the server-provided message for a failed repository creation.
type CreationError struct {
	StatusCode int
	Message    string
}

// Error reports the server message verbatim.
func (creationError CreationError) Error() string {
	message := strings.TrimSpace(creationError.Message)
	if len(message) == 0 {
		message = unknownCreationFailureConstant
	}
	return fmt.Sprintf(creationFailureTemplateConstant, message)
}

// Client wraps the GitHub REST endpoints used by the deployment pipeline.
type Client struct {
	httpClient HTTPDoer
	baseURL    string
}

// NewClient constructs a client against the public GitHub API.
func NewClient(httpClient HTTPDoer) (*Client, error) {
	return NewClientWithBaseURL(httpClient, defaultBaseURLConstant)
}

// NewClientWithBaseURL constructs a client against the provided API base URL.
func NewClientWithBaseURL(httpClient HTTPDoer, baseURL string) (*Client, error) {
	if httpClient == nil {
		return nil, ErrHTTPClientNotConfigured
	}
	trimmedBaseURL := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if len(trimmedBaseURL) == 0 {
		trimmedBaseURL = defaultBaseURLConstant
	}
	return &Client{httpClient: httpClient, baseURL: trimmedBaseURL}, nil
}

// GetAuthenticatedUser resolves the login and granted scopes for the supplied token.
func (client *Client) GetAuthenticatedUser(executionContext context.Context, accessToken string) (AuthenticatedUser, error) {
	request, requestError := client.newRequest(executionContext, http.MethodGet, userEndpointConstant, accessToken, nil)
	if requestError != nil {
		return AuthenticatedUser{}, requestError
	}

	response, responseError := client.httpClient.Do(request)
	if responseError != nil {
		return AuthenticatedUser{}, fmt.Errorf(requestFailureTemplateConstant, responseError)
	}
	defer closeQuietly(response)

	if response.StatusCode == http.StatusUnauthorized {
		return AuthenticatedUser{}, ErrInvalidToken
	}
	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		return AuthenticatedUser{}, StatusError{StatusCode: response.StatusCode}
	}

	var userPayload struct {
		Login string `json:"login"`
	}
	if decodeError := json.NewDecoder(response.Body).Decode(&userPayload); decodeError != nil {
		return AuthenticatedUser{}, fmt.Errorf(decodeFailureTemplateConstant, decodeError)
	}

	return AuthenticatedUser{Login: userPayload.Login, Scopes: parseScopesHeader(response.Header.Get(oauthScopesHeaderNameConstant))}, nil
}

// CheckRepositoryExists reports whether the repository is visible to the token owner.
// Any failure, including network errors, is treated as "does not exist or is
// inaccessible" so that provisioning decisions fail closed.
func (client *Client) CheckRepositoryExists(executionContext context.Context, owner string, repositoryName string, accessToken string) bool {
	endpoint := fmt.Sprintf(repositoryEndpointTemplateConstant, owner, repositoryName)
	request, requestError := client.newRequest(executionContext, http.MethodGet, endpoint, accessToken, nil)
	if requestError != nil {
		return false
	}

	response, responseError := client.httpClient.Do(request)
	if responseError != nil {
		return false
	}
	defer closeQuietly(response)

	return response.StatusCode == http.StatusOK
}

// CreateRepository creates a public, non-auto-initialized repository owned by the token owner.
func (client *Client) CreateRepository(executionContext context.Context, repositoryName string, accessToken string, description string) (RepositoryCandidate, error) {
	creationPayload := map[string]any{
		"name":        repositoryName,
		"description": description,
		"private":     false,
		"auto_init":   false,
	}
	encodedPayload, encodeError := json.Marshal(creationPayload)
	if encodeError != nil {
		return RepositoryCandidate{}, fmt.Errorf(encodeFailureTemplateConstant, encodeError)
	}

	request, requestError := client.newRequest(executionContext, http.MethodPost, createRepositoryEndpointConstant, accessToken, encodedPayload)
	if requestError != nil {
		return RepositoryCandidate{}, requestError
	}

	response, responseError := client.httpClient.Do(request)
	if responseError != nil {
		return RepositoryCandidate{}, fmt.Errorf(requestFailureTemplateConstant, responseError)
	}
	defer closeQuietly(response)

	if response.StatusCode != http.StatusCreated {
		var failurePayload struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(response.Body).Decode(&failurePayload)
		return RepositoryCandidate{}, CreationError{StatusCode: response.StatusCode, Message: failurePayload.Message}
	}

	var repositoryPayload struct {
		Name     string `json:"name"`
		FullName string `json:"full_name"`
		SSHURL   string `json:"ssh_url"`
		HTMLURL  string `json:"html_url"`
		Owner    struct {
			Login string `json:"login"`
		} `json:"owner"`
	}
	if decodeError := json.NewDecoder(response.Body).Decode(&repositoryPayload); decodeError != nil {
		return RepositoryCandidate{}, fmt.Errorf(decodeFailureTemplateConstant, decodeError)
	}

	return RepositoryCandidate{
		Name:     repositoryPayload.Name,
		Owner:    repositoryPayload.Owner.Login,
		FullName: repositoryPayload.FullName,
		SSHURL:   repositoryPayload.SSHURL,
		HTMLURL:  repositoryPayload.HTMLURL,
	}, nil
}

// CheckPagesStatus retrieves the latest Pages build state. A 404 response maps
// to PagesBuildStateUnknown because Pages may not be configured yet.
func (client *Client) CheckPagesStatus(executionContext context.Context, owner string, repositoryName string, accessToken string) (PagesStatus, error) {
	endpoint := fmt.Sprintf(pagesBuildEndpointTemplateConstant, owner, repositoryName)
	request, requestError := client.newRequest(executionContext, http.MethodGet, endpoint, accessToken, nil)
	if requestError != nil {
		return PagesStatus{}, requestError
	}

	response, responseError := client.httpClient.Do(request)
	if responseError != nil {
		return PagesStatus{}, fmt.Errorf(requestFailureTemplateConstant, responseError)
	}
	defer closeQuietly(response)

	if response.StatusCode == http.StatusNotFound {
		return PagesStatus{State: PagesBuildStateUnknown}, nil
	}
	if response.StatusCode != http.StatusOK {
		return PagesStatus{}, StatusError{StatusCode: response.StatusCode}
	}

	var buildPayload struct {
		Status string `json:"status"`
		URL    string `json:"url"`
	}
	if decodeError := json.NewDecoder(response.Body).Decode(&buildPayload); decodeError != nil {
		return PagesStatus{}, fmt.Errorf(decodeFailureTemplateConstant, decodeError)
	}

	return PagesStatus{State: normalizeBuildState(buildPayload.Status), URL: buildPayload.URL}, nil
}

func (client *Client) newRequest(executionContext context.Context, method string, endpoint string, accessToken string, payload []byte) (*http.Request, error) {
	var requestBody *bytes.Reader
	if payload == nil {
		requestBody = bytes.NewReader(nil)
	} else {
		requestBody = bytes.NewReader(payload)
	}

	request, requestError := http.NewRequestWithContext(executionContext, method, client.baseURL+endpoint, requestBody)
	if requestError != nil {
		return nil, fmt.Errorf(requestFailureTemplateConstant, requestError)
	}

	request.Header.Set(acceptHeaderNameConstant, acceptHeaderValueConstant)
	request.Header.Set(userAgentHeaderNameConstant, userAgentHeaderValueConstant)
	request.Header.Set(authorizationHeaderNameConstant, fmt.Sprintf(authorizationHeaderTemplateConstant, accessToken))
	if payload != nil {
		request.Header.Set(contentTypeHeaderNameConstant, contentTypeJSONValueConstant)
	}

	return request, nil
}

func parseScopesHeader(headerValue string) []string {
	trimmedHeader := strings.TrimSpace(headerValue)
	if len(trimmedHeader) == 0 {
		return nil
	}
	rawScopes := strings.Split(trimmedHeader, scopesSeparatorConstant)
	scopes := make([]string, 0, len(rawScopes))
	for _, rawScope := range rawScopes {
		scope := strings.TrimSpace(rawScope)
		if len(scope) > 0 {
			scopes = append(scopes, scope)
		}
	}
	return scopes
}

func normalizeBuildState(rawState string) PagesBuildState {
	switch PagesBuildState(strings.ToLower(strings.TrimSpace(rawState))) {
	case PagesBuildStateBuilt:
		return PagesBuildStateBuilt
	case PagesBuildStateBuilding:
		return PagesBuildStateBuilding
	case PagesBuildStateErrored:
		return PagesBuildStateErrored
	default:
		return PagesBuildStateUnknown
	}
}

func closeQuietly(response *http.Response) {
	if response != nil && response.Body != nil {
		_ = response.Body.Close()
	}
}
