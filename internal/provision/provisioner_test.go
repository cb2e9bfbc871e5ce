package provision_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/temirov/ghpages/internal/deviceflow"
	"github.com/temirov/ghpages/internal/githubapi"
	"github.com/temirov/ghpages/internal/provision"
	"github.com/temirov/ghpages/internal/tokenstore"
)

type fakeGitHubClient struct {
	userByToken     map[string]githubapi.AuthenticatedUser
	existingRepos   map[string]bool
	creationError   error
	createdRepos    []string
	existenceChecks int
}

func newFakeGitHubClient() *fakeGitHubClient {
	return &fakeGitHubClient{
		userByToken:   map[string]githubapi.AuthenticatedUser{},
		existingRepos: map[string]bool{},
	}
}

func (client *fakeGitHubClient) GetAuthenticatedUser(_ context.Context, accessToken string) (githubapi.AuthenticatedUser, error) {
	authenticatedUser, tokenKnown := client.userByToken[accessToken]
	if !tokenKnown {
		return githubapi.AuthenticatedUser{}, githubapi.ErrInvalidToken
	}
	return authenticatedUser, nil
}

func (client *fakeGitHubClient) CheckRepositoryExists(_ context.Context, _ string, repositoryName string, _ string) bool {
	client.existenceChecks++
	return client.existingRepos[repositoryName]
}

func (client *fakeGitHubClient) CreateRepository(_ context.Context, repositoryName string, _ string, _ string) (githubapi.RepositoryCandidate, error) {
	if client.creationError != nil {
		return githubapi.RepositoryCandidate{}, client.creationError
	}
	client.createdRepos = append(client.createdRepos, repositoryName)
	return githubapi.RepositoryCandidate{
		Name:     repositoryName,
		Owner:    "alice",
		FullName: "alice/" + repositoryName,
		SSHURL:   "git@github.com:alice/" + repositoryName + ".git",
		HTMLURL:  "https://github.com/alice/" + repositoryName,
	}, nil
}

type fakeTokenStore struct {
	storedToken *tokenstore.AccessToken
	clearCalls  int
	saveCalls   int
}

func (store *fakeTokenStore) Lookup() (tokenstore.AccessToken, bool) {
	if store.storedToken == nil {
		return tokenstore.AccessToken{}, false
	}
	return *store.storedToken, true
}

func (store *fakeTokenStore) Save(accessToken tokenstore.AccessToken) {
	store.saveCalls++
	tokenCopy := accessToken
	store.storedToken = &tokenCopy
}

func (store *fakeTokenStore) Clear() {
	store.clearCalls++
	store.storedToken = nil
}

type fakeAuthenticator struct {
	token   *tokenstore.AccessToken
	outcome deviceflow.Outcome
	calls   int
}

func (authenticator *fakeAuthenticator) Authenticate(context.Context) (*tokenstore.AccessToken, deviceflow.Outcome, error) {
	authenticator.calls++
	return authenticator.token, authenticator.outcome, nil
}

type scriptedSetupForm struct {
	submissions   chan provision.SetupSubmission
	cancellations chan struct{}
	openCalls     int
	closeCalls    int
	openError     error
}

func newScriptedSetupForm() *scriptedSetupForm {
	return &scriptedSetupForm{
		submissions:   make(chan provision.SetupSubmission, 1),
		cancellations: make(chan struct{}, 1),
	}
}

func (form *scriptedSetupForm) Open(context.Context, provision.SetupFormDetails) (*provision.FormSession, error) {
	form.openCalls++
	if form.openError != nil {
		return nil, form.openError
	}
	return provision.NewFormSession(form.submissions, form.cancellations, func() { form.closeCalls++ }), nil
}

type countingProgressReporter struct {
	mutex sync.Mutex
	ticks int
}

func (reporter *countingProgressReporter) ReportProgress(string, int, int, string) {
	reporter.mutex.Lock()
	defer reporter.mutex.Unlock()
	reporter.ticks++
}

func (reporter *countingProgressReporter) tickCount() int {
	reporter.mutex.Lock()
	defer reporter.mutex.Unlock()
	return reporter.ticks
}

type provisionerFixture struct {
	githubClient  *fakeGitHubClient
	tokenStore    *fakeTokenStore
	authenticator *fakeAuthenticator
	setupForm     *scriptedSetupForm
	reporter      *countingProgressReporter
	provisioner   *provision.Provisioner
}

func newProvisionerFixture(t *testing.T, configuration provision.Configuration) *provisionerFixture {
	t.Helper()
	fixture := &provisionerFixture{
		githubClient:  newFakeGitHubClient(),
		tokenStore:    &fakeTokenStore{},
		authenticator: &fakeAuthenticator{outcome: deviceflow.OutcomeDenied},
		setupForm:     newScriptedSetupForm(),
		reporter:      &countingProgressReporter{},
	}
	fixture.githubClient.userByToken["cached-token"] = githubapi.AuthenticatedUser{Login: "alice", Scopes: []string{"repo", "workflow"}}

	provisioner, creationError := provision.NewProvisioner(provision.Dependencies{
		Logger:                   zap.NewNop(),
		GitHubClient:             fixture.githubClient,
		TokenStore:               fixture.tokenStore,
		Authenticator:            fixture.authenticator,
		SetupForm:                fixture.setupForm,
		ProgressReporter:         fixture.reporter,
		EnvironmentTokenResolver: func() (string, bool) { return "", false },
	}, configuration)
	require.NoError(t, creationError)
	fixture.provisioner = provisioner
	return fixture
}

func cachedToken() *tokenstore.AccessToken {
	return &tokenstore.AccessToken{Token: "cached-token", Scopes: []string{"repo", "workflow"}, CachedAt: time.Now()}
}

func TestNewProvisionerValidatesDependencies(t *testing.T) {
	validDependencies := provision.Dependencies{
		Logger:        zap.NewNop(),
		GitHubClient:  newFakeGitHubClient(),
		TokenStore:    &fakeTokenStore{},
		Authenticator: &fakeAuthenticator{},
		SetupForm:     newScriptedSetupForm(),
	}

	testCases := []struct {
		name          string
		mutate        func(dependencies provision.Dependencies) provision.Dependencies
		expectedError error
	}{
		{name: "missing_logger", mutate: func(d provision.Dependencies) provision.Dependencies { d.Logger = nil; return d }, expectedError: provision.ErrLoggerNotConfigured},
		{name: "missing_client", mutate: func(d provision.Dependencies) provision.Dependencies { d.GitHubClient = nil; return d }, expectedError: provision.ErrGitHubClientNotConfigured},
		{name: "missing_store", mutate: func(d provision.Dependencies) provision.Dependencies { d.TokenStore = nil; return d }, expectedError: provision.ErrTokenStoreNotConfigured},
		{name: "missing_authenticator", mutate: func(d provision.Dependencies) provision.Dependencies { d.Authenticator = nil; return d }, expectedError: provision.ErrAuthenticatorNotConfigured},
		{name: "missing_form", mutate: func(d provision.Dependencies) provision.Dependencies { d.SetupForm = nil; return d }, expectedError: provision.ErrSetupFormNotConfigured},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			provisioner, creationError := provision.NewProvisioner(testCase.mutate(validDependencies), provision.Configuration{})
			require.ErrorIs(t, creationError, testCase.expectedError)
			require.Nil(t, provisioner)
		})
	}
}

func TestEnsureRepositoryAutoCreatesRootWithoutUI(t *testing.T) {
	fixture := newProvisionerFixture(t, provision.Configuration{})
	fixture.tokenStore.storedToken = cachedToken()

	candidate, resolution, provisioningError := fixture.provisioner.EnsureRepository(context.Background())

	require.NoError(t, provisioningError)
	require.Equal(t, provision.ResolutionProvisioned, resolution)
	require.NotNil(t, candidate)
	require.Equal(t, "alice.github.io", candidate.Name)
	require.Zero(t, fixture.setupForm.openCalls)
	require.Zero(t, fixture.reporter.tickCount())
}

func TestEnsureRepositoryReturnsUnauthenticatedWithoutToken(t *testing.T) {
	fixture := newProvisionerFixture(t, provision.Configuration{})

	candidate, resolution, provisioningError := fixture.provisioner.EnsureRepository(context.Background())

	require.NoError(t, provisioningError)
	require.Equal(t, provision.ResolutionUnauthenticated, resolution)
	require.Nil(t, candidate)
	require.Equal(t, 1, fixture.authenticator.calls)
	require.Zero(t, fixture.githubClient.existenceChecks)
}

func TestResolveAuthenticationPurgesInvalidCachedToken(t *testing.T) {
	fixture := newProvisionerFixture(t, provision.Configuration{})
	fixture.tokenStore.storedToken = &tokenstore.AccessToken{Token: "stale-token"}

	_, authenticated := fixture.provisioner.ResolveAuthentication(context.Background())

	require.False(t, authenticated)
	require.Equal(t, 1, fixture.tokenStore.clearCalls)
	require.Equal(t, 1, fixture.authenticator.calls)
}

func TestResolveAuthenticationStoresDeviceFlowToken(t *testing.T) {
	fixture := newProvisionerFixture(t, provision.Configuration{})
	fixture.githubClient.userByToken["fresh-token"] = githubapi.AuthenticatedUser{Login: "alice", Scopes: []string{"repo", "workflow"}}
	fixture.authenticator.token = &tokenstore.AccessToken{Token: "fresh-token", Scopes: []string{"repo", "workflow"}}
	fixture.authenticator.outcome = deviceflow.OutcomeAuthenticated

	authentication, authenticated := fixture.provisioner.ResolveAuthentication(context.Background())

	require.True(t, authenticated)
	require.Equal(t, "fresh-token", authentication.Token)
	require.Equal(t, 1, fixture.tokenStore.saveCalls)
}

func TestResolveAuthenticationPrefersEnvironmentOverDeviceFlow(t *testing.T) {
	fixture := newProvisionerFixture(t, provision.Configuration{})
	fixture.githubClient.userByToken["env-token"] = githubapi.AuthenticatedUser{Login: "alice", Scopes: []string{"repo", "workflow"}}

	provisioner, creationError := provision.NewProvisioner(provision.Dependencies{
		Logger:                   zap.NewNop(),
		GitHubClient:             fixture.githubClient,
		TokenStore:               fixture.tokenStore,
		Authenticator:            fixture.authenticator,
		SetupForm:                fixture.setupForm,
		EnvironmentTokenResolver: func() (string, bool) { return "env-token", true },
	}, provision.Configuration{})
	require.NoError(t, creationError)

	authentication, authenticated := provisioner.ResolveAuthentication(context.Background())

	require.True(t, authenticated)
	require.Equal(t, "env-token", authentication.Token)
	require.Zero(t, fixture.authenticator.calls)
}

func TestEnsureRepositoryFormSubmissionCreatesCustomRepository(t *testing.T) {
	fixture := newProvisionerFixture(t, provision.Configuration{HeartbeatInterval: time.Hour, FormWaitTimeout: time.Hour})
	fixture.tokenStore.storedToken = cachedToken()
	fixture.githubClient.existingRepos["alice.github.io"] = true
	fixture.setupForm.submissions <- provision.SetupSubmission{RepositoryName: "blog"}

	candidate, resolution, provisioningError := fixture.provisioner.EnsureRepository(context.Background())

	require.NoError(t, provisioningError)
	require.Equal(t, provision.ResolutionProvisioned, resolution)
	require.NotNil(t, candidate)
	require.Equal(t, "blog", candidate.Name)
	require.Equal(t, 1, fixture.setupForm.openCalls)
	require.Equal(t, 1, fixture.setupForm.closeCalls)
}

func TestEnsureRepositoryPresetNameBypassesForm(t *testing.T) {
	fixture := newProvisionerFixture(t, provision.Configuration{HeartbeatInterval: time.Hour, FormWaitTimeout: time.Hour, PresetRepositoryName: "blog"})
	fixture.tokenStore.storedToken = cachedToken()
	fixture.githubClient.existingRepos["alice.github.io"] = true

	candidate, resolution, provisioningError := fixture.provisioner.EnsureRepository(context.Background())

	require.NoError(t, provisioningError)
	require.Equal(t, provision.ResolutionProvisioned, resolution)
	require.NotNil(t, candidate)
	require.Equal(t, "blog", candidate.Name)
	require.Zero(t, fixture.setupForm.openCalls)
}

func TestEnsureRepositoryNonInteractiveCancelsWithoutForm(t *testing.T) {
	fixture := newProvisionerFixture(t, provision.Configuration{HeartbeatInterval: time.Hour, FormWaitTimeout: time.Hour, NonInteractive: true})
	fixture.tokenStore.storedToken = cachedToken()
	fixture.githubClient.existingRepos["alice.github.io"] = true

	candidate, resolution, provisioningError := fixture.provisioner.EnsureRepository(context.Background())

	require.NoError(t, provisioningError)
	require.Equal(t, provision.ResolutionCancelled, resolution)
	require.Nil(t, candidate)
	require.Zero(t, fixture.setupForm.openCalls)
}

func TestEnsureRepositoryCancellationProducesNilCandidate(t *testing.T) {
	fixture := newProvisionerFixture(t, provision.Configuration{HeartbeatInterval: time.Hour, FormWaitTimeout: time.Hour})
	fixture.tokenStore.storedToken = cachedToken()
	fixture.githubClient.existingRepos["alice.github.io"] = true
	fixture.setupForm.cancellations <- struct{}{}

	candidate, resolution, provisioningError := fixture.provisioner.EnsureRepository(context.Background())

	require.NoError(t, provisioningError)
	require.Equal(t, provision.ResolutionCancelled, resolution)
	require.Nil(t, candidate)
	require.Zero(t, fixture.reporter.tickCount())
}

func TestEnsureRepositoryFormTimeoutBehavesLikeCancellation(t *testing.T) {
	fixture := newProvisionerFixture(t, provision.Configuration{HeartbeatInterval: time.Hour, FormWaitTimeout: 20 * time.Millisecond})
	fixture.tokenStore.storedToken = cachedToken()
	fixture.githubClient.existingRepos["alice.github.io"] = true

	candidate, resolution, provisioningError := fixture.provisioner.EnsureRepository(context.Background())

	require.NoError(t, provisioningError)
	require.Equal(t, provision.ResolutionCancelled, resolution)
	require.Nil(t, candidate)
	require.Equal(t, 1, fixture.setupForm.closeCalls)
}

func TestEnsureRepositoryInvalidNameFailsCreation(t *testing.T) {
	fixture := newProvisionerFixture(t, provision.Configuration{HeartbeatInterval: time.Hour, FormWaitTimeout: time.Hour})
	fixture.tokenStore.storedToken = cachedToken()
	fixture.githubClient.existingRepos["alice.github.io"] = true
	fixture.setupForm.submissions <- provision.SetupSubmission{RepositoryName: ".hidden"}

	candidate, resolution, provisioningError := fixture.provisioner.EnsureRepository(context.Background())

	require.NoError(t, provisioningError)
	require.Equal(t, provision.ResolutionCreationFailed, resolution)
	require.Nil(t, candidate)
	require.Empty(t, fixture.githubClient.createdRepos)
}

func TestEnsureRepositoryCreationFailureIsRecoverable(t *testing.T) {
	fixture := newProvisionerFixture(t, provision.Configuration{HeartbeatInterval: time.Hour, FormWaitTimeout: time.Hour})
	fixture.tokenStore.storedToken = cachedToken()
	fixture.githubClient.existingRepos["alice.github.io"] = true
	fixture.githubClient.creationError = githubapi.CreationError{StatusCode: 403, Message: "API rate limit exceeded"}
	fixture.setupForm.submissions <- provision.SetupSubmission{RepositoryName: "blog"}

	candidate, resolution, provisioningError := fixture.provisioner.EnsureRepository(context.Background())

	require.NoError(t, provisioningError)
	require.Equal(t, provision.ResolutionCreationFailed, resolution)
	require.Nil(t, candidate)
}

func TestHeartbeatTicksWhileFormIsOpen(t *testing.T) {
	heartbeatInterval := 30 * time.Millisecond
	fixture := newProvisionerFixture(t, provision.Configuration{HeartbeatInterval: heartbeatInterval, FormWaitTimeout: time.Hour})
	fixture.tokenStore.storedToken = cachedToken()
	fixture.githubClient.existingRepos["alice.github.io"] = true

	go func() {
		time.Sleep(4*heartbeatInterval + heartbeatInterval/2)
		fixture.setupForm.submissions <- provision.SetupSubmission{RepositoryName: "blog"}
	}()

	candidate, resolution, provisioningError := fixture.provisioner.EnsureRepository(context.Background())

	require.NoError(t, provisioningError)
	require.Equal(t, provision.ResolutionProvisioned, resolution)
	require.NotNil(t, candidate)
	require.Equal(t, 4, fixture.reporter.tickCount())
}

func TestHeartbeatStopsAfterCancellation(t *testing.T) {
	heartbeatInterval := 25 * time.Millisecond
	fixture := newProvisionerFixture(t, provision.Configuration{HeartbeatInterval: heartbeatInterval, FormWaitTimeout: time.Hour})
	fixture.tokenStore.storedToken = cachedToken()
	fixture.githubClient.existingRepos["alice.github.io"] = true

	go func() {
		time.Sleep(heartbeatInterval + heartbeatInterval/2)
		fixture.setupForm.cancellations <- struct{}{}
	}()

	_, resolution, provisioningError := fixture.provisioner.EnsureRepository(context.Background())
	require.NoError(t, provisioningError)
	require.Equal(t, provision.ResolutionCancelled, resolution)

	ticksAtResolution := fixture.reporter.tickCount()
	require.Equal(t, 1, ticksAtResolution)

	time.Sleep(3 * heartbeatInterval)
	require.Equal(t, ticksAtResolution, fixture.reporter.tickCount())
}

func TestFormOpenFailureSurfacesError(t *testing.T) {
	fixture := newProvisionerFixture(t, provision.Configuration{})
	fixture.tokenStore.storedToken = cachedToken()
	fixture.githubClient.existingRepos["alice.github.io"] = true
	fixture.setupForm.openError = errors.New("no interactive terminal")

	candidate, resolution, provisioningError := fixture.provisioner.EnsureRepository(context.Background())

	require.Error(t, provisioningError)
	require.Equal(t, provision.ResolutionCancelled, resolution)
	require.Nil(t, candidate)
}
