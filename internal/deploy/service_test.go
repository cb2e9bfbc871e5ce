package deploy_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/temirov/ghpages/internal/deploy"
	"github.com/temirov/ghpages/internal/githubapi"
	"github.com/temirov/ghpages/internal/provision"
	"github.com/temirov/ghpages/internal/publish"
	"github.com/temirov/ghpages/internal/validate"
)

type stubValidator struct {
	remoteURL       string
	validationError error
	calls           int
}

func (validator *stubValidator) Validate(context.Context, validate.Options) (string, error) {
	validator.calls++
	return validator.remoteURL, validator.validationError
}

type stubProvisioner struct {
	authentication      provision.Authentication
	authenticated       bool
	candidate           *githubapi.RepositoryCandidate
	resolution          provision.Resolution
	authenticationCalls int
	provisioningCalls   int
}

func (provisioner *stubProvisioner) ResolveAuthentication(context.Context) (provision.Authentication, bool) {
	provisioner.authenticationCalls++
	return provisioner.authentication, provisioner.authenticated
}

func (provisioner *stubProvisioner) EnsureRepositoryWithAuthentication(context.Context, provision.Authentication) (*githubapi.RepositoryCandidate, provision.Resolution, error) {
	provisioner.provisioningCalls++
	return provisioner.candidate, provisioner.resolution, nil
}

type stubPublisher struct {
	result          publish.Result
	publishError    error
	receivedOptions []publish.Options
}

func (publisher *stubPublisher) Publish(_ context.Context, options publish.Options) (publish.Result, error) {
	publisher.receivedOptions = append(publisher.receivedOptions, options)
	return publisher.result, publisher.publishError
}

type serviceFixture struct {
	validator   *stubValidator
	provisioner *stubProvisioner
	publisher   *stubPublisher
	service     *deploy.Service
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	fixture := &serviceFixture{
		validator: &stubValidator{},
		provisioner: &stubProvisioner{
			authentication: provision.Authentication{Token: "gho_token", User: githubapi.AuthenticatedUser{Login: "alice", Scopes: []string{"repo", "workflow"}}},
			authenticated:  true,
		},
		publisher: &stubPublisher{},
	}
	service, creationError := deploy.NewService(deploy.Dependencies{
		Logger:      zap.NewNop(),
		Validator:   fixture.validator,
		Provisioner: fixture.provisioner,
		Publisher:   fixture.publisher,
	})
	require.NoError(t, creationError)
	fixture.service = service
	return fixture
}

func defaultDeployOptions() deploy.Options {
	return deploy.Options{
		ProjectPath: "/workspace/site/public",
		RemoteName:  "origin",
		BranchName:  "gh-pages",
		SiteFiles:   []string{"index.html"},
	}
}

func TestNewServiceValidatesDependencies(t *testing.T) {
	validDependencies := deploy.Dependencies{
		Logger:      zap.NewNop(),
		Validator:   &stubValidator{},
		Provisioner: &stubProvisioner{},
		Publisher:   &stubPublisher{},
	}

	testCases := []struct {
		name          string
		mutate        func(dependencies deploy.Dependencies) deploy.Dependencies
		expectedError error
	}{
		{name: "missing_logger", mutate: func(d deploy.Dependencies) deploy.Dependencies { d.Logger = nil; return d }, expectedError: deploy.ErrLoggerNotConfigured},
		{name: "missing_validator", mutate: func(d deploy.Dependencies) deploy.Dependencies { d.Validator = nil; return d }, expectedError: deploy.ErrValidatorNotConfigured},
		{name: "missing_provisioner", mutate: func(d deploy.Dependencies) deploy.Dependencies { d.Provisioner = nil; return d }, expectedError: deploy.ErrProvisionerNotConfigured},
		{name: "missing_publisher", mutate: func(d deploy.Dependencies) deploy.Dependencies { d.Publisher = nil; return d }, expectedError: deploy.ErrPublisherNotConfigured},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			service, creationError := deploy.NewService(testCase.mutate(validDependencies))
			require.ErrorIs(t, creationError, testCase.expectedError)
			require.Nil(t, service)
		})
	}
}

func TestDeployFailsBeforeAnyNetworkWorkWhenNotGitRepository(t *testing.T) {
	fixture := newServiceFixture(t)
	fixture.validator.validationError = validate.PreconditionError{
		Kind:        validate.PreconditionGitRepository,
		Remediation: "/workspace/site is not a git repository. Run 'git init' in the project directory",
	}

	deploymentInfo, deploymentError := fixture.service.Deploy(context.Background(), defaultDeployOptions())

	require.Nil(t, deploymentInfo)
	require.Contains(t, deploymentError.Error(), "git init")
	require.Zero(t, fixture.provisioner.authenticationCalls)
	require.Empty(t, fixture.publisher.receivedOptions)
}

func TestDeployFailsForNonGitHubRemote(t *testing.T) {
	fixture := newServiceFixture(t)
	fixture.validator.validationError = validate.PreconditionError{
		Kind:        validate.PreconditionGitHubRemote,
		Remediation: "the 'origin' remote git@gitlab.com:user/repo.git is not a GitHub URL",
	}

	deploymentInfo, deploymentError := fixture.service.Deploy(context.Background(), defaultDeployOptions())

	require.Nil(t, deploymentInfo)
	require.Contains(t, deploymentError.Error(), "is not a GitHub URL")
	require.Zero(t, fixture.provisioner.provisioningCalls)
}

func TestDeploySucceedsWithExistingGitHubRemote(t *testing.T) {
	testCases := []struct {
		name                  string
		wasFirstSetup         bool
		expectedWasFirstSetup bool
	}{
		{name: "returning_user", wasFirstSetup: false, expectedWasFirstSetup: false},
		{name: "first_setup", wasFirstSetup: true, expectedWasFirstSetup: true},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			fixture := newServiceFixture(t)
			fixture.validator.remoteURL = "git@github.com:alice/blog.git"
			fixture.publisher.result = publish.Result{PagesURL: "https://alice.github.io/blog", WasFirstSetup: testCase.wasFirstSetup}

			deploymentInfo, deploymentError := fixture.service.Deploy(context.Background(), defaultDeployOptions())

			require.NoError(t, deploymentError)
			require.Equal(t, "https://alice.github.io/blog", deploymentInfo.URL)
			require.Equal(t, testCase.expectedWasFirstSetup, deploymentInfo.WasFirstSetup)
			require.False(t, deploymentInfo.DeployedAt.IsZero())

			require.Len(t, fixture.publisher.receivedOptions, 1)
			publishOptions := fixture.publisher.receivedOptions[0]
			require.Equal(t, "alice", publishOptions.Owner)
			require.Equal(t, "blog", publishOptions.Repository)
			require.Equal(t, "gho_token", publishOptions.AccessToken)
			require.Zero(t, fixture.provisioner.provisioningCalls)
		})
	}
}

func TestDeployProvisionsWhenRemoteMissing(t *testing.T) {
	fixture := newServiceFixture(t)
	fixture.validator.validationError = validate.PreconditionError{Kind: validate.PreconditionRemoteMissing, Remediation: "no 'origin' remote"}
	fixture.provisioner.candidate = &githubapi.RepositoryCandidate{
		Name:     "alice.github.io",
		Owner:    "alice",
		FullName: "alice/alice.github.io",
		HTMLURL:  "https://github.com/alice/alice.github.io",
	}
	fixture.provisioner.resolution = provision.ResolutionProvisioned
	fixture.publisher.result = publish.Result{PagesURL: "https://alice.github.io/", WasFirstSetup: true}

	deploymentInfo, deploymentError := fixture.service.Deploy(context.Background(), defaultDeployOptions())

	require.NoError(t, deploymentError)
	require.Equal(t, "https://alice.github.io/", deploymentInfo.URL)
	require.True(t, deploymentInfo.WasFirstSetup)

	require.Len(t, fixture.publisher.receivedOptions, 1)
	publishOptions := fixture.publisher.receivedOptions[0]
	require.Equal(t, "https://github.com/alice/alice.github.io.git", publishOptions.RemoteURL)
	require.Equal(t, "alice.github.io", publishOptions.Repository)
}

func TestDeployMapsProvisioningResolutionsToErrors(t *testing.T) {
	testCases := []struct {
		name          string
		resolution    provision.Resolution
		authenticated bool
		checkError    func(t *testing.T, deploymentError error)
	}{
		{
			name:          "setup_cancelled",
			resolution:    provision.ResolutionCancelled,
			authenticated: true,
			checkError: func(t *testing.T, deploymentError error) {
				var cancelledError deploy.SetupCancelledError
				require.ErrorAs(t, deploymentError, &cancelledError)
			},
		},
		{
			name:          "creation_failed",
			resolution:    provision.ResolutionCreationFailed,
			authenticated: true,
			checkError: func(t *testing.T, deploymentError error) {
				var creationError deploy.CreationFailedError
				require.ErrorAs(t, deploymentError, &creationError)
			},
		},
		{
			name: "unauthenticated",
			checkError: func(t *testing.T, deploymentError error) {
				var authenticationError deploy.AuthenticationError
				require.ErrorAs(t, deploymentError, &authenticationError)
			},
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			fixture := newServiceFixture(t)
			fixture.validator.validationError = validate.PreconditionError{Kind: validate.PreconditionRemoteMissing, Remediation: "no 'origin' remote"}
			fixture.provisioner.authenticated = testCase.authenticated
			fixture.provisioner.resolution = testCase.resolution

			deploymentInfo, deploymentError := fixture.service.Deploy(context.Background(), defaultDeployOptions())

			require.Nil(t, deploymentInfo)
			testCase.checkError(t, deploymentError)
			require.Empty(t, fixture.publisher.receivedOptions)
		})
	}
}

func TestDeployRequiresTokenForHTTPSRemote(t *testing.T) {
	fixture := newServiceFixture(t)
	fixture.validator.remoteURL = "https://github.com/alice/blog.git"
	fixture.provisioner.authenticated = false

	deploymentInfo, deploymentError := fixture.service.Deploy(context.Background(), defaultDeployOptions())

	require.Nil(t, deploymentInfo)
	var authenticationError deploy.AuthenticationError
	require.ErrorAs(t, deploymentError, &authenticationError)
}

func TestDeployAllowsTokenlessSSHRemote(t *testing.T) {
	fixture := newServiceFixture(t)
	fixture.validator.remoteURL = "git@github.com:alice/blog.git"
	fixture.provisioner.authenticated = false
	fixture.publisher.result = publish.Result{PagesURL: "https://alice.github.io/blog"}

	deploymentInfo, deploymentError := fixture.service.Deploy(context.Background(), defaultDeployOptions())

	require.NoError(t, deploymentError)
	require.NotNil(t, deploymentInfo)
	require.Len(t, fixture.publisher.receivedOptions, 1)
	require.Empty(t, fixture.publisher.receivedOptions[0].AccessToken)
}

func TestConfigurationSanitizeAppliesDefaults(t *testing.T) {
	configuration := deploy.Configuration{SiteDirectory: "  ", RemoteName: "", BranchName: " "}
	configuration.Sanitize()

	require.Equal(t, "public", configuration.SiteDirectory)
	require.Equal(t, "origin", configuration.RemoteName)
	require.Equal(t, "gh-pages", configuration.BranchName)

	custom := deploy.Configuration{SiteDirectory: "dist", RemoteName: "deploy", BranchName: "pages"}
	custom.Sanitize()
	require.Equal(t, "dist", custom.SiteDirectory)
	require.Equal(t, "deploy", custom.RemoteName)
	require.Equal(t, "pages", custom.BranchName)
}

func TestDeploymentInfoTimestampUsesClock(t *testing.T) {
	fixedTime := time.Date(2026, time.January, 5, 12, 0, 0, 0, time.UTC)
	fixture := newServiceFixture(t)
	fixture.validator.remoteURL = "git@github.com:alice/blog.git"
	fixture.publisher.result = publish.Result{PagesURL: "https://alice.github.io/blog"}

	service, creationError := deploy.NewService(deploy.Dependencies{
		Logger:      zap.NewNop(),
		Validator:   fixture.validator,
		Provisioner: fixture.provisioner,
		Publisher:   fixture.publisher,
		Clock:       fixedClock{currentTime: fixedTime},
	})
	require.NoError(t, creationError)

	deploymentInfo, deploymentError := service.Deploy(context.Background(), defaultDeployOptions())
	require.NoError(t, deploymentError)
	require.Equal(t, fixedTime, deploymentInfo.DeployedAt)
}

type fixedClock struct{ currentTime time.Time }

func (clock fixedClock) Now() time.Time { return clock.currentTime }
