package provision

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/temirov/ghpages/internal/deviceflow"
	"github.com/temirov/ghpages/internal/githubapi"
	"github.com/temirov/ghpages/internal/githubauth"
	"github.com/temirov/ghpages/internal/tokenstore"
)

const (
	loggerMissingMessageConstant            = "logger not configured"
	githubClientMissingMessageConstant      = "github client not configured"
	tokenStoreMissingMessageConstant        = "token store not configured"
	authenticatorMissingMessageConstant     = "authenticator not configured"
	setupFormMissingMessageConstant         = "setup form not configured"
	rootRepositorySuffixConstant            = ".github.io"
	defaultHeartbeatIntervalConstant        = 30 * time.Second
	defaultFormWaitTimeoutConstant          = 10 * time.Minute
	setupPhaseNameConstant                  = "repository_setup"
	heartbeatMessageConstant                = "Waiting for repository name selection"
	cachedTokenRejectedMessageConstant      = "Cached token is no longer usable, discarding it"
	environmentTokenRejectedMessageConstant = "Environment token lacks required scopes or is invalid"
	deviceFlowFailedMessageConstant         = "Device flow did not produce a usable token"
	repositoryCreationFailedMessageConstant = "Repository creation failed"
	invalidRepositoryNameMessageConstant    = "Submitted repository name is not valid"
	formTimeoutMessageConstant              = "Repository setup form timed out"
	nonInteractiveSkipMessageConstant       = "Non-interactive run, skipping the repository setup form"
	rootRepositoryCreatedMessageConstant    = "Created root Pages repository"
	customRepositoryCreatedMessageConstant  = "Created custom Pages repository"
	repositoryScopeConstant                 = "repo"
	workflowScopeConstant                   = "workflow"
	repositoryDescriptionDefaultConstant    = "Static site published with GitHub Pages"
)

// ErrLoggerNotConfigured indicates the provisioner was built without a logger.
var ErrLoggerNotConfigured = errors.New(loggerMissingMessageConstant)

// ErrGitHubClientNotConfigured indicates the provisioner was built without a GitHub client.
var ErrGitHubClientNotConfigured = errors.New(githubClientMissingMessageConstant)

// ErrTokenStoreNotConfigured indicates the provisioner was built without a token store.
var ErrTokenStoreNotConfigured = errors.New(tokenStoreMissingMessageConstant)

// ErrAuthenticatorNotConfigured indicates the provisioner was built without an authenticator.
var ErrAuthenticatorNotConfigured = errors.New(authenticatorMissingMessageConstant)

// ErrSetupFormNotConfigured indicates the provisioner was built without a setup form.
var ErrSetupFormNotConfigured = errors.New(setupFormMissingMessageConstant)

// Resolution names the terminal state of one provisioning attempt.
type Resolution string

const (
	// ResolutionProvisioned indicates a repository is ready for publishing.
	ResolutionProvisioned Resolution = "provisioned"
	// ResolutionUnauthenticated indicates no usable token could be obtained.
	ResolutionUnauthenticated Resolution = "unauthenticated"
	// ResolutionCancelled indicates the user cancelled or the form timed out.
	ResolutionCancelled Resolution = "cancelled"
	// ResolutionCreationFailed indicates repository creation was rejected.
	ResolutionCreationFailed Resolution = "creation_failed"
)

// GitHubClient exposes the GitHub API operations the provisioner performs.
type GitHubClient interface {
	GetAuthenticatedUser(executionContext context.Context, accessToken string) (githubapi.AuthenticatedUser, error)
	CheckRepositoryExists(executionContext context.Context, owner string, repositoryName string, accessToken string) bool
	CreateRepository(executionContext context.Context, repositoryName string, accessToken string, description string) (githubapi.RepositoryCandidate, error)
}

// TokenStore exposes the token cache operations the provisioner performs.
type TokenStore interface {
	Lookup() (tokenstore.AccessToken, bool)
	Save(accessToken tokenstore.AccessToken)
	Clear()
}

// Authenticator runs a device-flow login when no cached token is usable.
type Authenticator interface {
	Authenticate(executionContext context.Context) (*tokenstore.AccessToken, deviceflow.Outcome, error)
}

// ProgressReporter publishes the setup heartbeat.
type ProgressReporter interface {
	ReportProgress(phase string, currentStep int, totalSteps int, message string)
}

// EnvironmentTokenResolver resolves a token from the process environment.
type EnvironmentTokenResolver func() (string, bool)

// Dependencies enumerates the collaborators required by the provisioner.
type Dependencies struct {
	Logger                   *zap.Logger
	GitHubClient             GitHubClient
	TokenStore               TokenStore
	Authenticator            Authenticator
	SetupForm                SetupForm
	ProgressReporter         ProgressReporter
	EnvironmentTokenResolver EnvironmentTokenResolver
}

// Configuration carries the timing knobs and repository description.
// PresetRepositoryName bypasses the interactive form; NonInteractive treats
// the form as cancelled when no preset name is configured.
type Configuration struct {
	HeartbeatInterval     time.Duration
	FormWaitTimeout       time.Duration
	RepositoryDescription string
	PresetRepositoryName  string
	NonInteractive        bool
}

func (configuration *Configuration) applyDefaults() {
	if configuration.HeartbeatInterval <= 0 {
		configuration.HeartbeatInterval = defaultHeartbeatIntervalConstant
	}
	if configuration.FormWaitTimeout <= 0 {
		configuration.FormWaitTimeout = defaultFormWaitTimeoutConstant
	}
	if len(configuration.RepositoryDescription) == 0 {
		configuration.RepositoryDescription = repositoryDescriptionDefaultConstant
	}
}

// Authentication pairs a usable token with the user it belongs to.
type Authentication struct {
	Token string
	User  githubapi.AuthenticatedUser
}

// Provisioner ensures a GitHub repository exists for the deployment.
type Provisioner struct {
	logger           *zap.Logger
	githubClient     GitHubClient
	tokenStore       TokenStore
	authenticator    Authenticator
	setupForm        SetupForm
	progressReporter ProgressReporter
	environmentToken EnvironmentTokenResolver
	configuration    Configuration
}

type noopProgressReporter struct{}

func (noopProgressReporter) ReportProgress(string, int, int, string) {}

// NewProvisioner validates dependencies and builds a provisioner.
func NewProvisioner(dependencies Dependencies, configuration Configuration) (*Provisioner, error) {
	if dependencies.Logger == nil {
		return nil, ErrLoggerNotConfigured
	}
	if dependencies.GitHubClient == nil {
		return nil, ErrGitHubClientNotConfigured
	}
	if dependencies.TokenStore == nil {
		return nil, ErrTokenStoreNotConfigured
	}
	if dependencies.Authenticator == nil {
		return nil, ErrAuthenticatorNotConfigured
	}
	if dependencies.SetupForm == nil {
		return nil, ErrSetupFormNotConfigured
	}
	if dependencies.ProgressReporter == nil {
		dependencies.ProgressReporter = noopProgressReporter{}
	}
	if dependencies.EnvironmentTokenResolver == nil {
		dependencies.EnvironmentTokenResolver = func() (string, bool) {
			return githubauth.ResolveToken(nil)
		}
	}
	configuration.applyDefaults()
	return &Provisioner{
		logger:           dependencies.Logger,
		githubClient:     dependencies.GitHubClient,
		tokenStore:       dependencies.TokenStore,
		authenticator:    dependencies.Authenticator,
		setupForm:        dependencies.SetupForm,
		progressReporter: dependencies.ProgressReporter,
		environmentToken: dependencies.EnvironmentTokenResolver,
		configuration:    configuration,
	}, nil
}

// EnsureRepository obtains authentication and resolves the repository the
// site publishes to. A nil candidate with a nil error is a clean,
// non-exceptional outcome distinguished by the resolution.
func (provisioner *Provisioner) EnsureRepository(executionContext context.Context) (*githubapi.RepositoryCandidate, Resolution, error) {
	authentication, authenticated := provisioner.ResolveAuthentication(executionContext)
	if !authenticated {
		return nil, ResolutionUnauthenticated, nil
	}
	return provisioner.EnsureRepositoryWithAuthentication(executionContext, authentication)
}

// EnsureRepositoryWithAuthentication resolves the repository using an already
// validated authentication.
func (provisioner *Provisioner) EnsureRepositoryWithAuthentication(executionContext context.Context, authentication Authentication) (*githubapi.RepositoryCandidate, Resolution, error) {
	rootRepositoryName := authentication.User.Login + rootRepositorySuffixConstant
	if !provisioner.githubClient.CheckRepositoryExists(executionContext, authentication.User.Login, rootRepositoryName, authentication.Token) {
		return provisioner.createRepository(executionContext, authentication, rootRepositoryName, rootRepositoryCreatedMessageConstant)
	}

	return provisioner.collectCustomRepository(executionContext, authentication, rootRepositoryName)
}

// ResolveAuthentication finds a usable token, trying the token store, the
// process environment, and finally a fresh device-flow login. An invalid
// cached token is purged, never silently reused.
func (provisioner *Provisioner) ResolveAuthentication(executionContext context.Context) (Authentication, bool) {
	if cachedToken, tokenFound := provisioner.tokenStore.Lookup(); tokenFound {
		if authenticatedUser, usable := provisioner.validateToken(executionContext, cachedToken.Token); usable {
			return Authentication{Token: cachedToken.Token, User: authenticatedUser}, true
		}
		provisioner.logger.Info(cachedTokenRejectedMessageConstant)
		provisioner.tokenStore.Clear()
	}

	if environmentToken, tokenFound := provisioner.environmentToken(); tokenFound {
		if authenticatedUser, usable := provisioner.validateToken(executionContext, environmentToken); usable {
			return Authentication{Token: environmentToken, User: authenticatedUser}, true
		}
		provisioner.logger.Warn(environmentTokenRejectedMessageConstant)
	}

	freshToken, outcome, authenticationError := provisioner.authenticator.Authenticate(executionContext)
	if freshToken == nil {
		provisioner.logger.Warn(deviceFlowFailedMessageConstant,
			zap.String("outcome", string(outcome)),
			zap.Error(authenticationError),
		)
		return Authentication{}, false
	}

	authenticatedUser, usable := provisioner.validateToken(executionContext, freshToken.Token)
	if !usable {
		return Authentication{}, false
	}
	provisioner.tokenStore.Save(*freshToken)
	return Authentication{Token: freshToken.Token, User: authenticatedUser}, true
}

func (provisioner *Provisioner) validateToken(executionContext context.Context, accessToken string) (githubapi.AuthenticatedUser, bool) {
	authenticatedUser, userError := provisioner.githubClient.GetAuthenticatedUser(executionContext, accessToken)
	if userError != nil {
		return githubapi.AuthenticatedUser{}, false
	}
	if !authenticatedUser.HasScope(repositoryScopeConstant) || !authenticatedUser.HasScope(workflowScopeConstant) {
		return githubapi.AuthenticatedUser{}, false
	}
	return authenticatedUser, true
}

func (provisioner *Provisioner) createRepository(executionContext context.Context, authentication Authentication, repositoryName string, successMessage string) (*githubapi.RepositoryCandidate, Resolution, error) {
	repositoryCandidate, creationError := provisioner.githubClient.CreateRepository(executionContext, repositoryName, authentication.Token, provisioner.configuration.RepositoryDescription)
	if creationError != nil {
		provisioner.logger.Warn(repositoryCreationFailedMessageConstant,
			zap.String("repository", repositoryName),
			zap.Error(creationError),
		)
		return nil, ResolutionCreationFailed, nil
	}
	provisioner.logger.Info(successMessage, zap.String("repository", repositoryCandidate.FullName))
	return &repositoryCandidate, ResolutionProvisioned, nil
}

// collectCustomRepository races the form's submit and cancel signals against
// the wait deadline while a heartbeat keeps the host's inactivity watchdog
// quiet. The heartbeat ticker is torn down on every exit path.
func (provisioner *Provisioner) collectCustomRepository(executionContext context.Context, authentication Authentication, rootRepositoryName string) (*githubapi.RepositoryCandidate, Resolution, error) {
	if len(provisioner.configuration.PresetRepositoryName) > 0 {
		return provisioner.handleSubmission(executionContext, authentication, SetupSubmission{RepositoryName: provisioner.configuration.PresetRepositoryName})
	}
	if provisioner.configuration.NonInteractive {
		provisioner.logger.Info(nonInteractiveSkipMessageConstant)
		return nil, ResolutionCancelled, nil
	}

	formSession, formError := provisioner.setupForm.Open(executionContext, SetupFormDetails{
		Login:              authentication.User.Login,
		RootRepositoryName: rootRepositoryName,
	})
	if formError != nil {
		return nil, ResolutionCancelled, formError
	}
	defer formSession.Close()

	heartbeatTicker := time.NewTicker(provisioner.configuration.HeartbeatInterval)
	defer heartbeatTicker.Stop()
	deadlineTimer := time.NewTimer(provisioner.configuration.FormWaitTimeout)
	defer deadlineTimer.Stop()

	for {
		select {
		case submission, channelOpen := <-formSession.Submissions:
			heartbeatTicker.Stop()
			if !channelOpen {
				return nil, ResolutionCancelled, nil
			}
			return provisioner.handleSubmission(executionContext, authentication, submission)
		case <-formSession.Cancellations:
			heartbeatTicker.Stop()
			return nil, ResolutionCancelled, nil
		case <-deadlineTimer.C:
			heartbeatTicker.Stop()
			provisioner.logger.Info(formTimeoutMessageConstant)
			return nil, ResolutionCancelled, nil
		case <-executionContext.Done():
			heartbeatTicker.Stop()
			return nil, ResolutionCancelled, executionContext.Err()
		case <-heartbeatTicker.C:
			provisioner.progressReporter.ReportProgress(setupPhaseNameConstant, 0, 0, heartbeatMessageConstant)
		}
	}
}

func (provisioner *Provisioner) handleSubmission(executionContext context.Context, authentication Authentication, submission SetupSubmission) (*githubapi.RepositoryCandidate, Resolution, error) {
	if !githubapi.IsValidRepositoryName(submission.RepositoryName) {
		provisioner.logger.Warn(invalidRepositoryNameMessageConstant, zap.String("repository", submission.RepositoryName))
		return nil, ResolutionCreationFailed, nil
	}
	return provisioner.createRepository(executionContext, authentication, submission.RepositoryName, customRepositoryCreatedMessageConstant)
}
