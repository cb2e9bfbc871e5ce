package deploy

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/temirov/ghpages/internal/githubapi"
	"github.com/temirov/ghpages/internal/gitrepo"
	"github.com/temirov/ghpages/internal/provision"
	"github.com/temirov/ghpages/internal/publish"
	"github.com/temirov/ghpages/internal/validate"
)

const (
	loggerMissingMessageConstant         = "logger not configured"
	validatorMissingMessageConstant      = "validation pipeline not configured"
	provisionerMissingMessageConstant    = "repository provisioner not configured"
	publisherMissingMessageConstant      = "git publisher not configured"
	validationPhaseNameConstant          = "validation"
	setupPhaseNameConstant               = "repository_setup"
	publishPhaseNameConstant             = "publish"
	completePhaseNameConstant            = "complete"
	totalPhaseCountConstant              = 4
	validationPhaseMessageConstant       = "Running pre-flight checks"
	setupPhaseMessageConstant            = "Resolving deployment repository"
	publishPhaseMessageConstant          = "Publishing site"
	completePhaseMessageConstant         = "Deployment finished"
	noUsableTokenReasonConstant          = "no usable GitHub token could be obtained"
	gitSuffixConstant                    = ".git"
	deploySucceededMessageConstant       = "Site deployed"
	repositoryResolvedMessageConstant    = "Deployment repository resolved"
	tokenlessPushMessageConstant         = "No GitHub token available, pushing with the remote's own credentials"
)

// ErrLoggerNotConfigured indicates the orchestrator was built without a logger.
var ErrLoggerNotConfigured = errors.New(loggerMissingMessageConstant)

// ErrValidatorNotConfigured indicates the orchestrator was built without a validation pipeline.
var ErrValidatorNotConfigured = errors.New(validatorMissingMessageConstant)

// ErrProvisionerNotConfigured indicates the orchestrator was built without a provisioner.
var ErrProvisionerNotConfigured = errors.New(provisionerMissingMessageConstant)

// ErrPublisherNotConfigured indicates the orchestrator was built without a publisher.
var ErrPublisherNotConfigured = errors.New(publisherMissingMessageConstant)

// DeploymentInfo is the terminal artifact of a successful deploy.
type DeploymentInfo struct {
	URL           string
	DeployedAt    time.Time
	WasFirstSetup bool
}

// Validator runs the pre-flight checks.
type Validator interface {
	Validate(executionContext context.Context, options validate.Options) (string, error)
}

// RepositoryProvisioner resolves authentication and the target repository.
type RepositoryProvisioner interface {
	ResolveAuthentication(executionContext context.Context) (provision.Authentication, bool)
	EnsureRepositoryWithAuthentication(executionContext context.Context, authentication provision.Authentication) (*githubapi.RepositoryCandidate, provision.Resolution, error)
}

// SitePublisher commits and pushes the compiled site.
type SitePublisher interface {
	Publish(executionContext context.Context, options publish.Options) (publish.Result, error)
}

// ProgressReporter publishes coarse deploy phases.
type ProgressReporter interface {
	ReportProgress(phase string, currentStep int, totalSteps int, message string)
}

// Clock supplies the deployment timestamp.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

type noopProgressReporter struct{}

func (noopProgressReporter) ReportProgress(string, int, int, string) {}

// Dependencies enumerates the collaborators required by the orchestrator.
type Dependencies struct {
	Logger           *zap.Logger
	Validator        Validator
	Provisioner      RepositoryProvisioner
	Publisher        SitePublisher
	ProgressReporter ProgressReporter
	Clock            Clock
}

// Options configures one deploy invocation. SiteFiles is the host-supplied
// list of compiled artifacts.
type Options struct {
	ProjectPath string
	RemoteName  string
	BranchName  string
	SiteFiles   []string
}

// Service orchestrates a full deployment.
type Service struct {
	logger           *zap.Logger
	validator        Validator
	provisioner      RepositoryProvisioner
	publisher        SitePublisher
	progressReporter ProgressReporter
	clock            Clock
}

// NewService validates dependencies and builds the orchestrator.
func NewService(dependencies Dependencies) (*Service, error) {
	if dependencies.Logger == nil {
		return nil, ErrLoggerNotConfigured
	}
	if dependencies.Validator == nil {
		return nil, ErrValidatorNotConfigured
	}
	if dependencies.Provisioner == nil {
		return nil, ErrProvisionerNotConfigured
	}
	if dependencies.Publisher == nil {
		return nil, ErrPublisherNotConfigured
	}
	if dependencies.ProgressReporter == nil {
		dependencies.ProgressReporter = noopProgressReporter{}
	}
	if dependencies.Clock == nil {
		dependencies.Clock = systemClock{}
	}
	return &Service{
		logger:           dependencies.Logger,
		validator:        dependencies.Validator,
		provisioner:      dependencies.Provisioner,
		publisher:        dependencies.Publisher,
		progressReporter: dependencies.ProgressReporter,
		clock:            dependencies.Clock,
	}, nil
}

type resolvedTarget struct {
	owner       string
	repository  string
	remoteURL   string
	accessToken string
}

// Deploy runs the full pipeline and returns the deployment result. All
// precondition failures surface before any network or authentication work.
func (service *Service) Deploy(executionContext context.Context, options Options) (*DeploymentInfo, error) {
	service.progressReporter.ReportProgress(validationPhaseNameConstant, 1, totalPhaseCountConstant, validationPhaseMessageConstant)
	validatedRemoteURL, validationError := service.validator.Validate(executionContext, validate.Options{
		ProjectPath: options.ProjectPath,
		RemoteName:  options.RemoteName,
		SiteFiles:   options.SiteFiles,
	})

	target, targetError := service.resolveTarget(executionContext, validatedRemoteURL, validationError)
	if targetError != nil {
		return nil, targetError
	}
	service.logger.Info(repositoryResolvedMessageConstant,
		zap.String("owner", target.owner),
		zap.String("repository", target.repository),
	)

	service.progressReporter.ReportProgress(publishPhaseNameConstant, 3, totalPhaseCountConstant, publishPhaseMessageConstant)
	publishResult, publishError := service.publisher.Publish(executionContext, publish.Options{
		ProjectPath: options.ProjectPath,
		RemoteName:  options.RemoteName,
		BranchName:  options.BranchName,
		Owner:       target.owner,
		Repository:  target.repository,
		RemoteURL:   target.remoteURL,
		AccessToken: target.accessToken,
	})
	if publishError != nil {
		return nil, publishError
	}

	service.progressReporter.ReportProgress(completePhaseNameConstant, 4, totalPhaseCountConstant, completePhaseMessageConstant)
	deploymentInfo := &DeploymentInfo{
		URL:           publishResult.PagesURL,
		DeployedAt:    service.clock.Now(),
		WasFirstSetup: publishResult.WasFirstSetup,
	}
	service.logger.Info(deploySucceededMessageConstant,
		zap.String("url", deploymentInfo.URL),
		zap.Bool("was_first_setup", deploymentInfo.WasFirstSetup),
	)
	return deploymentInfo, nil
}

// resolveTarget decides where the site publishes. An existing GitHub remote
// is reused; a missing remote routes through the provisioner; every other
// precondition failure stops the deploy.
func (service *Service) resolveTarget(executionContext context.Context, validatedRemoteURL string, validationError error) (resolvedTarget, error) {
	if validationError == nil {
		return service.resolveExistingRemote(executionContext, validatedRemoteURL)
	}

	var preconditionError validate.PreconditionError
	if errors.As(validationError, &preconditionError) && preconditionError.Kind == validate.PreconditionRemoteMissing {
		return service.provisionRepository(executionContext)
	}
	return resolvedTarget{}, validationError
}

func (service *Service) resolveExistingRemote(executionContext context.Context, validatedRemoteURL string) (resolvedTarget, error) {
	parsedRemote, parseError := gitrepo.ParseRemoteURL(validatedRemoteURL)
	if parseError != nil {
		return resolvedTarget{}, parseError
	}

	target := resolvedTarget{
		owner:      parsedRemote.Owner,
		repository: strings.TrimSuffix(parsedRemote.Repository, gitSuffixConstant),
		remoteURL:  validatedRemoteURL,
	}

	authentication, authenticated := service.provisioner.ResolveAuthentication(executionContext)
	if authenticated {
		target.accessToken = authentication.Token
		return target, nil
	}
	if parsedRemote.Protocol == gitrepo.RemoteProtocolHTTPS {
		return resolvedTarget{}, AuthenticationError{Reason: noUsableTokenReasonConstant}
	}
	service.logger.Info(tokenlessPushMessageConstant, zap.String("remote", validatedRemoteURL))
	return target, nil
}

func (service *Service) provisionRepository(executionContext context.Context) (resolvedTarget, error) {
	service.progressReporter.ReportProgress(setupPhaseNameConstant, 2, totalPhaseCountConstant, setupPhaseMessageConstant)

	authentication, authenticated := service.provisioner.ResolveAuthentication(executionContext)
	if !authenticated {
		return resolvedTarget{}, AuthenticationError{Reason: noUsableTokenReasonConstant}
	}

	repositoryCandidate, resolution, provisioningError := service.provisioner.EnsureRepositoryWithAuthentication(executionContext, authentication)
	if provisioningError != nil {
		return resolvedTarget{}, provisioningError
	}
	switch resolution {
	case provision.ResolutionProvisioned:
	case provision.ResolutionCancelled:
		return resolvedTarget{}, SetupCancelledError{}
	case provision.ResolutionCreationFailed:
		return resolvedTarget{}, CreationFailedError{}
	default:
		return resolvedTarget{}, AuthenticationError{Reason: noUsableTokenReasonConstant}
	}

	return resolvedTarget{
		owner:       repositoryCandidate.Owner,
		repository:  repositoryCandidate.Name,
		remoteURL:   repositoryCandidate.HTMLURL + gitSuffixConstant,
		accessToken: authentication.Token,
	}, nil
}
