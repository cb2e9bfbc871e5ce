package publish

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/temirov/ghpages/internal/execshell"
)

const (
	loggerMissingMessageConstant            = "logger not configured"
	repositoryManagerMissingMessageConstant = "repository manager not configured"
	clockMissingMessageConstant             = "clock not configured"
	defaultRemoteNameConstant               = "origin"
	defaultBranchNameConstant               = "gh-pages"
	commitMessagePrefixConstant             = "Site update: "
	commitTimestampLayoutConstant           = "2006-01-02 15:04:05"
	tokenPushURLTemplateConstant            = "https://x-access-token:%s@github.com/%s/%s.git"
	missingUpstreamFragmentConstant         = "no upstream branch"
	nothingToCommitFragmentConstant         = "nothing to commit"
	pushFailureTemplateConstant             = "failed to push %s to %s"
	bootstrappedRepositoryMessageConstant   = "Initialized git repository for site deployment"
	registeredRemoteMessageConstant         = "Registered deployment remote"
	upstreamRetryMessageConstant            = "Push rejected for missing upstream, retrying with --set-upstream"
	emptyCommitSkippedMessageConstant       = "No site changes to commit, pushing existing history"
)

// ErrLoggerNotConfigured indicates the publisher was built without a logger.
var ErrLoggerNotConfigured = errors.New(loggerMissingMessageConstant)

// ErrRepositoryManagerNotConfigured indicates the publisher was built without a repository manager.
var ErrRepositoryManagerNotConfigured = errors.New(repositoryManagerMissingMessageConstant)

// ErrClockNotConfigured indicates the publisher was built without a clock.
var ErrClockNotConfigured = errors.New(clockMissingMessageConstant)

// Clock supplies the commit timestamp.
type Clock interface {
	Now() time.Time
}

// SystemClock implements Clock over the runtime clock.
type SystemClock struct{}

// Now returns the current wall-clock time.
func (SystemClock) Now() time.Time {
	return time.Now()
}

// RepositoryManager exposes the git operations the publisher performs.
type RepositoryManager interface {
	IsGitRepository(executionContext context.Context, repositoryPath string) bool
	InitializeRepository(executionContext context.Context, repositoryPath string) error
	GetRemoteURL(executionContext context.Context, repositoryPath string, remoteName string) (string, error)
	AddRemote(executionContext context.Context, repositoryPath string, remoteName string, remoteURL string) error
	BranchExistsLocally(executionContext context.Context, repositoryPath string, branchName string) (bool, error)
	BranchExistsOnRemote(executionContext context.Context, repositoryPath string, remoteName string, branchName string) (bool, error)
	CheckoutBranch(executionContext context.Context, repositoryPath string, branchName string) error
	StageAll(executionContext context.Context, repositoryPath string) error
	Commit(executionContext context.Context, repositoryPath string, commitMessage string) error
	Push(executionContext context.Context, repositoryPath string, pushTarget string, branchName string, setUpstream bool) error
}

// Dependencies enumerates the collaborators required by the publisher.
type Dependencies struct {
	Logger            *zap.Logger
	RepositoryManager RepositoryManager
	Clock             Clock
}

// Options configures one publish run.
type Options struct {
	ProjectPath string
	RemoteName  string
	BranchName  string
	Owner       string
	Repository  string
	RemoteURL   string
	AccessToken string
}

// Result captures the observable outcome of a publish.
type Result struct {
	PagesURL      string
	WasFirstSetup bool
}

// OperationError reports a git operation that failed after its retry budget.
type OperationError struct {
	Operation string
	Cause     error
}

// Error describes the failed operation.
func (operationError OperationError) Error() string {
	return fmt.Sprintf("%s: %v", operationError.Operation, operationError.Cause)
}

// Unwrap exposes the underlying cause.
func (operationError OperationError) Unwrap() error {
	return operationError.Cause
}

// Publisher pushes a compiled site to the gh-pages branch.
type Publisher struct {
	logger            *zap.Logger
	repositoryManager RepositoryManager
	clock             Clock
}

// NewPublisher validates dependencies and builds a publisher.
func NewPublisher(dependencies Dependencies) (*Publisher, error) {
	if dependencies.Logger == nil {
		return nil, ErrLoggerNotConfigured
	}
	if dependencies.RepositoryManager == nil {
		return nil, ErrRepositoryManagerNotConfigured
	}
	if dependencies.Clock == nil {
		dependencies.Clock = SystemClock{}
	}
	return &Publisher{
		logger:            dependencies.Logger,
		repositoryManager: dependencies.RepositoryManager,
		clock:             dependencies.Clock,
	}, nil
}

// Publish bootstraps the repository and remote when missing, commits the
// staged site, and pushes it. The push is retried exactly once with the
// upstream-setting flag when the first attempt fails for a missing upstream.
func (publisher *Publisher) Publish(executionContext context.Context, options Options) (Result, error) {
	options = applyOptionDefaults(options)

	if bootstrapError := publisher.ensureRepository(executionContext, options); bootstrapError != nil {
		return Result{}, bootstrapError
	}
	if remoteError := publisher.ensureRemote(executionContext, options); remoteError != nil {
		return Result{}, remoteError
	}

	wasFirstSetup, detectionError := publisher.detectFirstSetup(executionContext, options)
	if detectionError != nil {
		return Result{}, detectionError
	}

	if checkoutError := publisher.repositoryManager.CheckoutBranch(executionContext, options.ProjectPath, options.BranchName); checkoutError != nil {
		return Result{}, checkoutError
	}
	if stageError := publisher.repositoryManager.StageAll(executionContext, options.ProjectPath); stageError != nil {
		return Result{}, stageError
	}
	if commitError := publisher.commitSite(executionContext, options); commitError != nil {
		return Result{}, commitError
	}
	if pushError := publisher.pushSite(executionContext, options); pushError != nil {
		return Result{}, pushError
	}

	return Result{
		PagesURL:      DerivePagesURL(options.Owner, options.Repository),
		WasFirstSetup: wasFirstSetup,
	}, nil
}

func applyOptionDefaults(options Options) Options {
	if len(options.RemoteName) == 0 {
		options.RemoteName = defaultRemoteNameConstant
	}
	if len(options.BranchName) == 0 {
		options.BranchName = defaultBranchNameConstant
	}
	return options
}

func (publisher *Publisher) ensureRepository(executionContext context.Context, options Options) error {
	if publisher.repositoryManager.IsGitRepository(executionContext, options.ProjectPath) {
		return nil
	}
	if initializeError := publisher.repositoryManager.InitializeRepository(executionContext, options.ProjectPath); initializeError != nil {
		return initializeError
	}
	publisher.logger.Info(bootstrappedRepositoryMessageConstant, zap.String("path", options.ProjectPath))
	return nil
}

func (publisher *Publisher) ensureRemote(executionContext context.Context, options Options) error {
	existingRemoteURL, remoteLookupError := publisher.repositoryManager.GetRemoteURL(executionContext, options.ProjectPath, options.RemoteName)
	if remoteLookupError == nil && len(existingRemoteURL) > 0 {
		return nil
	}
	if addRemoteError := publisher.repositoryManager.AddRemote(executionContext, options.ProjectPath, options.RemoteName, options.RemoteURL); addRemoteError != nil {
		return addRemoteError
	}
	publisher.logger.Info(registeredRemoteMessageConstant,
		zap.String("remote", options.RemoteName),
		zap.String("url", SanitizeRemoteURL(options.RemoteURL)),
	)
	return nil
}

func (publisher *Publisher) detectFirstSetup(executionContext context.Context, options Options) (bool, error) {
	localExists, localLookupError := publisher.repositoryManager.BranchExistsLocally(executionContext, options.ProjectPath, options.BranchName)
	if localLookupError != nil {
		return false, localLookupError
	}
	if localExists {
		return false, nil
	}
	remoteExists, remoteLookupError := publisher.repositoryManager.BranchExistsOnRemote(executionContext, options.ProjectPath, options.RemoteName, options.BranchName)
	if remoteLookupError != nil {
		return false, remoteLookupError
	}
	return !remoteExists, nil
}

func (publisher *Publisher) commitSite(executionContext context.Context, options Options) error {
	commitMessage := commitMessagePrefixConstant + publisher.clock.Now().Format(commitTimestampLayoutConstant)
	commitError := publisher.repositoryManager.Commit(executionContext, options.ProjectPath, commitMessage)
	if commitError == nil {
		return nil
	}
	if commandOutputContains(commitError, nothingToCommitFragmentConstant) {
		publisher.logger.Info(emptyCommitSkippedMessageConstant, zap.String("path", options.ProjectPath))
		return nil
	}
	return commitError
}

func (publisher *Publisher) pushSite(executionContext context.Context, options Options) error {
	pushTarget := publisher.resolvePushTarget(options)

	firstPushError := publisher.repositoryManager.Push(executionContext, options.ProjectPath, pushTarget, options.BranchName, false)
	if firstPushError == nil {
		return nil
	}
	if !commandOutputContains(firstPushError, missingUpstreamFragmentConstant) {
		return OperationError{
			Operation: fmt.Sprintf(pushFailureTemplateConstant, options.BranchName, SanitizeRemoteURL(pushTarget)),
			Cause:     firstPushError,
		}
	}

	publisher.logger.Info(upstreamRetryMessageConstant, zap.String("branch", options.BranchName))
	retryPushError := publisher.repositoryManager.Push(executionContext, options.ProjectPath, pushTarget, options.BranchName, true)
	if retryPushError != nil {
		return OperationError{
			Operation: fmt.Sprintf(pushFailureTemplateConstant, options.BranchName, SanitizeRemoteURL(pushTarget)),
			Cause:     retryPushError,
		}
	}
	return nil
}

// resolvePushTarget injects the access token into an HTTPS push URL when a
// token is available. The token-bearing URL is used only as a push argument
// and is never written to the on-disk git configuration.
func (publisher *Publisher) resolvePushTarget(options Options) string {
	if len(options.AccessToken) == 0 {
		return options.RemoteName
	}
	return fmt.Sprintf(tokenPushURLTemplateConstant, options.AccessToken, options.Owner, options.Repository)
}

func commandOutputContains(operationError error, fragment string) bool {
	var commandFailure execshell.CommandFailedError
	if !errors.As(operationError, &commandFailure) {
		return false
	}
	combinedOutput := strings.ToLower(commandFailure.Result.StandardError + "\n" + commandFailure.Result.StandardOutput)
	return strings.Contains(combinedOutput, fragment)
}
