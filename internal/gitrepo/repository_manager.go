package gitrepo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/temirov/ghpages/internal/execshell"
)

const (
	gitExecutorMissingMessageConstant         = "git executor not configured"
	gitInitSubcommandConstant                 = "init"
	gitRevParseSubcommandConstant             = "rev-parse"
	gitInsideWorkTreeFlagConstant             = "--is-inside-work-tree"
	gitRemoteSubcommandConstant               = "remote"
	gitRemoteGetURLActionConstant             = "get-url"
	gitRemoteAddActionConstant                = "add"
	gitBranchSubcommandConstant               = "branch"
	gitBranchListFlagConstant                 = "--list"
	gitLsRemoteSubcommandConstant             = "ls-remote"
	gitLsRemoteHeadsFlagConstant              = "--heads"
	gitCheckoutSubcommandConstant             = "checkout"
	gitCheckoutCreateResetFlagConstant        = "-B"
	gitAddSubcommandConstant                  = "add"
	gitAddAllPathSpecConstant                 = "."
	gitCommitSubcommandConstant               = "commit"
	gitCommitMessageFlagConstant              = "-m"
	gitPushSubcommandConstant                 = "push"
	gitPushSetUpstreamFlagConstant            = "--set-upstream"
	insideWorkTreeOutputConstant              = "true"
	initializeFailureTemplateConstant         = "failed to initialize repository at %s: %w"
	remoteLookupFailureTemplateConstant       = "failed to read %s remote: %w"
	remoteAddFailureTemplateConstant          = "failed to add %s remote: %w"
	localBranchLookupFailureTemplateConstant  = "failed to list local branches: %w"
	remoteBranchLookupFailureTemplateConstant = "failed to list remote branches: %w"
	checkoutFailureTemplateConstant           = "failed to checkout branch %s: %w"
	stageFailureTemplateConstant              = "failed to stage site contents: %w"
	commitFailureTemplateConstant             = "failed to commit site contents: %w"
)

// ErrGitExecutorNotConfigured indicates the manager was built without an executor.
var ErrGitExecutorNotConfigured = errors.New(gitExecutorMissingMessageConstant)

// GitExecutor runs git subcommands on behalf of the repository manager.
type GitExecutor interface {
	ExecuteGit(executionContext context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error)
}

// RepositoryManager exposes the repository-level git operations used by the
// deployment pipeline.
type RepositoryManager struct {
	executor GitExecutor
}

// NewRepositoryManager validates dependencies and builds a repository manager.
func NewRepositoryManager(executor GitExecutor) (*RepositoryManager, error) {
	if executor == nil {
		return nil, ErrGitExecutorNotConfigured
	}
	return &RepositoryManager{executor: executor}, nil
}

// IsGitRepository reports whether the directory is inside a git work tree.
func (manager *RepositoryManager) IsGitRepository(executionContext context.Context, repositoryPath string) bool {
	executionResult, executionError := manager.executor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        []string{gitRevParseSubcommandConstant, gitInsideWorkTreeFlagConstant},
		WorkingDirectory: repositoryPath,
	})
	if executionError != nil {
		return false
	}
	return strings.TrimSpace(executionResult.StandardOutput) == insideWorkTreeOutputConstant
}

// InitializeRepository creates a git repository in the directory.
func (manager *RepositoryManager) InitializeRepository(executionContext context.Context, repositoryPath string) error {
	_, executionError := manager.executor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        []string{gitInitSubcommandConstant},
		WorkingDirectory: repositoryPath,
	})
	if executionError != nil {
		return fmt.Errorf(initializeFailureTemplateConstant, repositoryPath, executionError)
	}
	return nil
}

// GetRemoteURL returns the configured URL for the remote.
func (manager *RepositoryManager) GetRemoteURL(executionContext context.Context, repositoryPath string, remoteName string) (string, error) {
	executionResult, executionError := manager.executor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        []string{gitRemoteSubcommandConstant, gitRemoteGetURLActionConstant, remoteName},
		WorkingDirectory: repositoryPath,
	})
	if executionError != nil {
		return "", fmt.Errorf(remoteLookupFailureTemplateConstant, remoteName, executionError)
	}
	return strings.TrimSpace(executionResult.StandardOutput), nil
}

// AddRemote registers a remote pointing at the URL.
func (manager *RepositoryManager) AddRemote(executionContext context.Context, repositoryPath string, remoteName string, remoteURL string) error {
	_, executionError := manager.executor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        []string{gitRemoteSubcommandConstant, gitRemoteAddActionConstant, remoteName, remoteURL},
		WorkingDirectory: repositoryPath,
	})
	if executionError != nil {
		return fmt.Errorf(remoteAddFailureTemplateConstant, remoteName, executionError)
	}
	return nil
}

// BranchExistsLocally reports whether the branch exists in the local repository.
func (manager *RepositoryManager) BranchExistsLocally(executionContext context.Context, repositoryPath string, branchName string) (bool, error) {
	executionResult, executionError := manager.executor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        []string{gitBranchSubcommandConstant, gitBranchListFlagConstant, branchName},
		WorkingDirectory: repositoryPath,
	})
	if executionError != nil {
		return false, fmt.Errorf(localBranchLookupFailureTemplateConstant, executionError)
	}
	return len(strings.TrimSpace(executionResult.StandardOutput)) > 0, nil
}

// BranchExistsOnRemote reports whether the branch exists on the remote.
func (manager *RepositoryManager) BranchExistsOnRemote(executionContext context.Context, repositoryPath string, remoteName string, branchName string) (bool, error) {
	executionResult, executionError := manager.executor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        []string{gitLsRemoteSubcommandConstant, gitLsRemoteHeadsFlagConstant, remoteName, branchName},
		WorkingDirectory: repositoryPath,
	})
	if executionError != nil {
		return false, fmt.Errorf(remoteBranchLookupFailureTemplateConstant, executionError)
	}
	return len(strings.TrimSpace(executionResult.StandardOutput)) > 0, nil
}

// CheckoutBranch switches to the branch, creating or resetting it as needed.
func (manager *RepositoryManager) CheckoutBranch(executionContext context.Context, repositoryPath string, branchName string) error {
	_, executionError := manager.executor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        []string{gitCheckoutSubcommandConstant, gitCheckoutCreateResetFlagConstant, branchName},
		WorkingDirectory: repositoryPath,
	})
	if executionError != nil {
		return fmt.Errorf(checkoutFailureTemplateConstant, branchName, executionError)
	}
	return nil
}

// StageAll stages every change under the repository path.
func (manager *RepositoryManager) StageAll(executionContext context.Context, repositoryPath string) error {
	_, executionError := manager.executor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        []string{gitAddSubcommandConstant, gitAddAllPathSpecConstant},
		WorkingDirectory: repositoryPath,
	})
	if executionError != nil {
		return fmt.Errorf(stageFailureTemplateConstant, executionError)
	}
	return nil
}

// Commit records staged changes with the message.
func (manager *RepositoryManager) Commit(executionContext context.Context, repositoryPath string, commitMessage string) error {
	_, executionError := manager.executor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        []string{gitCommitSubcommandConstant, gitCommitMessageFlagConstant, commitMessage},
		WorkingDirectory: repositoryPath,
	})
	if executionError != nil {
		return fmt.Errorf(commitFailureTemplateConstant, executionError)
	}
	return nil
}

// Push publishes the branch to the push target URL or remote name.
func (manager *RepositoryManager) Push(executionContext context.Context, repositoryPath string, pushTarget string, branchName string, setUpstream bool) error {
	pushArguments := []string{gitPushSubcommandConstant}
	if setUpstream {
		pushArguments = append(pushArguments, gitPushSetUpstreamFlagConstant)
	}
	pushArguments = append(pushArguments, pushTarget, branchName)
	_, executionError := manager.executor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        pushArguments,
		WorkingDirectory: repositoryPath,
	})
	return executionError
}
