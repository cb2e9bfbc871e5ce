package validate

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const (
	repositoryManagerMissingMessageConstant = "repository manager not configured"
	githubHostFragmentConstant              = "github.com"
	notGitRepositoryTemplateConstant        = "%s is not a git repository. Run 'git init' in the project directory, create a GitHub repository, and add it as the 'origin' remote before deploying"
	emptySiteTemplateConstant               = "the compiled site at %s is empty. Build the site first, then deploy the generated output"
	missingRemoteTemplateConstant           = "no 'origin' remote is configured for %s. Add one with 'git remote add origin <repository-url>' before deploying"
	nonGitHubRemoteTemplateConstant         = "the 'origin' remote %s is not a GitHub URL. This deployment path publishes to GitHub Pages only"
)

// ErrRepositoryManagerNotConfigured indicates the pipeline was built without a repository manager.
var ErrRepositoryManagerNotConfigured = errors.New(repositoryManagerMissingMessageConstant)

// PreconditionKind names the precondition that failed.
type PreconditionKind string

const (
	// PreconditionGitRepository fails when the project directory is not a git repository.
	PreconditionGitRepository PreconditionKind = "git_repository"
	// PreconditionSiteCompiled fails when the compiled site has no files.
	PreconditionSiteCompiled PreconditionKind = "site_compiled"
	// PreconditionRemoteMissing fails when no origin remote is configured.
	PreconditionRemoteMissing PreconditionKind = "remote_missing"
	// PreconditionGitHubRemote fails when the origin remote is not on GitHub.
	PreconditionGitHubRemote PreconditionKind = "github_remote"
)

// PreconditionError reports a failed pre-flight check with remediation text.
type PreconditionError struct {
	Kind        PreconditionKind
	Remediation string
}

// Error returns the remediation text.
func (preconditionError PreconditionError) Error() string {
	return preconditionError.Remediation
}

// RepositoryInspector exposes the git reads the pipeline performs.
type RepositoryInspector interface {
	IsGitRepository(executionContext context.Context, repositoryPath string) bool
	GetRemoteURL(executionContext context.Context, repositoryPath string, remoteName string) (string, error)
}

// Options configures one validation run. SiteFiles is the host-supplied list
// of compiled artifacts; the pipeline never rescans the filesystem.
type Options struct {
	ProjectPath string
	RemoteName  string
	SiteFiles   []string
}

// Pipeline runs the ordered pre-flight checks.
type Pipeline struct {
	repositoryInspector RepositoryInspector
}

// NewPipeline validates dependencies and builds a pipeline.
func NewPipeline(repositoryInspector RepositoryInspector) (*Pipeline, error) {
	if repositoryInspector == nil {
		return nil, ErrRepositoryManagerNotConfigured
	}
	return &Pipeline{repositoryInspector: repositoryInspector}, nil
}

// Validate runs the checks in order and returns the validated remote URL.
// Checks are fail-fast: the first failed precondition stops the run.
func (pipeline *Pipeline) Validate(executionContext context.Context, options Options) (string, error) {
	if !pipeline.repositoryInspector.IsGitRepository(executionContext, options.ProjectPath) {
		return "", PreconditionError{
			Kind:        PreconditionGitRepository,
			Remediation: fmt.Sprintf(notGitRepositoryTemplateConstant, options.ProjectPath),
		}
	}

	if len(options.SiteFiles) == 0 {
		return "", PreconditionError{
			Kind:        PreconditionSiteCompiled,
			Remediation: fmt.Sprintf(emptySiteTemplateConstant, options.ProjectPath),
		}
	}

	remoteURL, remoteLookupError := pipeline.repositoryInspector.GetRemoteURL(executionContext, options.ProjectPath, options.RemoteName)
	if remoteLookupError != nil || len(remoteURL) == 0 {
		return "", PreconditionError{
			Kind:        PreconditionRemoteMissing,
			Remediation: fmt.Sprintf(missingRemoteTemplateConstant, options.ProjectPath),
		}
	}
	if !strings.Contains(strings.ToLower(remoteURL), githubHostFragmentConstant) {
		return "", PreconditionError{
			Kind:        PreconditionGitHubRemote,
			Remediation: fmt.Sprintf(nonGitHubRemoteTemplateConstant, remoteURL),
		}
	}

	return remoteURL, nil
}
