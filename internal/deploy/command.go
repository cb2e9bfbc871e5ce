package deploy

import (
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/temirov/ghpages/internal/deviceflow"
	"github.com/temirov/ghpages/internal/execshell"
	"github.com/temirov/ghpages/internal/githubapi"
	"github.com/temirov/ghpages/internal/gitrepo"
	"github.com/temirov/ghpages/internal/provision"
	"github.com/temirov/ghpages/internal/publish"
	"github.com/temirov/ghpages/internal/tokenstore"
	"github.com/temirov/ghpages/internal/ui"
	"github.com/temirov/ghpages/internal/validate"
)

const (
	deployCommandUseConstant              = "deploy"
	deployCommandShortDescriptionConstant = "Publish the compiled site to GitHub Pages"
	deployCommandLongDescriptionConstant  = "deploy validates the compiled site, resolves or provisions the GitHub repository, and pushes the site to the gh-pages branch."
	loginCommandUseConstant               = "login"
	loginCommandShortDescriptionConstant  = "Authenticate with GitHub via the device flow"
	logoutCommandUseConstant              = "logout"
	logoutCommandShortDescriptionConstant = "Discard the stored GitHub token"
	siteDirectoryFlagNameConstant         = "site-dir"
	siteDirectoryFlagUsageConstant        = "Directory containing the compiled site"
	remoteNameFlagNameConstant            = "remote"
	remoteNameFlagUsageConstant           = "Git remote the site publishes through"
	branchNameFlagNameConstant            = "branch"
	branchNameFlagUsageConstant           = "Branch GitHub Pages serves"
	httpRequestTimeoutConstant            = 30 * time.Second
	deployFailureTemplateConstant         = "deployment failed: %w"
	loginFailureTemplateConstant          = "login failed: %w"
	loginIncompleteTemplateConstant       = "login did not complete: %s"
	deployResultTemplateConstant          = "Site deployed to %s\n"
	firstSetupNoticeConstant              = "This was the first deployment for this site; GitHub Pages may take a few minutes to build.\n"
	loginSucceededTemplateConstant        = "Logged in as GitHub user with scopes %v\n"
	logoutSucceededMessageConstant        = "Stored GitHub token removed\n"
	siteEnumerationErrorTemplateConstant  = "unable to enumerate site files: %w"
	credentialPathErrorTemplateConstant   = "unable to resolve credential path: %w"
)

// LoggerProvider supplies a zap logger instance.
type LoggerProvider func() *zap.Logger

// ConfigurationProvider supplies the deployment configuration.
type ConfigurationProvider func() Configuration

// CommandBuilder assembles the deploy, login, and logout Cobra commands.
type CommandBuilder struct {
	LoggerProvider        LoggerProvider
	ConfigurationProvider ConfigurationProvider
	WorkingDirectory      string
}

type collaborators struct {
	repositoryManager *gitrepo.RepositoryManager
	githubClient      *githubapi.Client
	tokenStore        *tokenstore.Store
	authenticator     *deviceflow.Authenticator
	provisioner       *provision.Provisioner
	publisher         *publish.Publisher
	service           *Service
}

// BuildDeployCommand constructs the deploy command.
func (builder *CommandBuilder) BuildDeployCommand() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:           deployCommandUseConstant,
		Short:         deployCommandShortDescriptionConstant,
		Long:          deployCommandLongDescriptionConstant,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		RunE:          builder.runDeploy,
	}
	command.Flags().String(siteDirectoryFlagNameConstant, "", siteDirectoryFlagUsageConstant)
	command.Flags().String(remoteNameFlagNameConstant, "", remoteNameFlagUsageConstant)
	command.Flags().String(branchNameFlagNameConstant, "", branchNameFlagUsageConstant)
	return command, nil
}

// BuildLoginCommand constructs the login command.
func (builder *CommandBuilder) BuildLoginCommand() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:           loginCommandUseConstant,
		Short:         loginCommandShortDescriptionConstant,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		RunE:          builder.runLogin,
	}
	return command, nil
}

// BuildLogoutCommand constructs the logout command.
func (builder *CommandBuilder) BuildLogoutCommand() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:           logoutCommandUseConstant,
		Short:         logoutCommandShortDescriptionConstant,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		RunE:          builder.runLogout,
	}
	return command, nil
}

func (builder *CommandBuilder) runDeploy(command *cobra.Command, _ []string) error {
	logger := builder.resolveLogger()
	configuration := builder.resolveConfiguration(command)

	assembled, assemblyError := builder.assembleCollaborators(command, logger, configuration)
	if assemblyError != nil {
		return assemblyError
	}

	projectPath := builder.resolveProjectPath(configuration)
	siteFiles, enumerationError := enumerateSiteFiles(projectPath)
	if enumerationError != nil {
		return fmt.Errorf(siteEnumerationErrorTemplateConstant, enumerationError)
	}

	deploymentInfo, deploymentError := assembled.service.Deploy(command.Context(), Options{
		ProjectPath: projectPath,
		RemoteName:  configuration.RemoteName,
		BranchName:  configuration.BranchName,
		SiteFiles:   siteFiles,
	})
	if deploymentError != nil {
		return fmt.Errorf(deployFailureTemplateConstant, deploymentError)
	}

	fmt.Fprintf(command.OutOrStdout(), deployResultTemplateConstant, deploymentInfo.URL)
	if deploymentInfo.WasFirstSetup {
		fmt.Fprint(command.OutOrStdout(), firstSetupNoticeConstant)
	}
	return nil
}

func (builder *CommandBuilder) runLogin(command *cobra.Command, _ []string) error {
	logger := builder.resolveLogger()
	assembled, assemblyError := builder.assembleCollaborators(command, logger, builder.resolveConfiguration(command))
	if assemblyError != nil {
		return assemblyError
	}

	accessToken, outcome, authenticationError := assembled.authenticator.Authenticate(command.Context())
	if authenticationError != nil {
		return fmt.Errorf(loginFailureTemplateConstant, authenticationError)
	}
	if accessToken == nil {
		return fmt.Errorf(loginIncompleteTemplateConstant, outcome)
	}

	assembled.tokenStore.Save(*accessToken)
	fmt.Fprintf(command.OutOrStdout(), loginSucceededTemplateConstant, accessToken.Scopes)
	return nil
}

func (builder *CommandBuilder) runLogout(command *cobra.Command, _ []string) error {
	logger := builder.resolveLogger()
	tokenStore, storeError := buildTokenStore(logger)
	if storeError != nil {
		return storeError
	}
	tokenStore.Clear()
	fmt.Fprint(command.OutOrStdout(), logoutSucceededMessageConstant)
	return nil
}

func (builder *CommandBuilder) resolveLogger() *zap.Logger {
	if builder.LoggerProvider != nil {
		if logger := builder.LoggerProvider(); logger != nil {
			return logger
		}
	}
	return zap.NewNop()
}

func (builder *CommandBuilder) resolveConfiguration(command *cobra.Command) Configuration {
	configuration := Configuration{}
	if builder.ConfigurationProvider != nil {
		configuration = builder.ConfigurationProvider()
	}
	if flagValue, flagError := command.Flags().GetString(siteDirectoryFlagNameConstant); flagError == nil && len(flagValue) > 0 {
		configuration.SiteDirectory = flagValue
	}
	if flagValue, flagError := command.Flags().GetString(remoteNameFlagNameConstant); flagError == nil && len(flagValue) > 0 {
		configuration.RemoteName = flagValue
	}
	if flagValue, flagError := command.Flags().GetString(branchNameFlagNameConstant); flagError == nil && len(flagValue) > 0 {
		configuration.BranchName = flagValue
	}
	configuration.Sanitize()
	return configuration
}

func (builder *CommandBuilder) resolveProjectPath(configuration Configuration) string {
	if filepath.IsAbs(configuration.SiteDirectory) {
		return configuration.SiteDirectory
	}
	workingDirectory := builder.WorkingDirectory
	if len(workingDirectory) == 0 {
		workingDirectory, _ = os.Getwd()
	}
	return filepath.Join(workingDirectory, configuration.SiteDirectory)
}

func (builder *CommandBuilder) assembleCollaborators(command *cobra.Command, logger *zap.Logger, configuration Configuration) (*collaborators, error) {
	consoleObserver := ui.NewConsoleCommandEventLogger(logger)
	shellExecutor, executorError := execshell.NewShellExecutor(logger, execshell.NewOSCommandRunner(), consoleObserver)
	if executorError != nil {
		return nil, executorError
	}
	repositoryManager, managerError := gitrepo.NewRepositoryManager(shellExecutor)
	if managerError != nil {
		return nil, managerError
	}

	httpClient := &http.Client{Timeout: httpRequestTimeoutConstant}
	githubClient, clientError := githubapi.NewClient(httpClient)
	if clientError != nil {
		return nil, clientError
	}

	tokenStore, storeError := buildTokenStore(logger)
	if storeError != nil {
		return nil, storeError
	}

	authenticator, authenticatorError := deviceflow.NewAuthenticator(deviceflow.Dependencies{
		Logger:        logger,
		HTTPClient:    httpClient,
		Clock:         deviceflow.SystemClock{},
		BrowserOpener: deviceflow.SystemBrowserOpener{},
		UserInspector: githubClient,
		Output:        command.OutOrStdout(),
	}, deviceflow.Configuration{})
	if authenticatorError != nil {
		return nil, authenticatorError
	}

	progressReporter := ui.NewLoggerProgressReporter(logger)
	provisioner, provisionerError := provision.NewProvisioner(provision.Dependencies{
		Logger:           logger,
		GitHubClient:     githubClient,
		TokenStore:       tokenStore,
		Authenticator:    authenticator,
		SetupForm:        ui.NewTerminalSetupForm(command.InOrStdin(), command.OutOrStdout()),
		ProgressReporter: progressReporter,
	}, provision.Configuration{
		PresetRepositoryName: configuration.RepositoryName,
		NonInteractive:       configuration.AssumeYes,
	})
	if provisionerError != nil {
		return nil, provisionerError
	}

	publisher, publisherError := publish.NewPublisher(publish.Dependencies{
		Logger:            logger,
		RepositoryManager: repositoryManager,
		Clock:             publish.SystemClock{},
	})
	if publisherError != nil {
		return nil, publisherError
	}

	validationPipeline, pipelineError := validate.NewPipeline(repositoryManager)
	if pipelineError != nil {
		return nil, pipelineError
	}

	service, serviceError := NewService(Dependencies{
		Logger:           logger,
		Validator:        validationPipeline,
		Provisioner:      provisioner,
		Publisher:        publisher,
		ProgressReporter: progressReporter,
	})
	if serviceError != nil {
		return nil, serviceError
	}

	return &collaborators{
		repositoryManager: repositoryManager,
		githubClient:      githubClient,
		tokenStore:        tokenStore,
		authenticator:     authenticator,
		provisioner:       provisioner,
		publisher:         publisher,
		service:           service,
	}, nil
}

func buildTokenStore(logger *zap.Logger) (*tokenstore.Store, error) {
	credentialFilePath, pathError := tokenstore.DefaultCredentialFilePath()
	if pathError != nil {
		return nil, fmt.Errorf(credentialPathErrorTemplateConstant, pathError)
	}
	credentialStorage, storageError := tokenstore.NewFileCredentialStorage(credentialFilePath)
	if storageError != nil {
		return nil, storageError
	}
	return tokenstore.NewStore(logger, credentialStorage)
}

// enumerateSiteFiles lists the compiled artifacts under the site directory,
// skipping the git metadata directory.
func enumerateSiteFiles(siteDirectory string) ([]string, error) {
	var siteFiles []string
	walkError := filepath.WalkDir(siteDirectory, func(entryPath string, entry fs.DirEntry, visitError error) error {
		if visitError != nil {
			return visitError
		}
		if entry.IsDir() {
			if entry.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		relativePath, relativeError := filepath.Rel(siteDirectory, entryPath)
		if relativeError != nil {
			return relativeError
		}
		siteFiles = append(siteFiles, relativePath)
		return nil
	})
	if walkError != nil {
		if os.IsNotExist(walkError) {
			return nil, nil
		}
		return nil, walkError
	}
	return siteFiles, nil
}
