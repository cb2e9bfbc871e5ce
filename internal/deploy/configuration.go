package deploy

import "strings"

const (
	defaultSiteDirectoryConstant = "public"
	defaultRemoteNameConstant    = "origin"
	defaultBranchNameConstant    = "gh-pages"
)

// Configuration enumerates the recognized deployment settings.
type Configuration struct {
	SiteDirectory  string `mapstructure:"site_directory"`
	RemoteName     string `mapstructure:"remote_name"`
	BranchName     string `mapstructure:"branch"`
	RepositoryName string `mapstructure:"repository_name"`
	AssumeYes      bool   `mapstructure:"assume_yes"`
}

// DefaultConfigurationValues supplies the configuration defaults applied
// before any file or environment overrides.
func DefaultConfigurationValues() map[string]any {
	return map[string]any{
		"tools.deploy.site_directory": defaultSiteDirectoryConstant,
		"tools.deploy.remote_name":    defaultRemoteNameConstant,
		"tools.deploy.branch":         defaultBranchNameConstant,
	}
}

// Sanitize trims the fields and fills empty values with defaults.
func (configuration *Configuration) Sanitize() {
	configuration.SiteDirectory = strings.TrimSpace(configuration.SiteDirectory)
	configuration.RemoteName = strings.TrimSpace(configuration.RemoteName)
	configuration.BranchName = strings.TrimSpace(configuration.BranchName)
	configuration.RepositoryName = strings.TrimSpace(configuration.RepositoryName)
	if len(configuration.SiteDirectory) == 0 {
		configuration.SiteDirectory = defaultSiteDirectoryConstant
	}
	if len(configuration.RemoteName) == 0 {
		configuration.RemoteName = defaultRemoteNameConstant
	}
	if len(configuration.BranchName) == 0 {
		configuration.BranchName = defaultBranchNameConstant
	}
}
