package githubauth_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/temirov/ghpages/internal/githubauth"
)

func TestResolveTokenPrefersExplicitEnvironmentMap(t *testing.T) {
	token, found := githubauth.ResolveToken(map[string]string{
		githubauth.EnvGitHubCLIToken: "cli-token",
		githubauth.EnvGitHubToken:    "generic-token",
	})
	require.True(t, found)
	require.Equal(t, "cli-token", token)
}

func TestResolveTokenIgnoresBlankEntries(t *testing.T) {
	t.Setenv(githubauth.EnvGitHubCLIToken, "")
	t.Setenv(githubauth.EnvGitHubToken, "  ")
	t.Setenv(githubauth.EnvGitHubAPIToken, "api-token")

	token, found := githubauth.ResolveToken(map[string]string{githubauth.EnvGitHubCLIToken: "   "})
	require.True(t, found)
	require.Equal(t, "api-token", token)
}

func TestResolveTokenReportsMissingCredentials(t *testing.T) {
	t.Setenv(githubauth.EnvGitHubCLIToken, "")
	t.Setenv(githubauth.EnvGitHubToken, "")
	t.Setenv(githubauth.EnvGitHubAPIToken, "")

	token, found := githubauth.ResolveToken(nil)
	require.False(t, found)
	require.Empty(t, token)
}
