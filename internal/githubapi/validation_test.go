package githubapi_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/temirov/ghpages/internal/githubapi"
)

func TestIsValidRepositoryName(t *testing.T) {
	testCases := []struct {
		name           string
		repositoryName string
		expectValid    bool
	}{
		{name: "hyphenated", repositoryName: "my-repo", expectValid: true},
		{name: "single_letter", repositoryName: "a", expectValid: true},
		{name: "numeric", repositoryName: "123", expectValid: true},
		{name: "maximum_length", repositoryName: strings.Repeat("a", 100), expectValid: true},
		{name: "dotted_pages_name", repositoryName: "alice.github.io", expectValid: true},
		{name: "empty", repositoryName: "", expectValid: false},
		{name: "leading_dot", repositoryName: ".hidden", expectValid: false},
		{name: "embedded_space", repositoryName: "my repo", expectValid: false},
		{name: "over_maximum_length", repositoryName: strings.Repeat("a", 101), expectValid: false},
		{name: "slash", repositoryName: "owner/repo", expectValid: false},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			require.Equal(t, testCase.expectValid, githubapi.IsValidRepositoryName(testCase.repositoryName))
		})
	}
}
