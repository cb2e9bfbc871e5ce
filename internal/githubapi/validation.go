package githubapi

import "strings"

const (
	maximumRepositoryNameLengthConstant = 100
	hiddenNamePrefixConstant            = "."
	allowedSpecialCharactersConstant    = "._-"
)

// IsValidRepositoryName reports whether the supplied name satisfies GitHub's
// repository naming rules enforced before any network call: non-empty, at most
// 100 characters, not starting with a dot, and limited to alphanumerics plus
// dot, underscore, and hyphen.
func IsValidRepositoryName(repositoryName string) bool {
	if len(repositoryName) == 0 || len(repositoryName) > maximumRepositoryNameLengthConstant {
		return false
	}
	if strings.HasPrefix(repositoryName, hiddenNamePrefixConstant) {
		return false
	}
	for _, character := range repositoryName {
		switch {
		case character >= 'a' && character <= 'z':
		case character >= 'A' && character <= 'Z':
		case character >= '0' && character <= '9':
		case strings.ContainsRune(allowedSpecialCharactersConstant, character):
		default:
			return false
		}
	}
	return true
}
