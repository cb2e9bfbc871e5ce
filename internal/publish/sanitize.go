package publish

import "strings"

const (
	schemeSeparatorConstant  = "://"
	userInfoSeparatorConstant = "@"
)

// SanitizeRemoteURL removes embedded credentials from a remote URL so that
// token-carrying push targets never appear in logs or error messages.
func SanitizeRemoteURL(remoteURL string) string {
	schemeIndex := strings.Index(remoteURL, schemeSeparatorConstant)
	if schemeIndex < 0 {
		return remoteURL
	}
	remainder := remoteURL[schemeIndex+len(schemeSeparatorConstant):]
	userInfoIndex := strings.Index(remainder, userInfoSeparatorConstant)
	if userInfoIndex < 0 {
		return remoteURL
	}
	return remoteURL[:schemeIndex+len(schemeSeparatorConstant)] + remainder[userInfoIndex+len(userInfoSeparatorConstant):]
}
