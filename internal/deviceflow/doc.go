// Package deviceflow implements the OAuth 2.0 Device Authorization Grant
// against GitHub, producing an access token once the user approves the
// request in a browser.
package deviceflow
