package deviceflow

import "github.com/skratchdot/open-golang/open"

// BrowserOpener opens a URL in the user's default browser.
type BrowserOpener interface {
	OpenURL(targetURL string) error
}

// SystemBrowserOpener launches the platform browser.
type SystemBrowserOpener struct{}

// OpenURL opens the URL with the operating system's default handler.
func (SystemBrowserOpener) OpenURL(targetURL string) error {
	return open.Run(targetURL)
}
