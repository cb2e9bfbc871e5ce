package deploy

import "fmt"

const (
	authenticationFailureTemplateConstant = "authentication failed: %s"
	setupCancelledMessageConstant         = "repository setup was cancelled"
	creationFailedMessageConstant         = "repository creation failed; check the repository name and try again"
)

// AuthenticationError indicates no usable GitHub token could be obtained.
type AuthenticationError struct {
	Reason string
}

// Error describes the authentication failure.
func (authenticationError AuthenticationError) Error() string {
	return fmt.Sprintf(authenticationFailureTemplateConstant, authenticationError.Reason)
}

// SetupCancelledError indicates the user cancelled repository setup or let
// the form time out. It is a graceful outcome, not a crash.
type SetupCancelledError struct{}

// Error describes the cancellation.
func (SetupCancelledError) Error() string {
	return setupCancelledMessageConstant
}

// CreationFailedError indicates repository creation was rejected and can be
// retried by the user.
type CreationFailedError struct{}

// Error describes the creation failure.
func (CreationFailedError) Error() string {
	return creationFailedMessageConstant
}
