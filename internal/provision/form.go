package provision

import (
	"context"
	"sync"
)

// SetupSubmission carries the repository name chosen in the setup form.
type SetupSubmission struct {
	RepositoryName string
}

// SetupFormDetails describes the situation the form explains to the user:
// the root Pages repository is taken, so a custom name will publish under a
// sub-path URL.
type SetupFormDetails struct {
	Login              string
	RootRepositoryName string
}

// FormSession exposes the two terminal signals of an open setup form.
type FormSession struct {
	Submissions   <-chan SetupSubmission
	Cancellations <-chan struct{}

	closeOnce sync.Once
	closeFunc func()
}

// NewFormSession builds a session over the signal channels. closeFunc may be
// nil when the form needs no teardown.
func NewFormSession(submissions <-chan SetupSubmission, cancellations <-chan struct{}, closeFunc func()) *FormSession {
	return &FormSession{Submissions: submissions, Cancellations: cancellations, closeFunc: closeFunc}
}

// Close tears the form down; closing more than once is safe.
func (session *FormSession) Close() {
	session.closeOnce.Do(func() {
		if session.closeFunc != nil {
			session.closeFunc()
		}
	})
}

// SetupForm opens an interactive repository-name form.
type SetupForm interface {
	Open(executionContext context.Context, details SetupFormDetails) (*FormSession, error)
}
