package ui

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/temirov/ghpages/internal/provision"
)

const (
	setupFormExplanationTemplateConstant = "The repository %s already exists, so your site will be published under a sub-path URL.\nEnter a repository name to publish to (leave empty to cancel): "
	cancellationKeywordConstant          = "cancel"
)

// TerminalSetupForm collects a custom repository name from an interactive
// terminal. An empty line or the word "cancel" cancels setup.
type TerminalSetupForm struct {
	input  io.Reader
	output io.Writer
}

// NewTerminalSetupForm constructs a form over the reader and writer.
func NewTerminalSetupForm(input io.Reader, output io.Writer) *TerminalSetupForm {
	return &TerminalSetupForm{input: input, output: output}
}

// Open prints the explanation and reads one response in the background,
// signalling either a submission or a cancellation.
func (form *TerminalSetupForm) Open(_ context.Context, details provision.SetupFormDetails) (*provision.FormSession, error) {
	if form.output != nil {
		if _, writeError := fmt.Fprintf(form.output, setupFormExplanationTemplateConstant, details.RootRepositoryName); writeError != nil {
			return nil, writeError
		}
	}

	submissions := make(chan provision.SetupSubmission, 1)
	cancellations := make(chan struct{}, 1)

	go func() {
		lineReader := bufio.NewReader(form.input)
		response, readError := lineReader.ReadString('\n')
		if readError != nil && readError != io.EOF {
			cancellations <- struct{}{}
			return
		}
		trimmedResponse := strings.TrimSpace(response)
		if len(trimmedResponse) == 0 || strings.EqualFold(trimmedResponse, cancellationKeywordConstant) {
			cancellations <- struct{}{}
			return
		}
		submissions <- provision.SetupSubmission{RepositoryName: trimmedResponse}
	}()

	return provision.NewFormSession(submissions, cancellations, nil), nil
}
