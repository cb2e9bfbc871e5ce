package publish

import (
	"fmt"
	"strings"
)

const (
	rootPagesRepositorySuffixConstant = ".github.io"
	rootPagesURLTemplateConstant      = "https://%s.github.io/"
	projectPagesURLTemplateConstant   = "https://%s.github.io/%s"
)

// DerivePagesURL maps a repository to the URL GitHub Pages serves it at. The
// root repository ({owner}.github.io) maps to the bare domain with a trailing
// slash; every other repository maps to a sub-path without one.
func DerivePagesURL(owner string, repositoryName string) string {
	rootRepositoryName := owner + rootPagesRepositorySuffixConstant
	if strings.EqualFold(repositoryName, rootRepositoryName) {
		return fmt.Sprintf(rootPagesURLTemplateConstant, owner)
	}
	return fmt.Sprintf(projectPagesURLTemplateConstant, owner, repositoryName)
}
