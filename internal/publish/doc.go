// Package publish commits and pushes a compiled site to the gh-pages branch
// of a GitHub repository, bootstrapping the local repository and remote when
// they are missing.
package publish
