// Package gitrepo contains helpers for interpreting Git remote URLs.
//
// It parses ssh and https remotes into structured owner/repository pairs so
// that validation and publishing services can reason about GitHub remotes
// without re-implementing string handling.
package gitrepo
