// Package githubapi provides a thin typed client for the GitHub REST
// endpoints required by the deployment pipeline: authenticated user lookup,
// repository existence and creation, and Pages build status.
//
// The client performs no retries of its own; callers decide retry policy.
package githubapi
