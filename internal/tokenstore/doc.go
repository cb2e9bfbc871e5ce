// Package tokenstore caches GitHub access tokens in memory and mirrors them
// to a persistent credential storage so a token survives across invocations.
package tokenstore
