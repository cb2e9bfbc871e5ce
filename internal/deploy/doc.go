// Package deploy composes validation, authentication, repository
// provisioning, and git publishing into the single deploy operation.
package deploy
