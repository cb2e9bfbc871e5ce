// Package provision decides which GitHub repository a site deploys to,
// creating the user's root Pages repository automatically or collecting a
// custom repository name through an interactive form.
package provision
