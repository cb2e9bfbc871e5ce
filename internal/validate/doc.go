// Package validate runs the pre-flight checks a deployment must pass before
// any network or authentication work starts.
package validate
