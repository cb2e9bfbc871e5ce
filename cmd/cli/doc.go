// Package cli wires the ghpages command hierarchy, configuration loading,
// and structured logging.
package cli
