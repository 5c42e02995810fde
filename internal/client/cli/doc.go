// Package cli implements the filekeeper command line client. Each
// invocation runs one command against the server and exits.
package cli
