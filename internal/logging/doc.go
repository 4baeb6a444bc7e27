// Package logging provides opt-in file-based logging with rotation for DocWeave.
// When the --debug flag is set, comprehensive logs are written to ~/.docweave/logs/
// for debugging and troubleshooting.
//
// By default (without --debug), logging is minimal and goes to stderr only.
// Long-running generation jobs always log to file so that crashed runs can be
// diagnosed and resumed.
package logging
