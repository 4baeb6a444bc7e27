// Package preflight validates the environment before documentation jobs
// run. It backs the doctor command.
//
// The package checks:
//   - Data directory existence and writability
//   - Disk space for index artifacts (minimum 100MB)
//   - File descriptor limits (minimum 1024)
//   - LLM endpoint reachability (/models)
//   - Embedding endpoint reachability (/models)
//   - Checkpoint store availability (SQLite open or Postgres ping)
//
// Use the Checker type to run all validations:
//
//	checker := preflight.New(cfg)
//	results := checker.RunAll(ctx)
//	if checker.HasCriticalFailures(results) {
//	    // Handle failures
//	}
package preflight
