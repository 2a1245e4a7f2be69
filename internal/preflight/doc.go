// Package preflight provides system validation checks backing the doctor
// command.
//
// The package validates:
//   - Disk space availability (minimum 100MB)
//   - Write permissions in the data directory
//   - Configuration validity
//   - Embedding provider readiness
//   - Collection inventory health
//
// Use the Checker type to run all validations:
//
//	checker := preflight.New()
//	results := checker.RunAll(ctx, dataDir)
//	if checker.HasCriticalFailures(results) {
//	    // Handle failures
//	}
package preflight
