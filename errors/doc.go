// Package errors provides structured error types for the multivalue harness.
//
// Errors are categorized by Phase (where in the host/guest lifecycle the error
// occurred) and Kind (error category). Export errors additionally carry a
// Context naming the operation that needed the export.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseRuntime, errors.KindExport).
//		Context("run").
//		Cause(lookupErr).
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.OutOfBounds(errors.PhaseHost, ptr, length, size)
//	err := errors.Export(errors.PhaseRuntime, lookupErr, "run")
//
// Kind-only sentinels (ErrNoMemory, ErrExport, ...) work with errors.Is:
//
//	if errors.Is(err, errors.ErrMemoryAccess) { ... }
package errors
