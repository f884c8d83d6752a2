// Package errors provides the classified error primitives used across twinbuild.
//
// Every failure the build orchestrator can surface belongs to one of a small
// set of categories:
//
//   - config: missing entry files or an unusable configuration (fatal at startup)
//   - sequencing: a route was registered after the route builder was sealed
//   - compile: the bundler reported diagnostics (recoverable in watch mode)
//   - build: a one-shot build failed ("Client build failed" / "Server build failed")
//   - manifest, filesystem, transport, validation, runtime, internal
//
// Example usage:
//
//	err := errors.CompileError("client compile reported errors").
//		WithContext("pipeline", "client").
//		WithContext("errors", 3).
//		Build()
package errors
