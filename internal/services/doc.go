// Package services defines shared utilities consumed by the worker pools and
// vendor integrations.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, media IDs, stage names, vendor
//     names, and correlation identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper that translate vendor
//     failures into consistent retry classifications.
//
// Use these helpers when wiring new stage or vendor logic so operational
// behaviour (error handling, observability, retries) stays uniform across the
// pipeline.
package services
