// Package logging wires slog with the pipeline's console and JSON handlers,
// standardized field names, and context-derived attributes.
package logging
