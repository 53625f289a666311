// Package notifications delivers pipeline events via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured
// in config.toml and gracefully degrades to a no-op when notifications
// are disabled. Repeated events for the same subject are suppressed
// inside a configurable dedup window so a flapping vendor does not spam
// operators.
//
// Extend this package if you need alternative transports; worker and
// daemon code depend only on the Service interface.
package notifications
