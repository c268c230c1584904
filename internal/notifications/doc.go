// Package notifications delivers run outcomes via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and degrades to a no-op when no topic is set. Completion and
// failure events can be silenced independently through the notifications
// section of the config.
//
// Callers depend only on the Service interface.
package notifications
