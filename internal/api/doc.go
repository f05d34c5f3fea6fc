// Package api exposes the REST interface for managing intents, driving
// executions, and holding natural-language sessions. It also serves the
// Prometheus metrics and health endpoints.
package api
