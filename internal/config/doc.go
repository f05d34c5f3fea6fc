// Package config provides centralized configuration management for the
// IntentWise runtime, covering the API server, intent storage, the upkeep
// queue, price oracle access, chain providers, authentication and logging.
package config
