// Package config loads the service's settings from defaults, an optional
// config.yaml, a .env file and TASKQUOTA_-prefixed environment variables,
// then validates them before anything else starts.
package config
