// Package config loads the publisher configuration.
//
// Secrets and bucket coordinates come from the process environment and a
// dotenv file (read with viper); non-secret settings such as exclusion rules
// and the "requires"/"tested" metadata values come from an optional YAML file.
// The resulting Config is built once and passed explicitly to the services.
package config
