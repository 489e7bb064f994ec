// Package config loads and validates client configuration.
//
// Configuration is resolved in three layers, each overriding the previous:
// built-in defaults (NewDefault), a YAML file (LoadFromFile), and
// OBJSTREAM_* environment variables (LoadFromEnv). Validate should be
// called after loading; it rejects unknown access patterns, malformed size
// strings, and out-of-range numeric settings.
//
// Byte sizes accept human-readable suffixes in both decimal (KB, MB, GB)
// and binary (KiB, MiB, GiB) forms.
package config
