package config

import "os"

// ExpandEnv expands environment variables in YAML content using the
// standard library's shell-style ${VAR} / $VAR syntax. Missing variables
// expand to the empty string; Validate catches required fields left blank.
func ExpandEnv(data []byte) []byte {
	return []byte(os.Expand(string(data), os.Getenv))
}
