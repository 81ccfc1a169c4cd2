// Package defaults provides the embedded default configuration file
// written by the mosaic init subcommand.
package defaults

import _ "embed"

// ConfigYAML is the commented example configuration file.
//
//go:embed config.example.yaml
var ConfigYAML []byte
