// Package assets provides embedded static assets for the application.
package assets

import (
	_ "embed"
)

// StylesTOML is the built-in style catalog: a [[background]] table array and
// a [[subject]] table array, each entry with id, label and prompt.
//
//go:embed styles.toml
var StylesTOML []byte
