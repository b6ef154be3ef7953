// Package app wires the module's dependencies for the CLI and for
// end-to-end tests.
//
// Config is read from a YAML file, completed with defaults and validated.
// NewWire builds the store, directory, channel registry, dispatcher,
// protocol registry, network and engine from it and exposes them on Wire.
package app
