// Package cmd implements the command-line interface for the idb storage
// engine. It provides a hierarchical command structure for working with
// fixture files and for benchmarking the engine.
//
// The package is organized into several subpackages:
//
//   - fixture: Commands for converting and inspecting fixture files
//   - bench: Commands for benchmarking the in-process engine
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See idb -help for a list of all commands.
package cmd
