// Package serializer provides interchangeable encodings for fixture files.
//
// Three implementations of the IFixtureSerializer interface are available:
//
//   - json: human-readable and hand-editable, the default for fixtures
//     kept in a repository
//   - gob: Go's native binary encoding, convenient for programmatic
//     round trips
//   - binary: a compact custom format with an explicit magic number and
//     format version, stable across Go releases
//
// New selects an implementation by name.
package serializer
