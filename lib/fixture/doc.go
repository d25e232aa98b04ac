// Package fixture bulk-loads and dumps engine state for test setup.
//
// A Fixture is a plain document describing databases, their stores and
// indices, and initial records. Seed applies a fixture to a Registry
// through the engine's raw bypass (no transactions, no requests, no
// ordering guarantees); Dump reads the same shape back. Together they give
// tests a one-call way to arrange storage state and assert on it.
//
// The serializer subpackage provides interchangeable encodings (json, gob,
// binary) for fixtures kept in files.
package fixture
