// Package records defines the read-only clinical record shapes the AI core
// consumes, and the repository contracts used to fetch them.
//
// Every field may be absent. Strings use "" for missing values and optional
// aggregates are pointers; formatters downstream substitute placeholders
// rather than failing.
//
// MemoryStore is a small in-process repository, loadable from a YAML fixture
// file, used by the CLI and tests.
package records
