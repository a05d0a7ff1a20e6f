// Package publisher runs a release end to end.
//
// A run reads the version from the entry file, bumps it, rewrites the entry file,
// builds the archive, updates the metadata record and uploads both artifacts.
// The first failing stage stops the run and is reported as a *StageError.
// Nothing is rolled back: a failure after rewrite-entry-file leaves the bumped
// entry file in place, so rerunning publishes the next version.
package publisher
