// Package metadata maintains the update-check record served to installed plugins.
//
// A Record is loaded from the local output directory (or, when missing there,
// from its public URL), merged with the new release and written back as JSON.
// The "version" pointer only moves forward; "stable_version" always names the
// highest release flagged stable.
package metadata
