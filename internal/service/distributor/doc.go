// Package distributor uploads release artifacts to the bucket.
//
// Every upload is a full-object overwrite of a fixed key, so re-running a
// publish replaces objects instead of accumulating them. Failures are reported
// as release.ErrUpload and never retried.
package distributor
