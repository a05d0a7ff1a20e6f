// Package storage talks to the S3-compatible bucket that hosts release artifacts.
//
// ObjectStore is the narrow interface the distributor depends on; S3Store
// implements it with minio-go. Layout derives the fixed object keys from the
// plugin slug and version.
package storage
