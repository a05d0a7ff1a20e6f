// Package release contains core domain types for publishing a plugin release.
//
// It defines Version (a major.minor.patch triple with total order), BumpKind,
// Project (root directory plus slug) and Request (everything an operator
// supplies for one run), together with the error taxonomy shared by the
// publishing stages.
package release
