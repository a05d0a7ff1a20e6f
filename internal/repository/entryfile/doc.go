// Package entryfile reads and rewrites the two version markers of a plugin entry file.
//
// The header marker is the "Version:" line of the plugin header comment; the
// constant marker is a define() call holding the same version. Both are located
// by regular expressions, compared on read and replaced together on write. The
// rewritten file is swapped in atomically with go-update so a crash never
// leaves the markers out of sync.
package entryfile
