// Package archive builds the distributable ZIP for a plugin release.
//
// The project root is walked in lexical order, entries matching the exclusion
// Rules are skipped (excluded directories are pruned), and every surviving file
// is stored under "<slug>/". Headers carry a fixed timestamp so the same tree
// always produces the same bytes.
package archive
