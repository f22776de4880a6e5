// Package ignore decides which changed files are excluded from review.
//
// Patterns come from a gitignore-like file, one per line. Matching uses
// shell-style globs ([path.Match]) and follows a fixed order: directory
// patterns ("build/"), path patterns ("src/*.gen.go") and bare filename
// patterns ("*.lock"). The first pattern that matches wins.
//
// Negated patterns ("!keep.lock") are recognised but have no effect; a
// warning is logged for each one when the file is loaded. The rules file
// itself is always ignored regardless of the patterns.
package ignore
