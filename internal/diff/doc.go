// Package diff parses unified diffs and extracts the lines a change adds.
//
// [Parse] turns the text of a pull-request diff into [FileDiff] values whose
// hunks carry target-file line numbers for every context and added line.
// Hunk line counts are enforced: a diff whose hunks do not add up fails with a
// [*ParseError] rather than producing partial results.
//
// [ExtractAdditions] renders one [AdditionBatch] per file that adds at least
// one line, in diff order. [ExtractFromPatches] does the same for the
// per-file patch fragments returned by a files-listing API, where target line
// numbers are not annotated.
package diff
