// Package gitctx reads diffs from a local git repository.
//
// It backs the local review command, which runs the same pipeline as a pull
// request review against unstaged changes, the index, one commit or a
// revision range. Every function shells out to git in the given directory and
// returns a unified diff ready for the diff parser.
package gitctx
