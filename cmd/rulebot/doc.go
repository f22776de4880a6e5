// Rulebot reviews the lines a pull request adds against a project's rules
// file and posts each violation an LLM reports as an inline review comment.
//
// It runs in CI with the pull request taken from the environment, or locally
// against the working tree, the index, a commit or a revision range.
//
// Usage:
//
//	rulebot review                       # review PR_NUMBER in GITHUB_REPOSITORY
//	rulebot review --dry-run --diff-file pr.diff
//	rulebot local --mode staged          # review staged changes
//	rulebot local origin/main..HEAD      # review a revision range
//	rulebot providers doctor             # check provider credentials
//	rulebot hook install                 # run on every commit
package main
