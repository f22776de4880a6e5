// Package logging builds the zap logger shared by every rulebot command.
//
// Console output is the default for interactive use; json suits CI log
// collectors.
package logging
