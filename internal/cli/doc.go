// Package cli wires together the Cobra command tree for the rulebot binary.
//
// It defines the root command and all subcommands (review, local, config,
// cache, providers, hook, version), binds flags, reads configuration, builds
// the provider and GitHub clients, invokes the review engine and returns
// deterministic exit codes for CI gating.
package cli
