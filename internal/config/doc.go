// Package config loads and merges rulebot configuration from multiple sources.
//
// Precedence (highest to lowest):
//  1. CLI flags
//  2. Environment variables (AI_PROVIDER, AI_API_KEY, GITHUB_TOKEN, PR_NUMBER, ...),
//     optionally seeded from a .env file
//  3. Config file (.rulebot.yaml in the working directory, or --config)
//  4. Built-in defaults
//
// Secrets (the AI API key and the GitHub token) are only taken from the
// environment and are never written back by [Save].
//
// [Config.Validate] and [Config.ValidateGitHub] report every missing or
// invalid setting at once as a [*Error].
package config
