// Package github is a small GitHub REST client for pull-request reviews.
//
// It fetches a pull request either as a unified diff or as a paginated files
// listing, and posts inline review comments one at a time. Comment posting is
// throttled with a token bucket so long runs stay under the secondary rate
// limits.
//
// Requests authenticate through golang.org/x/oauth2: a static token
// (GITHUB_TOKEN) or a GitHub App installation token minted from a signed JWT
// by [AppTokenSource].
package github
