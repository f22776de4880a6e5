// Package redact scrubs credentials from added lines before they leave the
// machine in a provider request.
//
// Detection is heuristic. Each pattern targets one common secret shape such
// as cloud access keys, provider API keys, JWTs, private key headers and
// credentials embedded in connection URLs. Matches are replaced with
// [REDACTED] in place so the "Line n:" markers around them survive.
//
// Files whose path matches a configured glob are withheld entirely.
package redact
