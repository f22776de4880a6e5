// Package cache stores provider replies on disk, one JSON file per request.
//
// A request is identified by Key: provider, model and both rendered prompts.
// Files are named by the key hash and record the provider, model, reply and
// an expiry fixed when the entry was written. Prompts themselves are never
// written; they are redacted before reaching a provider anyway.
//
// The default directory is "rulebot" under os.UserCacheDir.
package cache
