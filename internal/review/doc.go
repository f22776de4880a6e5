// Package review turns added-line batches into posted review comments.
//
// For every batch that is not ignored, the [Engine] renders a prompt from the
// project rules, the filename and the rendered additions, asks the configured
// provider for a review, parses the untrusted reply into [Suggestion] values
// and hands one [Comment] per suggestion to a [CommentSink].
//
// Failures are isolated per file: a provider error or an unparsable reply is
// logged and recorded in the run [Report] while the remaining files are still
// reviewed. A failed comment post only affects that one suggestion.
//
// Replies are parsed by [ParseSuggestions]. Markdown code fences are stripped
// first; each array element must carry a positive integer "line" and a
// non-empty "comment". The [ElementPolicy] decides whether an invalid element
// is dropped on its own or rejects the whole reply.
package review
