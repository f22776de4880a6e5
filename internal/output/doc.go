// Package output renders run reports.
//
// Four formats are supported:
//   - text: terminal summary with one block per file (default)
//   - json: the full report as written by encoding/json
//   - markdown: a summary table plus collapsible per-file sections, suitable
//     for a PR comment or a CI job summary
//   - sarif: SARIF v2.1.0 with one result per suggestion
//
// Use [GetWriter] to obtain a [Writer] for a format name, or [WriteReport]
// to write straight to a file or the given fallback writer.
package output
