package review

import (
	"fmt"
	"strings"
)

// DefaultSystemPrompt is sent as the system message of every review request.
const DefaultSystemPrompt = "You are a helpful senior software engineer reviewing code diffs. You follow the project rules direct and without stray."

// DefaultTemperature keeps reviews close to deterministic.
const DefaultTemperature = 0.2

const outputContract = `Identify any rule violations based on the provided rules. For each one, return only a JSON like:
[
  {
    "line": <line number in the diff>,
    "comment": "<suggestion or warning>"
  },
  ...
]

Every diff starts with its line number.
You must only return raw JSON.
Do not use any markdown formatting.
Do not explain anything.
Do not include comments or pre/post text.
`

// BuildPrompt renders the user prompt for one file. The rules are embedded
// verbatim and the patch is placed in a fenced block followed by the reply
// format the parser expects. The result depends only on its arguments.
func BuildPrompt(rules, filename, patch string) string {
	var b strings.Builder

	b.WriteString("You are a strict code reviewer. Below are the project rules:\n\n")
	b.WriteString(rules)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "Here is a code diff for the file `%s`:\n\n", filename)
	b.WriteString("```\n")
	b.WriteString(patch)
	b.WriteString("\n```\n\n")
	b.WriteString(outputContract)

	return b.String()
}
