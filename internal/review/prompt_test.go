package review

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildPrompt(t *testing.T) {
	rules := "# Rules\n\n1. No print statements.\n"
	patch := "+ Line 3: print(x)+ Line 4: return x"

	p := BuildPrompt(rules, "src/app.py", patch)

	assert.Contains(t, p, rules)
	assert.Contains(t, p, "`src/app.py`")
	assert.Contains(t, p, "```\n"+patch+"\n```")
	assert.Contains(t, p, `"line": <line number in the diff>`)
	assert.Contains(t, p, `"comment": "<suggestion or warning>"`)
	assert.Contains(t, p, "You must only return raw JSON.")
	assert.Contains(t, p, "Do not use any markdown formatting.")

	// the rules come before the patch, the contract comes last
	assert.Less(t, strings.Index(p, rules), strings.Index(p, patch))
	assert.Less(t, strings.Index(p, patch), strings.Index(p, "Identify any rule violations"))
}

func TestBuildPrompt_Deterministic(t *testing.T) {
	a := BuildPrompt("r", "f.go", "+ Line 1: x")
	b := BuildPrompt("r", "f.go", "+ Line 1: x")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, BuildPrompt("r", "g.go", "+ Line 1: x"))
}
