package output

import (
	"bytes"
	"strings"
	"testing"
)

func TestTextWriter_NoSuggestions(t *testing.T) {
	var buf bytes.Buffer
	if err := (&TextWriter{}).Write(&buf, emptyReport()); err != nil {
		t.Fatalf("Write error: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Rulebot Review (anthropic)", "Files: 0", "No rule violations reported."} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestTextWriter_WithSuggestions(t *testing.T) {
	var buf bytes.Buffer
	if err := (&TextWriter{}).Write(&buf, sampleReport()); err != nil {
		t.Fatalf("Write error: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"Pull request: acme/widgets#42 @ 0123456789ab",
		"Files: 4 (2 reviewed, 1 ignored, 1 failed)",
		"Suggestions: 2, posted: 1, failed to post: 1",
		"[!] main.go (reviewed)",
		"line 3:",
		"[!!] broken.go (provider error)",
		"openai: status 500: upstream",
		"1 comment(s) could not be posted",
		"Completed in 150ms (LLM: 120ms)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	for _, unwanted := range []string{"clean.go", ".project-rules.md", "No rule violations"} {
		if strings.Contains(out, unwanted) {
			t.Errorf("output should not contain %q", unwanted)
		}
	}
	if strings.Index(out, "main.go") > strings.Index(out, "broken.go") {
		t.Error("files should be listed in diff order")
	}
}

func TestTextWriter_DryRun(t *testing.T) {
	r := emptyReport()
	r.DryRun = true
	var buf bytes.Buffer
	if err := (&TextWriter{}).Write(&buf, r); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "[dry run]") {
		t.Error("dry run should be flagged")
	}
}

func TestWrapText(t *testing.T) {
	lines := wrapText("one two three four five six", 10)
	for _, l := range lines {
		if len(l) > 10 {
			t.Errorf("line %q exceeds width", l)
		}
	}
	if got := strings.Join(lines, " "); got != "one two three four five six" {
		t.Errorf("words lost: %q", got)
	}
	if got := wrapText("a\nb", 10); len(got) != 2 {
		t.Errorf("newlines should split: %q", got)
	}
}
