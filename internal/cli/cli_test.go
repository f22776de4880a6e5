package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/rulebot/internal/config"
	"github.com/dshills/rulebot/internal/diff"
	"github.com/dshills/rulebot/internal/github"
	"github.com/dshills/rulebot/internal/providers"
	"github.com/dshills/rulebot/internal/review"
)

const prDiff = `diff --git a/main.go b/main.go
--- a/main.go
+++ b/main.go
@@ -1,2 +1,3 @@
 package main
+import "fmt"
 func main() {}
diff --git a/.project-rules.md b/.project-rules.md
--- a/.project-rules.md
+++ b/.project-rules.md
@@ -1 +1,2 @@
 # Rules
+- no fmt
diff --git a/old.go b/old.go
--- a/old.go
+++ b/old.go
@@ -1,2 +1 @@
 package old
-var x = 1
`

// resetFlags resets all package-level flag variables to their defaults.
func resetFlags() {
	flagConfig = ""
	flagEnvFile = ".env"
	flagVerbose = false
	flagLogFormat = ""

	flagProvider = ""
	flagModel = ""
	flagFormat = ""
	flagOut = ""
	flagRules = ""
	flagIgnoreFile = ""
	flagConcurrency = 0
	flagNoRedact = false
	flagStrict = false

	flagDryRun = false
	flagDiffFile = ""
	flagDiffSource = ""
	flagRepo = ""
	flagPR = 0
	flagCommit = ""

	flagMode = ""
	flagMergeBase = true
	flagFailOnSuggestions = false

	hookFormat = "text"
	hookBlock = true
}

// stubProvider answers by file name, taken from the rendered prompt.
type stubProvider struct {
	mu    sync.Mutex
	files []string
	reply func(file string) (string, error)
}

func (s *stubProvider) Name() string { return "stub" }

func (s *stubProvider) Review(ctx context.Context, req providers.ReviewRequest) (providers.ReviewResponse, error) {
	_, rest, _ := strings.Cut(req.UserPrompt, "for the file `")
	file, _, _ := strings.Cut(rest, "`")
	s.mu.Lock()
	s.files = append(s.files, file)
	s.mu.Unlock()
	content, err := s.reply(file)
	if err != nil {
		return providers.ReviewResponse{}, err
	}
	return providers.ReviewResponse{Content: content}, nil
}

func (s *stubProvider) calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.files...)
}

func useStubProvider(t *testing.T, reply func(file string) (string, error)) *stubProvider {
	t.Helper()
	stub := &stubProvider{reply: reply}
	orig := newProvider
	newProvider = func(s providers.Settings) (providers.Reviewer, error) {
		if s.APIKey == "" {
			return nil, providers.ErrMissingAPIKey
		}
		return stub, nil
	}
	t.Cleanup(func() { newProvider = orig })
	return stub
}

func fmtViolation(file string) (string, error) {
	if file == "main.go" {
		return "```json\n[{\"line\": 2, \"comment\": \"Do not import fmt.\"}]\n```", nil
	}
	return "[]", nil
}

// setupWorkspace isolates a command run: fresh flags, an empty environment,
// a temp working directory holding the rules file and a config that
// disables comment throttling.
func setupWorkspace(t *testing.T) string {
	t.Helper()
	resetFlags()
	for _, k := range []string{
		"AI_PROVIDER", "AI_API_KEY", "AI_MODEL", "AI_BASE_URL",
		"GITHUB_TOKEN", "GITHUB_API_URL", "GITHUB_REPOSITORY", "PR_NUMBER", "COMMIT_ID",
		"GITHUB_APP_ID", "GITHUB_APP_INSTALLATION_ID", "GITHUB_APP_PRIVATE_KEY_PATH",
		"RULEBOT_RULES_FILE", "RULEBOT_IGNORE_FILE", "RULEBOT_DIFF_SOURCE",
		"RULEBOT_CONCURRENCY", "RULEBOT_LOG_LEVEL",
	} {
		t.Setenv(k, "")
	}
	t.Setenv("RULEBOT_LOG_LEVEL", "error")

	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(".project-rules.md", []byte("- Never import fmt.\n"), 0o644))
	require.NoError(t, os.WriteFile(config.DefaultFile, []byte("github:\n  commentsPerSecond: 0\n"), 0o644))
	return dir
}

func execute(t *testing.T, stdin string, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := Execute(context.Background(), args, strings.NewReader(stdin), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

// fakeGitHub serves one pull request and records posted comments.
type fakeGitHub struct {
	*httptest.Server
	mu         sync.Mutex
	comments   []review.Comment
	authHeader string
	diffStatus int
	failPath   string
}

func newFakeGitHub(t *testing.T) *fakeGitHub {
	t.Helper()
	gh := &fakeGitHub{diffStatus: http.StatusOK}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/acme/widgets/pulls/7", func(w http.ResponseWriter, r *http.Request) {
		gh.mu.Lock()
		gh.authHeader = r.Header.Get("Authorization")
		gh.mu.Unlock()
		if r.Header.Get("Accept") != "application/vnd.github.v3.diff" {
			http.Error(w, "wrong accept header", http.StatusBadRequest)
			return
		}
		w.WriteHeader(gh.diffStatus)
		if gh.diffStatus == http.StatusOK {
			io.WriteString(w, prDiff)
		}
	})
	mux.HandleFunc("GET /repos/acme/widgets/pulls/7/files", func(w http.ResponseWriter, r *http.Request) {
		patch := "@@ -1,2 +1,3 @@\n package main\n+import \"fmt\"\n func main() {}"
		json.NewEncoder(w).Encode([]github.PRFile{
			{Filename: "main.go", Status: "modified", Patch: &patch},
			{Filename: "logo.png", Status: "added"},
		})
	})
	mux.HandleFunc("POST /repos/acme/widgets/pulls/7/comments", func(w http.ResponseWriter, r *http.Request) {
		var c review.Comment
		if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if c.Path == gh.failPath {
			http.Error(w, `{"message":"Validation Failed"}`, http.StatusUnprocessableEntity)
			return
		}
		gh.mu.Lock()
		gh.comments = append(gh.comments, c)
		gh.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
	})
	gh.Server = httptest.NewServer(mux)
	t.Cleanup(gh.Close)
	return gh
}

func (g *fakeGitHub) posted() []review.Comment {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]review.Comment(nil), g.comments...)
}

func setPREnv(t *testing.T, apiURL string) {
	t.Helper()
	t.Setenv("AI_API_KEY", "sk-test")
	t.Setenv("GITHUB_TOKEN", "ghs_test")
	t.Setenv("GITHUB_API_URL", apiURL)
	t.Setenv("GITHUB_REPOSITORY", "acme/widgets")
	t.Setenv("PR_NUMBER", "7")
	t.Setenv("COMMIT_ID", "abc123")
}

func TestReview_PostsComments(t *testing.T) {
	setupWorkspace(t)
	gh := newFakeGitHub(t)
	setPREnv(t, gh.URL)
	stub := useStubProvider(t, fmtViolation)

	code, stdout, stderr := execute(t, "", "review", "--format", "json")
	require.Equal(t, ExitSuccess, code, stderr)

	assert.Equal(t, []string{"main.go"}, stub.calls(), "rules file ignored, removal-only file skipped")
	assert.Equal(t, []review.Comment{{
		Body:     "Do not import fmt.",
		CommitID: "abc123",
		Path:     "main.go",
		Line:     2,
	}}, gh.posted())
	gh.mu.Lock()
	assert.Equal(t, "Bearer ghs_test", gh.authHeader)
	gh.mu.Unlock()

	var report review.Report
	require.NoError(t, json.Unmarshal([]byte(stdout), &report))
	assert.Equal(t, "acme/widgets", report.Repository)
	assert.Equal(t, 7, report.PullRequest)
	assert.Equal(t, 1, report.Summary.Posted)
	assert.Equal(t, 1, report.Summary.Ignored)
	assert.False(t, report.DryRun)
}

func TestReview_FilesSource(t *testing.T) {
	setupWorkspace(t)
	gh := newFakeGitHub(t)
	setPREnv(t, gh.URL)
	useStubProvider(t, fmtViolation)

	code, _, stderr := execute(t, "", "review", "--diff-source", "files")
	require.Equal(t, ExitSuccess, code, stderr)

	comments := gh.posted()
	require.Len(t, comments, 1)
	assert.Equal(t, "main.go", comments[0].Path)
	assert.Equal(t, 2, comments[0].Line)
}

func TestReview_DryRunFromStdin(t *testing.T) {
	setupWorkspace(t)
	t.Setenv("AI_API_KEY", "sk-test")
	useStubProvider(t, fmtViolation)

	code, stdout, stderr := execute(t, prDiff, "review", "--dry-run", "--diff-file", "-")
	require.Equal(t, ExitSuccess, code, stderr)
	assert.Contains(t, stdout, "[dry run]")
	assert.Contains(t, stdout, "line 2:")
	assert.Contains(t, stdout, "Do not import fmt.")
}

func TestReview_DiffFileToReportFile(t *testing.T) {
	dir := setupWorkspace(t)
	t.Setenv("AI_API_KEY", "sk-test")
	useStubProvider(t, fmtViolation)
	require.NoError(t, os.WriteFile("pr.diff", []byte(prDiff), 0o644))
	out := filepath.Join(dir, "report.sarif")

	code, stdout, stderr := execute(t, "", "review", "--dry-run", "--diff-file", "pr.diff", "--format", "sarif", "--out", out)
	require.Equal(t, ExitSuccess, code, stderr)
	assert.Empty(t, stdout)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"startLine": 2`)
}

func TestReview_PostFailureAndStrict(t *testing.T) {
	setupWorkspace(t)
	gh := newFakeGitHub(t)
	gh.failPath = "main.go"
	setPREnv(t, gh.URL)
	useStubProvider(t, fmtViolation)

	code, _, stderr := execute(t, "", "review")
	assert.Equal(t, ExitSuccess, code, "post failures do not fail a normal run: %s", stderr)

	code, _, _ = execute(t, "", "review", "--strict")
	assert.Equal(t, ExitFindings, code)
}

func TestReview_ProviderFailureStrict(t *testing.T) {
	setupWorkspace(t)
	t.Setenv("AI_API_KEY", "sk-test")
	useStubProvider(t, func(string) (string, error) {
		return "", &providers.Error{Provider: "stub", StatusCode: 500, Err: errors.New("boom")}
	})

	code, stdout, _ := execute(t, prDiff, "review", "--dry-run", "--diff-file", "-", "--strict")
	assert.Equal(t, ExitFindings, code)
	assert.Contains(t, stdout, "provider error")
}

func TestReview_MissingConfiguration(t *testing.T) {
	setupWorkspace(t)
	useStubProvider(t, fmtViolation)

	code, _, stderr := execute(t, "", "review")
	assert.Equal(t, ExitUsageError, code)
	assert.Contains(t, stderr, "AI_API_KEY")

	t.Setenv("AI_API_KEY", "sk-test")
	code, _, stderr = execute(t, "", "review")
	assert.Equal(t, ExitUsageError, code)
	assert.Contains(t, stderr, "GITHUB_TOKEN")
	assert.Contains(t, stderr, "PR_NUMBER")
	assert.Contains(t, stderr, "COMMIT_ID")
}

func TestReview_UnknownProvider(t *testing.T) {
	setupWorkspace(t)
	gh := newFakeGitHub(t)
	setPREnv(t, gh.URL)
	t.Setenv("AI_PROVIDER", "antrophic")

	code, _, stderr := execute(t, "", "review")
	assert.Equal(t, ExitUsageError, code)
	assert.Contains(t, stderr, "unknown provider")
	assert.Empty(t, gh.posted())
}

func TestReview_MissingRulesFile(t *testing.T) {
	setupWorkspace(t)
	t.Setenv("AI_API_KEY", "sk-test")
	useStubProvider(t, fmtViolation)

	code, _, stderr := execute(t, prDiff, "review", "--dry-run", "--diff-file", "-", "--rules", "nope.md")
	assert.Equal(t, ExitUsageError, code)
	assert.Contains(t, stderr, "nope.md")
}

func TestReview_GitHubAuthFailure(t *testing.T) {
	setupWorkspace(t)
	gh := newFakeGitHub(t)
	gh.diffStatus = http.StatusUnauthorized
	setPREnv(t, gh.URL)
	stub := useStubProvider(t, fmtViolation)

	code, _, _ := execute(t, "", "review")
	assert.Equal(t, ExitAuthError, code)
	assert.Empty(t, stub.calls())
}

func TestReview_MalformedDiff(t *testing.T) {
	setupWorkspace(t)
	t.Setenv("AI_API_KEY", "sk-test")
	stub := useStubProvider(t, fmtViolation)

	code, _, stderr := execute(t, "--- a/x\n+++ b/x\n@@ bogus @@\n", "review", "--dry-run", "--diff-file", "-")
	assert.Equal(t, ExitRuntimeError, code)
	assert.Contains(t, stderr, "invalid hunk header")
	assert.Empty(t, stub.calls())
}

func TestReview_RejectsArguments(t *testing.T) {
	setupWorkspace(t)
	code, _, _ := execute(t, "", "review", "extra")
	assert.Equal(t, ExitUsageError, code)
}

func TestBuildOverrides(t *testing.T) {
	resetFlags()
	assert.Empty(t, buildOverrides())

	flagProvider = "anthropic"
	flagFormat = "json"
	flagConcurrency = 3
	flagPR = 12
	flagRepo = "o/r"
	flagDiffSource = "files"
	assert.Equal(t, map[string]string{
		"provider":          "anthropic",
		"format":            "json",
		"concurrency":       "3",
		"github.prNumber":   "12",
		"github.repository": "o/r",
		"diffSource":        "files",
	}, buildOverrides())

	cfg := config.Default()
	for k, v := range buildOverrides() {
		assert.NoError(t, config.SetField(&cfg, k, v), "override key %s must be a config key", k)
	}
}

func TestExitCodeFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&config.Error{Problems: []string{"x"}}, ExitUsageError},
		{fmt.Errorf("wrapped: %w", providers.ErrUnknownProvider), ExitUsageError},
		{providers.ErrMissingAPIKey, ExitUsageError},
		{fmt.Errorf("%w: bad key", errUsage), ExitUsageError},
		{fmt.Errorf("%w: 401", github.ErrAuth), ExitAuthError},
		{&providers.Error{Provider: "openai", StatusCode: 401}, ExitAuthError},
		{&diff.ParseError{Line: 3, Reason: "bad"}, ExitRuntimeError},
		{errors.New("network down"), ExitRuntimeError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, exitCodeFor(tt.err), "%v", tt.err)
	}
}

func TestVersionCmd(t *testing.T) {
	setupWorkspace(t)
	code, stdout, _ := execute(t, "", "version")
	assert.Equal(t, ExitSuccess, code)
	assert.Equal(t, "rulebot version "+version+"\n", stdout)
}

func TestProvidersList(t *testing.T) {
	setupWorkspace(t)
	code, stdout, _ := execute(t, "", "providers", "list")
	assert.Equal(t, ExitSuccess, code)
	assert.Contains(t, stdout, "openai (default model gpt-4o)")
	assert.Contains(t, stdout, "anthropic (default model claude-3-5-sonnet-20241022)")
}

func TestProvidersDoctor(t *testing.T) {
	setupWorkspace(t)
	t.Setenv("AI_API_KEY", "sk-test")
	useStubProvider(t, func(string) (string, error) { return "ok", nil })

	code, stdout, _ := execute(t, "", "providers", "doctor")
	assert.Equal(t, ExitSuccess, code)
	assert.Contains(t, stdout, "OK: stub is configured")

	useStubProvider(t, func(string) (string, error) {
		return "", &providers.Error{Provider: "stub", StatusCode: 401, Err: errors.New("bad key")}
	})
	code, _, _ = execute(t, "", "providers", "doctor")
	assert.Equal(t, ExitAuthError, code)
}

func TestConfigCommands(t *testing.T) {
	setupWorkspace(t)
	path := filepath.Join(t.TempDir(), "rulebot.yaml")

	code, stdout, _ := execute(t, "", "--config", path, "config", "init")
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, stdout, "Config file created")

	code, _, stderr := execute(t, "", "--config", path, "config", "init")
	assert.Equal(t, ExitSuccess, code)
	assert.Contains(t, stderr, "already exists")

	code, stdout, _ = execute(t, "", "--config", path, "config", "set", "provider", "anthropic")
	require.Equal(t, ExitSuccess, code)
	assert.Equal(t, "Set provider = anthropic\n", stdout)

	code, _, stderr = execute(t, "", "--config", path, "config", "set", "nope", "x")
	assert.Equal(t, ExitUsageError, code)
	assert.Contains(t, stderr, "unknown config key")

	code, _, _ = execute(t, "", "--config", path, "config", "set", "provider")
	assert.Equal(t, ExitUsageError, code)

	t.Setenv("AI_API_KEY", "sk-secret")
	code, stdout, _ = execute(t, "", "--config", path, "config", "show")
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, stdout, "provider: anthropic")
	assert.Contains(t, stdout, "# AI_API_KEY: set")
	assert.NotContains(t, stdout, "sk-secret")
}

func TestCacheCommands(t *testing.T) {
	setupWorkspace(t)
	code, stdout, _ := execute(t, "", "cache", "show")
	assert.Equal(t, ExitSuccess, code)
	assert.Contains(t, stdout, "Cache is disabled.")

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "entry.json"), []byte(`{"provider":"openai","model":"gpt-4o","reply":"[]"}`), 0o644))
	require.NoError(t, os.WriteFile(config.DefaultFile,
		[]byte(fmt.Sprintf("cache:\n  enabled: true\n  dir: %q\n", dir)), 0o644))

	code, stdout, _ = execute(t, "", "cache", "show")
	assert.Equal(t, ExitSuccess, code)
	assert.Contains(t, stdout, `"entries": 1`)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{"), 0o644))
	code, stdout, _ = execute(t, "", "cache", "prune")
	assert.Equal(t, ExitSuccess, code)
	assert.Contains(t, stdout, "Removed 1 cache entries.")

	code, stdout, _ = execute(t, "", "cache", "clear")
	assert.Equal(t, ExitSuccess, code)
	assert.Contains(t, stdout, "Cache cleared.")
	_, err := os.Stat(filepath.Join(dir, "entry.json"))
	assert.True(t, os.IsNotExist(err))
}

func TestInvalidLogFormat(t *testing.T) {
	setupWorkspace(t)
	code, _, stderr := execute(t, "", "--log-format", "xml", "config", "show")
	assert.Equal(t, ExitUsageError, code)
	assert.Contains(t, stderr, "log format")
}

func TestUnderscoreFlags(t *testing.T) {
	setupWorkspace(t)
	t.Setenv("AI_API_KEY", "sk-test")
	useStubProvider(t, fmtViolation)

	code, stdout, stderr := execute(t, prDiff, "review", "--dry_run", "--diff_file", "-", "--format", "json")
	require.Equal(t, ExitSuccess, code, stderr)
	assert.Contains(t, stdout, `"dryRun": true`)
}

// sevenFileDiff adds line 2 to each of f0.go through f6.go.
func sevenFileDiff() string {
	var b strings.Builder
	for i := range 7 {
		name := fmt.Sprintf("f%d.go", i)
		fmt.Fprintf(&b, "diff --git a/%[1]s b/%[1]s\n--- a/%[1]s\n+++ b/%[1]s\n@@ -1 +1,2 @@\n package f\n+var x = %[2]d\n", name, i)
	}
	return b.String()
}

// flakyThenHealthy fails the first n calls with a 503 and answers with one
// suggestion afterwards.
func flakyThenHealthy(n int) func(string) (string, error) {
	var mu sync.Mutex
	calls := 0
	return func(string) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls <= n {
			return "", &providers.Error{Provider: "stub", StatusCode: http.StatusServiceUnavailable, Err: errors.New("overloaded")}
		}
		return `[{"line": 2, "comment": "Avoid package-level state."}]`, nil
	}
}

func TestReview_KeepsCallingProviderAfterFailures(t *testing.T) {
	setupWorkspace(t)
	t.Setenv("AI_API_KEY", "sk-test")
	stub := useStubProvider(t, flakyThenHealthy(5))

	code, stdout, stderr := execute(t, sevenFileDiff(), "review", "--dry-run", "--diff-file", "-", "--format", "json")
	require.Equal(t, ExitSuccess, code, stderr)

	assert.Len(t, stub.calls(), 7, "every file reaches the provider")
	var report review.Report
	require.NoError(t, json.Unmarshal([]byte(stdout), &report))
	assert.Equal(t, 5, report.Summary.Failed)
	assert.Equal(t, 2, report.Summary.Reviewed)
	assert.Equal(t, 2, report.Summary.Suggestions)
}

func TestReview_BreakerOptIn(t *testing.T) {
	setupWorkspace(t)
	require.NoError(t, os.WriteFile(config.DefaultFile,
		[]byte("github:\n  commentsPerSecond: 0\nbreaker:\n  maxFailures: 5\n  cooldownSeconds: 60\n"), 0o644))
	t.Setenv("AI_API_KEY", "sk-test")
	stub := useStubProvider(t, flakyThenHealthy(5))

	code, stdout, stderr := execute(t, sevenFileDiff(), "review", "--dry-run", "--diff-file", "-", "--format", "json")
	require.Equal(t, ExitSuccess, code, stderr)

	assert.Len(t, stub.calls(), 5, "open breaker stops provider calls")
	var report review.Report
	require.NoError(t, json.Unmarshal([]byte(stdout), &report))
	assert.Equal(t, 7, report.Summary.Failed)
	assert.Contains(t, stdout, "circuit breaker open")
}
