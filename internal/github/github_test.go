package github

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/rulebot/internal/review"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	c, err := NewClient(context.Background(), Options{
		Token:      "test-token",
		APIURL:     server.URL,
		HTTPClient: server.Client(),
	})
	require.NoError(t, err)
	return c
}

func TestGetPRDiff(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "application/vnd.github.v3.diff", r.Header.Get("Accept"))
		assert.Equal(t, "/repos/owner/repo/pulls/42", r.URL.Path)
		w.Write([]byte("diff --git a/file.go b/file.go\n"))
	})

	got, err := c.GetPRDiff(context.Background(), "owner", "repo", 42)
	require.NoError(t, err)
	assert.Equal(t, "diff --git a/file.go b/file.go\n", got)
}

func TestGetPRDiff_Errors(t *testing.T) {
	tests := []struct {
		status   int
		wantAuth bool
		wantText string
	}{
		{http.StatusNotFound, false, "PR #99 not found in owner/repo"},
		{http.StatusUnauthorized, true, "Bad credentials"},
		{http.StatusForbidden, true, "Bad credentials"},
		{http.StatusInternalServerError, false, "status 500"},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"message":"Bad credentials"}`))
			})
			_, err := c.GetPRDiff(context.Background(), "owner", "repo", 99)
			require.Error(t, err)
			assert.Equal(t, tt.wantAuth, errors.Is(err, ErrAuth))
			assert.Contains(t, err.Error(), tt.wantText)
		})
	}
}

func TestListPRFiles_Paginates(t *testing.T) {
	var pages []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/owner/repo/pulls/7/files", r.URL.Path)
		assert.Equal(t, "100", r.URL.Query().Get("per_page"))
		page := r.URL.Query().Get("page")
		pages = append(pages, page)

		var files []map[string]any
		switch page {
		case "1":
			for i := 0; i < filesPerPage; i++ {
				files = append(files, map[string]any{"filename": fmt.Sprintf("f%d.go", i), "status": "modified", "patch": "@@ -1 +1 @@\n-a\n+b"})
			}
		case "2":
			files = append(files, map[string]any{"filename": "logo.png", "status": "added"})
		}
		json.NewEncoder(w).Encode(files)
	})

	files, err := c.ListPRFiles(context.Background(), "owner", "repo", 7)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, pages)
	require.Len(t, files, filesPerPage+1)
	require.NotNil(t, files[0].Patch)
	assert.Nil(t, files[filesPerPage].Patch, "binary files carry no patch")

	patches := FilePatches(files)
	assert.Equal(t, "f0.go", patches[0].Filename)
	assert.Nil(t, patches[filesPerPage].Patch)
}

func TestListPRFiles_Error(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	_, err := c.ListPRFiles(context.Background(), "o", "r", 1)
	assert.ErrorIs(t, err, ErrAuth)
}

func TestPostComment(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/repos/owner/repo/pulls/5/comments", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":1}`))
	})

	pr := c.PullRequest("owner", "repo", 5)
	err := pr.PostComment(context.Background(), review.Comment{Body: "fix", CommitID: "abc", Path: "a.go", Line: 3})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"body": "fix", "commit_id": "abc", "path": "a.go", "line": float64(3)}, got)
}

func TestPostComment_NotCreated(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		// 200 is not the documented success status for this endpoint
		status := http.StatusOK
		if strings.Contains(r.URL.Path, "/pulls/6/") {
			status = http.StatusUnprocessableEntity
		}
		w.WriteHeader(status)
		w.Write([]byte(`{"message":"line must be part of the diff"}`))
	})

	for _, n := range []int{5, 6} {
		err := c.PullRequest("o", "r", n).PostComment(context.Background(), review.Comment{Body: "x", Line: 1})
		var ce *CommentError
		require.True(t, errors.As(err, &ce), "pr %d: %v", n, err)
		assert.Contains(t, ce.Body, "line must be part of the diff")
	}
}

func TestPostComment_Throttled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()
	c, err := NewClient(context.Background(), Options{
		Token:             "t",
		APIURL:            server.URL,
		HTTPClient:        server.Client(),
		CommentsPerSecond: 20,
	})
	require.NoError(t, err)

	pr := c.PullRequest("o", "r", 1)
	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, pr.PostComment(context.Background(), review.Comment{Body: "x", Line: 1}))
	}
	// burst of one, then 50ms per token
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, pr.PostComment(ctx, review.Comment{Body: "x", Line: 1}))
}

func TestNewClient_NoToken(t *testing.T) {
	_, err := NewClient(context.Background(), Options{})
	assert.ErrorIs(t, err, ErrAuth)
}

func testKeyPEM(t *testing.T) (*rsa.PrivateKey, []byte) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key, pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
}

func TestAppTokenSource(t *testing.T) {
	key, keyPEM := testKeyPEM(t)
	var exchanges atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/app/installations/99/access_tokens":
			exchanges.Add(1)
			raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			claims := &jwt.RegisteredClaims{}
			_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) { return &key.PublicKey, nil })
			assert.NoError(t, err)
			assert.Equal(t, "12345", claims.Issuer)
			w.WriteHeader(http.StatusCreated)
			fmt.Fprintf(w, `{"token":"ghs_installation","expires_at":%q}`, time.Now().Add(time.Hour).Format(time.RFC3339))
		case "/repos/o/r/pulls/1":
			assert.Equal(t, "Bearer ghs_installation", r.Header.Get("Authorization"))
			io.WriteString(w, "diff")
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	ts, err := AppTokenSource(12345, 99, keyPEM, server.URL, server.Client())
	require.NoError(t, err)
	c, err := NewClient(context.Background(), Options{TokenSource: ts, APIURL: server.URL, HTTPClient: server.Client()})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		got, err := c.GetPRDiff(context.Background(), "o", "r", 1)
		require.NoError(t, err)
		assert.Equal(t, "diff", got)
	}
	assert.Equal(t, int32(1), exchanges.Load(), "installation token is reused until expiry")
}

func TestAppTokenSource_Rejected(t *testing.T) {
	_, keyPEM := testKeyPEM(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"message":"A JSON web token could not be decoded"}`)
	}))
	defer server.Close()

	ts, err := AppTokenSource(1, 2, keyPEM, server.URL, server.Client())
	require.NoError(t, err)
	_, err = ts.Token()
	assert.ErrorIs(t, err, ErrAuth)
}

func TestAppTokenSource_BadKey(t *testing.T) {
	_, err := AppTokenSource(1, 2, []byte("not a key"), "", nil)
	assert.Error(t, err)
}

func TestParseRepository(t *testing.T) {
	owner, repo, err := ParseRepository("octo/widgets")
	require.NoError(t, err)
	assert.Equal(t, "octo", owner)
	assert.Equal(t, "widgets", repo)

	for _, bad := range []string{"", "octo", "/widgets", "octo/", "a/b/c"} {
		_, _, err := ParseRepository(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseRemoteURL(t *testing.T) {
	tests := []struct {
		name      string
		url       string
		wantOwner string
		wantRepo  string
		wantErr   bool
	}{
		{name: "HTTPS", url: "https://github.com/octo/widgets.git", wantOwner: "octo", wantRepo: "widgets"},
		{name: "HTTPS no .git", url: "https://github.com/octo/widgets", wantOwner: "octo", wantRepo: "widgets"},
		{name: "SSH", url: "git@github.com:octo/widgets.git", wantOwner: "octo", wantRepo: "widgets"},
		{name: "invalid", url: "not-a-url", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			owner, repo, err := ParseRemoteURL(tt.url)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantOwner, owner)
			assert.Equal(t, tt.wantRepo, repo)
		})
	}
}
