package github

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/oauth2"
)

// appTokenSource exchanges a GitHub App JWT for an installation token.
type appTokenSource struct {
	appID          string
	installationID int64
	key            *rsa.PrivateKey
	apiURL         string
	httpCli        *http.Client
	now            func() time.Time
}

// AppTokenSource returns a token source that authenticates as a GitHub App
// installation. Tokens are cached until shortly before they expire.
func AppTokenSource(appID, installationID int64, privateKeyPEM []byte, apiURL string, httpCli *http.Client) (oauth2.TokenSource, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM(privateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("parsing app private key: %w", err)
	}
	if apiURL == "" {
		apiURL = defaultAPIURL
	}
	if httpCli == nil {
		httpCli = &http.Client{Timeout: 30 * time.Second}
	}
	src := &appTokenSource{
		appID:          strconv.FormatInt(appID, 10),
		installationID: installationID,
		key:            key,
		apiURL:         strings.TrimRight(apiURL, "/"),
		httpCli:        httpCli,
		now:            time.Now,
	}
	return oauth2.ReuseTokenSource(nil, src), nil
}

// AppTokenSourceFromFile reads the private key from path.
func AppTokenSourceFromFile(appID, installationID int64, path, apiURL string) (oauth2.TokenSource, error) {
	pemBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading app private key: %w", err)
	}
	return AppTokenSource(appID, installationID, pemBytes, apiURL, nil)
}

func (s *appTokenSource) signJWT() (string, error) {
	now := s.now()
	claims := jwt.RegisteredClaims{
		// backdated to tolerate clock drift
		IssuedAt:  jwt.NewNumericDate(now.Add(-1 * time.Minute)),
		ExpiresAt: jwt.NewNumericDate(now.Add(9 * time.Minute)),
		Issuer:    s.appID,
	}
	return jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(s.key)
}

func (s *appTokenSource) Token() (*oauth2.Token, error) {
	signed, err := s.signJWT()
	if err != nil {
		return nil, fmt.Errorf("signing app JWT: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	url := fmt.Sprintf("%s/app/installations/%d/access_tokens", s.apiURL, s.installationID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build installation token request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+signed)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := s.httpCli.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting installation token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: installation token status %d: %s", ErrAuth, resp.StatusCode, string(msg))
	}

	var r struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return nil, fmt.Errorf("parsing installation token: %w", err)
	}
	return &oauth2.Token{AccessToken: r.Token, TokenType: "Bearer", Expiry: r.ExpiresAt}, nil
}
