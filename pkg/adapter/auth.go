package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/m-mizutani/goerr/v2"
)

// TokenVerifier resolves a bearer token to a user ID against the
// external credential service. Token issuance is not this system's
// concern; only verification is consumed.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

// ErrTokenRejected is returned when the credential service denies a token.
var ErrTokenRejected = goerr.New("token rejected")

// authClient verifies tokens over HTTP
type authClient struct {
	verifyURL  string
	httpClient *http.Client
}

// NewAuthClient creates a TokenVerifier calling the credential service's
// verify endpoint.
func NewAuthClient(verifyURL string) TokenVerifier {
	return &authClient{
		verifyURL:  verifyURL,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

func (a *authClient) Verify(ctx context.Context, token string) (string, error) {
	payload, err := json.Marshal(map[string]string{"token": token})
	if err != nil {
		return "", goerr.Wrap(err, "failed to marshal verify request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.verifyURL, bytes.NewReader(payload))
	if err != nil {
		return "", goerr.Wrap(err, "failed to build verify request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", goerr.Wrap(err, "credential service unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", goerr.Wrap(ErrTokenRejected, "credential service denied token")
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", goerr.New("unexpected credential service response",
			goerr.V("status", resp.StatusCode), goerr.V("body", string(body)))
	}

	var out struct {
		UserID string `json:"userId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", goerr.Wrap(err, "failed to decode verify response")
	}
	if out.UserID == "" {
		return "", goerr.Wrap(ErrTokenRejected, "verify response without user id")
	}
	return out.UserID, nil
}

// staticVerifier maps fixed tokens to user IDs. Development and tests.
type staticVerifier struct {
	tokens map[string]string
}

func NewStaticVerifier(tokens map[string]string) TokenVerifier {
	return &staticVerifier{tokens: tokens}
}

func (s *staticVerifier) Verify(ctx context.Context, token string) (string, error) {
	if userID, ok := s.tokens[token]; ok {
		return userID, nil
	}
	return "", goerr.Wrap(ErrTokenRejected, "unknown token")
}
