// Package controlplane provides the client for registering an installed agent
// with the remote control plane.
//
// The core treats registration as an opaque remote call: success yields an
// identity token, client-side errors (bad credentials, rejected payload) are
// fatal, and server or transport errors are retryable by the caller.
package controlplane

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/imamik/agentup/internal/util/retry"
)

const defaultRequestTimeout = 30 * time.Second

// Client talks to the control plane's agent registration API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates a control plane client. token authenticates the
// registration call itself, not the registered agent.
func NewClient(baseURL, token string) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("control plane URL cannot be empty")
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: defaultRequestTimeout},
	}, nil
}

// RegisterRequest identifies the freshly installed agent.
type RegisterRequest struct {
	RunID        string `json:"runId"`
	Hostname     string `json:"hostname"`
	AgentVersion string `json:"agentVersion"`
}

// RegisterResponse carries the identity issued by the control plane.
type RegisterResponse struct {
	AgentID       string `json:"agentId"`
	IdentityToken string `json:"identityToken"`
}

// Register registers the agent and returns its issued identity.
//
// HTTP 4xx responses are marked fatal via retry.Fatal: retrying an invalid
// credential or a rejected payload cannot succeed. Transport errors and 5xx
// responses return plain errors so the caller's retry executor can retry them.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*RegisterResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, retry.Fatal(fmt.Errorf("failed to encode registration request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/agents/register", bytes.NewReader(body))
	if err != nil {
		return nil, retry.Fatal(fmt.Errorf("failed to build registration request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("registration request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read registration response: %w", err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var out RegisterResponse
		if err := json.Unmarshal(respBody, &out); err != nil {
			return nil, fmt.Errorf("failed to decode registration response: %w", err)
		}
		if out.IdentityToken == "" {
			return nil, fmt.Errorf("control plane returned no identity token")
		}
		return &out, nil

	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, retry.Fatal(fmt.Errorf("control plane rejected registration: %s: %s",
			resp.Status, strings.TrimSpace(string(respBody))))

	default:
		return nil, fmt.Errorf("control plane error: %s: %s",
			resp.Status, strings.TrimSpace(string(respBody)))
	}
}
