// Package listsync keeps the local subscriber registry converged with the
// external list-management platform. The Client wraps the platform's member
// API behind the rate-limited retry client; the Engine implements the
// reconciliation pass.
package listsync

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ignite/mailflow/internal/pkg/httpretry"
	"github.com/ignite/mailflow/internal/pkg/ratelimit"
)

// Client is an authenticated member-API client for one account's list.
// Every request attempt, retries included, takes its own admission from the
// shared rate limiter for the platform profile.
type Client struct {
	baseURL    string
	apiKey     string
	listID     string
	pageSize   int
	httpClient httpretry.HTTPDoer
}

// ClientConfig holds per-account connection settings for the platform.
// A zero Retry policy falls back to the default 3-attempt schedule.
type ClientConfig struct {
	BaseURL  string
	APIKey   string
	ListID   string
	PageSize int
	Timeout  time.Duration
	Retry    httpretry.Policy
}

// NewClient creates a member-API client. The limiter is shared across all
// accounts so the platform-wide request budget holds; pass a dedicated
// instance in tests. It gates the retry client per attempt, so the limiter
// sees every wire request and no slot is held through backoff sleeps.
func NewClient(cfg ClientConfig, limiter *ratelimit.Limiter) *Client {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 1000
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Client{
		baseURL:  cfg.BaseURL,
		apiKey:   cfg.APIKey,
		listID:   cfg.ListID,
		pageSize: cfg.PageSize,
		httpClient: httpretry.NewRetryClient(&http.Client{
			Timeout: cfg.Timeout,
		}, cfg.Retry).WithGate(limiter.Do),
	}
}

// doRequest performs one authenticated request.
func (c *Client) doRequest(ctx context.Context, method, endpoint string, body interface{}) ([]byte, int, error) {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reqBody)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read response body: %w", err)
	}
	status := resp.StatusCode

	// 404 is handed back to callers: member updates use it for the
	// create-on-missing fallback.
	if status < 200 || (status >= 300 && status != http.StatusNotFound) {
		if msg := parseAPIError(respBody); msg != "" {
			return respBody, status, fmt.Errorf("platform API error (status %d): %s", status, msg)
		}
		return respBody, status, fmt.Errorf("platform API error (status %d)", status)
	}
	return respBody, status, nil
}

// ListMembers fetches the full remote member list, paging internally.
func (c *Client) ListMembers(ctx context.Context) ([]RemoteMember, error) {
	var members []RemoteMember
	offset := 0

	for {
		endpoint := fmt.Sprintf("/lists/%s/members?count=%d&offset=%d",
			c.listID, c.pageSize, offset)
		respBody, status, err := c.doRequest(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		if status == http.StatusNotFound {
			return nil, fmt.Errorf("list %s not found on platform", c.listID)
		}

		var page memberListResponse
		if err := json.Unmarshal(respBody, &page); err != nil {
			return nil, fmt.Errorf("failed to parse members response: %w", err)
		}

		for _, m := range page.Members {
			members = append(members, m.toRemoteMember())
		}

		offset += len(page.Members)
		if len(page.Members) < c.pageSize || offset >= page.TotalItems {
			return members, nil
		}
	}
}

// PushUnsubscribe marks a member unsubscribed on the platform. Members are
// addressed by the MD5 of the lower-cased email; if the member does not
// exist yet, it is created directly in unsubscribed state.
func (c *Client) PushUnsubscribe(ctx context.Context, email string) error {
	endpoint := fmt.Sprintf("/lists/%s/members/%s", c.listID, emailHash(email))
	patch := memberPatch{Status: string(RemoteUnsubscribed)}

	_, status, err := c.doRequest(ctx, http.MethodPatch, endpoint, patch)
	if err != nil {
		return err
	}
	if status != http.StatusNotFound {
		return nil
	}

	// Unknown member: create it in unsubscribed state so the opt-out is
	// recorded even if the platform lost the original record.
	create := memberPatch{EmailAddress: email, Status: string(RemoteUnsubscribed)}
	_, status, err = c.doRequest(ctx, http.MethodPost, fmt.Sprintf("/lists/%s/members", c.listID), create)
	if err != nil {
		return err
	}
	if status == http.StatusNotFound {
		return fmt.Errorf("list %s not found on platform", c.listID)
	}
	return nil
}

// emailHash returns the platform's member key: hex MD5 of the lower-cased
// address.
func emailHash(email string) string {
	sum := md5.Sum([]byte(strings.ToLower(strings.TrimSpace(email))))
	return hex.EncodeToString(sum[:])
}
