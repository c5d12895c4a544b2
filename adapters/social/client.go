// Package social is the HTTP client for the Mastodon-compatible account
// the reports arrive on. It covers exactly what the engine needs:
// credential verification, ownership checks, deletions, and public
// replies.
package social

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
)

// Account is the authenticated account, fetched once at startup.
type Account struct {
	ID   string `json:"id"`
	Acct string `json:"acct"`
}

// Client talks to one instance with one access token.
type Client struct {
	http *resty.Client
	log  *slog.Logger

	// selfID is the authenticated account's ID, set by VerifyCredentials.
	selfID string
}

// New builds a client for the given instance base URL.
func New(baseURL, token string, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetAuthToken(token).
			SetTimeout(30 * time.Second),
		log: log,
	}
}

// VerifyCredentials confirms the token works and caches the account ID
// for later ownership checks.
func (c *Client) VerifyCredentials(ctx context.Context) (Account, error) {
	var acct Account
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&acct).
		Get("/api/v1/accounts/verify_credentials")
	if err != nil {
		return Account{}, fmt.Errorf("verify credentials: %w", err)
	}
	if resp.IsError() {
		return Account{}, fmt.Errorf("verify credentials: status %d", resp.StatusCode())
	}
	c.selfID = acct.ID
	return acct, nil
}

type status struct {
	ID      string `json:"id"`
	Account struct {
		ID string `json:"id"`
	} `json:"account"`
}

// Owns reports whether the status belongs to the authenticated account.
// A status that is already gone counts as owned; the deletion step will
// observe the 404 and record it as such.
func (c *Client) Owns(ctx context.Context, targetID string) (bool, error) {
	if c.selfID == "" {
		return false, fmt.Errorf("owns: credentials not verified")
	}
	var st status
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&st).
		Get("/api/v1/statuses/" + targetID)
	if err != nil {
		return false, fmt.Errorf("owns %s: %w", targetID, err)
	}
	switch {
	case resp.StatusCode() == http.StatusNotFound || resp.StatusCode() == http.StatusGone:
		return true, nil
	case resp.IsError():
		return false, fmt.Errorf("owns %s: status %d", targetID, resp.StatusCode())
	}
	return st.Account.ID == c.selfID, nil
}

// Delete removes a status. The HTTP status code is returned for the
// runner's bookkeeping; on 429 the server-requested wait rides along.
func (c *Client) Delete(ctx context.Context, targetID string) (int, time.Duration, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		Delete("/api/v1/statuses/" + targetID)
	if err != nil {
		return 0, 0, fmt.Errorf("delete %s: %w", targetID, err)
	}
	code := resp.StatusCode()
	if code == http.StatusTooManyRequests {
		return code, parseRetryAfter(resp.Header().Get("Retry-After")), nil
	}
	return code, 0, nil
}

// Reply posts an unlisted reply to the given status.
func (c *Client) Reply(ctx context.Context, inReplyTo, text string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"status":         text,
			"in_reply_to_id": inReplyTo,
			"visibility":     "unlisted",
		}).
		Post("/api/v1/statuses")
	if err != nil {
		return fmt.Errorf("reply to %s: %w", inReplyTo, err)
	}
	if resp.IsError() {
		return fmt.Errorf("reply to %s: status %d", inReplyTo, resp.StatusCode())
	}
	return nil
}

// parseRetryAfter reads a Retry-After header in either seconds or
// HTTP-date form. Unparseable values fall back to a conservative minute.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return time.Minute
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
		return 0
	}
	return time.Minute
}
