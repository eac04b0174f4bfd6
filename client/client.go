// Package client talks to a running simpleauth service.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/arrikto/simpleauth/common"
	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
)

// ErrForbidden is returned by Reload when the service rejects the secret.
var ErrForbidden = errors.New("reload forbidden: wrong or missing secret")

type Client struct {
	// URL is the base URL of the service, e.g. http://simpleauth:8080.
	URL *url.URL
	// TLS holds an optional CA bundle for https URLs.
	TLS common.TlsConfig
	// UserIDHeader is the response header carrying the identity.
	UserIDHeader string
	// Retries is how many times Reload is retried after a transport error
	// or a 5xx answer. Zero means a single attempt.
	Retries uint64
	// NewBackOff builds the retry schedule. Defaults to exponential backoff
	// starting at 200ms.
	NewBackOff func() backoff.BackOff
}

func New(rawURL string, caBundle []byte) (*Client, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing service URL %q", rawURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.Errorf("service URL %q must be http or https", rawURL)
	}
	return &Client{
		URL:          u,
		TLS:          common.TlsConfig(caBundle),
		UserIDHeader: "X-Forwarded-User",
	}, nil
}

type reloadRequest struct {
	Secret string `json:"secret,omitempty"`
}

type reloadResponse struct {
	LoadedUsers int    `json:"loaded_users"`
	Error       string `json:"error"`
}

// Reload asks the service to re-read its credential file and returns the
// number of loaded entries. A rejected secret is never retried.
func (c *Client) Reload(ctx context.Context, secret string) (int, error) {
	body, err := json.Marshal(reloadRequest{Secret: secret})
	if err != nil {
		return 0, err
	}

	var loaded int
	op := func() error {
		n, err := c.reloadOnce(ctx, body)
		if err != nil {
			return err
		}
		loaded = n
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(c.backOff(), c.Retries), ctx)); err != nil {
		return 0, err
	}
	return loaded, nil
}

func (c *Client) backOff() backoff.BackOff {
	if c.NewBackOff != nil {
		return c.NewBackOff()
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	return b
}

func (c *Client) reloadOnce(ctx context.Context, body []byte) (int, error) {
	target := common.ResolvePathReference(c.URL, common.ReloadConfigPath)
	req, err := http.NewRequest(http.MethodPost, target.String(), bytes.NewReader(body))
	if err != nil {
		return 0, backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := common.DoRequest(c.TLS.Context(ctx), req)
	if err != nil {
		return 0, errors.Wrap(err, "reload request failed")
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, errors.Wrap(err, "reading reload response")
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		var r reloadResponse
		if err := json.Unmarshal(respBody, &r); err != nil {
			return 0, backoff.Permanent(errors.Wrap(err, "decoding reload response"))
		}
		return r.LoadedUsers, nil
	case resp.StatusCode == http.StatusForbidden:
		return 0, backoff.Permanent(ErrForbidden)
	case resp.StatusCode >= http.StatusInternalServerError:
		return 0, common.NewRequestError(resp, respBody)
	default:
		return 0, backoff.Permanent(common.NewRequestError(resp, respBody))
	}
}

// Verify presents digest the way the reverse proxy does. It returns the
// identity and true on admission, false on a 401.
func (c *Client) Verify(ctx context.Context, digest string) (string, bool, error) {
	target := common.ResolvePathReference(c.URL, common.VerifyPath)
	req, err := http.NewRequest(http.MethodGet, target.String(), nil)
	if err != nil {
		return "", false, err
	}
	req.Header.Set("Authorization", "Bearer "+digest)

	resp, err := common.DoRequest(c.TLS.Context(ctx), req)
	if err != nil {
		return "", false, errors.Wrap(err, "verify request failed")
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return resp.Header.Get(c.UserIDHeader), true, nil
	case http.StatusUnauthorized:
		return "", false, nil
	default:
		body, _ := io.ReadAll(resp.Body)
		return "", false, common.NewRequestError(resp, body)
	}
}
