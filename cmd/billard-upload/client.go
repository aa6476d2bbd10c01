package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/1a11/billard/internal/hawk"
	"github.com/1a11/billard/internal/log"
	"github.com/1a11/billard/internal/xerrors"
)

const contentType = "application/json"

// client signs each request with a fresh nonce. Failed requests are not
// retried.
type client struct {
	base *url.URL
	cred hawk.Credential
	http *http.Client
	now  func() time.Time
}

func newClient(baseURL string, cred hawk.Credential, hc *http.Client) (*client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, xerrors.Wrapf(err, "parse url %q", baseURL)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, xerrors.Newf("url %q must be http(s)://host[:port]", baseURL)
	}
	return &client{base: u, cred: cred, http: hc, now: time.Now}, nil
}

// signingPort is the port the server will see, explicit or by scheme.
func (c *client) signingPort() int {
	if p := c.base.Port(); p != "" {
		n, _ := strconv.Atoi(p)
		return n
	}
	if c.base.Scheme == "https" {
		return 443
	}
	return 80
}

func (c *client) post(ctx context.Context, path string, body []byte, out any) error {
	L := log.FromContext(ctx)
	target := c.base.JoinPath(path)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.String(), bytes.NewReader(body))
	if err != nil {
		return xerrors.Wrap(err, "build request")
	}

	n, err := hawk.NewNonce()
	if err != nil {
		return xerrors.Wrap(err, "generate nonce")
	}
	// sign what goes on the request line, a base without a path joins to
	// a relative one
	authz, err := hawk.Sign(c.cred, hawk.SignRequest{
		Method:      http.MethodPost,
		Host:        c.base.Hostname(),
		Port:        c.signingPort(),
		Resource:    req.URL.RequestURI(),
		ContentType: contentType,
		Body:        body,
	}, c.now(), n)
	if err != nil {
		return xerrors.Wrap(err, "sign request")
	}

	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", authz)

	L.Debug(ctx, "sending", "url", target.String(), "bytes", len(body))
	resp, err := c.http.Do(req)
	if err != nil {
		return xerrors.Wrapf(err, "POST %s", target.Redacted())
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return xerrors.Wrap(err, "read response")
	}
	L.Debug(ctx, "response", "status", resp.StatusCode, "request_id", resp.Header.Get("X-Request-Id"))

	if resp.StatusCode/100 != 2 {
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &e) == nil && e.Error != "" {
			return fmt.Errorf("server answered %d: %s", resp.StatusCode, e.Error)
		}
		return fmt.Errorf("server answered %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return xerrors.Wrap(err, "decode response")
	}
	return nil
}
