// Package channel implements the long-poll pull protocol the web chat
// uses for real-time delivery. A channel first acquires a "sticky"
// routing token binding it to a backend shard, then issues repeated
// pull requests that the server holds open until events arrive.
package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/wirechat/wirechat/internal/wire"
	"github.com/wirechat/wirechat/session"
)

// Default endpoints used by the official web client. The hostnames are
// load-balancer entry points; the sticky/pool tokens returned by the
// first pull bind subsequent requests to a specific shard behind them.
const (
	DefaultPullURL = "https://0-edge-chat.facebook.com/pull"
	DefaultPingURL = "https://0-channel-proxy-06-ash2.facebook.com/active_ping"
)

// ErrNoRoute is returned by AcquireRoute when the server response
// carries no routing info.
var ErrNoRoute = errors.New("pull response carries no routing info")

// Config configures a Channel.
type Config struct {
	// HTTPClient issues the pull requests. Its timeout bounds each
	// long-poll round trip. If nil, http.DefaultClient is used.
	HTTPClient *http.Client
	// Session supplies the signing state and receives sticky/pool and
	// cursor updates.
	Session *session.Session
	// Header is applied to every request (user agent, referer).
	Header http.Header
	// PullURL and PingURL override the default endpoints. Used by tests.
	PullURL string
	PingURL string
	// Logger is used for protocol-level debug logging. If nil,
	// slog.Default() is used.
	Logger *slog.Logger
}

// Channel issues pull requests against the sticky routing endpoint and
// tracks the session's sequence cursor. It is not safe for concurrent
// use; the listener loop drives it from a single goroutine.
type Channel struct {
	httpClient *http.Client
	session    *session.Session
	header     http.Header
	pullURL    string
	pingURL    string
	logger     *slog.Logger
}

// New creates a channel from config.
func New(cfg Config) *Channel {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	pullURL := cfg.PullURL
	if pullURL == "" {
		pullURL = DefaultPullURL
	}
	pingURL := cfg.PingURL
	if pingURL == "" {
		pingURL = DefaultPingURL
	}
	return &Channel{
		httpClient: httpClient,
		session:    cfg.Session,
		header:     cfg.Header,
		pullURL:    pullURL,
		pingURL:    pingURL,
		logger:     logger,
	}
}

// PullEnvelope is the decoded payload of one long-poll response: zero
// or more raw events plus the sequence cursor in effect after it.
type PullEnvelope struct {
	// Seq is the cursor after applying this response.
	Seq string
	// Events are the raw event records, in server order.
	Events []map[string]any
}

// AcquireRoute issues an initial pull with a zero received-count to
// obtain the sticky/pool routing tokens, and stores them on the
// session. Fails with ErrNoRoute if the response lacks routing info.
func (c *Channel) AcquireRoute(ctx context.Context) error {
	payload, err := c.get(ctx, c.pullURL, url.Values{
		"msgs_recv": {"0"},
		"channel":   {c.session.Channel},
		"clientid":  {c.session.ClientID},
	})
	if err != nil {
		return fmt.Errorf("acquire route: %w", err)
	}

	lbInfo, ok := payload["lb_info"].(map[string]any)
	if !ok {
		return ErrNoRoute
	}
	sticky, _ := lbInfo["sticky"].(string)
	pool, _ := lbInfo["pool"].(string)
	if sticky == "" {
		return ErrNoRoute
	}

	c.session.Sticky = sticky
	c.session.Pool = pool
	c.logger.Debug("acquired long-poll route", "sticky", sticky, "pool", pool)
	return nil
}

// Pull issues one long-poll request carrying the current sticky/pool
// and returns the decoded envelope. The session's sequence cursor is
// advanced when the response carries one; a response without a cursor
// leaves it unchanged. Transport errors are recoverable: the caller
// may simply pull again.
func (c *Channel) Pull(ctx context.Context) (*PullEnvelope, error) {
	payload, err := c.get(ctx, c.pullURL, url.Values{
		"msgs_recv":    {"0"},
		"sticky_token": {c.session.Sticky},
		"sticky_pool":  {c.session.Pool},
		"clientid":     {c.session.ClientID},
	})
	if err != nil {
		return nil, fmt.Errorf("pull: %w", err)
	}

	if seq := seqString(payload["seq"]); seq != "" {
		c.session.SetSeq(seq)
	}

	envelope := &PullEnvelope{Seq: c.session.Seq()}
	if ms, ok := payload["ms"].([]any); ok {
		envelope.Events = make([]map[string]any, 0, len(ms))
		for _, m := range ms {
			if raw, ok := m.(map[string]any); ok {
				envelope.Events = append(envelope.Events, raw)
			}
		}
	}
	return envelope, nil
}

// Ping sends a liveness ping binding the client to its channel. Pings
// are best effort; the listener ignores failures.
func (c *Channel) Ping(ctx context.Context) error {
	_, err := c.get(ctx, c.pingURL, url.Values{
		"channel":    {c.session.Channel},
		"clientid":   {c.session.ClientID},
		"partition":  {"-2"},
		"cap":        {"0"},
		"uid":        {strconv.FormatInt(c.session.UserID, 10)},
		"sticky":     {c.session.Sticky},
		"viewer_uid": {strconv.FormatInt(c.session.UserID, 10)},
	})
	if err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// get issues a signed GET and decodes the JSON response body.
func (c *Channel) get(ctx context.Context, rawURL string, form url.Values) (map[string]any, error) {
	query := c.session.Sign(form)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL+"?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	for key, values := range c.header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}

	var payload map[string]any
	if err := wire.Decode(body, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// seqString coerces the cursor value, which the server serializes
// either as a string or a bare number.
func seqString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case json.Number:
		return s.String()
	default:
		return ""
	}
}
