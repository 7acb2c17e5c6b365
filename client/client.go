// Package client implements a client for the Messenger browser chat.
// There is no official API: the client emulates a logged-in web
// session, reproducing the handshake, payload shape and long-poll
// protocol of the official web client.
package client

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/wirechat/wirechat/channel"
	"github.com/wirechat/wirechat/event"
	"github.com/wirechat/wirechat/internal/config"
	"github.com/wirechat/wirechat/internal/logging"
	"github.com/wirechat/wirechat/internal/wire"
	"github.com/wirechat/wirechat/session"
)

// Endpoints holds the service URLs the client talks to. The defaults
// are the production endpoints of the web client; tests point them at
// a local server.
type Endpoints struct {
	Base       string
	Mobile     string
	Login      string
	SaveDevice string
	Checkpoint string
	Send       string
	Threads    string
	ThreadSync string
	Messages   string
	ReadStatus string
	Delivered  string
	MarkSeen   string
	Search     string
	Upload     string
	UserInfo   string
	AllUsers   string
	Connect    string
	RemoveUser string
	Logout     string
	Pull       string
	Ping       string
}

// DefaultEndpoints returns the production endpoints.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		Base:       "https://www.facebook.com",
		Mobile:     "https://m.facebook.com/",
		Login:      "https://m.facebook.com/login.php?login_attempt=1",
		SaveDevice: "https://m.facebook.com/login/save-device/cancel/",
		Checkpoint: "https://m.facebook.com/login/checkpoint/",
		Send:       "https://www.facebook.com/messaging/send/",
		Threads:    "https://www.facebook.com/ajax/mercury/threadlist_info.php",
		ThreadSync: "https://www.facebook.com/ajax/mercury/thread_sync.php",
		Messages:   "https://www.facebook.com/ajax/mercury/thread_info.php",
		ReadStatus: "https://www.facebook.com/ajax/mercury/change_read_status.php",
		Delivered:  "https://www.facebook.com/ajax/mercury/delivery_receipts.php",
		MarkSeen:   "https://www.facebook.com/ajax/mercury/mark_seen.php",
		Search:     "https://www.facebook.com/ajax/typeahead/search.php",
		Upload:     "https://upload.facebook.com/ajax/mercury/upload.php",
		UserInfo:   "https://www.facebook.com/chat/user_info/",
		AllUsers:   "https://www.facebook.com/chat/user_info_all",
		Connect:    "https://www.facebook.com/ajax/add_friend/action.php?dpr=1",
		RemoveUser: "https://www.facebook.com/chat/remove_participants/",
		Logout:     "https://www.facebook.com/logout.php",
		Pull:       channel.DefaultPullURL,
		Ping:       channel.DefaultPingURL,
	}
}

// CodeSupplier provides the one-time verification code during the
// interactive-verification login flow. Implementations may prompt a
// terminal, read a TOTP generator, or return a pre-supplied value.
type CodeSupplier func() (string, error)

// Client is a stateful handle on one chat account. It is not safe for
// concurrent use: all operations are synchronous and share the
// session's request counter and cursor.
type Client struct {
	endpoints  Endpoints
	baseSite   *url.URL
	httpClient *http.Client
	userAgent  string

	session    *session.Session
	channel    *channel.Channel
	dispatcher *event.Dispatcher
	normalizer *event.Normalizer

	maxLoginAttempts int
	retryBackoff     time.Duration
	codeSupplier     CodeSupplier

	// limiter guards the blocking listen loop against spinning when
	// the server answers pull requests immediately with errors.
	limiter *rate.Limiter

	listening bool

	// threads accumulates every thread seen during this process,
	// deduplicated by thread id.
	threads   []Thread
	threadIDs map[string]bool

	authLog    *slog.Logger
	listenLog  *slog.Logger
	sessionLog *slog.Logger
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client. Its cookie jar is replaced
// with the session's jar so login cookies persist across requests.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithEndpoints overrides the service endpoints. Used by tests.
func WithEndpoints(endpoints Endpoints) Option {
	return func(c *Client) {
		c.endpoints = endpoints
	}
}

// WithUserAgent pins the User-Agent header instead of picking one
// from the default pool.
func WithUserAgent(userAgent string) Option {
	return func(c *Client) {
		c.userAgent = userAgent
	}
}

// WithTimeout sets the per-request timeout. Default is 30 seconds,
// matching the long-poll hold time of the official client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithMaxLoginAttempts bounds login retries. Default is 5.
func WithMaxLoginAttempts(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxLoginAttempts = n
		}
	}
}

// WithRetryBackoff sets the pause between failed login attempts.
func WithRetryBackoff(d time.Duration) Option {
	return func(c *Client) {
		c.retryBackoff = d
	}
}

// WithCodeSupplier installs the source of interactive-verification
// codes. Without one, a login that hits the verification flow fails.
func WithCodeSupplier(supplier CodeSupplier) Option {
	return func(c *Client) {
		c.codeSupplier = supplier
	}
}

// New creates a client. The returned client is logged out; call Login
// or RestoreSession before using any other operation.
func New(opts ...Option) (*Client, error) {
	sess := session.New()

	c := &Client{
		endpoints: DefaultEndpoints(),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		userAgent:        config.PickUserAgent(),
		session:          sess,
		dispatcher:       event.NewDispatcher(logging.Event()),
		normalizer:       event.NewNormalizer(logging.Event()),
		maxLoginAttempts: 5,
		retryBackoff:     time.Second,
		limiter:          rate.NewLimiter(rate.Every(500*time.Millisecond), 1),
		threadIDs:        make(map[string]bool),
		authLog:          logging.Auth(),
		listenLog:        logging.Listen(),
		sessionLog:       logging.Session(),
	}
	for _, opt := range opts {
		opt(c)
	}

	baseSite, err := url.Parse(c.endpoints.Base)
	if err != nil {
		return nil, fmt.Errorf("invalid base endpoint %q: %w", c.endpoints.Base, err)
	}
	c.baseSite = baseSite

	// All requests must share the session's cookie jar.
	c.httpClient.Jar = sess.Jar()

	c.channel = channel.New(channel.Config{
		HTTPClient: c.httpClient,
		Session:    sess,
		Header:     c.header(),
		PullURL:    c.endpoints.Pull,
		PingURL:    c.endpoints.Ping,
		Logger:     logging.Channel(),
	})
	return c, nil
}

// Session returns the underlying session store.
func (c *Client) Session() *session.Session {
	return c.session
}

// Subscribe registers a handler for the given event kind. Handlers
// run synchronously on the listening goroutine, in registration order.
func (c *Client) Subscribe(kind event.Kind, handler event.Handler) {
	c.dispatcher.Subscribe(kind, handler)
}

// Dispatcher returns the event dispatcher for advanced wiring.
func (c *Client) Dispatcher() *event.Dispatcher {
	return c.dispatcher
}

// header returns the fixed headers sent on every request.
func (c *Client) header() http.Header {
	h := http.Header{}
	h.Set("Content-Type", "application/x-www-form-urlencoded")
	h.Set("Referer", c.endpoints.Base)
	h.Set("Origin", c.endpoints.Base)
	h.Set("User-Agent", c.userAgent)
	h.Set("Connection", "keep-alive")
	return h
}

// response captures what outcome detection needs from an HTTP
// exchange: the body, the status, and the final URL after redirects.
type response struct {
	body     string
	status   int
	finalURL string
}

// ok reports whether the exchange completed with a 2xx status.
func (r *response) ok() bool {
	return r.status >= 200 && r.status < 300
}

func (c *Client) do(req *http.Request) (*response, error) {
	for key, values := range c.header() {
		if req.Header.Get(key) != "" {
			continue
		}
		for _, v := range values {
			req.Header.Set(key, v)
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
	return &response{
		body:     string(body),
		status:   resp.StatusCode,
		finalURL: resp.Request.URL.String(),
	}, nil
}

// get issues a signed GET: the form is passed through the session
// signer and sent as the query string.
func (c *Client) get(ctx context.Context, rawURL string, form url.Values) (*response, error) {
	query := c.session.Sign(form)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, withQuery(rawURL, query), nil)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

// post issues a signed form POST.
func (c *Client) post(ctx context.Context, rawURL string, form url.Values) (*response, error) {
	signed := c.session.Sign(form)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(signed.Encode()))
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

// cleanGet issues an unsigned GET. Used before the session is
// populated (login pages) where signing would be meaningless.
func (c *Client) cleanGet(ctx context.Context, rawURL string, query url.Values) (*response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, withQuery(rawURL, query), nil)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

// cleanPost issues an unsigned form POST but still consumes a request
// id, keeping the counter in step with what the server has observed.
func (c *Client) cleanPost(ctx context.Context, rawURL string, form url.Values) (*response, error) {
	c.session.BumpCounter()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

// decode unmarshals a JSON response body into v.
func decode(r *response, v any) error {
	return wire.Decode([]byte(r.body), v)
}

func withQuery(rawURL string, query url.Values) string {
	if len(query) == 0 {
		return rawURL
	}
	sep := "?"
	if strings.Contains(rawURL, "?") {
		sep = "&"
	}
	return rawURL + sep + query.Encode()
}
