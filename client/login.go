package client

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/wirechat/wirechat/internal/htmlform"
	"github.com/wirechat/wirechat/session"
)

var (
	// ErrMissingCredentials is returned by Login when the email or
	// password is empty.
	ErrMissingCredentials = errors.New("email and password are required")

	// ErrLoginRejected is returned when every login attempt failed.
	ErrLoginRejected = errors.New("login rejected")

	// ErrVerificationRequired is returned when the server demands an
	// interactive verification code but no CodeSupplier is installed.
	ErrVerificationRequired = errors.New("verification code required but no supplier installed")
)

// checkpointStep names a stage of the interactive verification
// wizard. The wizard walks the stages in order, bailing out as soon
// as the server redirects to the home page.
type checkpointStep int

const (
	checkpointSubmitCode checkpointStep = iota
	checkpointSaveDevice
	checkpointContinue
	checkpointThisWasMe
	checkpointSaveDeviceAgain
	checkpointDone
)

// Login authenticates with the given credentials. Failed attempts are
// retried up to the configured maximum; a rejected final attempt
// yields ErrLoginRejected. A verification challenge is answered with
// the installed CodeSupplier.
func (c *Client) Login(ctx context.Context, email, password string) error {
	if email == "" || password == "" {
		return ErrMissingCredentials
	}

	for attempt := 1; attempt <= c.maxLoginAttempts; attempt++ {
		c.authLog.Info("attempting login", "attempt", attempt, "max", c.maxLoginAttempts)

		ok, err := c.attemptLogin(ctx, email, password)
		if err != nil {
			return fmt.Errorf("login attempt %d: %w", attempt, err)
		}
		if ok {
			c.authLog.Info("login succeeded", "uid", c.session.UserID)
			return nil
		}

		c.authLog.Warn("login attempt failed", "attempt", attempt)
		if attempt < c.maxLoginAttempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.retryBackoff):
			}
		}
	}
	return fmt.Errorf("%w after %d attempts", ErrLoginRejected, c.maxLoginAttempts)
}

// attemptLogin runs one pass of the handshake. It reports success
// without error when the server redirected to the home page, and
// failure without error when the credentials were refused (so the
// caller can retry).
func (c *Client) attemptLogin(ctx context.Context, email, password string) (bool, error) {
	c.session.Reset()
	c.httpClient.Jar = c.session.Jar()

	page, err := c.cleanGet(ctx, c.endpoints.Mobile, nil)
	if err != nil {
		return false, fmt.Errorf("fetching login page: %w", err)
	}

	form, err := htmlform.Inputs(page.body)
	if err != nil {
		return false, fmt.Errorf("parsing login page: %w", err)
	}

	values := url.Values{}
	for name, value := range form {
		values.Set(name, value)
	}
	values.Set("email", email)
	values.Set("pass", password)
	values.Set("login", "Log In")

	resp, err := c.cleanPost(ctx, c.endpoints.Login, values)
	if err != nil {
		return false, fmt.Errorf("submitting credentials: %w", err)
	}

	if strings.Contains(resp.finalURL, "checkpoint") &&
		strings.Contains(strings.ToLower(resp.body), `id="approvals_code"`) {
		resp, err = c.runCheckpoint(ctx, resp)
		if err != nil {
			return false, err
		}
	}

	if strings.Contains(resp.finalURL, "save-device") {
		resp, err = c.cleanGet(ctx, c.endpoints.SaveDevice, nil)
		if err != nil {
			return false, fmt.Errorf("dismissing save-device prompt: %w", err)
		}
	}

	if !strings.Contains(resp.finalURL, "home") {
		return false, nil
	}

	if err := c.deriveSession(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// runCheckpoint walks the interactive verification wizard. Every step
// posts to the checkpoint endpoint and checks whether the server has
// let the session through yet.
func (c *Client) runCheckpoint(ctx context.Context, resp *response) (*response, error) {
	if c.codeSupplier == nil {
		return nil, ErrVerificationRequired
	}
	code, err := c.codeSupplier()
	if err != nil {
		return nil, fmt.Errorf("obtaining verification code: %w", err)
	}

	dtsg, err := htmlform.Input(resp.body, "fb_dtsg")
	if err != nil {
		return nil, fmt.Errorf("parsing checkpoint page: %w", err)
	}
	nh, err := htmlform.Input(resp.body, "nh")
	if err != nil {
		return nil, fmt.Errorf("parsing checkpoint page: %w", err)
	}

	for step := checkpointSubmitCode; step != checkpointDone; step++ {
		form := url.Values{}
		form.Set("fb_dtsg", dtsg)
		form.Set("nh", nh)

		switch step {
		case checkpointSubmitCode:
			c.authLog.Info("submitting verification code")
			form.Set("approvals_code", code)
			form.Set("submit[Submit Code]", "Submit Code")
			form.Set("codes_submitted", "0")
		case checkpointSaveDevice:
			c.authLog.Info("saving device")
			form.Set("name_action_selected", "save_device")
			form.Set("submit[Continue]", "Continue")
		case checkpointContinue:
			c.authLog.Info("continuing checkup flow")
			form.Set("submit[Continue]", "Continue")
		case checkpointThisWasMe:
			c.authLog.Info("confirming login attempt")
			form.Set("submit[This was me]", "This Was Me")
		case checkpointSaveDeviceAgain:
			c.authLog.Info("saving device again")
			form.Set("name_action_selected", "save_device")
			form.Set("submit[Continue]", "Continue")
		}

		resp, err = c.cleanPost(ctx, c.endpoints.Checkpoint, form)
		if err != nil {
			return nil, fmt.Errorf("checkpoint step %d: %w", step, err)
		}
		if strings.Contains(resp.finalURL, "home") {
			return resp, nil
		}
	}
	return resp, nil
}

// deriveSession reads the identity cookie and scrapes the chat page
// for the tokens every later request needs.
func (c *Client) deriveSession(ctx context.Context) error {
	var uid int64
	for _, cookie := range c.session.Jar().Cookies(c.baseSite) {
		if cookie.Name == session.IdentityCookie {
			parsed, err := strconv.ParseInt(cookie.Value, 10, 64)
			if err != nil {
				return fmt.Errorf("malformed identity cookie %q: %w", cookie.Value, err)
			}
			uid = parsed
		}
	}
	if uid == 0 {
		return errors.New("no identity cookie after login")
	}

	page, err := c.cleanGet(ctx, c.endpoints.Base, nil)
	if err != nil {
		return fmt.Errorf("fetching chat page: %w", err)
	}

	dtsg, err := htmlform.Input(page.body, "fb_dtsg")
	if err != nil {
		return fmt.Errorf("chat page carries no request token: %w", err)
	}

	c.session.UserID = uid
	c.session.SetDTSG(dtsg)
	c.session.ClientID = strconv.FormatInt(int64(rand.IntN(1<<31)), 16)
	c.session.Channel = "p_" + strconv.FormatInt(uid, 10)

	// The logout token and the revision are useful but not essential;
	// some page variants omit them.
	if h, err := htmlform.Input(page.body, "h"); err == nil {
		c.session.LogoutToken = h
	}
	if rev, ok := scrapeRevision(page.body); ok {
		c.session.Revision = rev
	}

	c.sessionLog.Debug("session derived",
		"uid", uid, "channel", c.session.Channel, "revision", c.session.Revision)
	return nil
}

// scrapeRevision extracts the client revision number from the page's
// embedded metadata blob.
func scrapeRevision(body string) (int64, bool) {
	_, rest, found := strings.Cut(body, `"revision":`)
	if !found {
		return 0, false
	}
	value, _, _ := strings.Cut(rest, ",")
	rev, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return 0, false
	}
	return rev, true
}

// SaveSession persists the session cookies to path. The saved file is
// enough to restore the session later without credentials.
func (c *Client) SaveSession(path string) error {
	return c.session.SaveCookies(path, c.baseSite)
}

// RestoreSession loads cookies from path and revalidates them against
// the service. It fails if the cookies are stale or the file does not
// identify an account.
func (c *Client) RestoreSession(ctx context.Context, path string) error {
	c.session.Reset()
	if err := c.session.LoadCookies(path, c.baseSite); err != nil {
		return err
	}
	c.httpClient.Jar = c.session.Jar()
	if err := c.deriveSession(ctx); err != nil {
		return fmt.Errorf("restored cookies are stale: %w", err)
	}
	return nil
}

// Logout ends the server-side session and clears all local state.
func (c *Client) Logout(ctx context.Context) error {
	form := url.Values{}
	form.Set("ref", "mb")
	form.Set("h", c.session.LogoutToken)

	resp, err := c.get(ctx, c.endpoints.Logout, form)
	if err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	if !resp.ok() {
		return fmt.Errorf("logout: unexpected status %d", resp.status)
	}

	c.session.Reset()
	c.httpClient.Jar = c.session.Jar()
	c.authLog.Info("logged out")
	return nil
}
