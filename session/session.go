// Package session holds the identity of a logged-in web chat session
// and decorates outgoing requests with the counters and security tokens
// the service expects from its own web client.
package session

import (
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
)

// Session is the state established by a successful login. It is either
// fully populated (after login or a session restore) or empty; callers
// never observe a partially filled session.
//
// Session is not safe for concurrent use. The client drives all network
// activity from a single logical call chain, so the request counter and
// sequence cursor have exactly one writer.
type Session struct {
	// UserID is the numeric account id, read from the identity cookie.
	UserID int64
	// ClientID is the pseudo-random instance id generated at login and
	// echoed on channel requests.
	ClientID string
	// Channel is the per-user channel identifier ("p_<uid>").
	Channel string
	// DTSG is the page-embedded anti-forgery token required on
	// state-changing requests.
	DTSG string
	// TTStamp is the security token derived from DTSG (see SetDTSG).
	TTStamp string
	// LogoutToken is the "h" value needed by the logout form.
	LogoutToken string
	// Revision is the client revision number scraped from page metadata.
	Revision int64
	// Sticky and Pool are the long-poll routing tokens assigned by the
	// server; empty outside a listening session.
	Sticky string
	Pool   string

	jar        http.CookieJar
	reqCounter int64
	seq        string
}

// New returns an empty session with a fresh cookie jar.
func New() *Session {
	s := &Session{}
	s.Reset()
	return s
}

// Reset returns the session to its logged-out state: all identity
// fields cleared, the counter back at 1, the cursor at "0", and a new
// empty cookie jar.
func (s *Session) Reset() {
	jar, _ := cookiejar.New(nil) // only errors on bad options
	*s = Session{
		jar:        jar,
		reqCounter: 1,
		seq:        "0",
	}
}

// Populated reports whether the session carries a logged-in identity.
func (s *Session) Populated() bool {
	return s.UserID != 0 && s.DTSG != ""
}

// Jar returns the cookie jar backing this session. The transport must
// use this jar so login cookies persist across requests.
func (s *Session) Jar() http.CookieJar {
	return s.jar
}

// SetDTSG stores the anti-forgery token and derives the ttstamp
// security token from it: the decimal character code of every byte of
// the token, concatenated, with a constant "2" appended. This mirrors
// the derivation the official web client performs in JavaScript.
func (s *Session) SetDTSG(token string) {
	s.DTSG = token
	ttstamp := ""
	for _, c := range token {
		ttstamp += strconv.Itoa(int(c))
	}
	s.TTStamp = ttstamp + "2"
}

// Seq returns the current sequence cursor.
func (s *Session) Seq() string {
	return s.seq
}

// SetSeq advances the sequence cursor. The empty string is stored as
// the sentinel "0".
func (s *Session) SetSeq(seq string) {
	if seq == "" {
		seq = "0"
	}
	s.seq = seq
}

// Counter returns the current request counter without consuming it.
func (s *Session) Counter() int64 {
	return s.reqCounter
}

// BumpCounter consumes one request id without signing a form. Used for
// the raw login posts that happen before the session is populated.
func (s *Session) BumpCounter() {
	s.reqCounter++
}

// Sign augments form with the per-request fields the service requires:
// the base-36 request counter ("__req") and the sequence cursor
// ("seq"), plus the fixed identity, revision and security fields once
// the session is populated. The counter is incremented as a side
// effect. The input is not modified; a copy is returned.
func (s *Session) Sign(form url.Values) url.Values {
	signed := url.Values{}
	if s.Populated() {
		signed.Set("__rev", strconv.FormatInt(s.Revision, 10))
		signed.Set("__user", strconv.FormatInt(s.UserID, 10))
		signed.Set("__a", "1")
		signed.Set("ttstamp", s.TTStamp)
		signed.Set("fb_dtsg", s.DTSG)
	}
	for key, values := range form {
		for _, v := range values {
			signed.Add(key, v)
		}
	}
	signed.Set("__req", strconv.FormatInt(s.reqCounter, 36))
	signed.Set("seq", s.seq)
	s.reqCounter++
	return signed
}
