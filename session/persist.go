package session

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// IdentityCookie is the cookie that carries the logged-in user id.
// A persisted session without it cannot be restored.
const IdentityCookie = "c_user"

// ErrNoIdentityCookie is returned by LoadCookies when the persisted
// session lacks the identity cookie.
var ErrNoIdentityCookie = errors.New("session file has no identity cookie")

// persistedSession is the on-disk shape of a saved session: a flat
// name/value cookie map.
type persistedSession struct {
	Cookies map[string]string `yaml:"cookies"`
}

// SaveCookies writes the session's cookies for the given site to path
// as YAML. Any existing file is overwritten. The file is created with
// owner-only permissions since the cookies grant full account access.
func (s *Session) SaveCookies(path string, site *url.URL) error {
	cookies := make(map[string]string)
	for _, c := range s.jar.Cookies(site) {
		cookies[c.Name] = c.Value
	}

	data, err := yaml.Marshal(persistedSession{Cookies: cookies})
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write session file %s: %w", path, err)
	}
	return nil
}

// LoadCookies reads a persisted session from path and installs its
// cookies into the session's jar for the given site. It fails with
// ErrNoIdentityCookie if the file does not contain the identity
// cookie; such a file cannot produce a working session.
//
// Loading only restores cookies. The caller must re-run the post-login
// derivation to repopulate the identity fields.
func (s *Session) LoadCookies(path string, site *url.URL) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read session file %s: %w", path, err)
	}

	var saved persistedSession
	if err := yaml.Unmarshal(data, &saved); err != nil {
		return fmt.Errorf("parse session file %s: %w", path, err)
	}
	if saved.Cookies[IdentityCookie] == "" {
		return ErrNoIdentityCookie
	}

	// Install as domain cookies so they also cover the sibling hosts
	// (mobile, upload, channel endpoints) of the same site.
	domain := strings.TrimPrefix(site.Hostname(), "www.")
	cookies := make([]*http.Cookie, 0, len(saved.Cookies))
	for name, value := range saved.Cookies {
		cookies = append(cookies, &http.Cookie{
			Name:   name,
			Value:  value,
			Domain: domain,
			Path:   "/",
		})
	}
	s.jar.SetCookies(site, cookies)
	return nil
}
