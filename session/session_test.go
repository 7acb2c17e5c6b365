package session

import (
	"errors"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

func TestSign_CounterBase36(t *testing.T) {
	s := New()

	first := s.Sign(url.Values{})
	if got := first.Get("__req"); got != "1" {
		t.Errorf("first __req = %q, want %q", got, "1")
	}

	// Burn requests up to counter value 36 so the next id rolls into
	// the second base-36 digit.
	for i := 2; i <= 35; i++ {
		s.Sign(url.Values{})
	}
	next := s.Sign(url.Values{})
	if got := next.Get("__req"); got != "10" {
		t.Errorf("__req at counter 36 = %q, want %q", got, "10")
	}
}

func TestSign_CounterStrictlyIncreases(t *testing.T) {
	s := New()
	for want := int64(1); want <= 5; want++ {
		if s.Counter() != want {
			t.Fatalf("counter = %d, want %d", s.Counter(), want)
		}
		s.Sign(url.Values{})
	}
}

func TestSign_IdentityFieldsOnlyWhenPopulated(t *testing.T) {
	s := New()
	signed := s.Sign(url.Values{"client": {"mercury"}})

	if signed.Get("fb_dtsg") != "" {
		t.Error("unpopulated session must not sign identity fields")
	}
	if signed.Get("client") != "mercury" {
		t.Errorf("client = %q, want %q", signed.Get("client"), "mercury")
	}
	if signed.Get("seq") != "0" {
		t.Errorf("seq = %q, want %q", signed.Get("seq"), "0")
	}

	s.UserID = 42
	s.SetDTSG("AQz")
	s.Revision = 1000123
	signed = s.Sign(url.Values{})

	if signed.Get("__user") != "42" {
		t.Errorf("__user = %q, want %q", signed.Get("__user"), "42")
	}
	if signed.Get("__rev") != "1000123" {
		t.Errorf("__rev = %q, want %q", signed.Get("__rev"), "1000123")
	}
	if signed.Get("__a") != "1" {
		t.Errorf("__a = %q, want %q", signed.Get("__a"), "1")
	}
	if signed.Get("fb_dtsg") != "AQz" {
		t.Errorf("fb_dtsg = %q, want %q", signed.Get("fb_dtsg"), "AQz")
	}
}

func TestSign_DoesNotMutateInput(t *testing.T) {
	s := New()
	form := url.Values{"a": {"b"}}
	s.Sign(form)
	if len(form) != 1 {
		t.Errorf("input form mutated: %v", form)
	}
}

func TestSetDTSG_DerivesTTStamp(t *testing.T) {
	s := New()
	s.SetDTSG("AQz") // 'A'=65 'Q'=81 'z'=122
	if s.TTStamp != "65811222" {
		t.Errorf("TTStamp = %q, want %q", s.TTStamp, "65811222")
	}
}

func TestSeq_EmptyBecomesSentinel(t *testing.T) {
	s := New()
	s.SetSeq("17")
	if s.Seq() != "17" {
		t.Errorf("Seq = %q, want %q", s.Seq(), "17")
	}
	s.SetSeq("")
	if s.Seq() != "0" {
		t.Errorf("Seq after empty set = %q, want %q", s.Seq(), "0")
	}
}

func TestReset_ClearsEverything(t *testing.T) {
	s := New()
	s.UserID = 42
	s.SetDTSG("AQz")
	s.Sticky = "st"
	s.Pool = "atn"
	s.SetSeq("9")
	s.Sign(url.Values{})

	s.Reset()

	if s.Populated() {
		t.Error("session still populated after Reset")
	}
	if s.Counter() != 1 {
		t.Errorf("counter = %d, want 1", s.Counter())
	}
	if s.Seq() != "0" {
		t.Errorf("seq = %q, want %q", s.Seq(), "0")
	}
	if s.Sticky != "" || s.Pool != "" {
		t.Error("sticky/pool not cleared")
	}
}

func TestSaveLoadCookies_RoundTrip(t *testing.T) {
	site, _ := url.Parse("https://www.example.com")
	path := filepath.Join(t.TempDir(), "session.yaml")

	s := New()
	s.Jar().SetCookies(site, []*http.Cookie{
		{Name: "c_user", Value: "100001234567890"},
		{Name: "xs", Value: "secret-token"},
	})
	if err := s.SaveCookies(path, site); err != nil {
		t.Fatalf("SaveCookies failed: %v", err)
	}

	restored := New()
	if err := restored.LoadCookies(path, site); err != nil {
		t.Fatalf("LoadCookies failed: %v", err)
	}

	byName := make(map[string]string)
	for _, c := range restored.Jar().Cookies(site) {
		byName[c.Name] = c.Value
	}
	if byName["c_user"] != "100001234567890" {
		t.Errorf("c_user = %q, want %q", byName["c_user"], "100001234567890")
	}
	if byName["xs"] != "secret-token" {
		t.Errorf("xs = %q, want %q", byName["xs"], "secret-token")
	}

	uid, err := strconv.ParseInt(byName["c_user"], 10, 64)
	if err != nil || uid != 100001234567890 {
		t.Errorf("restored identity cookie does not parse to the user id: %v", err)
	}
}

func TestLoadCookies_MissingIdentityCookie(t *testing.T) {
	site, _ := url.Parse("https://www.example.com")
	path := filepath.Join(t.TempDir(), "session.yaml")
	if err := os.WriteFile(path, []byte("cookies:\n  xs: something\n"), 0600); err != nil {
		t.Fatal(err)
	}

	s := New()
	err := s.LoadCookies(path, site)
	if !errors.Is(err, ErrNoIdentityCookie) {
		t.Errorf("error = %v, want ErrNoIdentityCookie", err)
	}
}

func TestLoadCookies_MissingFile(t *testing.T) {
	site, _ := url.Parse("https://www.example.com")
	s := New()
	if err := s.LoadCookies(filepath.Join(t.TempDir(), "nope.yaml"), site); err == nil {
		t.Error("expected error for missing file, got nil")
	}
}
