package channel

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/wirechat/wirechat/session"
)

func testSession() *session.Session {
	s := session.New()
	s.UserID = 42
	s.ClientID = "abc123"
	s.Channel = "p_42"
	s.SetDTSG("AQz")
	s.Revision = 1000123
	return s
}

func newTestChannel(t *testing.T, handler http.HandlerFunc) (*Channel, *session.Session) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	sess := testSession()
	ch := New(Config{
		HTTPClient: server.Client(),
		Session:    sess,
		PullURL:    server.URL + "/pull",
		PingURL:    server.URL + "/active_ping",
	})
	return ch, sess
}

func TestAcquireRoute(t *testing.T) {
	var gotQuery map[string][]string
	ch, sess := newTestChannel(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Write([]byte(`for (;;);{"lb_info":{"sticky":"st99","pool":"atn2"}}`))
	})

	if err := ch.AcquireRoute(t.Context()); err != nil {
		t.Fatalf("AcquireRoute failed: %v", err)
	}

	if sess.Sticky != "st99" {
		t.Errorf("Sticky = %q, want %q", sess.Sticky, "st99")
	}
	if sess.Pool != "atn2" {
		t.Errorf("Pool = %q, want %q", sess.Pool, "atn2")
	}

	if got := gotQuery["msgs_recv"]; len(got) != 1 || got[0] != "0" {
		t.Errorf("msgs_recv = %v, want [0]", got)
	}
	if got := gotQuery["channel"]; len(got) != 1 || got[0] != "p_42" {
		t.Errorf("channel = %v, want [p_42]", got)
	}
	if got := gotQuery["clientid"]; len(got) != 1 || got[0] != "abc123" {
		t.Errorf("clientid = %v, want [abc123]", got)
	}
	// Requests go through the signer.
	if got := gotQuery["__req"]; len(got) != 1 {
		t.Error("request not signed with __req")
	}
}

func TestAcquireRoute_NoRoutingInfo(t *testing.T) {
	ch, _ := newTestChannel(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`for (;;);{"t":"heartbeat"}`))
	})

	err := ch.AcquireRoute(t.Context())
	if !errors.Is(err, ErrNoRoute) {
		t.Errorf("error = %v, want ErrNoRoute", err)
	}
}

func TestPull_UpdatesCursorAndReturnsEvents(t *testing.T) {
	ch, sess := newTestChannel(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`for (;;);{"seq":"7","ms":[{"type":"qprimer"},{"type":"inbox","unseen":1}]}`))
	})
	sess.Sticky = "st"
	sess.Pool = "atn"

	envelope, err := ch.Pull(t.Context())
	if err != nil {
		t.Fatalf("Pull failed: %v", err)
	}

	if envelope.Seq != "7" {
		t.Errorf("envelope.Seq = %q, want %q", envelope.Seq, "7")
	}
	if sess.Seq() != "7" {
		t.Errorf("session cursor = %q, want %q", sess.Seq(), "7")
	}
	if len(envelope.Events) != 2 {
		t.Fatalf("got %d events, want 2", len(envelope.Events))
	}
	if envelope.Events[1]["type"] != "inbox" {
		t.Errorf("second event type = %v, want inbox", envelope.Events[1]["type"])
	}
}

func TestPull_CarriesStickyAndPool(t *testing.T) {
	var gotQuery map[string][]string
	ch, sess := newTestChannel(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Write([]byte(`for (;;);{"seq":"1"}`))
	})
	sess.Sticky = "st55"
	sess.Pool = "pool9"

	if _, err := ch.Pull(t.Context()); err != nil {
		t.Fatalf("Pull failed: %v", err)
	}
	if got := gotQuery["sticky_token"]; len(got) != 1 || got[0] != "st55" {
		t.Errorf("sticky_token = %v, want [st55]", got)
	}
	if got := gotQuery["sticky_pool"]; len(got) != 1 || got[0] != "pool9" {
		t.Errorf("sticky_pool = %v, want [pool9]", got)
	}
}

func TestPull_MissingSeqKeepsPreviousCursor(t *testing.T) {
	responses := []string{
		`for (;;);{"seq":"5","ms":[]}`,
		`for (;;);{"ms":[]}`,
	}
	var call int
	ch, sess := newTestChannel(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(responses[call]))
		call++
	})

	if _, err := ch.Pull(t.Context()); err != nil {
		t.Fatalf("first Pull failed: %v", err)
	}
	if sess.Seq() != "5" {
		t.Fatalf("cursor = %q after first pull, want %q", sess.Seq(), "5")
	}

	envelope, err := ch.Pull(t.Context())
	if err != nil {
		t.Fatalf("second Pull failed: %v", err)
	}
	if sess.Seq() != "5" {
		t.Errorf("cursor = %q after seq-less pull, want unchanged %q", sess.Seq(), "5")
	}
	if envelope.Seq != "5" {
		t.Errorf("envelope.Seq = %q, want %q", envelope.Seq, "5")
	}
}

func TestPull_FirstPullWithoutSeqDefaultsToSentinel(t *testing.T) {
	ch, sess := newTestChannel(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`for (;;);{"ms":[]}`))
	})

	envelope, err := ch.Pull(t.Context())
	if err != nil {
		t.Fatalf("Pull failed: %v", err)
	}
	if envelope.Seq != "0" {
		t.Errorf("envelope.Seq = %q, want sentinel %q", envelope.Seq, "0")
	}
	if sess.Seq() != "0" {
		t.Errorf("cursor = %q, want sentinel %q", sess.Seq(), "0")
	}
}

func TestPull_NumericSeq(t *testing.T) {
	ch, sess := newTestChannel(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`for (;;);{"seq":12,"ms":[]}`))
	})

	if _, err := ch.Pull(t.Context()); err != nil {
		t.Fatalf("Pull failed: %v", err)
	}
	if sess.Seq() != "12" {
		t.Errorf("cursor = %q, want %q", sess.Seq(), "12")
	}
}

func TestPull_CursorMonotonicAcrossPulls(t *testing.T) {
	responses := []string{
		`for (;;);{"seq":"1","ms":[]}`,
		`for (;;);{"seq":"2","ms":[]}`,
		`for (;;);{"seq":"3","ms":[]}`,
	}
	var call int
	ch, sess := newTestChannel(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(responses[call]))
		call++
	})

	prev := 0
	for i := 0; i < 3; i++ {
		if _, err := ch.Pull(t.Context()); err != nil {
			t.Fatalf("Pull %d failed: %v", i, err)
		}
		cur, err := strconv.Atoi(sess.Seq())
		if err != nil {
			t.Fatalf("cursor %q is not numeric: %v", sess.Seq(), err)
		}
		if cur < prev {
			t.Errorf("cursor went backwards: %d -> %d", prev, cur)
		}
		prev = cur
	}
}

func TestPull_BadStatusIsError(t *testing.T) {
	ch, _ := newTestChannel(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	if _, err := ch.Pull(t.Context()); err == nil {
		t.Error("expected error for 503 response, got nil")
	}
}

func TestPing(t *testing.T) {
	var gotQuery map[string][]string
	ch, sess := newTestChannel(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Write([]byte(`for (;;);{"t":"pong"}`))
	})
	sess.Sticky = "st"

	if err := ch.Ping(t.Context()); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
	if got := gotQuery["uid"]; len(got) != 1 || got[0] != "42" {
		t.Errorf("uid = %v, want [42]", got)
	}
	if got := gotQuery["sticky"]; len(got) != 1 || got[0] != "st" {
		t.Errorf("sticky = %v, want [st]", got)
	}
}
