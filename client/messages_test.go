package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
)

func apiMux(t *testing.T, path string, handle func(form url.Values) string) (*http.ServeMux, *url.Values) {
	var captured url.Values
	mux := http.NewServeMux()
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		captured = r.PostForm
		if r.Method == http.MethodGet {
			captured = r.URL.Query()
		}
		w.Write([]byte(handle(captured)))
	})
	return mux, &captured
}

func apiEndpoints(base string) Endpoints {
	e := DefaultEndpoints()
	e.Send = base + "/send"
	e.Threads = base + "/threads"
	e.ThreadSync = base + "/sync"
	e.Messages = base + "/messages"
	e.ReadStatus = base + "/read_status"
	e.Delivered = base + "/delivered"
	e.MarkSeen = base + "/seen"
	e.Search = base + "/search"
	e.Upload = base + "/upload"
	e.UserInfo = base + "/user_info"
	e.RemoveUser = base + "/remove"
	return e
}

// newAPITestClient wires a client to an API server with a
// hand-populated session.
func newAPITestClient(t *testing.T, mux *http.ServeMux) *Client {
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	c, err := New(WithEndpoints(apiEndpoints(server.URL)))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	sess := c.Session()
	sess.UserID = 7
	sess.ClientID = "abc123"
	sess.Channel = "p_7"
	sess.SetDTSG("AQzBce")
	return c
}

const sendResponse = `for (;;);{"payload":{"actions":[{"message_id":"mid.999","timestamp":123}]}}`

func TestSendTextToUser(t *testing.T) {
	mux, captured := apiMux(t, "/send", func(url.Values) string { return sendResponse })
	c := newAPITestClient(t, mux)

	id, err := c.SendText(context.Background(), UserThread("55"), "hey")
	if err != nil {
		t.Fatalf("SendText() error: %v", err)
	}
	if id != "mid.999" {
		t.Errorf("message id = %q, want %q", id, "mid.999")
	}

	form := *captured
	if got := form.Get("body"); got != "hey" {
		t.Errorf("body = %q, want %q", got, "hey")
	}
	if got := form.Get("author"); got != "fbid:7" {
		t.Errorf("author = %q, want %q", got, "fbid:7")
	}
	if got := form.Get("other_user_fbid"); got != "55" {
		t.Errorf("other_user_fbid = %q, want %q", got, "55")
	}
	if got := form.Get("specific_to_list[0]"); got != "fbid:55" {
		t.Errorf("specific_to_list[0] = %q, want %q", got, "fbid:55")
	}
	if got := form.Get("specific_to_list[1]"); got != "fbid:7" {
		t.Errorf("specific_to_list[1] = %q, want %q", got, "fbid:7")
	}
	if form.Get("offline_threading_id") == "" {
		t.Error("offline_threading_id missing")
	}
	if form.Get("offline_threading_id") != form.Get("message_id") {
		t.Error("message_id does not match offline_threading_id")
	}
	if !strings.Contains(form.Get("threading_id"), "abc123") {
		t.Errorf("threading_id = %q, want it to embed the client id", form.Get("threading_id"))
	}
	if form.Get("fb_dtsg") != "AQzBce" {
		t.Error("send form not signed with session token")
	}
	if form.Get("thread_fbid") != "" {
		t.Error("thread_fbid set on a direct message")
	}
}

func TestSendTextToGroup(t *testing.T) {
	mux, captured := apiMux(t, "/send", func(url.Values) string { return sendResponse })
	c := newAPITestClient(t, mux)

	if _, err := c.SendText(context.Background(), GroupThread("g9"), "hi all"); err != nil {
		t.Fatalf("SendText() error: %v", err)
	}
	form := *captured
	if got := form.Get("thread_fbid"); got != "g9" {
		t.Errorf("thread_fbid = %q, want %q", got, "g9")
	}
	if form.Get("other_user_fbid") != "" {
		t.Error("other_user_fbid set on a group message")
	}
	if form.Get("specific_to_list[0]") != "" {
		t.Error("specific_to_list set on a group message")
	}
}

func TestSendTextRejected(t *testing.T) {
	mux, _ := apiMux(t, "/send", func(url.Values) string {
		return `for (;;);{"error":1357001,"errorSummary":"not logged in"}`
	})
	c := newAPITestClient(t, mux)

	if _, err := c.SendText(context.Background(), UserThread("55"), "hey"); err == nil {
		t.Fatal("SendText() succeeded on an error response")
	}
}

func TestSendLike(t *testing.T) {
	mux, captured := apiMux(t, "/send", func(url.Values) string { return sendResponse })
	c := newAPITestClient(t, mux)

	if _, err := c.SendLike(context.Background(), UserThread("55"), LikeLarge); err != nil {
		t.Fatalf("SendLike() error: %v", err)
	}
	if got := (*captured).Get("sticker_id"); got != "369239383222810" {
		t.Errorf("sticker_id = %q, want %q", got, "369239383222810")
	}

	if _, err := c.SendLike(context.Background(), UserThread("55"), LikeSize("giant")); err == nil {
		t.Error("SendLike() accepted an unknown size")
	}
}

func TestChangeThreadTitle(t *testing.T) {
	mux, captured := apiMux(t, "/send", func(url.Values) string { return sendResponse })
	c := newAPITestClient(t, mux)

	if err := c.ChangeThreadTitle(context.Background(), GroupThread("g9"), "plans"); err != nil {
		t.Fatalf("ChangeThreadTitle() error: %v", err)
	}
	form := *captured
	if got := form.Get("log_message_type"); got != "log:thread-name" {
		t.Errorf("log_message_type = %q, want %q", got, "log:thread-name")
	}
	if got := form.Get("log_message_data[name]"); got != "plans" {
		t.Errorf("log_message_data[name] = %q, want %q", got, "plans")
	}
}

func TestAddUsersToGroup(t *testing.T) {
	mux, captured := apiMux(t, "/send", func(url.Values) string { return sendResponse })
	c := newAPITestClient(t, mux)

	if err := c.AddUsersToGroup(context.Background(), "g9", "11", "22"); err != nil {
		t.Fatalf("AddUsersToGroup() error: %v", err)
	}
	form := *captured
	if got := form.Get("log_message_data[added_participants][0]"); got != "fbid:11" {
		t.Errorf("added participant 0 = %q, want %q", got, "fbid:11")
	}
	if got := form.Get("log_message_data[added_participants][1]"); got != "fbid:22" {
		t.Errorf("added participant 1 = %q, want %q", got, "fbid:22")
	}
	if got := form.Get("log_message_type"); got != "log:subscribe" {
		t.Errorf("log_message_type = %q, want %q", got, "log:subscribe")
	}
}

func TestMarkAsRead(t *testing.T) {
	mux, captured := apiMux(t, "/read_status", func(url.Values) string { return "for (;;);{}" })
	c := newAPITestClient(t, mux)

	if err := c.MarkAsRead(context.Background(), "t1"); err != nil {
		t.Fatalf("MarkAsRead() error: %v", err)
	}
	form := *captured
	if got := form.Get("ids[t1]"); got != "true" {
		t.Errorf("ids[t1] = %q, want %q", got, "true")
	}
	if got := form.Get("shouldSendReadReceipt"); got != "true" {
		t.Errorf("shouldSendReadReceipt = %q, want %q", got, "true")
	}
	if form.Get("watermarkTimestamp") == "" {
		t.Error("watermarkTimestamp missing")
	}
}

func TestMarkAsDelivered(t *testing.T) {
	mux, captured := apiMux(t, "/delivered", func(url.Values) string { return "for (;;);{}" })
	c := newAPITestClient(t, mux)

	if err := c.MarkAsDelivered(context.Background(), "t1", "mid.5"); err != nil {
		t.Fatalf("MarkAsDelivered() error: %v", err)
	}
	form := *captured
	if got := form.Get("message_ids[0]"); got != "mid.5" {
		t.Errorf("message_ids[0] = %q, want %q", got, "mid.5")
	}
	if got := form.Get("thread_ids[t1][0]"); got != "mid.5" {
		t.Errorf("thread_ids[t1][0] = %q, want %q", got, "mid.5")
	}
}

const threadListResponse = `for (;;);{"payload":{
  "threads":[
    {"thread_fbid":"g9","name":"Weekend plans","participants":["fbid:7","fbid:55","fbid:56"],
     "snippet":"see you there","timestamp":"1700","unread_count":2,"message_count":40},
    {"other_user_fbid":"55","name":"","participants":["fbid:7","fbid:55"],
     "snippet":"hey","timestamp":"1600","unread_count":0,"message_count":12}
  ],
  "participants":[
    {"fbid":"55","name":"Alex Chen"},
    {"fbid":"56","name":"Sam Reed"}
  ]}}`

func TestThreads(t *testing.T) {
	mux, captured := apiMux(t, "/threads", func(url.Values) string { return threadListResponse })
	c := newAPITestClient(t, mux)

	page, err := c.Threads(context.Background(), 0, 20)
	if err != nil {
		t.Fatalf("Threads() error: %v", err)
	}
	form := *captured
	if got := form.Get("inbox[offset]"); got != "0" {
		t.Errorf("inbox[offset] = %q, want %q", got, "0")
	}
	if got := form.Get("inbox[limit]"); got != "20" {
		t.Errorf("inbox[limit] = %q, want %q", got, "20")
	}

	if len(page) != 2 {
		t.Fatalf("page has %d threads, want 2", len(page))
	}
	group := page[0]
	if !group.IsGroup || group.ID != "g9" || group.Name != "Weekend plans" {
		t.Errorf("group thread = %+v", group)
	}
	if len(group.Participants) != 3 || group.Participants[1] != "55" {
		t.Errorf("group participants = %v", group.Participants)
	}
	if group.UnreadCount != 2 {
		t.Errorf("group unread = %d, want 2", group.UnreadCount)
	}
	direct := page[1]
	if direct.IsGroup || direct.ID != "55" {
		t.Errorf("direct thread = %+v", direct)
	}
	if direct.Name != "Alex Chen" {
		t.Errorf("direct thread name = %q, want %q (resolved from participants)",
			direct.Name, "Alex Chen")
	}
}

func TestThreadsAccumulateWithoutDuplicates(t *testing.T) {
	mux, _ := apiMux(t, "/threads", func(url.Values) string { return threadListResponse })
	c := newAPITestClient(t, mux)

	ctx := context.Background()
	if _, err := c.Threads(ctx, 0, 20); err != nil {
		t.Fatalf("Threads() error: %v", err)
	}
	if _, err := c.Threads(ctx, 0, 20); err != nil {
		t.Fatalf("Threads() error: %v", err)
	}
	if got := len(c.KnownThreads()); got != 2 {
		t.Errorf("KnownThreads() has %d entries after repeated fetch, want 2", got)
	}
}

func TestThreadHistory(t *testing.T) {
	mux, captured := apiMux(t, "/messages", func(url.Values) string {
		return `for (;;);{"payload":{"actions":[
		  {"message_id":"m1","author":"fbid:55","body":"first","timestamp":"10"},
		  {"message_id":"m2","author":"fbid:7","body":"second","timestamp":"20"}
		]}}`
	})
	c := newAPITestClient(t, mux)

	history, err := c.ThreadHistory(context.Background(), GroupThread("g9"), 0, 10)
	if err != nil {
		t.Fatalf("ThreadHistory() error: %v", err)
	}
	form := *captured
	if got := form.Get("messages[thread_fbids][g9][offset]"); got != "0" {
		t.Errorf("offset field = %q, want %q", got, "0")
	}
	if got := form.Get("messages[thread_fbids][g9][limit]"); got != "10" {
		t.Errorf("limit field = %q, want %q", got, "10")
	}
	if len(history) != 2 {
		t.Fatalf("history has %d messages, want 2", len(history))
	}
	if history[0].AuthorID != "55" || history[0].Body != "first" {
		t.Errorf("history[0] = %+v", history[0])
	}
}

func TestUnreadThreads(t *testing.T) {
	mux, _ := apiMux(t, "/sync", func(url.Values) string {
		return `for (;;);{"payload":{"unread_thread_fbids":[
		  {"thread_fbids":["g9"],"other_user_fbids":["55","56"]}
		]}}`
	})
	c := newAPITestClient(t, mux)

	ids, err := c.UnreadThreads(context.Background(), time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("UnreadThreads() error: %v", err)
	}
	if len(ids) != 3 || ids[0] != "g9" || ids[1] != "55" {
		t.Errorf("unread ids = %v, want [g9 55 56]", ids)
	}
}

func TestSearchUsers(t *testing.T) {
	mux, captured := apiMux(t, "/search", func(url.Values) string {
		return `for (;;);{"payload":{"entries":[
		  {"type":"user","uid":55,"text":"Alex Chen","photo":"p.jpg","path":"/alex"},
		  {"type":"page","uid":99,"text":"Chen's Bakery"},
		  {"type":"user","uid":56,"text":"Alexa Park"}
		]}}`
	})
	c := newAPITestClient(t, mux)

	users, err := c.SearchUsers(context.Background(), "Alex")
	if err != nil {
		t.Fatalf("SearchUsers() error: %v", err)
	}
	query := *captured
	if got := query.Get("value"); got != "alex" {
		t.Errorf("search value = %q, want lowercased %q", got, "alex")
	}
	if query.Get("request_id") == "" {
		t.Error("request_id missing")
	}
	if len(users) != 2 {
		t.Fatalf("got %d users, want 2 (pages filtered out)", len(users))
	}
	if users[0].ID != "55" || users[0].Name != "Alex Chen" {
		t.Errorf("users[0] = %+v", users[0])
	}
}

func TestUserInfo(t *testing.T) {
	mux, captured := apiMux(t, "/user_info", func(url.Values) string {
		return `for (;;);{"payload":{"profiles":{
		  "55":{"name":"Alex Chen","thumbSrc":"p.jpg","uri":"/alex","gender":2,"is_friend":true}
		}}}`
	})
	c := newAPITestClient(t, mux)

	users, err := c.UserInfo(context.Background(), "55")
	if err != nil {
		t.Fatalf("UserInfo() error: %v", err)
	}
	form := *captured
	if got := form.Get("ids[0]"); got != "55" {
		t.Errorf("ids[0] = %q, want %q", got, "55")
	}
	alex, ok := users["55"]
	if !ok {
		t.Fatalf("profile 55 missing from %v", users)
	}
	if alex.Name != "Alex Chen" || !alex.IsFriend {
		t.Errorf("profile = %+v", alex)
	}
}

func TestUploadImage(t *testing.T) {
	mux := http.NewServeMux()
	var gotFilename, gotMime, gotDTSG string
	mux.HandleFunc("/upload", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("upload request is not multipart: %v", err)
		}
		gotDTSG = r.FormValue("fb_dtsg")
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("upload request has no file part: %v", err)
		}
		defer file.Close()
		gotFilename = header.Filename
		gotMime = header.Header.Get("Content-Type")
		w.Write([]byte(`for (;;);{"payload":{"metadata":[{"image_id":778899}]}}`))
	})
	c := newAPITestClient(t, mux)

	id, err := c.UploadImage(context.Background(), "/tmp/cat.png",
		strings.NewReader("pngdata"), "image/png")
	if err != nil {
		t.Fatalf("UploadImage() error: %v", err)
	}
	if id != "778899" {
		t.Errorf("image id = %q, want %q", id, "778899")
	}
	if gotFilename != "cat.png" {
		t.Errorf("uploaded filename = %q, want %q", gotFilename, "cat.png")
	}
	if gotMime != "image/png" {
		t.Errorf("uploaded mime type = %q, want %q", gotMime, "image/png")
	}
	if gotDTSG != "AQzBce" {
		t.Errorf("upload form fb_dtsg = %q, want %q", gotDTSG, "AQzBce")
	}
}

func TestRemoveUserFromGroup(t *testing.T) {
	mux, captured := apiMux(t, "/remove", func(url.Values) string { return "for (;;);{}" })
	c := newAPITestClient(t, mux)

	if err := c.RemoveUserFromGroup(context.Background(), "g9", "22"); err != nil {
		t.Fatalf("RemoveUserFromGroup() error: %v", err)
	}
	form := *captured
	if got := form.Get("uid"); got != "22" {
		t.Errorf("uid = %q, want %q", got, "22")
	}
	if got := form.Get("tid"); got != "g9" {
		t.Errorf("tid = %q, want %q", got, "g9")
	}
}
