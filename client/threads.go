package client

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wirechat/wirechat/internal/wire"
)

// Thread is a conversation summary from the inbox listing.
type Thread struct {
	ID           string
	Name         string
	IsGroup      bool
	Participants []string
	Snippet      string
	Timestamp    string
	UnreadCount  int
	MessageCount int
}

// Message is one entry of a thread's history.
type Message struct {
	ID        string
	AuthorID  string
	Body      string
	Timestamp string
}

// User is a directory entry from search or profile lookup.
type User struct {
	ID       string
	Name     string
	Photo    string
	URL      string
	Gender   string
	IsFriend bool
}

// Threads fetches one page of the inbox listing. Fetched threads are
// also accumulated on the client, deduplicated by id, so repeated
// paging builds a complete local view.
func (c *Client) Threads(ctx context.Context, offset, limit int) ([]Thread, error) {
	if limit <= 0 {
		limit = 20
	}
	form := url.Values{}
	form.Set("client", "mercury")
	form.Set("inbox[offset]", strconv.Itoa(offset))
	form.Set("inbox[limit]", strconv.Itoa(limit))

	resp, err := c.post(ctx, c.endpoints.Threads, form)
	if err != nil {
		return nil, fmt.Errorf("fetching thread list: %w", err)
	}
	if !resp.ok() {
		return nil, fmt.Errorf("fetching thread list: unexpected status %d", resp.status)
	}

	var payload struct {
		Payload struct {
			Threads      []map[string]any `json:"threads"`
			Participants []map[string]any `json:"participants"`
		} `json:"payload"`
	}
	if err := decode(resp, &payload); err != nil {
		return nil, fmt.Errorf("decoding thread list: %w", err)
	}

	names := make(map[string]string, len(payload.Payload.Participants))
	for _, p := range payload.Payload.Participants {
		names[wire.String(p["fbid"])] = wire.String(p["name"])
	}

	page := make([]Thread, 0, len(payload.Payload.Threads))
	for _, raw := range payload.Payload.Threads {
		thread := decodeThread(raw, names)
		page = append(page, thread)
		if !c.threadIDs[thread.ID] {
			c.threadIDs[thread.ID] = true
			c.threads = append(c.threads, thread)
		}
	}
	return page, nil
}

// KnownThreads returns every thread accumulated over the lifetime of
// the client, in first-seen order.
func (c *Client) KnownThreads() []Thread {
	return append([]Thread(nil), c.threads...)
}

func decodeThread(raw map[string]any, names map[string]string) Thread {
	thread := Thread{
		Name:         wire.String(raw["name"]),
		Snippet:      wire.String(raw["snippet"]),
		Timestamp:    wire.String(raw["timestamp"]),
		UnreadCount:  wire.Int(raw["unread_count"]),
		MessageCount: wire.Int(raw["message_count"]),
	}
	if id := wire.String(raw["thread_fbid"]); id != "" {
		thread.ID = id
		thread.IsGroup = true
	} else {
		thread.ID = wire.String(raw["other_user_fbid"])
	}

	if list, ok := raw["participants"].([]any); ok {
		for _, entry := range list {
			id := strings.TrimPrefix(wire.String(entry), "fbid:")
			thread.Participants = append(thread.Participants, id)
		}
	}
	if thread.Name == "" && !thread.IsGroup {
		thread.Name = names[thread.ID]
	}
	return thread
}

// ThreadHistory fetches up to limit messages of a thread, ending at
// the most recent one when offset is 0.
func (c *Client) ThreadHistory(ctx context.Context, thread ThreadRef, offset, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 20
	}
	key := "user_ids"
	if thread.IsGroup {
		key = "thread_fbids"
	}

	form := url.Values{}
	form.Set(fmt.Sprintf("messages[%s][%s][offset]", key, thread.ID), strconv.Itoa(offset))
	form.Set(fmt.Sprintf("messages[%s][%s][limit]", key, thread.ID), strconv.Itoa(limit))
	form.Set(fmt.Sprintf("messages[%s][%s][timestamp]", key, thread.ID),
		strconv.FormatInt(time.Now().UnixMilli(), 10))

	resp, err := c.post(ctx, c.endpoints.Messages, form)
	if err != nil {
		return nil, fmt.Errorf("fetching thread history: %w", err)
	}
	if !resp.ok() {
		return nil, fmt.Errorf("fetching thread history: unexpected status %d", resp.status)
	}

	var payload struct {
		Payload struct {
			Actions []map[string]any `json:"actions"`
		} `json:"payload"`
	}
	if err := decode(resp, &payload); err != nil {
		return nil, fmt.Errorf("decoding thread history: %w", err)
	}

	messages := make([]Message, 0, len(payload.Payload.Actions))
	for _, action := range payload.Payload.Actions {
		messages = append(messages, Message{
			ID:        wire.String(action["message_id"]),
			AuthorID:  strings.TrimPrefix(wire.String(action["author"]), "fbid:"),
			Body:      wire.String(action["body"]),
			Timestamp: wire.String(action["timestamp"]),
		})
	}
	return messages, nil
}

// UnreadThreads returns the ids of threads with activity since the
// given cutoff.
func (c *Client) UnreadThreads(ctx context.Context, since time.Time) ([]string, error) {
	form := url.Values{}
	form.Set("client", "mercury_sync")
	form.Set("folders[0]", "inbox")
	form.Set("last_action_timestamp", strconv.FormatInt(since.UnixMilli(), 10))

	resp, err := c.post(ctx, c.endpoints.ThreadSync, form)
	if err != nil {
		return nil, fmt.Errorf("syncing unread threads: %w", err)
	}
	if !resp.ok() {
		return nil, fmt.Errorf("syncing unread threads: unexpected status %d", resp.status)
	}

	var payload struct {
		Payload struct {
			UnreadThreadIDs []struct {
				ThreadFbIDs    []any `json:"thread_fbids"`
				OtherUserFbIDs []any `json:"other_user_fbids"`
			} `json:"unread_thread_fbids"`
		} `json:"payload"`
	}
	if err := decode(resp, &payload); err != nil {
		return nil, fmt.Errorf("decoding unread sync: %w", err)
	}

	var ids []string
	for _, group := range payload.Payload.UnreadThreadIDs {
		for _, id := range group.ThreadFbIDs {
			ids = append(ids, wire.String(id))
		}
		for _, id := range group.OtherUserFbIDs {
			ids = append(ids, wire.String(id))
		}
	}
	return ids, nil
}

// SearchUsers looks up people by name in the typeahead directory.
func (c *Client) SearchUsers(ctx context.Context, name string) ([]User, error) {
	form := url.Values{}
	form.Set("value", strings.ToLower(name))
	form.Set("viewer", strconv.FormatInt(c.session.UserID, 10))
	form.Set("rsp", "search")
	form.Set("context", "search")
	form.Set("path", "/home.php")
	form.Set("request_id", uuid.New().String())

	resp, err := c.get(ctx, c.endpoints.Search, form)
	if err != nil {
		return nil, fmt.Errorf("searching users: %w", err)
	}
	if !resp.ok() {
		return nil, fmt.Errorf("searching users: unexpected status %d", resp.status)
	}

	var payload struct {
		Payload struct {
			Entries []map[string]any `json:"entries"`
		} `json:"payload"`
	}
	if err := decode(resp, &payload); err != nil {
		return nil, fmt.Errorf("decoding search results: %w", err)
	}

	var users []User
	for _, entry := range payload.Payload.Entries {
		if wire.String(entry["type"]) != "user" {
			continue
		}
		users = append(users, User{
			ID:    wire.String(entry["uid"]),
			Name:  wire.String(entry["text"]),
			Photo: wire.String(entry["photo"]),
			URL:   wire.String(entry["path"]),
		})
	}
	return users, nil
}

// UserInfo fetches profile summaries for the given user ids.
func (c *Client) UserInfo(ctx context.Context, userIDs ...string) (map[string]User, error) {
	form := url.Values{}
	for i, id := range userIDs {
		form.Set(fmt.Sprintf("ids[%d]", i), id)
	}

	resp, err := c.post(ctx, c.endpoints.UserInfo, form)
	if err != nil {
		return nil, fmt.Errorf("fetching user info: %w", err)
	}
	if !resp.ok() {
		return nil, fmt.Errorf("fetching user info: unexpected status %d", resp.status)
	}
	return decodeProfiles(resp)
}

// AllUsers fetches the viewer's full contact directory.
func (c *Client) AllUsers(ctx context.Context) (map[string]User, error) {
	form := url.Values{}
	form.Set("viewer", strconv.FormatInt(c.session.UserID, 10))

	resp, err := c.post(ctx, c.endpoints.AllUsers, form)
	if err != nil {
		return nil, fmt.Errorf("fetching contacts: %w", err)
	}
	if !resp.ok() {
		return nil, fmt.Errorf("fetching contacts: unexpected status %d", resp.status)
	}
	return decodeProfiles(resp)
}

func decodeProfiles(resp *response) (map[string]User, error) {
	var payload struct {
		Payload struct {
			Profiles map[string]map[string]any `json:"profiles"`
		} `json:"payload"`
	}
	if err := decode(resp, &payload); err != nil {
		return nil, fmt.Errorf("decoding profiles: %w", err)
	}

	users := make(map[string]User, len(payload.Payload.Profiles))
	for id, raw := range payload.Payload.Profiles {
		users[id] = User{
			ID:       id,
			Name:     wire.String(raw["name"]),
			Photo:    wire.String(raw["thumbSrc"]),
			URL:      wire.String(raw["uri"]),
			Gender:   wire.String(raw["gender"]),
			IsFriend: raw["is_friend"] == true,
		}
	}
	return users, nil
}
