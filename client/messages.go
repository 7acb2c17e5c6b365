package client

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/url"
	"strconv"
	"time"

	"github.com/wirechat/wirechat/internal/wire"
)

// ThreadRef identifies a conversation target: a direct thread keyed
// by the other participant's id, or a group thread keyed by its own
// id.
type ThreadRef struct {
	ID      string
	IsGroup bool
}

// UserThread refers to the direct conversation with the given user.
func UserThread(id string) ThreadRef {
	return ThreadRef{ID: id}
}

// GroupThread refers to the group conversation with the given id.
func GroupThread(id string) ThreadRef {
	return ThreadRef{ID: id, IsGroup: true}
}

// LikeSize selects the sticker posted by SendLike.
type LikeSize string

const (
	LikeSmall  LikeSize = "small"
	LikeMedium LikeSize = "medium"
	LikeLarge  LikeSize = "large"
)

// stickerIDs maps like sizes to the fixed sticker ids the web client
// sends for the thumbs-up button.
var stickerIDs = map[LikeSize]string{
	LikeSmall:  "369239263222822",
	LikeMedium: "369239343222814",
	LikeLarge:  "369239383222810",
}

// offlineThreadingID builds the client-side message id: the current
// millisecond timestamp with 22 bits of randomness appended, rendered
// in decimal.
func offlineThreadingID() string {
	ms := time.Now().UnixMilli()
	return strconv.FormatInt(ms<<22|int64(rand.IntN(1<<22)), 10)
}

// threadingID builds the mailbox-style threading header tied to this
// client instance.
func (c *Client) threadingID() string {
	return fmt.Sprintf("<%d:%d-%s@mail.projektitan.com>",
		time.Now().UnixMilli(), rand.IntN(1<<31), c.session.ClientID)
}

func signatureID() string {
	return strconv.FormatInt(int64(rand.IntN(1<<31)), 16)
}

// sendForm builds the base form shared by every message-shaped send:
// text, stickers, images and administrative log messages.
func (c *Client) sendForm(thread ThreadRef) url.Values {
	form := url.Values{}
	form.Set("client", "mercury")
	form.Set("author", "fbid:"+strconv.FormatInt(c.session.UserID, 10))
	form.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	form.Set("source", "source:chat:web")
	form.Set("source_tags[0]", "source:chat")
	form.Set("html_body", "false")
	form.Set("ui_push_phase", "V3")
	form.Set("status", "0")
	otid := offlineThreadingID()
	form.Set("offline_threading_id", otid)
	form.Set("message_id", otid)
	form.Set("threading_id", c.threadingID())
	form.Set("ephemeral_ttl_mode", "0")
	form.Set("manual_retry_cnt", "0")
	form.Set("signatureID", signatureID())

	if thread.IsGroup {
		form.Set("thread_fbid", thread.ID)
	} else {
		form.Set("other_user_fbid", thread.ID)
		form.Set("specific_to_list[0]", "fbid:"+thread.ID)
		form.Set("specific_to_list[1]", "fbid:"+strconv.FormatInt(c.session.UserID, 10))
	}
	return form
}

// submitSend posts a send form and extracts the server-assigned
// message id.
func (c *Client) submitSend(ctx context.Context, form url.Values) (string, error) {
	resp, err := c.post(ctx, c.endpoints.Send, form)
	if err != nil {
		return "", fmt.Errorf("sending message: %w", err)
	}
	if !resp.ok() {
		return "", fmt.Errorf("sending message: unexpected status %d", resp.status)
	}

	var payload struct {
		Payload struct {
			Actions []map[string]any `json:"actions"`
		} `json:"payload"`
		Error        int    `json:"error"`
		ErrorSummary string `json:"errorSummary"`
	}
	if err := decode(resp, &payload); err != nil {
		return "", fmt.Errorf("decoding send response: %w", err)
	}
	if payload.Error != 0 {
		return "", fmt.Errorf("send rejected: %s (code %d)", payload.ErrorSummary, payload.Error)
	}

	for _, action := range payload.Payload.Actions {
		if id := wire.String(action["message_id"]); id != "" {
			return id, nil
		}
	}
	return form.Get("message_id"), nil
}

// SendText sends a plain text message and returns its message id.
func (c *Client) SendText(ctx context.Context, thread ThreadRef, body string) (string, error) {
	form := c.sendForm(thread)
	form.Set("action_type", "ma-type:user-generated-message")
	form.Set("body", body)
	return c.submitSend(ctx, form)
}

// SendLike sends the thumbs-up sticker in the given size.
func (c *Client) SendLike(ctx context.Context, thread ThreadRef, size LikeSize) (string, error) {
	sticker, ok := stickerIDs[size]
	if !ok {
		return "", fmt.Errorf("unknown like size %q", size)
	}
	form := c.sendForm(thread)
	form.Set("action_type", "ma-type:user-generated-message")
	form.Set("sticker_id", sticker)
	return c.submitSend(ctx, form)
}

// sendImageID attaches an already-uploaded image to a message.
func (c *Client) sendImageID(ctx context.Context, thread ThreadRef, imageID, caption string) (string, error) {
	form := c.sendForm(thread)
	form.Set("action_type", "ma-type:user-generated-message")
	form.Set("body", caption)
	form.Set("image_ids[0]", imageID)
	return c.submitSend(ctx, form)
}

// AddUsersToGroup adds the given users to a group thread.
func (c *Client) AddUsersToGroup(ctx context.Context, threadID string, userIDs ...string) error {
	form := c.sendForm(GroupThread(threadID))
	form.Set("action_type", "ma-type:log-message")
	form.Set("log_message_type", "log:subscribe")
	for i, id := range userIDs {
		form.Set(fmt.Sprintf("log_message_data[added_participants][%d]", i), "fbid:"+id)
	}
	_, err := c.submitSend(ctx, form)
	return err
}

// RemoveUserFromGroup removes one user from a group thread.
func (c *Client) RemoveUserFromGroup(ctx context.Context, threadID, userID string) error {
	form := url.Values{}
	form.Set("uid", userID)
	form.Set("tid", threadID)

	resp, err := c.post(ctx, c.endpoints.RemoveUser, form)
	if err != nil {
		return fmt.Errorf("removing participant: %w", err)
	}
	if !resp.ok() {
		return fmt.Errorf("removing participant: unexpected status %d", resp.status)
	}
	return nil
}

// ChangeThreadTitle renames a thread. For a direct thread the title
// is stored as a local nickname for the conversation.
func (c *Client) ChangeThreadTitle(ctx context.Context, thread ThreadRef, title string) error {
	form := c.sendForm(thread)
	form.Set("action_type", "ma-type:log-message")
	form.Set("log_message_type", "log:thread-name")
	form.Set("log_message_data[name]", title)
	_, err := c.submitSend(ctx, form)
	return err
}

// MarkAsRead moves the read watermark of the given thread to now.
func (c *Client) MarkAsRead(ctx context.Context, threadID string) error {
	form := url.Values{}
	form.Set("watermarkTimestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	form.Set("shouldSendReadReceipt", "true")
	form.Set(fmt.Sprintf("ids[%s]", threadID), "true")

	resp, err := c.post(ctx, c.endpoints.ReadStatus, form)
	if err != nil {
		return fmt.Errorf("marking as read: %w", err)
	}
	if !resp.ok() {
		return fmt.Errorf("marking as read: unexpected status %d", resp.status)
	}
	return nil
}

// MarkAsDelivered acknowledges delivery of a message in a thread.
func (c *Client) MarkAsDelivered(ctx context.Context, threadID, messageID string) error {
	form := url.Values{}
	form.Set("message_ids[0]", messageID)
	form.Set(fmt.Sprintf("thread_ids[%s][0]", threadID), messageID)

	resp, err := c.post(ctx, c.endpoints.Delivered, form)
	if err != nil {
		return fmt.Errorf("marking as delivered: %w", err)
	}
	if !resp.ok() {
		return fmt.Errorf("marking as delivered: unexpected status %d", resp.status)
	}
	return nil
}

// MarkAsSeen reports the inbox as seen.
func (c *Client) MarkAsSeen(ctx context.Context) error {
	form := url.Values{}
	form.Set("seen_timestamp", "0")

	resp, err := c.post(ctx, c.endpoints.MarkSeen, form)
	if err != nil {
		return fmt.Errorf("marking as seen: %w", err)
	}
	if !resp.ok() {
		return fmt.Errorf("marking as seen: unexpected status %d", resp.status)
	}
	return nil
}

// FriendConnect confirms a pending friend request from the given user.
func (c *Client) FriendConnect(ctx context.Context, userID string) error {
	form := url.Values{}
	form.Set("to_friend", userID)
	form.Set("action", "confirm")

	resp, err := c.post(ctx, c.endpoints.Connect, form)
	if err != nil {
		return fmt.Errorf("confirming friend request: %w", err)
	}
	if !resp.ok() {
		return fmt.Errorf("confirming friend request: unexpected status %d", resp.status)
	}
	return nil
}
