// Package event defines the typed events produced by the long-poll
// channel and the dispatcher that delivers them to application
// handlers. The server's wire payloads are heterogeneous and
// undocumented; the normalizer in this package turns them into the
// fixed vocabulary below.
package event

// Kind identifies an event variant.
type Kind string

const (
	// KindMessage is a chat message delivered to the session's inbox.
	KindMessage Kind = "message"
	// KindColorChange is a thread theme color change.
	KindColorChange Kind = "color_change"
	// KindTitleChange is a thread nickname/title change.
	KindTitleChange Kind = "title_change"
	// KindPeopleAdded is one or more participants joining a group thread.
	KindPeopleAdded Kind = "people_added"
	// KindPersonRemoved is a participant leaving or being removed.
	KindPersonRemoved Kind = "person_removed"
	// KindSeen is a read receipt.
	KindSeen Kind = "seen"
	// KindInbox is an inbox unread-counter update.
	KindInbox Kind = "inbox"
	// KindUnrecognized is any payload shape the normalizer does not know.
	KindUnrecognized Kind = "unrecognized"
)

// RecipientKind distinguishes the two thread addressing modes.
type RecipientKind int

const (
	// RecipientUnset means the payload carried neither thread-key
	// variant. The upstream schema does not guarantee one; this is a
	// representable state, not an error.
	RecipientUnset RecipientKind = iota
	// RecipientUser addresses a one-to-one conversation.
	RecipientUser
	// RecipientGroup addresses a group thread.
	RecipientGroup
)

// String returns a human-readable name for the recipient kind.
func (k RecipientKind) String() string {
	switch k {
	case RecipientUser:
		return "user"
	case RecipientGroup:
		return "group"
	default:
		return "unset"
	}
}

// Event is implemented by every normalized event variant.
// Events are immutable once constructed and passed by value.
type Event interface {
	Kind() Kind
}

// MessageReceived is an incoming chat message.
type MessageReceived struct {
	MessageID   string
	AuthorID    string
	Body        string
	RecipientID string
	Recipient   RecipientKind
	Timestamp   string
	// Raw is the complete wire payload the message was extracted
	// from, for callers that need fields beyond the typed set.
	Raw map[string]any
}

// Kind implements Event.
func (MessageReceived) Kind() Kind { return KindMessage }

// ColorChanged reports a thread theme color change.
type ColorChanged struct {
	MessageID  string
	AuthorID   string
	NewColor   string
	ChangedFor string
	Recipient  RecipientKind
	Timestamp  string
}

// Kind implements Event.
func (ColorChanged) Kind() Kind { return KindColorChange }

// TitleChanged reports a thread nickname change.
type TitleChanged struct {
	MessageID  string
	AuthorID   string
	ChangedFor string
	NewTitle   string
	ThreadID   string
	Timestamp  string
}

// Kind implements Event.
func (TitleChanged) Kind() Kind { return KindTitleChange }

// ParticipantsAdded reports users added to a group thread.
type ParticipantsAdded struct {
	AddedIDs  []string
	AuthorID  string
	ThreadID  string
	Timestamp string
}

// Kind implements Event.
func (ParticipantsAdded) Kind() Kind { return KindPeopleAdded }

// ParticipantRemoved reports a user removed from a group thread.
type ParticipantRemoved struct {
	RemovedID string
	AuthorID  string
	ThreadID  string
	Timestamp string
}

// Kind implements Event.
func (ParticipantRemoved) Kind() Kind { return KindPersonRemoved }

// SeenReceipt reports that a user has seen a thread.
type SeenReceipt struct {
	SeenBy    string
	ThreadID  string
	Timestamp string
}

// Kind implements Event.
func (SeenReceipt) Kind() Kind { return KindSeen }

// InboxCountsUpdated reports the inbox unread counters.
type InboxCountsUpdated struct {
	Unseen       int
	Unread       int
	RecentUnread int
}

// Kind implements Event.
func (InboxCountsUpdated) Kind() Kind { return KindInbox }

// Unrecognized wraps a payload whose shape the normalizer does not
// know. The server's event vocabulary is open-ended; unknown kinds are
// surfaced rather than dropped so callers can log or inspect them.
type Unrecognized struct {
	RawKind string
	Raw     map[string]any
}

// Kind implements Event.
func (Unrecognized) Kind() Kind { return KindUnrecognized }
