package event

import (
	"fmt"
	"log/slog"

	"github.com/wirechat/wirechat/internal/wire"
)

// Normalizer classifies raw pulled payloads into typed events.
// Classification is defensive throughout: the wire format is versioned
// and undocumented, so absent or renamed fields demote a payload to
// Unrecognized (or drop it with a log entry) instead of failing.
type Normalizer struct {
	logger *slog.Logger
}

// NewNormalizer returns a normalizer that logs dropped and unknown
// payloads to logger. A nil logger uses slog.Default().
func NewNormalizer(logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{logger: logger}
}

// NormalizeAll classifies every raw event in a pulled batch, in order.
// A malformed event is logged and skipped; it never aborts the batch.
// Known no-op kinds (session primers, flow-start markers) are
// discarded without being surfaced.
func (n *Normalizer) NormalizeAll(raws []map[string]any) []Event {
	events := make([]Event, 0, len(raws))
	for _, raw := range raws {
		ev, ok, err := n.Normalize(raw)
		if err != nil {
			n.logger.Debug("dropping malformed event", "type", rawKind(raw), "error", err)
			continue
		}
		if ok {
			events = append(events, ev)
		}
	}
	return events
}

// noopKinds are payload types that carry no chat state: "qprimer"
// arrives on every login and "deltaflow" precedes the first real
// delta. They are discarded without surfacing.
var noopKinds = map[string]bool{
	"qprimer":   true,
	"deltaflow": true,
}

// Normalize classifies one raw event. It returns the typed event and
// true, or false if the payload is a known no-op, or an error if a
// required field is missing or has the wrong shape.
func (n *Normalizer) Normalize(raw map[string]any) (Event, bool, error) {
	kind := rawKind(raw)

	switch kind {
	case "delta":
		ev, err := n.normalizeDelta(raw)
		if err != nil {
			return nil, false, err
		}
		return ev, true, nil

	case "inbox":
		return InboxCountsUpdated{
			Unseen:       wire.Int(raw["unseen"]),
			Unread:       wire.Int(raw["unread"]),
			RecentUnread: wire.Int(raw["recent_unread"]),
		}, true, nil

	case "m_read_receipt":
		// Top-level read receipts use a different envelope shape from
		// the delta-carried ones.
		return SeenReceipt{
			SeenBy:    wire.String(raw["realtime_viewer_fbid"]),
			ThreadID:  wire.String(raw["reader"]),
			Timestamp: wire.String(raw["time"]),
		}, true, nil
	}

	if noopKinds[kind] {
		return nil, false, nil
	}

	n.logger.Debug("unrecognized event", "type", kind)
	return Unrecognized{RawKind: kind, Raw: raw}, true, nil
}

// normalizeDelta classifies a "delta" payload. First match wins; the
// cascade order matters because a delta can carry several of the
// discriminant fields at once.
func (n *Normalizer) normalizeDelta(raw map[string]any) (Event, error) {
	delta, ok := asMap(raw["delta"])
	if !ok {
		return nil, fmt.Errorf("delta payload without delta object")
	}
	deltaType := wire.String(delta["type"])
	metadata, hasMetadata := asMap(delta["messageMetadata"])

	switch {
	case delta["addedParticipants"] != nil:
		if !hasMetadata {
			return nil, fmt.Errorf("addedParticipants delta without messageMetadata")
		}
		participants, ok := delta["addedParticipants"].([]any)
		if !ok {
			return nil, fmt.Errorf("addedParticipants is not a list")
		}
		added := make([]string, 0, len(participants))
		for _, p := range participants {
			pm, ok := asMap(p)
			if !ok {
				return nil, fmt.Errorf("added participant is not an object")
			}
			added = append(added, wire.String(pm["userFbId"]))
		}
		return ParticipantsAdded{
			AddedIDs:  added,
			AuthorID:  wire.String(metadata["actorFbId"]),
			ThreadID:  threadFbID(metadata),
			Timestamp: wire.String(metadata["timestamp"]),
		}, nil

	case delta["leftParticipantFbId"] != nil:
		if !hasMetadata {
			return nil, fmt.Errorf("leftParticipant delta without messageMetadata")
		}
		return ParticipantRemoved{
			RemovedID: wire.String(delta["leftParticipantFbId"]),
			AuthorID:  wire.String(metadata["actorFbId"]),
			ThreadID:  threadFbID(metadata),
			Timestamp: wire.String(metadata["timestamp"]),
		}, nil

	case wire.String(delta["class"]) == "ReadReceipt":
		seenBy := wire.String(delta["actorFbId"])
		threadKey, _ := asMap(delta["threadKey"])
		if seenBy == "" {
			// One-to-one receipts omit the actor; the counterpart
			// user is the only one who could have seen it.
			seenBy = wire.String(threadKey["otherUserFbId"])
		}
		return SeenReceipt{
			SeenBy:    seenBy,
			ThreadID:  wire.String(threadKey["threadFbId"]),
			Timestamp: wire.String(delta["actionTimestampMs"]),
		}, nil

	case deltaType == "change_thread_theme":
		if !hasMetadata {
			return nil, fmt.Errorf("theme delta without messageMetadata")
		}
		untyped, _ := asMap(delta["untypedData"])
		recipientID, recipientKind := recipient(metadata)
		return ColorChanged{
			MessageID:  wire.String(metadata["messageId"]),
			AuthorID:   wire.String(metadata["actorFbId"]),
			NewColor:   wire.String(untyped["theme_color"]),
			ChangedFor: recipientID,
			Recipient:  recipientKind,
			Timestamp:  wire.String(metadata["timestamp"]),
		}, nil

	case deltaType == "change_thread_nickname":
		if !hasMetadata {
			return nil, fmt.Errorf("nickname delta without messageMetadata")
		}
		untyped, _ := asMap(delta["untypedData"])
		return TitleChanged{
			MessageID:  wire.String(metadata["messageId"]),
			AuthorID:   wire.String(metadata["actorFbId"]),
			ChangedFor: wire.String(untyped["participant_id"]),
			NewTitle:   wire.String(untyped["nickname"]),
			ThreadID:   threadFbID(metadata),
			Timestamp:  wire.String(metadata["timestamp"]),
		}, nil

	case hasMetadata:
		recipientID, recipientKind := recipient(metadata)
		return MessageReceived{
			MessageID:   wire.String(metadata["messageId"]),
			AuthorID:    wire.String(metadata["actorFbId"]),
			Body:        wire.String(delta["body"]),
			RecipientID: recipientID,
			Recipient:   recipientKind,
			Timestamp:   wire.String(metadata["timestamp"]),
			Raw:         raw,
		}, nil
	}

	// A delta carrying none of the discriminants is still surfaced;
	// only structurally broken payloads take the error path above.
	return Unrecognized{RawKind: "delta", Raw: raw}, nil
}

// recipient inspects the thread-key structure of message metadata: a
// group-thread id implies a group recipient, an other-party id implies
// a user recipient, and absence of both yields an unset recipient.
func recipient(metadata map[string]any) (string, RecipientKind) {
	threadKey, ok := asMap(metadata["threadKey"])
	if !ok {
		return "", RecipientUnset
	}
	if id := wire.String(threadKey["threadFbId"]); id != "" {
		return id, RecipientGroup
	}
	if id := wire.String(threadKey["otherUserFbId"]); id != "" {
		return id, RecipientUser
	}
	return "", RecipientUnset
}

// threadFbID extracts the group thread id from message metadata.
func threadFbID(metadata map[string]any) string {
	threadKey, _ := asMap(metadata["threadKey"])
	return wire.String(threadKey["threadFbId"])
}

// rawKind returns the top-level discriminant of a raw event.
func rawKind(raw map[string]any) string {
	return wire.String(raw["type"])
}

// asMap returns v as a JSON object, if it is one.
func asMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}
