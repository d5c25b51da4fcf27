package ws

import (
	"time"

	"github.com/edutrack/messaging/internal/model"
)

type EventType string

const (
	// Client -> server
	EventSubscribeDirect EventType = "subscribe_direct"
	EventSubscribeGroup  EventType = "subscribe_group"
	EventUnsubscribe     EventType = "unsubscribe"
	EventTyping          EventType = "typing"

	// Both directions: sends from the client, inserts fanned out by the hub.
	EventDirectMessage EventType = "direct_message"
	EventGroupMessage  EventType = "group_message"
	EventEditMessage   EventType = "edit_message"
	EventDeleteMessage EventType = "delete_message"
	EventAddReaction   EventType = "add_reaction"
	EventTogglePin     EventType = "toggle_pin"

	// Server -> client
	EventHistory        EventType = "history"
	EventMessageEdited  EventType = "message_edited"
	EventMessageDeleted EventType = "message_deleted"
	EventReactionAdded  EventType = "reaction_added"
	EventPinToggled     EventType = "pin_toggled"
	EventTypingStopped  EventType = "typing_stopped"
	EventError          EventType = "error"
)

// Scope names for subscriptions and typing facts.
const (
	ScopeDirect = "direct"
	ScopeGroup  = "group"
)

// DirectScopeKey is the storage key for a direct pair's ephemeral facts. The
// pair is canonicalized so both parties address the same scope.
func DirectScopeKey(a, b string) string {
	lo, hi := model.NormalizePair(a, b)
	return "dm:" + lo + ":" + hi
}

// GroupScopeKey is the storage key for a group's ephemeral facts.
func GroupScopeKey(groupID string) string {
	return "group:" + groupID
}

// IncomingMessage is what the client sends to the server.
type IncomingMessage struct {
	Type      EventType `json:"type"`
	PeerID    string    `json:"peer_id,omitempty"`
	GroupID   string    `json:"group_id,omitempty"`
	Content   string    `json:"content,omitempty"`
	MessageID string    `json:"message_id,omitempty"`
	Emoji     string    `json:"emoji,omitempty"`
	// Scope selects which subscription to drop on unsubscribe
	// ("direct", "group", or empty for both).
	Scope string `json:"scope,omitempty"`
}

// OutgoingMessage is what the server sends to the client.
// Payload uses typed structs to avoid heap-heavy map[string]any.
type OutgoingMessage struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload"`
}

// HistoryPayload is the snapshot delivered when a subscription goes live.
// Epoch identifies the subscribe call the snapshot belongs to; a client that
// resubscribed faster than the load resolved never sees the stale snapshot.
type HistoryPayload struct {
	Scope    string              `json:"scope"`
	PeerID   string              `json:"peer_id,omitempty"`
	GroupID  string              `json:"group_id,omitempty"`
	Epoch    uint64              `json:"epoch"`
	Messages []model.Message     `json:"messages"`
	Members  []model.GroupMember `json:"members,omitempty"`
}

// MessageEditedPayload is broadcast when a message is edited.
type MessageEditedPayload struct {
	MessageID  string    `json:"message_id"`
	GroupID    string    `json:"group_id,omitempty"`
	SenderID   string    `json:"sender_id"`
	ReceiverID string    `json:"receiver_id,omitempty"`
	Content    string    `json:"content"`
	EditedAt   time.Time `json:"edited_at"`
}

// MessageDeletedPayload is broadcast when a message is hard-deleted.
type MessageDeletedPayload struct {
	MessageID  string `json:"message_id"`
	GroupID    string `json:"group_id,omitempty"`
	SenderID   string `json:"sender_id"`
	ReceiverID string `json:"receiver_id,omitempty"`
}

// ReactionPayload is broadcast when a reaction counter is incremented. It
// carries the full updated map so receivers replace rather than re-derive.
type ReactionPayload struct {
	MessageID string            `json:"message_id"`
	GroupID   string            `json:"group_id"`
	UserID    string            `json:"user_id"`
	Emoji     string            `json:"emoji"`
	Reactions model.ReactionMap `json:"reactions"`
}

// PinPayload is broadcast when a message's pin flag is toggled.
type PinPayload struct {
	MessageID string `json:"message_id"`
	GroupID   string `json:"group_id"`
	Pinned    bool   `json:"pinned"`
	PinnedBy  string `json:"pinned_by"`
}

// TypingPayload is broadcast when a user starts typing in a scope.
type TypingPayload struct {
	GroupID string `json:"group_id,omitempty"`
	PeerID  string `json:"peer_id,omitempty"`
	UserID  string `json:"user_id"`
}
