package model

import "time"

// ReactionMap maps an emoji to its accumulated count on a message.
type ReactionMap map[string]int

// Message is a chat message. Exactly one of ReceiverID (direct message) or
// GroupID (group message) is set. Direct messages are immutable except for
// hard deletion; group messages additionally carry reactions, a pin flag and
// an author-only edit path.
type Message struct {
	ID         string      `json:"id"`
	SenderID   string      `json:"sender_id"`
	ReceiverID string      `json:"receiver_id,omitempty"`
	GroupID    string      `json:"group_id,omitempty"`
	Content    string      `json:"content"`
	Reactions  ReactionMap `json:"reactions,omitempty"`
	Pinned     bool        `json:"pinned"`
	EditedAt   *time.Time  `json:"edited_at,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	Sender     *Profile    `json:"sender,omitempty"`
}

// IsDirect reports whether the message belongs to a direct pair.
func (m *Message) IsDirect() bool { return m.ReceiverID != "" }
