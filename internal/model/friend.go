package model

import "time"

// FriendRequest is a pending, directed request. At most one pending request
// exists per ordered pair; a request in either direction blocks a duplicate.
type FriendRequest struct {
	SenderID   string    `json:"sender_id"`
	ReceiverID string    `json:"receiver_id"`
	CreatedAt  time.Time `json:"created_at"`
	Sender     *Profile  `json:"sender,omitempty"`
	Receiver   *Profile  `json:"receiver,omitempty"`
}

// Friendship is an unordered pair stored in canonical order
// (UserID1 < UserID2). It is created only by accepting a request.
type Friendship struct {
	UserID1   string    `json:"user1_id"`
	UserID2   string    `json:"user2_id"`
	CreatedAt time.Time `json:"created_at"`
}

// NormalizePair returns the two IDs in canonical storage order.
func NormalizePair(a, b string) (string, string) {
	if a > b {
		return b, a
	}
	return a, b
}
