// Package ws implements the realtime messaging core: a connection hub with
// scoped subscriptions, message fan-out, reactions, pins and typing presence.
package ws

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/edutrack/messaging/internal/content"
	"github.com/edutrack/messaging/internal/logger"
	"github.com/edutrack/messaging/internal/model"
)

// Validation and authorization failures surfaced to callers. The WS dispatch
// maps them to error frames, the REST handlers to HTTP statuses.
var (
	ErrEmptyMessage    = errors.New("message is empty")
	ErrNotFriends      = errors.New("users are not friends")
	ErrNotMember       = errors.New("not a member of the group")
	ErrNotAuthor       = errors.New("not the author of the message")
	ErrNotParticipant  = errors.New("not a participant of the chat")
	ErrBadEmoji        = errors.New("invalid emoji")
	ErrNotGroupMessage = errors.New("message does not belong to a group")
)

// ProfileStore loads sender profiles attached to fanned-out messages.
type ProfileStore interface {
	GetByID(ctx context.Context, id string) (*model.Profile, error)
}

// MessageStore is the persistence surface of the hub.
type MessageStore interface {
	Create(ctx context.Context, m *model.Message) error
	GetByID(ctx context.Context, id string) (*model.Message, error)
	DirectHistory(ctx context.Context, selfID, peerID string) ([]model.Message, error)
	GroupHistory(ctx context.Context, groupID string) ([]model.Message, error)
	UpdateContent(ctx context.Context, id, content string, editedAt time.Time) error
	Delete(ctx context.Context, id string) error
	AddReaction(ctx context.Context, id, emoji string) (model.ReactionMap, error)
	TogglePin(ctx context.Context, id string) (bool, error)
}

// FriendStore gates direct messaging on an accepted friendship.
type FriendStore interface {
	AreFriends(ctx context.Context, a, b string) (bool, error)
}

// GroupStore gates group operations on membership and drives fan-out.
type GroupStore interface {
	IsMember(ctx context.Context, groupID, userID string) (bool, error)
	GetMemberIDs(ctx context.Context, groupID string) ([]string, error)
	GetMembers(ctx context.Context, groupID string) ([]model.GroupMember, error)
}

// TypingStore keeps the ephemeral typing facts (short TTL, refreshed per pulse).
type TypingStore interface {
	SetTyping(ctx context.Context, scope, userID string, ttl time.Duration) error
	ClearTyping(ctx context.Context, scope, userID string) error
}

// PushNotifier notifies recipients who have no live subscription for the chat.
type PushNotifier interface {
	Notify(ctx context.Context, userID, title, body string, data map[string]string)
}

// Hub owns every live WebSocket connection and routes events between them.
// All message mutations go through the hub, from the REST handlers as well as
// from the WS dispatch, so delivery and authorization live in one place.
type Hub struct {
	profiles ProfileStore
	messages MessageStore
	friends  FriendStore
	groups   GroupStore
	typing   TypingStore
	push     PushNotifier

	mu       sync.RWMutex
	clients  map[string]map[*Client]struct{}
	total    int
	maxConns int
	sendBuf  int

	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	tracker   *typingTracker
	typingTTL time.Duration

	// ctx is the hub's lifetime context, set once at construction. History
	// loads, push sends and expiry callbacks read it from their own
	// goroutines, so it is never reassigned after NewHub.
	ctx context.Context
}

func NewHub(ctx context.Context, profiles ProfileStore, messages MessageStore, friends FriendStore,
	groups GroupStore, typing TypingStore, push PushNotifier,
	typingTTL time.Duration, maxConns, sendBuf int) *Hub {

	h := &Hub{
		profiles:   profiles,
		messages:   messages,
		friends:    friends,
		groups:     groups,
		typing:     typing,
		push:       push,
		clients:    make(map[string]map[*Client]struct{}),
		maxConns:   maxConns,
		sendBuf:    sendBuf,
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		done:       make(chan struct{}),
		typingTTL:  typingTTL,
		ctx:        ctx,
	}
	h.tracker = newTypingTracker(typingTTL, h.typingExpired)
	return h
}

// Run processes register/unregister events until the hub's context is
// cancelled.
func (h *Hub) Run() {
	logger.Info("ws hub started")
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return
		case c := <-h.register:
			h.addClient(c)
		case c := <-h.unregister:
			h.removeClient(c)
		}
	}
}

func (h *Hub) shutdown() {
	h.tracker.stopAll()
	h.mu.Lock()
	all := make([]*Client, 0, h.total)
	for _, set := range h.clients {
		for c := range set {
			all = append(all, c)
		}
	}
	h.clients = make(map[string]map[*Client]struct{})
	h.total = 0
	h.mu.Unlock()
	for _, c := range all {
		c.Close()
	}
	close(h.done)
	logger.Info("ws hub stopped")
}

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	if h.maxConns > 0 && h.total >= h.maxConns {
		h.mu.Unlock()
		logger.Errorf("ws connection limit reached (%d), rejecting user=%s", h.maxConns, c.userID)
		c.Close()
		return
	}
	set, ok := h.clients[c.userID]
	if !ok {
		set = make(map[*Client]struct{})
		h.clients[c.userID] = set
	}
	set[c] = struct{}{}
	h.total++
	h.mu.Unlock()
	logger.Infof("ws client connected user=%s total=%d", c.userID, h.total)
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	set, ok := h.clients[c.userID]
	if ok {
		if _, present := set[c]; present {
			delete(set, c)
			h.total--
			if len(set) == 0 {
				delete(h.clients, c.userID)
			}
		}
	}
	h.mu.Unlock()
	c.Close()
}

// Register queues the client for registration.
func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
		c.Close()
	}
}

// Unregister queues the client for removal.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Done is closed after the hub has shut down and dropped every client.
func (h *Hub) Done() <-chan struct{} { return h.done }

// HandleMessage dispatches a frame read from the client's connection.
func (h *Hub) HandleMessage(ctx context.Context, c *Client, msg IncomingMessage) {
	var err error
	switch msg.Type {
	case EventSubscribeDirect:
		err = h.handleSubscribeDirect(ctx, c, msg.PeerID)
	case EventSubscribeGroup:
		err = h.handleSubscribeGroup(ctx, c, msg.GroupID)
	case EventUnsubscribe:
		h.handleUnsubscribe(c, msg.Scope)
	case EventDirectMessage:
		_, err = h.SendDirect(ctx, c.userID, msg.PeerID, msg.Content)
	case EventGroupMessage:
		_, err = h.SendGroup(ctx, c.userID, msg.GroupID, msg.Content)
	case EventEditMessage:
		_, err = h.EditMessage(ctx, c.userID, msg.MessageID, msg.Content)
	case EventDeleteMessage:
		_, err = h.DeleteMessage(ctx, c.userID, msg.MessageID)
	case EventAddReaction:
		_, err = h.AddReaction(ctx, c.userID, msg.MessageID, msg.Emoji)
	case EventTogglePin:
		_, _, err = h.TogglePin(ctx, c.userID, msg.MessageID)
	case EventTyping:
		err = h.handleTyping(ctx, c, msg)
	default:
		logger.Errorf("ws unknown event type %q user=%s", msg.Type, c.userID)
		return
	}
	if err != nil {
		h.sendError(c, msg.Type, err)
	}
}

type errorPayload struct {
	Event EventType `json:"event"`
	Error string    `json:"error"`
}

func (h *Hub) sendError(c *Client, event EventType, err error) {
	c.enqueue(OutgoingMessage{Type: EventError, Payload: errorPayload{Event: event, Error: err.Error()}})
}

// handleSubscribeDirect switches the client's direct scope to peerID and
// loads history. The load runs off the dispatch goroutine; the snapshot is
// dropped if the client resubscribed before it resolved.
func (h *Hub) handleSubscribeDirect(ctx context.Context, c *Client, peerID string) error {
	if peerID == "" || peerID == c.userID {
		return ErrNotFriends
	}
	ok, err := h.friends.AreFriends(ctx, c.userID, peerID)
	if err != nil {
		logger.Errorf("ws subscribe direct user=%s: %v", c.userID, err)
		return err
	}
	if !ok {
		return ErrNotFriends
	}
	gen := c.beginSubscribe(ScopeDirect)
	go func() {
		history, err := h.messages.DirectHistory(h.ctx, c.userID, peerID)
		if err != nil {
			logger.Errorf("ws direct history user=%s peer=%s: %v", c.userID, peerID, err)
			h.sendError(c, EventSubscribeDirect, errors.New("failed to load history"))
			return
		}
		snapshot := OutgoingMessage{Type: EventHistory, Payload: HistoryPayload{
			Scope:    ScopeDirect,
			PeerID:   peerID,
			Epoch:    gen,
			Messages: history,
		}}
		if !c.commitSubscribe(gen, ScopeDirect, peerID, snapshot) {
			logger.Infof("ws stale direct history discarded user=%s peer=%s", c.userID, peerID)
		}
	}()
	return nil
}

// handleSubscribeGroup switches the client's group scope to groupID and loads
// history plus the member roster.
func (h *Hub) handleSubscribeGroup(ctx context.Context, c *Client, groupID string) error {
	if groupID == "" {
		return ErrNotMember
	}
	ok, err := h.groups.IsMember(ctx, groupID, c.userID)
	if err != nil {
		logger.Errorf("ws subscribe group user=%s: %v", c.userID, err)
		return err
	}
	if !ok {
		return ErrNotMember
	}
	gen := c.beginSubscribe(ScopeGroup)
	go func() {
		history, err := h.messages.GroupHistory(h.ctx, groupID)
		if err != nil {
			logger.Errorf("ws group history user=%s group=%s: %v", c.userID, groupID, err)
			h.sendError(c, EventSubscribeGroup, errors.New("failed to load history"))
			return
		}
		members, err := h.groups.GetMembers(h.ctx, groupID)
		if err != nil {
			logger.Errorf("ws group members user=%s group=%s: %v", c.userID, groupID, err)
			h.sendError(c, EventSubscribeGroup, errors.New("failed to load members"))
			return
		}
		snapshot := OutgoingMessage{Type: EventHistory, Payload: HistoryPayload{
			Scope:    ScopeGroup,
			GroupID:  groupID,
			Epoch:    gen,
			Messages: history,
			Members:  members,
		}}
		if !c.commitSubscribe(gen, ScopeGroup, groupID, snapshot) {
			logger.Infof("ws stale group history discarded user=%s group=%s", c.userID, groupID)
		}
	}()
	return nil
}

func (h *Hub) handleUnsubscribe(c *Client, scope string) {
	c.beginSubscribe(scope)
}

// SendDirect persists and delivers a direct message. Blank content (after
// trimming) is a silent no-op for the caller's UI but surfaces as an error so
// nothing pretends a message was created.
func (h *Hub) SendDirect(ctx context.Context, senderID, peerID, text string) (*model.Message, error) {
	if content.IsBlank(text) {
		return nil, ErrEmptyMessage
	}
	if peerID == "" || peerID == senderID {
		return nil, ErrNotFriends
	}
	ok, err := h.friends.AreFriends(ctx, senderID, peerID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFriends
	}
	m := &model.Message{
		ID:         uuid.New().String(),
		SenderID:   senderID,
		ReceiverID: peerID,
		Content:    content.Sanitize(text),
		Reactions:  model.ReactionMap{},
		CreatedAt:  time.Now().UTC(),
	}
	if err := h.messages.Create(ctx, m); err != nil {
		return nil, err
	}
	h.attachSender(ctx, m)
	h.stopTyping(DirectScopeKey(senderID, peerID), senderID)
	h.deliverDirect(m, OutgoingMessage{Type: EventDirectMessage, Payload: m}, true)
	return m, nil
}

// SendGroup persists and delivers a group message to every member.
func (h *Hub) SendGroup(ctx context.Context, senderID, groupID, text string) (*model.Message, error) {
	if content.IsBlank(text) {
		return nil, ErrEmptyMessage
	}
	ok, err := h.groups.IsMember(ctx, groupID, senderID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotMember
	}
	m := &model.Message{
		ID:        uuid.New().String(),
		SenderID:  senderID,
		GroupID:   groupID,
		Content:   content.Sanitize(text),
		Reactions: model.ReactionMap{},
		CreatedAt: time.Now().UTC(),
	}
	if err := h.messages.Create(ctx, m); err != nil {
		return nil, err
	}
	h.attachSender(ctx, m)
	h.stopTyping(GroupScopeKey(groupID), senderID)
	h.deliverGroup(ctx, m, OutgoingMessage{Type: EventGroupMessage, Payload: m}, true)
	return m, nil
}

// EditMessage rewrites a message's content. Author-only.
func (h *Hub) EditMessage(ctx context.Context, userID, messageID, text string) (*model.Message, error) {
	if content.IsBlank(text) {
		return nil, ErrEmptyMessage
	}
	m, err := h.messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if m.SenderID != userID {
		return nil, ErrNotAuthor
	}
	editedAt := time.Now().UTC()
	clean := content.Sanitize(text)
	if err := h.messages.UpdateContent(ctx, messageID, clean, editedAt); err != nil {
		return nil, err
	}
	m.Content = clean
	m.EditedAt = &editedAt
	frame := OutgoingMessage{Type: EventMessageEdited, Payload: MessageEditedPayload{
		MessageID:  m.ID,
		GroupID:    m.GroupID,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		Content:    clean,
		EditedAt:   editedAt,
	}}
	h.deliver(ctx, m, frame)
	return m, nil
}

// DeleteMessage hard-deletes a message. Author-only. Returns the deleted
// message so REST callers can report what was removed.
func (h *Hub) DeleteMessage(ctx context.Context, userID, messageID string) (*model.Message, error) {
	m, err := h.messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if m.SenderID != userID {
		return nil, ErrNotAuthor
	}
	if err := h.messages.Delete(ctx, messageID); err != nil {
		return nil, err
	}
	frame := OutgoingMessage{Type: EventMessageDeleted, Payload: MessageDeletedPayload{
		MessageID:  m.ID,
		GroupID:    m.GroupID,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
	}}
	h.deliver(ctx, m, frame)
	return m, nil
}

// AddReaction increments the emoji counter on a message. Any participant of
// the chat may react, including to their own messages, any number of times.
func (h *Hub) AddReaction(ctx context.Context, userID, messageID, emoji string) (model.ReactionMap, error) {
	if !content.ValidEmoji(emoji) {
		return nil, ErrBadEmoji
	}
	m, err := h.messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if err := h.checkParticipant(ctx, m, userID); err != nil {
		return nil, err
	}
	reactions, err := h.messages.AddReaction(ctx, messageID, emoji)
	if err != nil {
		return nil, err
	}
	frame := OutgoingMessage{Type: EventReactionAdded, Payload: ReactionPayload{
		MessageID: m.ID,
		GroupID:   m.GroupID,
		UserID:    userID,
		Emoji:     emoji,
		Reactions: reactions,
	}}
	h.deliver(ctx, m, frame)
	return reactions, nil
}

// TogglePin flips the pinned flag on a group message. Any member may toggle;
// last write wins. Returns the new state and the affected message.
func (h *Hub) TogglePin(ctx context.Context, userID, messageID string) (bool, *model.Message, error) {
	m, err := h.messages.GetByID(ctx, messageID)
	if err != nil {
		return false, nil, err
	}
	if m.GroupID == "" {
		return false, nil, ErrNotGroupMessage
	}
	ok, err := h.groups.IsMember(ctx, m.GroupID, userID)
	if err != nil {
		return false, nil, err
	}
	if !ok {
		return false, nil, ErrNotMember
	}
	pinned, err := h.messages.TogglePin(ctx, messageID)
	if err != nil {
		return false, nil, err
	}
	m.Pinned = pinned
	frame := OutgoingMessage{Type: EventPinToggled, Payload: PinPayload{
		MessageID: m.ID,
		GroupID:   m.GroupID,
		Pinned:    pinned,
		PinnedBy:  userID,
	}}
	h.deliver(ctx, m, frame)
	return pinned, m, nil
}

// checkParticipant verifies the user belongs to the chat the message lives in.
func (h *Hub) checkParticipant(ctx context.Context, m *model.Message, userID string) error {
	if m.IsDirect() {
		if userID != m.SenderID && userID != m.ReceiverID {
			return ErrNotParticipant
		}
		return nil
	}
	ok, err := h.groups.IsMember(ctx, m.GroupID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotMember
	}
	return nil
}

func (h *Hub) attachSender(ctx context.Context, m *model.Message) {
	p, err := h.profiles.GetByID(ctx, m.SenderID)
	if err != nil {
		logger.Errorf("ws attach sender %s: %v", m.SenderID, err)
		return
	}
	m.Sender = p
}

// deliver routes a frame about an existing message to the right audience.
func (h *Hub) deliver(ctx context.Context, m *model.Message, frame OutgoingMessage) {
	if m.IsDirect() {
		h.deliverDirect(m, frame, false)
		return
	}
	h.deliverGroup(ctx, m, frame, false)
}

// deliverDirect enqueues the frame on every connection of both parties that
// currently watches this pair. For fresh messages, a receiver with no watching
// connection gets a push notification instead.
func (h *Hub) deliverDirect(m *model.Message, frame OutgoingMessage, fresh bool) {
	h.mu.RLock()
	receiverWatching := false
	for c := range h.clients[m.ReceiverID] {
		if c.watchingDirect(m.SenderID) {
			c.enqueue(frame)
			receiverWatching = true
		}
	}
	for c := range h.clients[m.SenderID] {
		if c.watchingDirect(m.ReceiverID) {
			c.enqueue(frame)
		}
	}
	h.mu.RUnlock()

	if fresh && !receiverWatching && h.push != nil {
		title := "New message"
		if m.Sender != nil {
			title = m.Sender.DisplayName()
		}
		go h.push.Notify(h.ctx, m.ReceiverID, title, m.Content,
			map[string]string{"type": "direct_message", "sender_id": m.SenderID})
	}
}

// deliverGroup enqueues the frame on every member connection watching the
// group. For fresh messages, members without a watching connection (except the
// sender) get a push notification.
func (h *Hub) deliverGroup(ctx context.Context, m *model.Message, frame OutgoingMessage, fresh bool) {
	memberIDs, err := h.groups.GetMemberIDs(ctx, m.GroupID)
	if err != nil {
		logger.Errorf("ws deliver group %s: %v", m.GroupID, err)
		return
	}
	var missed []string
	h.mu.RLock()
	for _, id := range memberIDs {
		watching := false
		for c := range h.clients[id] {
			if c.watchingGroup(m.GroupID) {
				c.enqueue(frame)
				watching = true
			}
		}
		if fresh && !watching && id != m.SenderID {
			missed = append(missed, id)
		}
	}
	h.mu.RUnlock()

	if fresh && h.push != nil {
		title := "New group message"
		if m.Sender != nil {
			title = m.Sender.DisplayName()
		}
		for _, id := range missed {
			go h.push.Notify(h.ctx, id, title, m.Content,
				map[string]string{"type": "group_message", "group_id": m.GroupID, "sender_id": m.SenderID})
		}
	}
}

// handleTyping records a typing pulse and broadcasts the start edge. Repeated
// pulses within the TTL only refresh the stored fact.
func (h *Hub) handleTyping(ctx context.Context, c *Client, msg IncomingMessage) error {
	var scope string
	switch {
	case msg.GroupID != "":
		ok, err := h.groups.IsMember(ctx, msg.GroupID, c.userID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotMember
		}
		scope = GroupScopeKey(msg.GroupID)
	case msg.PeerID != "":
		ok, err := h.friends.AreFriends(ctx, c.userID, msg.PeerID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotFriends
		}
		scope = DirectScopeKey(c.userID, msg.PeerID)
	default:
		return ErrNotParticipant
	}

	if err := h.typing.SetTyping(ctx, scope, c.userID, h.typingTTL); err != nil {
		logger.Errorf("ws typing set user=%s: %v", c.userID, err)
	}
	if h.tracker.pulse(scope, c.userID) {
		h.broadcastTyping(scope, c.userID, EventTyping)
	}
	return nil
}

// stopTyping clears the user's typing fact immediately (called on send).
func (h *Hub) stopTyping(scope, userID string) {
	if h.tracker.cancel(scope, userID) {
		if err := h.typing.ClearTyping(h.ctx, scope, userID); err != nil {
			logger.Errorf("ws typing clear user=%s: %v", userID, err)
		}
		h.broadcastTyping(scope, userID, EventTypingStopped)
	}
}

// typingExpired is the tracker's debounced expiry callback.
func (h *Hub) typingExpired(scope, userID string) {
	if err := h.typing.ClearTyping(h.ctx, scope, userID); err != nil {
		logger.Errorf("ws typing expire clear user=%s: %v", userID, err)
	}
	h.broadcastTyping(scope, userID, EventTypingStopped)
}

// broadcastTyping fans a typing edge out to everyone watching the scope,
// excluding the typist's own connections.
func (h *Hub) broadcastTyping(scope, userID string, event EventType) {
	if groupID, ok := strings.CutPrefix(scope, "group:"); ok {
		payload := TypingPayload{GroupID: groupID, UserID: userID}
		memberIDs, err := h.groups.GetMemberIDs(h.ctx, groupID)
		if err != nil {
			logger.Errorf("ws typing broadcast group %s: %v", groupID, err)
			return
		}
		h.mu.RLock()
		for _, id := range memberIDs {
			if id == userID {
				continue
			}
			for c := range h.clients[id] {
				if c.watchingGroup(groupID) {
					c.enqueue(OutgoingMessage{Type: event, Payload: payload})
				}
			}
		}
		h.mu.RUnlock()
		return
	}

	pair, ok := strings.CutPrefix(scope, "dm:")
	if !ok {
		return
	}
	lo, hi, found := strings.Cut(pair, ":")
	if !found {
		return
	}
	peer := lo
	if peer == userID {
		peer = hi
	}
	payload := TypingPayload{PeerID: userID, UserID: userID}
	h.mu.RLock()
	for c := range h.clients[peer] {
		if c.watchingDirect(userID) {
			c.enqueue(OutgoingMessage{Type: event, Payload: payload})
		}
	}
	h.mu.RUnlock()
}
