package ws

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/edutrack/messaging/internal/model"
	"github.com/edutrack/messaging/internal/repository"
)

type fakeProfiles struct{}

func (f *fakeProfiles) GetByID(ctx context.Context, id string) (*model.Profile, error) {
	return &model.Profile{ID: id, Name: "user-" + id, Email: id + "@test.local"}, nil
}

type fakeMessages struct {
	mu   sync.Mutex
	byID map[string]*model.Message
	// historyGate blocks DirectHistory for the keyed peer until closed;
	// groupHistoryGate does the same for GroupHistory by group id.
	historyGate      map[string]chan struct{}
	groupHistoryGate map[string]chan struct{}
}

func newFakeMessages() *fakeMessages {
	return &fakeMessages{
		byID:             make(map[string]*model.Message),
		historyGate:      make(map[string]chan struct{}),
		groupHistoryGate: make(map[string]chan struct{}),
	}
}

func (f *fakeMessages) Create(ctx context.Context, m *model.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *m
	f.byID[m.ID] = &cp
	return nil
}

func (f *fakeMessages) GetByID(ctx context.Context, id string) (*model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (f *fakeMessages) DirectHistory(ctx context.Context, selfID, peerID string) ([]model.Message, error) {
	f.mu.Lock()
	gate := f.historyGate[peerID]
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Message
	for _, m := range f.byID {
		if m.GroupID == "" &&
			((m.SenderID == selfID && m.ReceiverID == peerID) || (m.SenderID == peerID && m.ReceiverID == selfID)) {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (f *fakeMessages) GroupHistory(ctx context.Context, groupID string) ([]model.Message, error) {
	f.mu.Lock()
	gate := f.groupHistoryGate[groupID]
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Message
	for _, m := range f.byID {
		if m.GroupID == groupID {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (f *fakeMessages) UpdateContent(ctx context.Context, id, content string, editedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	m.Content = content
	m.EditedAt = &editedAt
	return nil
}

func (f *fakeMessages) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.byID, id)
	return nil
}

func (f *fakeMessages) AddReaction(ctx context.Context, id, emoji string) (model.ReactionMap, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if m.Reactions == nil {
		m.Reactions = model.ReactionMap{}
	}
	m.Reactions[emoji]++
	out := make(model.ReactionMap, len(m.Reactions))
	for k, v := range m.Reactions {
		out[k] = v
	}
	return out, nil
}

func (f *fakeMessages) TogglePin(ctx context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.byID[id]
	if !ok {
		return false, repository.ErrNotFound
	}
	m.Pinned = !m.Pinned
	return m.Pinned, nil
}

type fakeFriends struct {
	pairs map[string]bool
}

func (f *fakeFriends) AreFriends(ctx context.Context, a, b string) (bool, error) {
	lo, hi := model.NormalizePair(a, b)
	return f.pairs[lo+"|"+hi], nil
}

func befriend(f *fakeFriends, a, b string) {
	lo, hi := model.NormalizePair(a, b)
	f.pairs[lo+"|"+hi] = true
}

type fakeGroups struct {
	members map[string][]string
}

func (f *fakeGroups) IsMember(ctx context.Context, groupID, userID string) (bool, error) {
	for _, id := range f.members[groupID] {
		if id == userID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeGroups) GetMemberIDs(ctx context.Context, groupID string) ([]string, error) {
	return f.members[groupID], nil
}

func (f *fakeGroups) GetMembers(ctx context.Context, groupID string) ([]model.GroupMember, error) {
	var out []model.GroupMember
	for _, id := range f.members[groupID] {
		out = append(out, model.GroupMember{GroupID: groupID, UserID: id, Role: model.GroupRoleMember})
	}
	return out, nil
}

type fakeTyping struct {
	mu  sync.Mutex
	set map[string]bool
}

func (f *fakeTyping) SetTyping(ctx context.Context, scope, userID string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.set[scope+"|"+userID] = true
	return nil
}

func (f *fakeTyping) ClearTyping(ctx context.Context, scope, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.set, scope+"|"+userID)
	return nil
}

type fakePush struct {
	notified chan string
}

func (f *fakePush) Notify(ctx context.Context, userID, title, body string, data map[string]string) {
	f.notified <- userID
}

type hubFixture struct {
	hub      *Hub
	messages *fakeMessages
	friends  *fakeFriends
	groups   *fakeGroups
	typing   *fakeTyping
	push     *fakePush
}

func newHubFixture(t *testing.T, typingTTL time.Duration) *hubFixture {
	t.Helper()
	f := &hubFixture{
		messages: newFakeMessages(),
		friends:  &fakeFriends{pairs: make(map[string]bool)},
		groups:   &fakeGroups{members: make(map[string][]string)},
		typing:   &fakeTyping{set: make(map[string]bool)},
		push:     &fakePush{notified: make(chan string, 8)},
	}
	f.hub = NewHub(context.Background(), &fakeProfiles{}, f.messages, f.friends, f.groups, f.typing, f.push,
		typingTTL, 100, 64)
	return f
}

// connect attaches a client without a real network connection.
func (f *hubFixture) connect(userID string) *Client {
	c := NewClient(f.hub, nil, userID)
	f.hub.addClient(c)
	return c
}

func watchDirect(c *Client, peerID string) {
	c.subMu.Lock()
	c.dmPeer = peerID
	c.subMu.Unlock()
}

func watchGroup(c *Client, groupID string) {
	c.subMu.Lock()
	c.groupID = groupID
	c.subMu.Unlock()
}

func recvFrame(t *testing.T, c *Client) OutgoingMessage {
	t.Helper()
	select {
	case m := <-c.send:
		return m
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for frame")
		return OutgoingMessage{}
	}
}

func requireNoFrame(t *testing.T, c *Client) {
	t.Helper()
	select {
	case m := <-c.send:
		t.Fatalf("unexpected frame %q", m.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSendDirectDeliversOnceToEachWatcher(t *testing.T) {
	f := newHubFixture(t, time.Second)
	befriend(f.friends, "alice", "bob")

	aliceC := f.connect("alice")
	bobC := f.connect("bob")
	watchDirect(aliceC, "bob")
	watchDirect(bobC, "alice")

	m, err := f.hub.SendDirect(context.Background(), "alice", "bob", "  hi bob  ")
	require.NoError(t, err)
	require.Equal(t, "alice", m.SenderID)
	require.Equal(t, "bob", m.ReceiverID)
	require.NotNil(t, m.Sender)

	for _, c := range []*Client{aliceC, bobC} {
		frame := recvFrame(t, c)
		require.Equal(t, EventDirectMessage, frame.Type)
		got, ok := frame.Payload.(*model.Message)
		require.True(t, ok)
		require.Equal(t, m.ID, got.ID)
		requireNoFrame(t, c)
	}

	stored, err := f.messages.GetByID(context.Background(), m.ID)
	require.NoError(t, err)
	require.Equal(t, m.Content, stored.Content)
}

func TestSendDirectBlankIsRejected(t *testing.T) {
	f := newHubFixture(t, time.Second)
	befriend(f.friends, "alice", "bob")

	_, err := f.hub.SendDirect(context.Background(), "alice", "bob", "   \n\t ")
	require.ErrorIs(t, err, ErrEmptyMessage)
	require.Empty(t, f.messages.byID)
}

func TestSendDirectRequiresFriendship(t *testing.T) {
	f := newHubFixture(t, time.Second)

	_, err := f.hub.SendDirect(context.Background(), "alice", "bob", "hello")
	require.ErrorIs(t, err, ErrNotFriends)
}

func TestSendDirectPushWhenReceiverNotWatching(t *testing.T) {
	f := newHubFixture(t, time.Second)
	befriend(f.friends, "alice", "bob")

	// Bob is connected but looking at a different conversation.
	bobC := f.connect("bob")
	watchDirect(bobC, "carol")

	_, err := f.hub.SendDirect(context.Background(), "alice", "bob", "are you there")
	require.NoError(t, err)
	requireNoFrame(t, bobC)

	select {
	case userID := <-f.push.notified:
		require.Equal(t, "bob", userID)
	case <-time.After(time.Second):
		t.Fatal("expected a push notification for bob")
	}
}

func TestSendGroupFansOutToWatchingMembersOnly(t *testing.T) {
	f := newHubFixture(t, time.Second)
	f.groups.members["g1"] = []string{"alice", "bob", "carol"}

	aliceC := f.connect("alice")
	bobC := f.connect("bob")
	carolC := f.connect("carol")
	watchGroup(aliceC, "g1")
	watchGroup(bobC, "g1")
	// Carol is connected but not watching the group.

	m, err := f.hub.SendGroup(context.Background(), "alice", "g1", "study session at 5")
	require.NoError(t, err)
	require.Equal(t, "g1", m.GroupID)

	require.Equal(t, EventGroupMessage, recvFrame(t, aliceC).Type)
	require.Equal(t, EventGroupMessage, recvFrame(t, bobC).Type)
	requireNoFrame(t, carolC)

	select {
	case userID := <-f.push.notified:
		require.Equal(t, "carol", userID)
	case <-time.After(time.Second):
		t.Fatal("expected a push notification for carol")
	}
}

func TestSendGroupRequiresMembership(t *testing.T) {
	f := newHubFixture(t, time.Second)
	f.groups.members["g1"] = []string{"bob"}

	_, err := f.hub.SendGroup(context.Background(), "alice", "g1", "hi")
	require.ErrorIs(t, err, ErrNotMember)
}

func TestEditMessageAuthorOnly(t *testing.T) {
	f := newHubFixture(t, time.Second)
	befriend(f.friends, "alice", "bob")
	m, err := f.hub.SendDirect(context.Background(), "alice", "bob", "original")
	require.NoError(t, err)

	_, err = f.hub.EditMessage(context.Background(), "bob", m.ID, "hijacked")
	require.ErrorIs(t, err, ErrNotAuthor)

	bobC := f.connect("bob")
	watchDirect(bobC, "alice")

	edited, err := f.hub.EditMessage(context.Background(), "alice", m.ID, "fixed")
	require.NoError(t, err)
	require.Equal(t, "fixed", edited.Content)
	require.NotNil(t, edited.EditedAt)

	frame := recvFrame(t, bobC)
	require.Equal(t, EventMessageEdited, frame.Type)
	payload, ok := frame.Payload.(MessageEditedPayload)
	require.True(t, ok)
	require.Equal(t, m.ID, payload.MessageID)
	require.Equal(t, "fixed", payload.Content)
}

func TestDeleteMessageAuthorOnlyAndHard(t *testing.T) {
	f := newHubFixture(t, time.Second)
	befriend(f.friends, "alice", "bob")
	m, err := f.hub.SendDirect(context.Background(), "alice", "bob", "oops")
	require.NoError(t, err)

	_, err = f.hub.DeleteMessage(context.Background(), "bob", m.ID)
	require.ErrorIs(t, err, ErrNotAuthor)

	_, err = f.hub.DeleteMessage(context.Background(), "alice", m.ID)
	require.NoError(t, err)

	_, err = f.messages.GetByID(context.Background(), m.ID)
	require.ErrorIs(t, err, repository.ErrNotFound)

	_, err = f.hub.DeleteMessage(context.Background(), "alice", m.ID)
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestAddReactionAccumulatesAndBroadcasts(t *testing.T) {
	f := newHubFixture(t, time.Second)
	f.groups.members["g1"] = []string{"alice", "bob"}
	m, err := f.hub.SendGroup(context.Background(), "alice", "g1", "passed the exam")
	require.NoError(t, err)

	bobC := f.connect("bob")
	watchGroup(bobC, "g1")

	reactions, err := f.hub.AddReaction(context.Background(), "bob", m.ID, "🎉")
	require.NoError(t, err)
	require.Equal(t, 1, reactions["🎉"])

	reactions, err = f.hub.AddReaction(context.Background(), "alice", m.ID, "🎉")
	require.NoError(t, err)
	require.Equal(t, 2, reactions["🎉"])

	frame := recvFrame(t, bobC)
	require.Equal(t, EventReactionAdded, frame.Type)
	payload, ok := frame.Payload.(ReactionPayload)
	require.True(t, ok)
	require.Equal(t, "bob", payload.UserID)
	require.Equal(t, 1, payload.Reactions["🎉"])
}

func TestAddReactionRejectsOutsiders(t *testing.T) {
	f := newHubFixture(t, time.Second)
	f.groups.members["g1"] = []string{"alice"}
	m, err := f.hub.SendGroup(context.Background(), "alice", "g1", "hello")
	require.NoError(t, err)

	_, err = f.hub.AddReaction(context.Background(), "mallory", m.ID, "👀")
	require.ErrorIs(t, err, ErrNotMember)

	_, err = f.hub.AddReaction(context.Background(), "alice", m.ID, "not an emoji at all")
	require.ErrorIs(t, err, ErrBadEmoji)
}

func TestTogglePinRoundTrip(t *testing.T) {
	f := newHubFixture(t, time.Second)
	f.groups.members["g1"] = []string{"alice", "bob"}
	m, err := f.hub.SendGroup(context.Background(), "alice", "g1", "important")
	require.NoError(t, err)

	pinned, _, err := f.hub.TogglePin(context.Background(), "bob", m.ID)
	require.NoError(t, err)
	require.True(t, pinned)

	pinned, _, err = f.hub.TogglePin(context.Background(), "alice", m.ID)
	require.NoError(t, err)
	require.False(t, pinned)
}

func TestTogglePinRejectsDirectMessages(t *testing.T) {
	f := newHubFixture(t, time.Second)
	befriend(f.friends, "alice", "bob")
	m, err := f.hub.SendDirect(context.Background(), "alice", "bob", "dm")
	require.NoError(t, err)

	_, _, err = f.hub.TogglePin(context.Background(), "alice", m.ID)
	require.ErrorIs(t, err, ErrNotGroupMessage)
}

func TestSubscribeDirectDiscardsStaleHistory(t *testing.T) {
	f := newHubFixture(t, time.Second)
	befriend(f.friends, "alice", "bob")
	befriend(f.friends, "alice", "carol")

	aliceC := f.connect("alice")

	// The first subscribe's history load hangs until we release it.
	gate := make(chan struct{})
	f.messages.mu.Lock()
	f.messages.historyGate["bob"] = gate
	f.messages.mu.Unlock()

	require.NoError(t, f.hub.handleSubscribeDirect(context.Background(), aliceC, "bob"))
	require.NoError(t, f.hub.handleSubscribeDirect(context.Background(), aliceC, "carol"))

	// The carol snapshot arrives first.
	frame := recvFrame(t, aliceC)
	require.Equal(t, EventHistory, frame.Type)
	payload, ok := frame.Payload.(HistoryPayload)
	require.True(t, ok)
	require.Equal(t, "carol", payload.PeerID)

	// Releasing the stale bob load must not produce a second snapshot.
	close(gate)
	requireNoFrame(t, aliceC)
	require.True(t, aliceC.watchingDirect("carol"))
	require.False(t, aliceC.watchingDirect("bob"))
}

func TestSubscribeDirectDoesNotInvalidateGroupLoad(t *testing.T) {
	f := newHubFixture(t, time.Second)
	befriend(f.friends, "alice", "bob")
	f.groups.members["g1"] = []string{"alice", "bob"}

	aliceC := f.connect("alice")

	// The group history load hangs while the direct subscribe lands. Opening
	// a chat page subscribes both scopes back to back, so this interleaving
	// is the common case, not a corner.
	gate := make(chan struct{})
	f.messages.mu.Lock()
	f.messages.groupHistoryGate["g1"] = gate
	f.messages.mu.Unlock()

	require.NoError(t, f.hub.handleSubscribeGroup(context.Background(), aliceC, "g1"))
	require.NoError(t, f.hub.handleSubscribeDirect(context.Background(), aliceC, "bob"))

	frame := recvFrame(t, aliceC)
	require.Equal(t, EventHistory, frame.Type)
	payload, ok := frame.Payload.(HistoryPayload)
	require.True(t, ok)
	require.Equal(t, ScopeDirect, payload.Scope)
	require.Equal(t, "bob", payload.PeerID)

	// Releasing the group load must still commit the group scope: the direct
	// subscribe bumps only the direct generation.
	close(gate)
	frame = recvFrame(t, aliceC)
	require.Equal(t, EventHistory, frame.Type)
	payload, ok = frame.Payload.(HistoryPayload)
	require.True(t, ok)
	require.Equal(t, ScopeGroup, payload.Scope)
	require.Equal(t, "g1", payload.GroupID)

	require.True(t, aliceC.watchingDirect("bob"))
	require.True(t, aliceC.watchingGroup("g1"))
}

func TestSubscribeGroupRequiresMembership(t *testing.T) {
	f := newHubFixture(t, time.Second)
	f.groups.members["g1"] = []string{"bob"}
	aliceC := f.connect("alice")

	err := f.hub.handleSubscribeGroup(context.Background(), aliceC, "g1")
	require.ErrorIs(t, err, ErrNotMember)
}

func TestTypingDebouncedEdges(t *testing.T) {
	const ttl = 150 * time.Millisecond
	f := newHubFixture(t, ttl)
	befriend(f.friends, "alice", "bob")

	bobC := f.connect("bob")
	watchDirect(bobC, "alice")

	pulse := IncomingMessage{Type: EventTyping, PeerID: "bob"}
	aliceC := f.connect("alice")
	require.NoError(t, f.hub.handleTyping(context.Background(), aliceC, pulse))

	frame := recvFrame(t, bobC)
	require.Equal(t, EventTyping, frame.Type)

	// A second pulse inside the TTL extends the interval silently.
	require.NoError(t, f.hub.handleTyping(context.Background(), aliceC, pulse))
	requireNoFrame(t, bobC)

	// After the debounced expiry a single stop edge arrives.
	frame = recvFrame(t, bobC)
	require.Equal(t, EventTypingStopped, frame.Type)
	requireNoFrame(t, bobC)
}

func TestSendCancelsTyping(t *testing.T) {
	const ttl = 500 * time.Millisecond
	f := newHubFixture(t, ttl)
	befriend(f.friends, "alice", "bob")

	bobC := f.connect("bob")
	watchDirect(bobC, "alice")
	aliceC := f.connect("alice")

	require.NoError(t, f.hub.handleTyping(context.Background(), aliceC,
		IncomingMessage{Type: EventTyping, PeerID: "bob"}))
	require.Equal(t, EventTyping, recvFrame(t, bobC).Type)

	_, err := f.hub.SendDirect(context.Background(), "alice", "bob", "done typing")
	require.NoError(t, err)

	// Stop edge first (typing cancelled on send), then the message itself.
	require.Equal(t, EventTypingStopped, recvFrame(t, bobC).Type)
	require.Equal(t, EventDirectMessage, recvFrame(t, bobC).Type)
}
