package ws

import (
	"context"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubGenerator struct {
	reply string
	err   error
}

func (s stubGenerator) GenerateReply(context.Context, string) (string, error) {
	return s.reply, s.err
}

func newTestServer(t *testing.T, gen replyGenerator) *WsServer {
	t.Helper()
	return NewWsServer(NewHub(), gen, Options{
		AllowedOrigins: []string{"*"},
		TimeLocation:   "UTC",
		AiTimeout:      time.Second,
	})
}

func dispatch(t *testing.T, s *WsServer, connID, event string, body any) error {
	t.Helper()
	env := Envelope{Event: event}
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		env.Body = raw
	}
	return s.router.dispatch(context.Background(), &ConnContext{ConnID: connID}, env)
}

var timePattern = regexp.MustCompile(`^(0[1-9]|1[0-2]):[0-5][0-9] (AM|PM)$`)

func TestServer_LobbyScenario(t *testing.T) {
	s := newTestServer(t, stubGenerator{reply: "Hello!"})
	connA := &mockConn{}
	connB := &mockConn{}
	s.hub.Register("a", connA)
	s.hub.Register("b", connB)

	require.NoError(t, dispatch(t, s, "a", "join_room", JoinRoomRequest{Room: "lobby", DisplayName: "Alice"}))
	require.NoError(t, dispatch(t, s, "b", "join_room", JoinRoomRequest{Room: "lobby", DisplayName: "Bob"}))

	// Alice sends "hi": both members receive it, sender included.
	require.NoError(t, dispatch(t, s, "a", "send_message", SendMessageRequest{Room: "lobby", Author: "Alice", Message: "hi"}))

	for _, c := range []*mockConn{connA, connB} {
		frames := c.received()
		require.Len(t, frames, 1)
		assert.Equal(t, "receive_message", frames[0].Event)
		msg, ok := frames[0].Body.(ChatMessage)
		require.True(t, ok)
		assert.Equal(t, "Alice", msg.Author)
		assert.Equal(t, "hi", msg.Message)
		assert.Regexp(t, timePattern, msg.Time)
	}

	// Bob types: Alice sees it, Bob does not.
	require.NoError(t, dispatch(t, s, "b", "typing", TypingRequest{Room: "lobby", Author: "Bob"}))

	framesA := connA.received()
	require.Len(t, framesA, 2)
	assert.Equal(t, "typing", framesA[1].Event)
	assert.Equal(t, "Bob", framesA[1].Body)
	assert.Len(t, connB.received(), 1)
}

func TestServer_StopTypingExcludesSenderAndHasNoBody(t *testing.T) {
	s := newTestServer(t, stubGenerator{})
	sender := &mockConn{}
	receiver := &mockConn{}
	s.hub.Register("s", sender)
	s.hub.Register("r", receiver)
	require.NoError(t, dispatch(t, s, "s", "join_room", JoinRoomRequest{Room: "lobby", DisplayName: "Sam"}))
	require.NoError(t, dispatch(t, s, "r", "join_room", JoinRoomRequest{Room: "lobby", DisplayName: "Ray"}))

	require.NoError(t, dispatch(t, s, "s", "stop_typing", TypingRequest{Room: "lobby", Author: "Sam"}))

	assert.Empty(t, sender.received())
	frames := receiver.received()
	require.Len(t, frames, 1)
	assert.Equal(t, outEnvelope{Event: "stop_typing"}, frames[0])
}

func TestServer_GetMembersRepliesToSenderOnly(t *testing.T) {
	s := newTestServer(t, stubGenerator{})
	asker := &mockConn{}
	other := &mockConn{}
	s.hub.Register("asker", asker)
	s.hub.Register("other", other)
	require.NoError(t, dispatch(t, s, "asker", "join_room", JoinRoomRequest{Room: "lobby", DisplayName: "Alice"}))
	require.NoError(t, dispatch(t, s, "other", "join_room", JoinRoomRequest{Room: "lobby", DisplayName: "Bob"}))

	require.NoError(t, dispatch(t, s, "asker", "get_members", GetMembersRequest{Room: "lobby"}))

	frames := asker.received()
	require.Len(t, frames, 1)
	assert.Equal(t, "members_list", frames[0].Event)
	assert.ElementsMatch(t, []string{"Alice", "Bob"}, frames[0].Body)
	assert.Empty(t, other.received())
}

func TestServer_LeaveRoomStopsDelivery(t *testing.T) {
	s := newTestServer(t, stubGenerator{})
	stay := &mockConn{}
	gone := &mockConn{}
	s.hub.Register("stay", stay)
	s.hub.Register("gone", gone)
	require.NoError(t, dispatch(t, s, "stay", "join_room", JoinRoomRequest{Room: "lobby", DisplayName: "Alice"}))
	require.NoError(t, dispatch(t, s, "gone", "join_room", JoinRoomRequest{Room: "lobby", DisplayName: "Bob"}))

	require.NoError(t, dispatch(t, s, "gone", "leave_room", LeaveRoomRequest{Room: "lobby"}))
	require.NoError(t, dispatch(t, s, "stay", "send_message", SendMessageRequest{Room: "lobby", Author: "Alice", Message: "bye"}))

	assert.Len(t, stay.received(), 1)
	assert.Empty(t, gone.received())
}

func TestServer_SendMessageToUnjoinedRoomIsHonored(t *testing.T) {
	// The sender never joined "lobby": the broadcast still reaches its
	// members. Long-standing relay behaviour, kept on purpose.
	s := newTestServer(t, stubGenerator{})
	member := &mockConn{}
	outsider := &mockConn{}
	s.hub.Register("member", member)
	s.hub.Register("outsider", outsider)
	require.NoError(t, dispatch(t, s, "member", "join_room", JoinRoomRequest{Room: "lobby", DisplayName: "Alice"}))

	require.NoError(t, dispatch(t, s, "outsider", "send_message", SendMessageRequest{Room: "lobby", Author: "Eve", Message: "hello"}))

	require.Len(t, member.received(), 1)
	assert.Empty(t, outsider.received(), "the outsider is not a member, so it gets no copy")
}

func TestServer_MissingRoomIsDropped(t *testing.T) {
	s := newTestServer(t, stubGenerator{})
	c := &mockConn{}
	s.hub.Register("c", c)

	for _, event := range []string{"join_room", "leave_room", "get_members", "send_message", "typing", "stop_typing"} {
		err := dispatch(t, s, "c", event, map[string]string{})
		assert.ErrorIs(t, err, errMissingRoom, event)
	}
	assert.Empty(t, c.received())
}

func TestServer_JoinWithoutNameShowsUnknown(t *testing.T) {
	s := newTestServer(t, stubGenerator{})
	c := &mockConn{}
	s.hub.Register("c", c)

	require.NoError(t, dispatch(t, s, "c", "join_room", JoinRoomRequest{Room: "lobby"}))
	require.NoError(t, dispatch(t, s, "c", "get_members", GetMembersRequest{Room: "lobby"}))

	frames := c.received()
	require.Len(t, frames, 1)
	assert.Equal(t, []string{UnknownMember}, frames[0].Body)
}

func TestServer_TimestampFormat(t *testing.T) {
	s := newTestServer(t, stubGenerator{})
	assert.Regexp(t, timePattern, s.timestamp())
}

func TestNewWsServer_BadTimeLocationFallsBackToUTC(t *testing.T) {
	s := NewWsServer(NewHub(), stubGenerator{}, Options{
		TimeLocation: "Atlantis/Nowhere",
		AiTimeout:    time.Second,
	})
	assert.Equal(t, time.UTC, s.loc)
}
