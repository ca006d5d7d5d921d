package services

import (
	"encoding/json"
	"testing"

	"huddle/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newRelayFixture() (*SignalingRelay, *PresenceTable, *ConnectionRegistry) {
	presence := NewPresenceTable()
	conns := NewConnectionRegistry()
	return NewSignalingRelay(presence, conns, NopMetrics{}, zap.NewNop().Sugar()), presence, conns
}

func online(p *PresenceTable, r *ConnectionRegistry, c *fakeConn) {
	r.Add(c)
	p.Register(c.Identity(), c.ID())
}

func TestRelay_CallToAbsentUserIsSilent(t *testing.T) {
	relay, presence, conns := newRelayFixture()
	a := newFakeConn(1, "alice")
	online(presence, conns, a)

	delivered := relay.RequestCall(a.Identity(), a.ID(), 42, json.RawMessage(`{"sdp":"x"}`))
	assert.False(t, delivered)
	assert.Empty(t, a.Events())
}

func TestRelay_CallAnswerRoundTrip(t *testing.T) {
	relay, presence, conns := newRelayFixture()
	a := newFakeConn(1, "alice")
	b := newFakeConn(2, "bob")
	online(presence, conns, a)
	online(presence, conns, b)

	require.True(t, relay.RequestCall(a.Identity(), a.ID(), b.Identity().ID, json.RawMessage(`{"sdp":"x"}`)))

	calls := b.EventsOfType(domain.EventIncomingCall)
	require.Len(t, calls, 1)
	call := calls[0].Payload.(domain.IncomingCall)
	assert.Equal(t, domain.UserID(1), call.FromUserID)
	assert.Equal(t, "alice", call.FromUsername)
	assert.Equal(t, a.ID(), call.FromHandle)
	assert.JSONEq(t, `{"sdp":"x"}`, string(call.Offer))

	require.True(t, relay.AnswerCall(b.ID(), call.FromHandle, json.RawMessage(`{"sdp":"y"}`)))

	answers := a.EventsOfType(domain.EventCallAccepted)
	require.Len(t, answers, 1)
	answer := answers[0].Payload.(domain.CallAccepted)
	assert.JSONEq(t, `{"sdp":"y"}`, string(answer.Answer))
	assert.Equal(t, b.ID(), answer.FromHandle)
	assert.Empty(t, b.EventsOfType(domain.EventCallAccepted))
}

func TestRelay_PayloadIsPassedVerbatim(t *testing.T) {
	relay, presence, conns := newRelayFixture()
	a := newFakeConn(1, "alice")
	b := newFakeConn(2, "bob")
	online(presence, conns, a)
	online(presence, conns, b)

	raw := json.RawMessage(`{"candidate":"candidate:1 1 UDP 2122252543 10.0.0.1 54400 typ host","sdpMid":"0","weird":[1,{"x":null}]}`)
	require.True(t, relay.RelayICECandidate(a.ID(), b.ID(), raw))

	got := b.EventsOfType(domain.EventICECandidate)
	require.Len(t, got, 1)
	c := got[0].Payload.(domain.ICECandidate)
	assert.Equal(t, string(raw), string(c.Candidate))
	assert.Equal(t, a.ID(), c.FromHandle)
}

func TestRelay_MissingHandleDropsSilently(t *testing.T) {
	relay, presence, conns := newRelayFixture()
	a := newFakeConn(1, "alice")
	online(presence, conns, a)

	assert.False(t, relay.AnswerCall(a.ID(), "gone", json.RawMessage(`{}`)))
	assert.False(t, relay.RelayICECandidate(a.ID(), "gone", json.RawMessage(`{}`)))
}

func TestRelay_CallGoesToNewestConnection(t *testing.T) {
	relay, presence, conns := newRelayFixture()
	a := newFakeConn(1, "alice")
	bOld := newFakeConn(2, "bob")
	bNew := newFakeConn(2, "bob")
	online(presence, conns, a)
	online(presence, conns, bOld)
	online(presence, conns, bNew)

	require.True(t, relay.RequestCall(a.Identity(), a.ID(), 2, json.RawMessage(`{}`)))
	assert.Len(t, bNew.EventsOfType(domain.EventIncomingCall), 1)
	assert.Empty(t, bOld.Events())
}
