package mesh_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peacepad-signaling/internal/hub"
	"peacepad-signaling/internal/mesh"
)

func sessionUsersEnv(t *testing.T, users ...string) hub.Envelope {
	t.Helper()
	raw, err := json.Marshal(hub.SessionUsersPayload{Code: "123456", Users: users})
	require.NoError(t, err)
	return hub.Envelope{Type: hub.KindSessionUsers, Payload: raw}
}

func offerEnv(from string) hub.Envelope {
	return hub.Envelope{Type: hub.KindOffer, From: from, Payload: json.RawMessage(`{"sdp":"offer:` + from + `"}`)}
}

func TestCoordinator_PeerJoinedBeforeMediaIsQueued(t *testing.T) {
	factory := newFakeFactory("A")
	sig := &recordingSignaler{}
	c := mesh.NewCoordinator("A", factory, sig)
	ctx := context.Background()

	require.NoError(t, c.HandleEnvelope(ctx, hub.Envelope{Type: hub.KindPeerJoined, From: "B"}))
	require.NoError(t, c.HandleEnvelope(ctx, hub.Envelope{Type: hub.KindPeerJoined, From: "C"}))

	peers, _ := c.Pending()
	assert.Equal(t, 2, peers)
	assert.Empty(t, c.Peers())
	assert.Empty(t, sig.ofKind(hub.KindOffer))

	require.NoError(t, c.MediaReady(ctx))
	require.NoError(t, c.MediaReady(ctx))

	offers := sig.ofKind(hub.KindOffer)
	require.Len(t, offers, 2)
	assert.Equal(t, "B", offers[0].To, "queued peers drain in arrival order")
	assert.Equal(t, "C", offers[1].To)
	assert.Equal(t, []string{"B", "C"}, c.Peers())
	assert.Equal(t, 1, factory.built("B"))
	peers, _ = c.Pending()
	assert.Zero(t, peers)
}

func TestCoordinator_OfferBeforeConnectionIsAnsweredOnce(t *testing.T) {
	factory := newFakeFactory("C")
	sig := &recordingSignaler{}
	c := mesh.NewCoordinator("C", factory, sig)
	ctx := context.Background()

	// newcomer learns about A and B but media is not ready yet
	require.NoError(t, c.HandleEnvelope(ctx, sessionUsersEnv(t, "A", "B")))
	require.NoError(t, c.HandleEnvelope(ctx, offerEnv("A")))
	require.NoError(t, c.HandleEnvelope(ctx, hub.Envelope{Type: hub.KindICECandidate, From: "A", Payload: json.RawMessage(`{}`)}))

	_, offers := c.Pending()
	assert.Equal(t, 1, offers)
	assert.Empty(t, sig.ofKind(hub.KindAnswer))

	require.NoError(t, c.MediaReady(ctx))

	answers := sig.ofKind(hub.KindAnswer)
	require.Len(t, answers, 1)
	assert.Equal(t, "A", answers[0].To)
	assert.Empty(t, sig.ofKind(hub.KindOffer), "the newcomer never offers")

	peerA := factory.only("A")
	require.NotNil(t, peerA)
	assert.Equal(t, []string{"offer:A"}, peerA.acceptedOffers)
	assert.Equal(t, 0, peerA.offersCreated)
	assert.Equal(t, 1, peerA.candidates, "early candidate applied after the answer")

	// B's offer arrives after its connection object exists
	require.NoError(t, c.HandleEnvelope(ctx, offerEnv("B")))
	assert.Len(t, sig.ofKind(hub.KindAnswer), 2)
	assert.Equal(t, 1, factory.built("B"))
	_, offers = c.Pending()
	assert.Zero(t, offers)
}

func TestCoordinator_OfferFromUnannouncedPeer(t *testing.T) {
	factory := newFakeFactory("B")
	sig := &recordingSignaler{}
	c := mesh.NewCoordinator("B", factory, sig)
	ctx := context.Background()

	require.NoError(t, c.HandleEnvelope(ctx, offerEnv("A")))
	require.NoError(t, c.MediaReady(ctx))

	assert.Len(t, sig.ofKind(hub.KindAnswer), 1)
	assert.Equal(t, 1, factory.built("A"))

	// with media ready, an unannounced offer is answered at once
	require.NoError(t, c.HandleEnvelope(ctx, offerEnv("D")))
	assert.Len(t, sig.ofKind(hub.KindAnswer), 2)
	assert.Equal(t, []string{"A", "D"}, c.Peers())
}

func TestCoordinator_AnswerCompletesOffer(t *testing.T) {
	factory := newFakeFactory("A")
	sig := &recordingSignaler{}
	c := mesh.NewCoordinator("A", factory, sig)
	ctx := context.Background()
	require.NoError(t, c.MediaReady(ctx))

	require.NoError(t, c.HandleEnvelope(ctx, hub.Envelope{Type: hub.KindPeerJoined, From: "B"}))
	// B's candidate overtakes its answer
	require.NoError(t, c.HandleEnvelope(ctx, hub.Envelope{Type: hub.KindICECandidate, From: "B", Payload: json.RawMessage(`{}`)}))
	peerB := factory.only("B")
	require.NotNil(t, peerB)
	assert.Zero(t, peerB.candidates, "held until the answer is applied")

	require.NoError(t, c.HandleEnvelope(ctx, hub.Envelope{Type: hub.KindAnswer, From: "B", Payload: json.RawMessage(`{}`)}))
	require.NoError(t, c.HandleEnvelope(ctx, hub.Envelope{Type: hub.KindAnswer, From: "ghost", Payload: json.RawMessage(`{}`)}))

	assert.True(t, peerB.negotiated())
	assert.Equal(t, 1, peerB.candidates)

	require.NoError(t, c.HandleEnvelope(ctx, hub.Envelope{Type: hub.KindICECandidate, From: "B", Payload: json.RawMessage(`{}`)}))
	assert.Equal(t, 2, peerB.candidates)
}

func TestCoordinator_PeerLeftForgetsEverything(t *testing.T) {
	factory := newFakeFactory("C")
	sig := &recordingSignaler{}
	c := mesh.NewCoordinator("C", factory, sig)
	ctx := context.Background()

	require.NoError(t, c.HandleEnvelope(ctx, sessionUsersEnv(t, "A", "B")))
	require.NoError(t, c.HandleEnvelope(ctx, offerEnv("B")))
	require.NoError(t, c.HandleEnvelope(ctx, hub.Envelope{Type: hub.KindPeerLeft, From: "B"}))

	peers, offers := c.Pending()
	assert.Equal(t, 1, peers)
	assert.Zero(t, offers)

	require.NoError(t, c.MediaReady(ctx))
	assert.Equal(t, []string{"A"}, c.Peers())

	require.NoError(t, c.HandleEnvelope(ctx, hub.Envelope{Type: hub.KindPeerLeft, From: "A"}))
	assert.Empty(t, c.Peers())
	assert.True(t, factory.only("A").closed)
}

func TestCoordinator_IgnoresSelfAndDuplicates(t *testing.T) {
	factory := newFakeFactory("A")
	sig := &recordingSignaler{}
	c := mesh.NewCoordinator("A", factory, sig)
	ctx := context.Background()
	require.NoError(t, c.MediaReady(ctx))

	require.NoError(t, c.HandleEnvelope(ctx, hub.Envelope{Type: hub.KindPeerJoined, From: "A"}))
	require.NoError(t, c.HandleEnvelope(ctx, hub.Envelope{Type: hub.KindPeerJoined, From: "B"}))
	require.NoError(t, c.HandleEnvelope(ctx, hub.Envelope{Type: hub.KindPeerJoined, From: "B"}))

	assert.Equal(t, []string{"B"}, c.Peers())
	assert.Len(t, sig.ofKind(hub.KindOffer), 1)
}

func TestCoordinator_JoinAndLeave(t *testing.T) {
	factory := newFakeFactory("A")
	sig := &recordingSignaler{}
	c := mesh.NewCoordinator("A", factory, sig)
	ctx := context.Background()

	assert.ErrorIs(t, c.Leave(), mesh.ErrNotInSession)

	require.NoError(t, c.Join("123456"))
	require.NoError(t, c.MediaReady(ctx))
	require.NoError(t, c.HandleEnvelope(ctx, hub.Envelope{Type: hub.KindPeerJoined, From: "B"}))
	require.NoError(t, c.Leave())

	joins := sig.ofKind(hub.KindJoinSession)
	require.Len(t, joins, 1)
	assert.JSONEq(t, `{"code":"123456"}`, string(joins[0].Payload))
	assert.Len(t, sig.ofKind(hub.KindLeaveSession), 1)
	assert.Empty(t, c.Peers())
	assert.True(t, factory.only("B").closed)
}

func TestCoordinator_MalformedSessionUsers(t *testing.T) {
	c := mesh.NewCoordinator("A", newFakeFactory("A"), &recordingSignaler{})

	err := c.HandleEnvelope(context.Background(), hub.Envelope{Type: hub.KindSessionUsers, Payload: json.RawMessage(`[`)})

	assert.Error(t, err)
}
