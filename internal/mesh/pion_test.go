package mesh_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peacepad-signaling/internal/mesh"
)

func TestPionFactory_OfferAnswerRoundTrip(t *testing.T) {
	factory, err := mesh.NewPionFactory()
	require.NoError(t, err)
	ctx := context.Background()

	offerer, err := factory.NewPeer("B", nil)
	require.NoError(t, err)
	defer offerer.Close()
	answerer, err := factory.NewPeer("A", nil)
	require.NoError(t, err)
	defer answerer.Close()

	offer, err := offerer.CreateOffer(ctx)
	require.NoError(t, err)
	var sd struct {
		Type string `json:"type"`
		SDP  string `json:"sdp"`
	}
	require.NoError(t, json.Unmarshal(offer, &sd))
	assert.Equal(t, "offer", sd.Type)
	assert.Contains(t, sd.SDP, "m=video")
	assert.Contains(t, sd.SDP, "m=audio")

	answer, err := answerer.AcceptOffer(ctx, offer)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(answer, &sd))
	assert.Equal(t, "answer", sd.Type)

	require.NoError(t, offerer.AcceptAnswer(answer))
}

func TestPionFactory_RejectsGarbage(t *testing.T) {
	factory, err := mesh.NewPionFactory()
	require.NoError(t, err)
	peer, err := factory.NewPeer("X", nil)
	require.NoError(t, err)
	defer peer.Close()

	_, err = peer.AcceptOffer(context.Background(), json.RawMessage(`"nope"`))
	assert.Error(t, err)
	assert.Error(t, peer.AddCandidate(json.RawMessage(`[]`)))
}
