package remote

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pongDatagram(t *testing.T, source string, data PongData) []byte {
	t.Helper()
	msg, err := NewMessage(source, "", TypePong, data)
	require.NoError(t, err)
	raw, err := json.Marshal(msg)
	require.NoError(t, err)
	return raw
}

func TestOpenSharesMulticastPort(t *testing.T) {
	port := freeUDPPort(t)

	// A locally launched editor holds the same multicast port; both sides
	// bind with the reuse options, so the second bind must succeed.
	first := NewDiscovery(DiscoveryConfig{Group: "239.0.0.1", Port: port}, "a")
	require.NoError(t, first.Open())
	defer first.Close()

	second := NewDiscovery(DiscoveryConfig{Group: "239.0.0.1", Port: port}, "b")
	require.NoError(t, second.Open())
	second.Close()
}

func TestHandleDatagramAcceptsMatchingPong(t *testing.T) {
	d := NewDiscovery(DiscoveryConfig{Group: "239.0.0.1", Port: 6766}, "me")

	node, ok := d.handleDatagram(pongDatagram(t, "editor-1", PongData{
		ProjectName:   "MyGame",
		EngineVersion: "5.4.1",
		ProcessID:     4242,
	}))
	require.True(t, ok)
	assert.Equal(t, "editor-1", node.NodeID)
	assert.Equal(t, 4242, node.ProcessID)
	assert.Equal(t, "MyGame", node.ProjectName)
	assert.Len(t, d.Nodes(), 1)
}

func TestHandleDatagramSkipsOwnSource(t *testing.T) {
	d := NewDiscovery(DiscoveryConfig{Group: "239.0.0.1", Port: 6766}, "me")
	_, ok := d.handleDatagram(pongDatagram(t, "me", PongData{}))
	assert.False(t, ok)
}

func TestHandleDatagramFiltersProject(t *testing.T) {
	d := NewDiscovery(DiscoveryConfig{Group: "239.0.0.1", Port: 6766, ProjectName: "MyGame"}, "me")

	_, ok := d.handleDatagram(pongDatagram(t, "editor-1", PongData{ProjectName: "OtherGame"}))
	assert.False(t, ok)

	// Editors that do not report a project name are retained; the name is
	// confirmed later over the command channel.
	_, ok = d.handleDatagram(pongDatagram(t, "editor-2", PongData{}))
	assert.True(t, ok)

	_, ok = d.handleDatagram(pongDatagram(t, "editor-3", PongData{ProjectName: "MyGame"}))
	assert.True(t, ok)
}

func TestHandleDatagramFiltersPID(t *testing.T) {
	d := NewDiscovery(DiscoveryConfig{Group: "239.0.0.1", Port: 6766, ExpectedPID: 100}, "me")

	_, ok := d.handleDatagram(pongDatagram(t, "editor-1", PongData{ProcessID: 200}))
	assert.False(t, ok)

	_, ok = d.handleDatagram(pongDatagram(t, "editor-2", PongData{ProcessID: 100}))
	assert.True(t, ok)

	// Missing PID passes; VerifyPID is the definitive check.
	_, ok = d.handleDatagram(pongDatagram(t, "editor-3", PongData{}))
	assert.True(t, ok)
}

func TestHandleDatagramFiltersNodeID(t *testing.T) {
	d := NewDiscovery(DiscoveryConfig{Group: "239.0.0.1", Port: 6766, ExpectedNodeID: "editor-7"}, "me")

	_, ok := d.handleDatagram(pongDatagram(t, "editor-1", PongData{}))
	assert.False(t, ok)

	_, ok = d.handleDatagram(pongDatagram(t, "editor-7", PongData{}))
	assert.True(t, ok)
}

func TestHandleDatagramRejectsNoise(t *testing.T) {
	d := NewDiscovery(DiscoveryConfig{Group: "239.0.0.1", Port: 6766}, "me")

	cases := [][]byte{
		[]byte("not json at all"),
		[]byte(`{"version":1,"magic":"wrong","source":"x","type":"pong"}`),
		[]byte(`{"version":1,"magic":"ue_py","source":"x","type":"ping"}`),
		[]byte(`{"version":1,"magic":"ue_py","type":"pong"}`),
	}
	for _, raw := range cases {
		_, ok := d.handleDatagram(raw)
		assert.False(t, ok, "datagram should be rejected: %s", raw)
	}
	assert.Empty(t, d.Nodes())
}

func TestHandleDatagramDeduplicatesByNodeID(t *testing.T) {
	d := NewDiscovery(DiscoveryConfig{Group: "239.0.0.1", Port: 6766}, "me")

	d.handleDatagram(pongDatagram(t, "editor-1", PongData{ProjectName: "A"}))
	d.handleDatagram(pongDatagram(t, "editor-1", PongData{ProjectName: "B"}))

	nodes := d.Nodes()
	require.Len(t, nodes, 1)
	assert.Equal(t, "B", nodes[0].ProjectName)
}

func TestSubscribeReceivesNodes(t *testing.T) {
	d := NewDiscovery(DiscoveryConfig{Group: "239.0.0.1", Port: 6766}, "me")
	sub := d.Subscribe()

	d.handleDatagram(pongDatagram(t, "editor-1", PongData{ProjectName: "MyGame"}))

	select {
	case node := <-sub:
		assert.Equal(t, "editor-1", node.NodeID)
	default:
		t.Fatal("subscriber channel empty")
	}
}
