package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRegisterAndDiscover(t *testing.T) {
	ctx := context.Background()
	reg := NewMemoryRegistry()

	require.NoError(t, reg.Register(ctx, "mainnet", Node{URL: "http://a:8545"}, 10))
	require.NoError(t, reg.Register(ctx, "mainnet", Node{URL: "http://b:8545", Weight: 2}, 10))
	require.NoError(t, reg.Register(ctx, "testnet", Node{URL: "http://c:8545"}, 10))

	nodes, err := reg.Discover(ctx, "mainnet")
	require.NoError(t, err)
	assert.Equal(t, []string{"http://a:8545", "http://b:8545"}, URLs(nodes))

	// Re-registering keeps the position and updates the weight
	require.NoError(t, reg.Register(ctx, "mainnet", Node{URL: "http://a:8545", Weight: 5}, 10))
	nodes, _ = reg.Discover(ctx, "mainnet")
	assert.Equal(t, Node{URL: "http://a:8545", Weight: 5}, nodes[0])

	require.NoError(t, reg.Deregister(ctx, "mainnet", "http://a:8545"))
	nodes, _ = reg.Discover(ctx, "mainnet")
	assert.Equal(t, []string{"http://b:8545"}, URLs(nodes))
}

func TestMemoryWatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	reg := NewMemoryRegistry()
	require.NoError(t, reg.Register(ctx, "mainnet", Node{URL: "http://a:8545"}, 0))

	ch := reg.Watch(ctx, "mainnet")
	first := <-ch
	assert.Equal(t, []string{"http://a:8545"}, URLs(first))

	require.NoError(t, reg.Register(ctx, "mainnet", Node{URL: "http://b:8545"}, 0))
	select {
	case nodes := <-ch:
		assert.Equal(t, []string{"http://a:8545", "http://b:8545"}, URLs(nodes))
	case <-time.After(time.Second):
		t.Fatal("expect an update after register")
	}

	cancel()
	assert.Eventually(t, func() bool {
		_, ok := <-ch
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func TestNodesHelper(t *testing.T) {
	nodes := Nodes("http://a:8545", "http://b:8545")
	assert.Len(t, nodes, 2)
	assert.Zero(t, nodes[1].Weight)
}
