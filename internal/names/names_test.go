package names

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/vault_portal/internal/chain"
	"github.com/R3E-Network/vault_portal/internal/chain/chaintest"
)

var (
	registryAddr = common.HexToAddress("0x00000000000C2E074eC69A0dFb2997BA6C7d2e1e")
	resolverAddr = common.HexToAddress("0x7000000000000000000000000000000000000007")
	aliceAddr    = common.HexToAddress("0x8000000000000000000000000000000000000008")
	bobAddr      = common.HexToAddress("0x9000000000000000000000000000000000000009")
)

func TestNamehash(t *testing.T) {
	assert.Equal(t, common.Hash{}, Namehash(""))
	// Reference value from EIP-137.
	assert.Equal(t,
		"0x93cdeb708b7545dc668eb9280176169d1c33cfd8ed6f04690a0bcc88a93fc4ae",
		Namehash("eth").Hex())
	assert.Equal(t,
		"0xde9b09fd7c5f901e23a3f19fecc54828e9c848539801e86591bd9801b019f84f",
		Namehash("foo.eth").Hex())
}

func TestStatic(t *testing.T) {
	s := Static{"0x8000000000000000000000000000000000000008": "alice"}
	name, ok := s.Lookup(context.Background(), aliceAddr)
	assert.True(t, ok)
	assert.Equal(t, "alice", name)

	_, ok = s.Lookup(context.Background(), bobAddr)
	assert.False(t, ok)
}

func TestENSResolver_Lookup(t *testing.T) {
	node := chaintest.NewNode()
	defer node.Close()

	r0, err := NewENSResolver(nil, ENSConfig{Registry: registryAddr}, nil, nil)
	require.NoError(t, err)
	ensABI := r0.registry.ABI

	node.HandleMethod(registryAddr, ensABI, "resolver", func(data []byte) ([]byte, error) {
		args, err := ensABI.Methods["resolver"].Inputs.Unpack(data[4:])
		if err != nil {
			return nil, err
		}
		n := common.Hash(args[0].([32]byte))
		if n == ReverseNode(aliceAddr) {
			return ensABI.Methods["resolver"].Outputs.Pack(resolverAddr)
		}
		return ensABI.Methods["resolver"].Outputs.Pack(common.Address{})
	})
	node.Returns(resolverAddr, ensABI, "name", "alice.eth")

	client, err := chain.NewClient(chain.Config{RPCURL: node.URL(), ChainID: 1})
	require.NoError(t, err)
	r, err := NewENSResolver(client, ENSConfig{Registry: registryAddr, Timeout: time.Second}, nil, nil)
	require.NoError(t, err)

	name, ok := r.Lookup(context.Background(), aliceAddr)
	assert.True(t, ok)
	assert.Equal(t, "alice.eth", name)

	_, ok = r.Lookup(context.Background(), bobAddr)
	assert.False(t, ok)
	assert.Equal(t, 2, r.Len(), "misses are cached")

	calls := node.MethodCount("eth_call")
	_, _ = r.Lookup(context.Background(), aliceAddr)
	assert.Equal(t, calls, node.MethodCount("eth_call"))
}

func TestENSResolver_FailureIsSilent(t *testing.T) {
	node := chaintest.NewNode()
	defer node.Close()
	node.FailAll(true)

	client, err := chain.NewClient(chain.Config{RPCURL: node.URL(), ChainID: 1})
	require.NoError(t, err)
	r, err := NewENSResolver(client, ENSConfig{Registry: registryAddr}, nil, nil)
	require.NoError(t, err)

	name, ok := r.Lookup(context.Background(), aliceAddr)
	assert.False(t, ok)
	assert.Empty(t, name)
	assert.Equal(t, 0, r.Len(), "transient failures are not cached")
}
