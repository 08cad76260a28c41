package chain_test

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/vault_portal/internal/chain"
	"github.com/R3E-Network/vault_portal/internal/chain/chaintest"
)

const counterABI = `[
  {"type":"function","name":"count","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"label","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
  {"type":"function","name":"bump","stateMutability":"nonpayable","inputs":[{"name":"by","type":"uint256"}],"outputs":[]}
]`

var counterAddr = common.HexToAddress("0x00000000000000000000000000000000000000c1")

func newClient(t *testing.T, node *chaintest.Node) *chain.Client {
	t.Helper()
	c, err := chain.NewClient(chain.Config{RPCURL: node.URL(), ChainID: 1, Timeout: 5 * time.Second})
	require.NoError(t, err)
	return c
}

func TestNewClient_Validation(t *testing.T) {
	if _, err := chain.NewClient(chain.Config{ChainID: 1}); err == nil {
		t.Fatal("expected error for missing RPC URL")
	}
	if _, err := chain.NewClient(chain.Config{RPCURL: "http://localhost"}); err == nil {
		t.Fatal("expected error for missing chain ID")
	}
}

func TestBoundContract_Call(t *testing.T) {
	node := chaintest.NewNode()
	defer node.Close()

	parsed, err := chain.ParseABI(counterABI)
	require.NoError(t, err)
	node.Returns(counterAddr, parsed, "count", big.NewInt(42))

	c := newClient(t, node)
	out, err := chain.NewBoundContract(counterAddr, parsed).Call(context.Background(), c, "count")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, int64(42), out[0].(*big.Int).Int64())
}

func TestRead_RevertDecoded(t *testing.T) {
	node := chaintest.NewNode()
	defer node.Close()

	parsed, err := chain.ParseABI(counterABI)
	require.NoError(t, err)
	node.Reverts(counterAddr, parsed, "count", "division by zero")

	c := newClient(t, node)
	_, err = chain.NewBoundContract(counterAddr, parsed).Call(context.Background(), c, "count")
	require.Error(t, err)
	assert.True(t, chain.IsRevert(err))

	var re *chain.RevertError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "division by zero", re.Reason)
}

func TestBatchRead_PerElementResults(t *testing.T) {
	node := chaintest.NewNode()
	defer node.Close()

	parsed, err := chain.ParseABI(counterABI)
	require.NoError(t, err)
	node.Returns(counterAddr, parsed, "count", big.NewInt(7))
	node.Reverts(counterAddr, parsed, "label", "no label")

	bound := chain.NewBoundContract(counterAddr, parsed)
	countMsg, _ := bound.CallMsg("count")
	labelMsg, _ := bound.CallMsg("label")

	c := newClient(t, node)
	results := c.BatchRead(context.Background(), []chain.CallMsg{countMsg, labelMsg})
	require.Len(t, results, 2)
	require.NoError(t, results[0].Err)
	assert.True(t, chain.IsRevert(results[1].Err))
	assert.Equal(t, 1, node.BatchCount())

	out, err := bound.Unpack("count", results[0].Data)
	require.NoError(t, err)
	assert.Equal(t, int64(7), out[0].(*big.Int).Int64())
}

func TestBatchRead_TransportFailureMarksAll(t *testing.T) {
	node := chaintest.NewNode()
	defer node.Close()
	node.FailAll(true)

	c := newClient(t, node)
	results := c.BatchRead(context.Background(), []chain.CallMsg{{To: counterAddr, Data: []byte{1, 2, 3, 4}}, {To: counterAddr}})
	for i, r := range results {
		if r.Err == nil {
			t.Fatalf("result %d: expected error", i)
		}
		if chain.IsRevert(r.Err) {
			t.Fatalf("result %d: transport failure reported as revert", i)
		}
	}
}

func TestTransactionReceipt_NotFound(t *testing.T) {
	node := chaintest.NewNode()
	defer node.Close()

	c := newClient(t, node)
	_, err := c.TransactionReceipt(context.Background(), common.HexToHash("0x01"))
	assert.ErrorIs(t, err, chain.ErrReceiptNotFound)
}

func TestWallet_TransactAndWait(t *testing.T) {
	node := chaintest.NewNode()
	defer node.Close()
	node.AutoMine(true, false)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	c := newClient(t, node)
	w := chain.NewWalletFromKey(key, c)

	parsed, err := chain.ParseABI(counterABI)
	require.NoError(t, err)
	data, err := chain.NewBoundContract(counterAddr, parsed).Pack("bump", big.NewInt(1))
	require.NoError(t, err)

	hash, err := w.Transact(context.Background(), counterAddr, data, nil)
	require.NoError(t, err)

	receipt, err := chain.WaitForReceipt(context.Background(), c, hash, 10*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, receipt.Succeeded())

	sent := node.Sent()
	require.Len(t, sent, 1)
	raw, err := sent[0].MarshalBinary()
	require.NoError(t, err)
	_, from, err := chain.TransactionSender(raw)
	require.NoError(t, err)
	assert.Equal(t, w.Address(), from)
}

func TestWaitForReceipt_ContextTimeout(t *testing.T) {
	node := chaintest.NewNode()
	defer node.Close()

	c := newClient(t, node)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := chain.WaitForReceipt(ctx, c, common.HexToHash("0x02"), 10*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSendAndWait_FailedReceipt(t *testing.T) {
	node := chaintest.NewNode()
	defer node.Close()
	node.AutoMine(true, true)

	key, _ := crypto.GenerateKey()
	c := newClient(t, node)
	signed, err := chain.NewWalletFromKey(key, c).SignTransaction(context.Background(), counterAddr, nil, nil)
	require.NoError(t, err)
	raw, _ := signed.MarshalBinary()

	_, receipt, err := chain.SendAndWait(context.Background(), c, raw, 10*time.Millisecond, time.Second)
	require.NoError(t, err)
	assert.False(t, receipt.Succeeded())
}

func TestSignMessage_Recover(t *testing.T) {
	key, _ := crypto.GenerateKey()
	w := chain.NewWalletFromKey(key, nil)

	msg := []byte("sign in with nonce abc")
	sig, err := w.SignMessage(msg)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, sig[64], byte(27))

	got, err := chain.RecoverMessageSigner(msg, sig)
	require.NoError(t, err)
	assert.Equal(t, w.Address(), got)

	other, err := chain.RecoverMessageSigner([]byte("different"), sig)
	require.NoError(t, err)
	assert.NotEqual(t, w.Address(), other)
}
