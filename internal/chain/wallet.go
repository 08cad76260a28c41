package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Wallet signs and broadcasts transactions with a local key.
type Wallet struct {
	key     *ecdsa.PrivateKey
	address common.Address
	backend TxBackend
}

// NewWallet creates a wallet from a hex-encoded private key.
func NewWallet(hexKey string, backend TxBackend) (*Wallet, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return NewWalletFromKey(key, backend), nil
}

// NewWalletFromKey creates a wallet from an existing key.
func NewWalletFromKey(key *ecdsa.PrivateKey, backend TxBackend) *Wallet {
	return &Wallet{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		backend: backend,
	}
}

// Address returns the wallet address.
func (w *Wallet) Address() common.Address {
	return w.address
}

// SignTransaction builds and signs a legacy transaction without broadcasting it.
func (w *Wallet) SignTransaction(ctx context.Context, to common.Address, data []byte, value *big.Int) (*types.Transaction, error) {
	if w.backend == nil {
		return nil, fmt.Errorf("wallet has no backend")
	}
	if value == nil {
		value = new(big.Int)
	}

	nonce, err := w.backend.PendingNonceAt(ctx, w.address)
	if err != nil {
		return nil, fmt.Errorf("get nonce: %w", err)
	}
	gasPrice, err := w.backend.GasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("get gas price: %w", err)
	}
	from := w.address
	gas, err := w.backend.EstimateGas(ctx, CallMsg{From: &from, To: to, Data: data}, value)
	if err != nil {
		return nil, fmt.Errorf("estimate gas: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gas,
		To:       &to,
		Value:    value,
		Data:     data,
	})
	signer := types.LatestSignerForChainID(w.backend.ChainID())
	signed, err := types.SignTx(tx, signer, w.key)
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}
	return signed, nil
}

// Transact signs and broadcasts a transaction, returning its hash.
func (w *Wallet) Transact(ctx context.Context, to common.Address, data []byte, value *big.Int) (common.Hash, error) {
	signed, err := w.SignTransaction(ctx, to, data, value)
	if err != nil {
		return common.Hash{}, err
	}
	raw, err := signed.MarshalBinary()
	if err != nil {
		return common.Hash{}, fmt.Errorf("encode transaction: %w", err)
	}
	return w.backend.SendRawTransaction(ctx, raw)
}

// SignMessage produces an EIP-191 personal_sign signature with v in {27, 28}.
func (w *Wallet) SignMessage(message []byte) ([]byte, error) {
	sig, err := crypto.Sign(accounts.TextHash(message), w.key)
	if err != nil {
		return nil, err
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// RecoverMessageSigner returns the address that produced an EIP-191 signature of message.
func RecoverMessageSigner(message, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("invalid signature length %d", len(sig))
	}
	normalized := make([]byte, len(sig))
	copy(normalized, sig)
	if normalized[crypto.RecoveryIDOffset] >= 27 {
		normalized[crypto.RecoveryIDOffset] -= 27
	}
	if normalized[crypto.RecoveryIDOffset] > 1 {
		return common.Address{}, fmt.Errorf("invalid recovery id")
	}
	pub, err := crypto.SigToPub(accounts.TextHash(message), normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("recover signer: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// TransactionSender decodes a raw signed transaction and recovers its sender.
func TransactionSender(raw []byte) (*types.Transaction, common.Address, error) {
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		return nil, common.Address{}, fmt.Errorf("decode transaction: %w", err)
	}
	from, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx)
	if err != nil {
		return nil, common.Address{}, fmt.Errorf("recover sender: %w", err)
	}
	return tx, from, nil
}
