// Package txtrack tracks portal-prepared transactions from preparation through
// signature, broadcast and receipt. Transactions are never retried: a failed record is
// terminal and resubmission creates a new record.
package txtrack

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Status is the observable state of a tracked transaction.
type Status string

const (
	StatusPendingSignature    Status = "pending_signature"
	StatusPendingConfirmation Status = "pending_confirmation"
	StatusConfirmed           Status = "confirmed"
	StatusFailed              Status = "failed"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusConfirmed || s == StatusFailed
}

// Kind names the operation a transaction performs.
type Kind string

const (
	KindApprove        Kind = "approve"
	KindDeposit        Kind = "deposit"
	KindWithdraw       Kind = "withdraw"
	KindCreateVault    Kind = "create_vault"
	KindAdjustRisk     Kind = "adjust_risk"
	KindRegisterPolicy Kind = "register_policy"
	KindAddPolicy      Kind = "add_policy"
)

// TxRequest is the unsigned transaction handed to the wallet.
type TxRequest struct {
	To      string `json:"to"`
	Data    string `json:"data"`
	Value   string `json:"value"`
	ChainID int64  `json:"chain_id"`
}

// Record is a tracked transaction.
type Record struct {
	ID          string    `db:"id" json:"id"`
	Account     string    `db:"account" json:"account"`
	Kind        Kind      `db:"kind" json:"kind"`
	Contract    string    `db:"contract" json:"contract"`
	Calldata    string    `db:"calldata" json:"calldata"`
	Value       string    `db:"value" json:"value"`
	ChainID     int64     `db:"chain_id" json:"chain_id"`
	Status      Status    `db:"status" json:"status"`
	TxHash      string    `db:"tx_hash" json:"tx_hash,omitempty"`
	Error       string    `db:"error" json:"error,omitempty"`
	BlockNumber int64     `db:"block_number" json:"block_number,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Request returns the unsigned transaction of the record.
func (r Record) Request() TxRequest {
	return TxRequest{To: r.Contract, Data: r.Calldata, Value: r.Value, ChainID: r.ChainID}
}

func (r Record) calldata() ([]byte, error) {
	return hexutil.Decode(r.Calldata)
}

var (
	// ErrNotFound is returned for unknown record ids.
	ErrNotFound = errors.New("transaction record not found")
	// ErrStatusConflict is returned by Transition when the stored status has moved on.
	ErrStatusConflict = errors.New("transaction record status changed")
)

// Store persists records.
type Store interface {
	Create(ctx context.Context, rec Record) error
	Get(ctx context.Context, id string) (Record, error)
	Update(ctx context.Context, rec Record) error
	// Transition writes rec only while the stored status is still from.
	Transition(ctx context.Context, rec Record, from Status) error
	ListByAccount(ctx context.Context, account string, limit int) ([]Record, error)
	ListByStatus(ctx context.Context, status Status) ([]Record, error)
}
