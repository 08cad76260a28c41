package portal

import (
	"github.com/R3E-Network/vault_portal/internal/roles"
	"github.com/R3E-Network/vault_portal/internal/txtrack"
	"github.com/R3E-Network/vault_portal/internal/vaults"
)

// =============================================================================
// Session
// =============================================================================

// NonceResponse is returned by GET /auth/nonce.
type NonceResponse struct {
	Address   string `json:"address"`
	Nonce     string `json:"nonce"`
	Message   string `json:"message"`
	ExpiresAt string `json:"expires_at"`
}

// VerifyInput is the body of POST /auth/verify.
type VerifyInput struct {
	Address   string `json:"address"`
	Signature string `json:"signature"`
}

// VerifyResponse carries the session token.
type VerifyResponse struct {
	Token     string     `json:"token"`
	Address   string     `json:"address"`
	Role      roles.Role `json:"role"`
	ExpiresAt string     `json:"expires_at"`
}

// SessionResponse describes the caller's session.
type SessionResponse struct {
	Connected   bool           `json:"connected"`
	Address     string         `json:"address,omitempty"`
	Role        roles.Role     `json:"role"`
	ViewRole    roles.Role     `json:"view_role"`
	Permissions []roles.Action `json:"permissions"`
}

// ViewRoleInput is the body of PUT /session/view-role.
type ViewRoleInput struct {
	Role string `json:"role"`
}

// ViewRoleResponse reports the role and the role being viewed.
type ViewRoleResponse struct {
	Role     roles.Role `json:"role"`
	ViewRole roles.Role `json:"view_role"`
}

// ViewRoleEvent is pushed on the view-role stream.
type ViewRoleEvent struct {
	Type     string     `json:"type"`
	ViewRole roles.Role `json:"view_role"`
}

// =============================================================================
// Vaults
// =============================================================================

// VaultListResponse is returned by GET /vaults.
type VaultListResponse struct {
	Vaults []vaults.Summary `json:"vaults"`
	Count  int              `json:"count"`
}

// PolicyListResponse is returned by GET /vaults/{address}/policies.
type PolicyListResponse struct {
	Vault    string              `json:"vault"`
	Policies []vaults.PolicyView `json:"policies"`
}

// RefreshResponse is returned by POST /vaults/refresh.
type RefreshResponse struct {
	Count     int    `json:"count"`
	Fallbacks int    `json:"fallbacks"`
	Trigger   string `json:"trigger"`
}

// NameResponse is returned by GET /names/{address}.
type NameResponse struct {
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
	Found   bool   `json:"found"`
}

// =============================================================================
// Transactions
// =============================================================================

// DepositInput is the body of POST /vaults/{address}/deposit. Amount is in asset
// units, e.g. "12.5".
type DepositInput struct {
	Amount   string `json:"amount"`
	Receiver string `json:"receiver,omitempty"`
}

// WithdrawInput is the body of POST /vaults/{address}/withdraw. Shares is in share units.
type WithdrawInput struct {
	Shares   string `json:"shares"`
	Receiver string `json:"receiver,omitempty"`
}

// CreateVaultInput is the body of POST /vaults.
type CreateVaultInput struct {
	Name      string `json:"name"`
	Asset     string `json:"asset"`
	BufferBps int64  `json:"buffer_bps"`
	FeeBps    int64  `json:"fee_bps"`
}

// AdjustRiskInput is the body of PUT /vaults/{address}/risk.
type AdjustRiskInput struct {
	BufferBps int64 `json:"buffer_bps"`
}

// AddPolicyInput is the body of POST /vaults/{address}/policies.
type AddPolicyInput struct {
	PolicyID  string `json:"policy_id"`
	WeightBps int64  `json:"weight_bps"`
}

// RegisterPolicyInput is the body of POST /policies. Amounts are integer base units.
type RegisterPolicyInput struct {
	Name             string `json:"name"`
	VerificationType string `json:"verification_type"`
	CoverageAmount   string `json:"coverage_amount"`
	PremiumAmount    string `json:"premium_amount"`
	DurationSeconds  int64  `json:"duration_seconds"`
	TriggerThreshold string `json:"trigger_threshold"`
}

// PreparedTx is a tracked transaction awaiting the wallet's signature.
type PreparedTx struct {
	ID     string            `json:"id"`
	Kind   txtrack.Kind      `json:"kind"`
	Status txtrack.Status    `json:"status"`
	Tx     txtrack.TxRequest `json:"tx"`
}

// PrepareResponse lists the transactions to sign, in order.
type PrepareResponse struct {
	Transactions []PreparedTx `json:"transactions"`
}

// SubmitInput is the body of POST /tx/{id}/submit.
type SubmitInput struct {
	RawTx string `json:"raw_tx"`
}

// TxListResponse is returned by GET /tx.
type TxListResponse struct {
	Transactions []txtrack.Record `json:"transactions"`
}

// =============================================================================
// Newsletter
// =============================================================================

// NewsletterInput is the body of POST /newsletter.
type NewsletterInput struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// NewsletterResponse reports the signup outcome.
type NewsletterResponse struct {
	Subscribed  bool `json:"subscribed"`
	WelcomeSent bool `json:"welcome_sent"`
}

func newPreparedTx(rec txtrack.Record) PreparedTx {
	return PreparedTx{
		ID:     rec.ID,
		Kind:   rec.Kind,
		Status: rec.Status,
		Tx:     rec.Request(),
	}
}
