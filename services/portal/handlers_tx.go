package portal

import (
	"context"
	"errors"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	svcerrors "github.com/R3E-Network/vault_portal/internal/errors"
	"github.com/R3E-Network/vault_portal/internal/httputil"
	"github.com/R3E-Network/vault_portal/internal/roles"
	"github.com/R3E-Network/vault_portal/internal/txtrack"
	"github.com/R3E-Network/vault_portal/internal/vaults"
	portalchain "github.com/R3E-Network/vault_portal/services/portal/chain"
)

const maxVaultNameLength = 64

// =============================================================================
// Input Helpers
// =============================================================================

// toBaseUnits converts a positive decimal amount to integer base units.
func toBaseUnits(amount string, decimals uint8) (*big.Int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return nil, errors.New("amount must be a decimal number")
	}
	if d.Sign() <= 0 {
		return nil, errors.New("amount must be positive")
	}
	scaled := d.Shift(int32(decimals))
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, errors.New("amount has more than " + strconv.Itoa(int(decimals)) + " decimal places")
	}
	return scaled.BigInt(), nil
}

// parseUint parses a non-negative integer in base units.
func parseUint(field, raw string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok || n.Sign() < 0 {
		return nil, svcerrors.BadRequest(field + " must be a non-negative integer")
	}
	return n, nil
}

// receiverOr returns raw as an address, or fallback when raw is empty.
func receiverOr(raw, fallback string) (common.Address, error) {
	if raw == "" {
		return common.HexToAddress(fallback), nil
	}
	if !common.IsHexAddress(raw) {
		return common.Address{}, svcerrors.BadRequest("invalid receiver address")
	}
	return common.HexToAddress(raw), nil
}

func validBps(bps int64) bool {
	return bps >= 0 && bps <= vaults.MaxBps
}

// prepare records calldata for the session's wallet to sign.
func (s *Service) prepare(ctx context.Context, session roles.Session, kind txtrack.Kind, to common.Address, data []byte) (PreparedTx, error) {
	rec, err := s.tracker.Prepare(ctx, session.Address, kind, txtrack.TxRequest{
		To:    to.Hex(),
		Data:  hexutil.Encode(data),
		Value: "0",
	})
	if err != nil {
		return PreparedTx{}, err
	}
	return newPreparedTx(rec), nil
}

func (s *Service) writePrepared(w http.ResponseWriter, r *http.Request, kind txtrack.Kind, to common.Address, data []byte) {
	session := s.session(r)
	tx, err := s.prepare(r.Context(), session, kind, to, data)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, PrepareResponse{Transactions: []PreparedTx{tx}})
}

// =============================================================================
// Investor Transactions
// =============================================================================

// handleDeposit prepares an asset deposit, preceded by an approve when the vault's
// allowance does not cover the amount.
func (s *Service) handleDeposit(w http.ResponseWriter, r *http.Request) {
	session, ok := s.require(w, r, roles.ActionDeposit)
	if !ok {
		return
	}
	vaultAddr, ok := pathAddress(w, r)
	if !ok {
		return
	}

	var input DepositInput
	if !httputil.DecodeJSON(w, r, &input) {
		return
	}
	receiver, err := receiverOr(input.Receiver, session.Address)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}

	ctx := r.Context()
	asset, err := portalchain.NewVaultContract(s.reader, vaultAddr).Asset(ctx)
	if err != nil {
		httputil.WriteServiceError(w, r, svcerrors.ContractRead(err))
		return
	}
	token := portalchain.NewTokenContract(s.reader, asset)
	decimals, err := token.Decimals(ctx)
	if err != nil {
		httputil.WriteServiceError(w, r, svcerrors.ContractRead(err))
		return
	}
	assets, err := toBaseUnits(input.Amount, decimals)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	owner := common.HexToAddress(session.Address)
	allowance, err := token.Allowance(ctx, owner, vaultAddr)
	if err != nil {
		httputil.WriteServiceError(w, r, svcerrors.ContractRead(err))
		return
	}

	var prepared []PreparedTx
	if allowance.Cmp(assets) < 0 {
		data, err := portalchain.PackApprove(vaultAddr, assets)
		if err != nil {
			httputil.WriteServiceError(w, r, svcerrors.Internal("failed to encode approve", err))
			return
		}
		tx, err := s.prepare(ctx, session, txtrack.KindApprove, asset, data)
		if err != nil {
			httputil.WriteServiceError(w, r, err)
			return
		}
		prepared = append(prepared, tx)
	}

	data, err := portalchain.PackDeposit(assets, receiver)
	if err != nil {
		httputil.WriteServiceError(w, r, svcerrors.Internal("failed to encode deposit", err))
		return
	}
	tx, err := s.prepare(ctx, session, txtrack.KindDeposit, vaultAddr, data)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	prepared = append(prepared, tx)

	httputil.WriteJSON(w, http.StatusCreated, PrepareResponse{Transactions: prepared})
}

// handleWithdraw prepares a redemption of the session's shares.
func (s *Service) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	session, ok := s.require(w, r, roles.ActionWithdraw)
	if !ok {
		return
	}
	vaultAddr, ok := pathAddress(w, r)
	if !ok {
		return
	}

	var input WithdrawInput
	if !httputil.DecodeJSON(w, r, &input) {
		return
	}
	receiver, err := receiverOr(input.Receiver, session.Address)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}

	ctx := r.Context()
	vault := portalchain.NewVaultContract(s.reader, vaultAddr)
	decimals, err := vault.Decimals(ctx)
	if err != nil {
		httputil.WriteServiceError(w, r, svcerrors.ContractRead(err))
		return
	}
	shares, err := toBaseUnits(input.Shares, decimals)
	if err != nil {
		httputil.BadRequest(w, strings.Replace(err.Error(), "amount", "shares", 1))
		return
	}
	owner := common.HexToAddress(session.Address)
	balance, err := vault.BalanceOf(ctx, owner)
	if err != nil {
		httputil.WriteServiceError(w, r, svcerrors.ContractRead(err))
		return
	}
	if balance.Cmp(shares) < 0 {
		httputil.WriteServiceError(w, r, svcerrors.BadRequest("insufficient shares").
			WithDetail("balance", balance.String()).
			WithDetail("requested", shares.String()))
		return
	}

	data, err := portalchain.PackWithdraw(shares, receiver, owner)
	if err != nil {
		httputil.WriteServiceError(w, r, svcerrors.Internal("failed to encode redeem", err))
		return
	}
	s.writePrepared(w, r, txtrack.KindWithdraw, vaultAddr, data)
}

// =============================================================================
// Syndicate and Insurance Transactions
// =============================================================================

// handleCreateVault prepares a factory createVault call. Admin or syndicate.
func (s *Service) handleCreateVault(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.require(w, r, roles.ActionCreateVault); !ok {
		return
	}
	if s.factory == (common.Address{}) {
		httputil.WriteServiceError(w, r, svcerrors.Internal("vault factory not configured", nil))
		return
	}

	var input CreateVaultInput
	if !httputil.DecodeJSON(w, r, &input) {
		return
	}
	name := strings.TrimSpace(input.Name)
	if name == "" || len(name) > maxVaultNameLength {
		httputil.BadRequest(w, "name is required and must be at most 64 characters")
		return
	}
	if !common.IsHexAddress(input.Asset) {
		httputil.BadRequest(w, "invalid asset address")
		return
	}
	if !validBps(input.BufferBps) || !validBps(input.FeeBps) {
		httputil.BadRequest(w, "buffer_bps and fee_bps must be between 0 and 10000")
		return
	}

	data, err := portalchain.PackCreateVault(name, common.HexToAddress(input.Asset),
		big.NewInt(input.BufferBps), big.NewInt(input.FeeBps))
	if err != nil {
		httputil.WriteServiceError(w, r, svcerrors.Internal("failed to encode createVault", err))
		return
	}
	s.writePrepared(w, r, txtrack.KindCreateVault, s.factory, data)
}

// handleAdjustRisk prepares a buffer ratio change after checking it against the
// vault's policy weights. Admin or syndicate.
func (s *Service) handleAdjustRisk(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.require(w, r, roles.ActionAdjustRisk); !ok {
		return
	}
	vaultAddr, ok := pathAddress(w, r)
	if !ok {
		return
	}

	var input AdjustRiskInput
	if !httputil.DecodeJSON(w, r, &input) {
		return
	}
	if err := s.vaults.Aggregator().ValidateBufferChange(r.Context(), vaultAddr, input.BufferBps); err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}

	data, err := portalchain.PackSetBufferRatio(big.NewInt(input.BufferBps))
	if err != nil {
		httputil.WriteServiceError(w, r, svcerrors.Internal("failed to encode setBufferRatio", err))
		return
	}
	s.writePrepared(w, r, txtrack.KindAdjustRisk, vaultAddr, data)
}

// handleAddPolicy prepares backing a registry policy with a vault allocation weight.
// Admin or syndicate.
func (s *Service) handleAddPolicy(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.require(w, r, roles.ActionAdjustRisk); !ok {
		return
	}
	vaultAddr, ok := pathAddress(w, r)
	if !ok {
		return
	}

	var input AddPolicyInput
	if !httputil.DecodeJSON(w, r, &input) {
		return
	}
	policyID, err := parseUint("policy_id", input.PolicyID)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	if input.WeightBps <= 0 || input.WeightBps > vaults.MaxBps {
		httputil.BadRequest(w, "weight_bps must be between 1 and 10000")
		return
	}

	ctx := r.Context()
	agg := s.vaults.Aggregator()
	if s.registry != (common.Address{}) {
		if _, err := agg.Policy(ctx, policyID); err != nil {
			httputil.WriteServiceError(w, r, err)
			return
		}
	}

	policies, err := agg.Policies(ctx, vaultAddr)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	for _, p := range policies {
		if p.ID == policyID.String() {
			httputil.BadRequest(w, "policy already backed by this vault")
			return
		}
	}
	weights, err := vaults.PolicyWeightTotal(policies)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	buffer, err := portalchain.NewVaultContract(s.reader, vaultAddr).BufferRatioBps(ctx)
	if err != nil {
		httputil.WriteServiceError(w, r, svcerrors.ContractRead(err))
		return
	}
	if buffer.Sign() < 0 || buffer.Cmp(big.NewInt(vaults.MaxBps)) > 0 {
		httputil.WriteServiceError(w, r, svcerrors.BadRequest("vault reports an out-of-range buffer ratio").
			WithDetail("buffer_bps", buffer.String()))
		return
	}
	if total := buffer.Int64() + weights + input.WeightBps; total > vaults.MaxBps {
		httputil.WriteServiceError(w, r, svcerrors.BadRequest("buffer ratio plus policy weights exceeds 10000 bps").
			WithDetail("buffer_bps", buffer.Int64()).
			WithDetail("policy_weight_bps", weights).
			WithDetail("max_weight_bps", vaults.MaxBps-buffer.Int64()-weights))
		return
	}

	data, err := portalchain.PackAddPolicy(policyID, big.NewInt(input.WeightBps))
	if err != nil {
		httputil.WriteServiceError(w, r, svcerrors.Internal("failed to encode addPolicy", err))
		return
	}
	s.writePrepared(w, r, txtrack.KindAddPolicy, vaultAddr, data)
}

// handleRegisterPolicy prepares a registry registerPolicy call. Admin or insurance.
func (s *Service) handleRegisterPolicy(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.require(w, r, roles.ActionRegisterPolicy); !ok {
		return
	}
	if s.registry == (common.Address{}) {
		httputil.WriteServiceError(w, r, svcerrors.Internal("policy registry not configured", nil))
		return
	}

	var input RegisterPolicyInput
	if !httputil.DecodeJSON(w, r, &input) {
		return
	}
	params, err := policyParams(input)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}

	data, err := portalchain.PackRegisterPolicy(params)
	if err != nil {
		httputil.WriteServiceError(w, r, svcerrors.Internal("failed to encode registerPolicy", err))
		return
	}
	s.writePrepared(w, r, txtrack.KindRegisterPolicy, s.registry, data)
}

func policyParams(input RegisterPolicyInput) (portalchain.PolicyParams, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return portalchain.PolicyParams{}, svcerrors.BadRequest("name is required")
	}
	vt, err := portalchain.ParseVerificationType(input.VerificationType)
	if err != nil {
		return portalchain.PolicyParams{}, svcerrors.BadRequest(err.Error())
	}
	coverage, err := parseUint("coverage_amount", input.CoverageAmount)
	if err != nil {
		return portalchain.PolicyParams{}, err
	}
	if coverage.Sign() == 0 {
		return portalchain.PolicyParams{}, svcerrors.BadRequest("coverage_amount must be positive")
	}
	premium, err := parseUint("premium_amount", input.PremiumAmount)
	if err != nil {
		return portalchain.PolicyParams{}, err
	}
	if input.DurationSeconds <= 0 {
		return portalchain.PolicyParams{}, svcerrors.BadRequest("duration_seconds must be positive")
	}
	threshold := new(big.Int)
	if input.TriggerThreshold != "" {
		if threshold, err = parseUint("trigger_threshold", input.TriggerThreshold); err != nil {
			return portalchain.PolicyParams{}, err
		}
	}
	return portalchain.PolicyParams{
		Name:             name,
		VerificationType: vt,
		CoverageAmount:   coverage,
		PremiumAmount:    premium,
		Duration:         big.NewInt(input.DurationSeconds),
		TriggerThreshold: threshold,
	}, nil
}

// =============================================================================
// Tracking
// =============================================================================

// handleSubmitTx verifies and broadcasts a signed prepared transaction.
func (s *Service) handleSubmitTx(w http.ResponseWriter, r *http.Request) {
	session, ok := s.requireConnected(w, r)
	if !ok {
		return
	}

	var input SubmitInput
	if !httputil.DecodeJSON(w, r, &input) {
		return
	}
	raw, err := hexutil.Decode(input.RawTx)
	if err != nil || len(raw) == 0 {
		httputil.BadRequest(w, "raw_tx must be 0x-prefixed hex")
		return
	}

	rec, err := s.tracker.Submit(r.Context(), mux.Vars(r)["id"], session.Address, raw)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, rec)
}

// handleGetTx returns one of the session's tracked transactions.
func (s *Service) handleGetTx(w http.ResponseWriter, r *http.Request) {
	session, ok := s.requireConnected(w, r)
	if !ok {
		return
	}
	rec, err := s.tracker.Get(r.Context(), mux.Vars(r)["id"], session.Address)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rec)
}

// handleListTx lists the session's newest tracked transactions. ?limit= caps the result.
func (s *Service) handleListTx(w http.ResponseWriter, r *http.Request) {
	session, ok := s.requireConnected(w, r)
	if !ok {
		return
	}

	limit := defaultTxListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			httputil.BadRequest(w, "limit must be a positive integer")
			return
		}
		limit = min(n, maxTxListLimit)
	}

	recs, err := s.tracker.ListByAccount(r.Context(), session.Address, limit)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, TxListResponse{Transactions: recs})
}
