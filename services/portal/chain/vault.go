package portalchain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/R3E-Network/vault_portal/internal/chain"
)

// =============================================================================
// Vault Contract Interface
// =============================================================================

// VaultInfo is the consolidated vault state.
type VaultInfo struct {
	Name            string
	Manager         common.Address
	Asset           common.Address
	Decimals        uint8
	TotalAssets     *big.Int
	TotalShares     *big.Int
	SharePrice      *big.Int
	BufferRatioBps  *big.Int
	FeeBps          *big.Int
	AvailableBuffer *big.Int
	DeployedCapital *big.Int
	PendingClaims   *big.Int
	PolicyCount     *big.Int
}

// Field names one individually readable vault value.
type Field string

const (
	FieldName            Field = "name"
	FieldManager         Field = "manager"
	FieldAsset           Field = "asset"
	FieldDecimals        Field = "decimals"
	FieldTotalAssets     Field = "total_assets"
	FieldTotalShares     Field = "total_shares"
	FieldBufferRatioBps  Field = "buffer_bps"
	FieldFeeBps          Field = "fee_bps"
	FieldDeployedCapital Field = "deployed_capital"
	FieldPendingClaims   Field = "pending_claims"
	FieldPolicyCount     Field = "policy_count"
)

// fieldMethods maps each field to its getter, in batch order.
var fieldMethods = []struct {
	field  Field
	method string
}{
	{FieldName, "name"},
	{FieldManager, "manager"},
	{FieldAsset, "asset"},
	{FieldDecimals, "decimals"},
	{FieldTotalAssets, "totalAssets"},
	{FieldTotalShares, "totalSupply"},
	{FieldBufferRatioBps, "bufferRatioBps"},
	{FieldFeeBps, "feeBps"},
	{FieldDeployedCapital, "deployedCapital"},
	{FieldPendingClaims, "pendingClaims"},
	{FieldPolicyCount, "policyCount"},
}

// Fields returns every individually readable field, in batch order.
func Fields() []Field {
	out := make([]Field, len(fieldMethods))
	for i, fm := range fieldMethods {
		out[i] = fm.field
	}
	return out
}

// VaultContract provides interaction with an insurance vault contract.
type VaultContract struct {
	bound  *chain.BoundContract
	reader chain.Reader
}

// NewVaultContract creates a new vault contract interface.
func NewVaultContract(reader chain.Reader, address common.Address) *VaultContract {
	return &VaultContract{
		bound:  chain.NewBoundContract(address, VaultABI),
		reader: reader,
	}
}

// Address returns the vault address.
func (v *VaultContract) Address() common.Address {
	return v.bound.Address
}

// Bound returns the underlying contract handle.
func (v *VaultContract) Bound() *chain.BoundContract {
	return v.bound
}

// =============================================================================
// Read Methods
// =============================================================================

// GetVaultInfo reads the consolidated summary in a single call.
func (v *VaultContract) GetVaultInfo(ctx context.Context) (*VaultInfo, error) {
	out, err := v.bound.Call(ctx, v.reader, "getVaultInfo")
	if err != nil {
		return nil, err
	}
	if len(out) < 12 {
		return nil, fmt.Errorf("getVaultInfo: expected 12 outputs, got %d", len(out))
	}

	info := &VaultInfo{}
	var ok bool
	if info.Name, ok = out[0].(string); !ok {
		return nil, fmt.Errorf("getVaultInfo: name is %T", out[0])
	}
	if info.Manager, ok = out[1].(common.Address); !ok {
		return nil, fmt.Errorf("getVaultInfo: manager is %T", out[1])
	}
	if info.Asset, ok = out[2].(common.Address); !ok {
		return nil, fmt.Errorf("getVaultInfo: asset is %T", out[2])
	}
	targets := []**big.Int{
		&info.TotalAssets, &info.TotalShares, &info.SharePrice, &info.BufferRatioBps, &info.FeeBps,
		&info.AvailableBuffer, &info.DeployedCapital, &info.PendingClaims, &info.PolicyCount,
	}
	for i, target := range targets {
		n, err := bigAt(out, i+3)
		if err != nil {
			return nil, fmt.Errorf("getVaultInfo: %w", err)
		}
		*target = n
	}
	return info, nil
}

// Name returns the vault name.
func (v *VaultContract) Name(ctx context.Context) (string, error) {
	out, err := v.bound.Call(ctx, v.reader, "name")
	if err != nil {
		return "", err
	}
	return ParseString(out)
}

// Manager returns the vault manager.
func (v *VaultContract) Manager(ctx context.Context) (common.Address, error) {
	out, err := v.bound.Call(ctx, v.reader, "manager")
	if err != nil {
		return common.Address{}, err
	}
	return ParseAddress(out)
}

// Asset returns the underlying asset token.
func (v *VaultContract) Asset(ctx context.Context) (common.Address, error) {
	out, err := v.bound.Call(ctx, v.reader, "asset")
	if err != nil {
		return common.Address{}, err
	}
	return ParseAddress(out)
}

// Decimals returns the share token decimals.
func (v *VaultContract) Decimals(ctx context.Context) (uint8, error) {
	out, err := v.bound.Call(ctx, v.reader, "decimals")
	if err != nil {
		return 0, err
	}
	return ParseUint8(out)
}

func (v *VaultContract) readBig(ctx context.Context, method string, args ...interface{}) (*big.Int, error) {
	out, err := v.bound.Call(ctx, v.reader, method, args...)
	if err != nil {
		return nil, err
	}
	return ParseBigInt(out)
}

// TotalAssets returns the assets under management.
func (v *VaultContract) TotalAssets(ctx context.Context) (*big.Int, error) {
	return v.readBig(ctx, "totalAssets")
}

// TotalSupply returns the outstanding shares.
func (v *VaultContract) TotalSupply(ctx context.Context) (*big.Int, error) {
	return v.readBig(ctx, "totalSupply")
}

// BufferRatioBps returns the buffer ratio in basis points.
func (v *VaultContract) BufferRatioBps(ctx context.Context) (*big.Int, error) {
	return v.readBig(ctx, "bufferRatioBps")
}

// FeeBps returns the management fee in basis points.
func (v *VaultContract) FeeBps(ctx context.Context) (*big.Int, error) {
	return v.readBig(ctx, "feeBps")
}

// DeployedCapital returns the capital allocated to policies.
func (v *VaultContract) DeployedCapital(ctx context.Context) (*big.Int, error) {
	return v.readBig(ctx, "deployedCapital")
}

// PendingClaims returns the claims awaiting settlement.
func (v *VaultContract) PendingClaims(ctx context.Context) (*big.Int, error) {
	return v.readBig(ctx, "pendingClaims")
}

// PolicyCount returns the number of policies backed by the vault.
func (v *VaultContract) PolicyCount(ctx context.Context) (*big.Int, error) {
	return v.readBig(ctx, "policyCount")
}

// BalanceOf returns the share balance of account.
func (v *VaultContract) BalanceOf(ctx context.Context, account common.Address) (*big.Int, error) {
	return v.readBig(ctx, "balanceOf", account)
}

// PolicyIDs returns the ids of the policies backed by the vault.
func (v *VaultContract) PolicyIDs(ctx context.Context) ([]*big.Int, error) {
	out, err := v.bound.Call(ctx, v.reader, "getPolicyIds")
	if err != nil {
		return nil, err
	}
	return ParseBigIntArray(out)
}

// PolicyWeightBps returns the allocation weight of a policy in basis points.
func (v *VaultContract) PolicyWeightBps(ctx context.Context, policyID *big.Int) (*big.Int, error) {
	return v.readBig(ctx, "policyWeightBps", policyID)
}

// FieldCalls returns the per-field reads used when getVaultInfo is unavailable.
func (v *VaultContract) FieldCalls() ([]Field, []chain.CallMsg) {
	fields := make([]Field, len(fieldMethods))
	msgs := make([]chain.CallMsg, len(fieldMethods))
	for i, fm := range fieldMethods {
		fields[i] = fm.field
		// Getter methods take no arguments and always pack.
		msgs[i], _ = v.bound.CallMsg(fm.method)
	}
	return fields, msgs
}

// ReadFields batch-reads every field individually. The returned info holds zero values
// for fields that failed; their errors are keyed by field.
func (v *VaultContract) ReadFields(ctx context.Context) (*VaultInfo, map[Field]error) {
	fields, msgs := v.FieldCalls()
	results := v.reader.BatchRead(ctx, msgs)

	info := &VaultInfo{
		TotalAssets:     new(big.Int),
		TotalShares:     new(big.Int),
		BufferRatioBps:  new(big.Int),
		FeeBps:          new(big.Int),
		DeployedCapital: new(big.Int),
		PendingClaims:   new(big.Int),
		PolicyCount:     new(big.Int),
	}
	failed := make(map[Field]error)

	for i, field := range fields {
		if i >= len(results) {
			failed[field] = fmt.Errorf("no result")
			continue
		}
		if results[i].Err != nil {
			failed[field] = results[i].Err
			continue
		}
		if err := v.decodeField(info, field, fieldMethods[i].method, results[i].Data); err != nil {
			failed[field] = err
		}
	}
	return info, failed
}

func (v *VaultContract) decodeField(info *VaultInfo, field Field, method string, data []byte) error {
	out, err := v.bound.Unpack(method, data)
	if err != nil {
		return err
	}
	switch field {
	case FieldName:
		info.Name, err = ParseString(out)
	case FieldManager:
		info.Manager, err = ParseAddress(out)
	case FieldAsset:
		info.Asset, err = ParseAddress(out)
	case FieldDecimals:
		info.Decimals, err = ParseUint8(out)
	default:
		var n *big.Int
		if n, err = ParseBigInt(out); err == nil {
			v.bigField(info, field).Set(n)
		}
	}
	return err
}

func (v *VaultContract) bigField(info *VaultInfo, field Field) *big.Int {
	switch field {
	case FieldTotalAssets:
		return info.TotalAssets
	case FieldTotalShares:
		return info.TotalShares
	case FieldBufferRatioBps:
		return info.BufferRatioBps
	case FieldFeeBps:
		return info.FeeBps
	case FieldDeployedCapital:
		return info.DeployedCapital
	case FieldPendingClaims:
		return info.PendingClaims
	default:
		return info.PolicyCount
	}
}

// =============================================================================
// Calldata Builders
// =============================================================================

// PackDeposit encodes deposit(assets, receiver).
func PackDeposit(assets *big.Int, receiver common.Address) ([]byte, error) {
	return VaultABI.Pack("deposit", assets, receiver)
}

// PackWithdraw encodes redeem(shares, receiver, owner).
func PackWithdraw(shares *big.Int, receiver, owner common.Address) ([]byte, error) {
	return VaultABI.Pack("redeem", shares, receiver, owner)
}

// PackSetBufferRatio encodes setBufferRatio(bufferBps).
func PackSetBufferRatio(bufferBps *big.Int) ([]byte, error) {
	return VaultABI.Pack("setBufferRatio", bufferBps)
}

// PackAddPolicy encodes addPolicy(policyId, weightBps).
func PackAddPolicy(policyID, weightBps *big.Int) ([]byte, error) {
	return VaultABI.Pack("addPolicy", policyID, weightBps)
}

// PackApprove encodes an ERC-20 approve(spender, amount).
func PackApprove(spender common.Address, amount *big.Int) ([]byte, error) {
	return ERC20ABI.Pack("approve", spender, amount)
}
