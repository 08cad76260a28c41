package portalchain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/R3E-Network/vault_portal/internal/chain"
)

// =============================================================================
// Policy Types
// =============================================================================

// VerificationType is the claim-settlement method of a policy.
type VerificationType uint8

const (
	VerificationPermissionless VerificationType = iota
	VerificationOracle
	VerificationAdmin
)

func (t VerificationType) String() string {
	switch t {
	case VerificationPermissionless:
		return "permissionless"
	case VerificationOracle:
		return "oracle"
	case VerificationAdmin:
		return "admin"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// ParseVerificationType parses a verification type tag.
func ParseVerificationType(s string) (VerificationType, error) {
	switch s {
	case "permissionless":
		return VerificationPermissionless, nil
	case "oracle":
		return VerificationOracle, nil
	case "admin":
		return VerificationAdmin, nil
	default:
		return 0, fmt.Errorf("unknown verification type %q", s)
	}
}

// PolicyStatus is the lifecycle state of a policy.
type PolicyStatus uint8

const (
	PolicyRegistered PolicyStatus = iota
	PolicyActive
	PolicyClaimed
	PolicyExpired
)

func (s PolicyStatus) String() string {
	switch s {
	case PolicyRegistered:
		return "registered"
	case PolicyActive:
		return "active"
	case PolicyClaimed:
		return "claimed"
	case PolicyExpired:
		return "expired"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// Policy is an on-chain insurance policy.
type Policy struct {
	ID               *big.Int
	Name             string
	VerificationType VerificationType
	CoverageAmount   *big.Int
	PremiumAmount    *big.Int
	Duration         *big.Int
	Insurer          common.Address
	TriggerThreshold *big.Int
	Status           PolicyStatus
}

// PolicyParams are the inputs of registerPolicy.
type PolicyParams struct {
	Name             string
	VerificationType VerificationType
	CoverageAmount   *big.Int
	PremiumAmount    *big.Int
	Duration         *big.Int
	TriggerThreshold *big.Int
}

// =============================================================================
// PolicyRegistry Contract Interface
// =============================================================================

// RegistryContract provides interaction with the policy registry contract.
type RegistryContract struct {
	bound  *chain.BoundContract
	reader chain.Reader
}

// NewRegistryContract creates a new policy registry interface.
func NewRegistryContract(reader chain.Reader, address common.Address) *RegistryContract {
	return &RegistryContract{
		bound:  chain.NewBoundContract(address, RegistryABI),
		reader: reader,
	}
}

// Address returns the registry address.
func (r *RegistryContract) Address() common.Address {
	return r.bound.Address
}

// PolicyCount returns the number of registered policies.
func (r *RegistryContract) PolicyCount(ctx context.Context) (*big.Int, error) {
	out, err := r.bound.Call(ctx, r.reader, "policyCount")
	if err != nil {
		return nil, err
	}
	return ParseBigInt(out)
}

// GetPolicy returns a policy by id.
func (r *RegistryContract) GetPolicy(ctx context.Context, id *big.Int) (*Policy, error) {
	out, err := r.bound.Call(ctx, r.reader, "getPolicy", id)
	if err != nil {
		return nil, err
	}
	return parsePolicy(out)
}

func parsePolicy(out []interface{}) (*Policy, error) {
	if len(out) < 9 {
		return nil, fmt.Errorf("getPolicy: expected 9 outputs, got %d", len(out))
	}
	p := &Policy{}
	var err error
	if p.ID, err = bigAt(out, 0); err != nil {
		return nil, err
	}
	var ok bool
	if p.Name, ok = out[1].(string); !ok {
		return nil, fmt.Errorf("getPolicy: name is %T", out[1])
	}
	vt, ok := out[2].(uint8)
	if !ok {
		return nil, fmt.Errorf("getPolicy: verification type is %T", out[2])
	}
	p.VerificationType = VerificationType(vt)
	if p.CoverageAmount, err = bigAt(out, 3); err != nil {
		return nil, err
	}
	if p.PremiumAmount, err = bigAt(out, 4); err != nil {
		return nil, err
	}
	if p.Duration, err = bigAt(out, 5); err != nil {
		return nil, err
	}
	if p.Insurer, ok = out[6].(common.Address); !ok {
		return nil, fmt.Errorf("getPolicy: insurer is %T", out[6])
	}
	if p.TriggerThreshold, err = bigAt(out, 7); err != nil {
		return nil, err
	}
	status, ok := out[8].(uint8)
	if !ok {
		return nil, fmt.Errorf("getPolicy: status is %T", out[8])
	}
	p.Status = PolicyStatus(status)
	return p, nil
}

// PackRegisterPolicy encodes registerPolicy(...).
func PackRegisterPolicy(p PolicyParams) ([]byte, error) {
	return RegistryABI.Pack("registerPolicy",
		p.Name,
		uint8(p.VerificationType),
		orZero(p.CoverageAmount),
		orZero(p.PremiumAmount),
		orZero(p.Duration),
		orZero(p.TriggerThreshold),
	)
}

func orZero(n *big.Int) *big.Int {
	if n == nil {
		return new(big.Int)
	}
	return n
}
