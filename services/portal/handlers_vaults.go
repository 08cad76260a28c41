package portal

import (
	"context"
	"math/big"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"

	svcerrors "github.com/R3E-Network/vault_portal/internal/errors"
	"github.com/R3E-Network/vault_portal/internal/httputil"
	"github.com/R3E-Network/vault_portal/internal/roles"
	"github.com/R3E-Network/vault_portal/internal/vaults"
)

// pathAddress parses the {address} route variable, writing a 400 when malformed.
func pathAddress(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	raw := mux.Vars(r)["address"]
	if !common.IsHexAddress(raw) {
		httputil.BadRequest(w, "invalid address")
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

// =============================================================================
// Vault Handlers
// =============================================================================

// handleListVaults lists every vault summary. Viewing is open to disconnected sessions.
func (s *Service) handleListVaults(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.require(w, r, roles.ActionViewVaults); !ok {
		return
	}
	list := s.vaults.List(r.Context())
	if list == nil {
		list = []vaults.Summary{}
	}
	httputil.WriteJSON(w, http.StatusOK, VaultListResponse{Vaults: list, Count: len(list)})
}

// handleGetVault returns one vault summary. Unreadable vaults yield a placeholder.
func (s *Service) handleGetVault(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r)
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, s.vaults.Summary(r.Context(), addr))
}

// handleBufferNote returns the allocation headroom of a vault.
func (s *Service) handleBufferNote(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r)
	if !ok {
		return
	}
	summary := s.vaults.Summary(r.Context(), addr)
	if summary.Source == vaults.SourcePlaceholder {
		httputil.WriteServiceError(w, r, svcerrors.ContractRead(nil).WithDetail("vault", summary.Address))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, vaults.NewBufferNote(summary))
}

// handleVaultPolicies lists the policies backed by a vault with their weights.
func (s *Service) handleVaultPolicies(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r)
	if !ok {
		return
	}
	policies, err := s.vaults.Aggregator().Policies(r.Context(), addr)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, PolicyListResponse{
		Vault:    strings.ToLower(addr.Hex()),
		Policies: policies,
	})
}

// handleRefreshVaults recomputes every summary now. Admin only.
func (s *Service) handleRefreshVaults(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.require(w, r, roles.ActionRefreshVaults); !ok {
		return
	}

	// The refresh outlives a dropped client connection.
	list := s.vaults.Refresh(context.WithoutCancel(r.Context()), "manual")
	fallbacks := 0
	for _, v := range list {
		if v.FallbackUsed {
			fallbacks++
		}
	}
	httputil.WriteJSON(w, http.StatusOK, RefreshResponse{Count: len(list), Fallbacks: fallbacks, Trigger: "manual"})
}

// =============================================================================
// Policy and Name Handlers
// =============================================================================

// handleGetPolicy returns a registry policy by decimal id.
func (s *Service) handleGetPolicy(w http.ResponseWriter, r *http.Request) {
	id, ok := new(big.Int).SetString(mux.Vars(r)["id"], 10)
	if !ok || id.Sign() < 0 {
		httputil.BadRequest(w, "invalid policy id")
		return
	}
	policy, err := s.vaults.Aggregator().Policy(r.Context(), id)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, policy)
}

// handleLookupName resolves a display name. A miss is not an error.
func (s *Service) handleLookupName(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r)
	if !ok {
		return
	}
	name, found := s.names.Lookup(r.Context(), addr)
	httputil.WriteJSON(w, http.StatusOK, NameResponse{
		Address: strings.ToLower(addr.Hex()),
		Name:    name,
		Found:   found,
	})
}
