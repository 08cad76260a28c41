package portal

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	svcerrors "github.com/R3E-Network/vault_portal/internal/errors"
	"github.com/R3E-Network/vault_portal/internal/httputil"
	"github.com/R3E-Network/vault_portal/internal/middleware"
	"github.com/R3E-Network/vault_portal/internal/roles"
	"github.com/R3E-Network/vault_portal/internal/viewstate"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
	wsReadLimit  = 512
)

// =============================================================================
// Session Helpers
// =============================================================================

// session resolves the caller's wallet session.
func (s *Service) session(r *http.Request) roles.Session {
	addr := middleware.SessionAddress(r.Context())
	return s.roles.ResolveSession(addr, addr != "")
}

// require resolves the session and writes 401/403 when it may not perform action.
func (s *Service) require(w http.ResponseWriter, r *http.Request, action roles.Action) (roles.Session, bool) {
	session := s.session(r)
	if roles.Allowed(session, action) {
		return session, true
	}
	if !session.Connected {
		httputil.WriteServiceError(w, r, svcerrors.Unauthorized("wallet not connected"))
		return session, false
	}
	s.Logger().LogSecurityEvent(r.Context(), "permission_denied", map[string]interface{}{
		"address": session.Address,
		"role":    session.Role,
		"action":  action,
	})
	httputil.WriteServiceError(w, r, svcerrors.Forbidden("role "+string(session.Role)+" may not "+string(action)))
	return session, false
}

// requireConnected writes 401 for a disconnected session.
func (s *Service) requireConnected(w http.ResponseWriter, r *http.Request) (roles.Session, bool) {
	session := s.session(r)
	if !session.Connected {
		httputil.WriteServiceError(w, r, svcerrors.Unauthorized("wallet not connected"))
		return session, false
	}
	return session, true
}

// checkOrigin admits non-browser clients, same-host pages and configured origins.
func (s *Service) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if u, err := url.Parse(origin); err == nil && strings.EqualFold(u.Host, r.Host) {
		return true
	}
	return s.cors.AllowsOrigin(origin)
}

// =============================================================================
// Auth Handlers
// =============================================================================

// handleAuthNonce issues a login challenge for ?address=.
func (s *Service) handleAuthNonce(w http.ResponseWriter, r *http.Request) {
	address := r.URL.Query().Get("address")
	if address == "" {
		httputil.BadRequest(w, "address query parameter required")
		return
	}

	challenge, err := s.auth.IssueNonce(r.Context(), address)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, NonceResponse{
		Address:   challenge.Address,
		Nonce:     challenge.Nonce,
		Message:   challenge.Message,
		ExpiresAt: challenge.ExpiresAt.Format(time.RFC3339),
	})
}

// handleAuthVerify exchanges a signed challenge for a session token.
func (s *Service) handleAuthVerify(w http.ResponseWriter, r *http.Request) {
	var input VerifyInput
	if !httputil.DecodeJSON(w, r, &input) {
		return
	}
	if input.Address == "" || input.Signature == "" {
		httputil.BadRequest(w, "address and signature are required")
		return
	}

	token, err := s.auth.Verify(r.Context(), input.Address, input.Signature)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}

	// A new session starts from the wallet's own role.
	s.views.Clear(token.Address)
	s.Logger().WithContext(r.Context()).WithField("address", token.Address).Info("wallet session started")
	httputil.WriteJSON(w, http.StatusOK, VerifyResponse{
		Token:     token.Token,
		Address:   token.Address,
		Role:      s.roles.Resolve(token.Address),
		ExpiresAt: token.ExpiresAt.Format(time.RFC3339),
	})
}

// handleAuthLogout ends the view-role state of the caller's wallet. Session tokens are
// stateless and simply expire.
func (s *Service) handleAuthLogout(w http.ResponseWriter, r *http.Request) {
	session, ok := s.requireConnected(w, r)
	if !ok {
		return
	}
	s.views.Clear(session.Address)
	s.Logger().WithContext(r.Context()).WithField("address", session.Address).Info("wallet session ended")
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// Role Handlers
// =============================================================================

// handleRolesMe describes the caller's role and permissions.
func (s *Service) handleRolesMe(w http.ResponseWriter, r *http.Request) {
	session := s.session(r)
	resp := SessionResponse{
		Connected:   session.Connected,
		Address:     session.Address,
		Role:        session.Role,
		ViewRole:    session.Role,
		Permissions: roles.Permissions(session),
	}
	if session.Connected {
		resp.ViewRole = s.views.Get(session.Address)
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// handleGetViewRole returns the role whose UI the session is viewing.
func (s *Service) handleGetViewRole(w http.ResponseWriter, r *http.Request) {
	session, ok := s.requireConnected(w, r)
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ViewRoleResponse{
		Role:     session.Role,
		ViewRole: s.views.Get(session.Address),
	})
}

// handleSetViewRole switches the viewed role. Only admins may view another role.
func (s *Service) handleSetViewRole(w http.ResponseWriter, r *http.Request) {
	session, ok := s.requireConnected(w, r)
	if !ok {
		return
	}

	var input ViewRoleInput
	if !httputil.DecodeJSON(w, r, &input) {
		return
	}
	role, valid := roles.ParseRole(input.Role)
	if !valid {
		httputil.BadRequest(w, "role must be one of: admin, insurance, syndicate, investor")
		return
	}

	if err := s.views.Switch(session, role); err != nil {
		switch {
		case errors.Is(err, viewstate.ErrNotPermitted):
			httputil.WriteServiceError(w, r, svcerrors.Forbidden(err.Error()))
		case errors.Is(err, viewstate.ErrDisconnected):
			httputil.WriteServiceError(w, r, svcerrors.Unauthorized(err.Error()))
		default:
			httputil.WriteServiceError(w, r, svcerrors.BadRequest(err.Error()))
		}
		return
	}

	httputil.WriteJSON(w, http.StatusOK, ViewRoleResponse{Role: session.Role, ViewRole: role})
}

// handleViewRoleStream pushes the session's view role over a websocket: a snapshot on
// connect, then every change.
func (s *Service) handleViewRoleStream(w http.ResponseWriter, r *http.Request) {
	session, ok := s.requireConnected(w, r)
	if !ok {
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already replied.
		s.Logger().WithContext(r.Context()).WithError(err).Debug("view-role stream upgrade failed")
		return
	}
	defer conn.Close()

	updates := make(chan roles.Role, 1)
	unsubscribe := s.views.Subscribe(session.Address, func(role roles.Role) {
		offerLatest(updates, role)
	})
	defer unsubscribe()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(wsReadLimit)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	if err := writeViewRole(conn, "snapshot", s.views.Get(session.Address)); err != nil {
		return
	}
	for {
		select {
		case <-closed:
			return
		case <-s.StopChan():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(wsWriteWait))
			return
		case role := <-updates:
			if err := writeViewRole(conn, "changed", role); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}

func writeViewRole(conn *websocket.Conn, kind string, role roles.Role) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteJSON(ViewRoleEvent{Type: kind, ViewRole: role})
}

// offerLatest replaces any undelivered value so the stream never blocks the notifier.
func offerLatest(ch chan roles.Role, role roles.Role) {
	for {
		select {
		case ch <- role:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
