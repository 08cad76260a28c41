package roles

// Session is the wallet connection state of a caller.
type Session struct {
	Connected bool   `json:"connected"`
	Address   string `json:"address,omitempty"`
	Role      Role   `json:"role"`
}

// ResolveSession builds the session for addr. A disconnected session keeps the Investor
// role tag but is denied every connected-only action.
func (r *Resolver) ResolveSession(addr string, connected bool) Session {
	addr = normalize(addr)
	if !connected || addr == "" {
		return Session{Role: Investor}
	}
	return Session{Connected: true, Address: addr, Role: r.Resolve(addr)}
}

// Action is a role-gated operation.
type Action string

const (
	ActionViewVaults     Action = "view_vaults"
	ActionDeposit        Action = "deposit"
	ActionWithdraw       Action = "withdraw"
	ActionRegisterPolicy Action = "register_policy"
	ActionCreateVault    Action = "create_vault"
	ActionAdjustRisk     Action = "adjust_risk"
	ActionSwitchViewRole Action = "switch_view_role"
	ActionRefreshVaults  Action = "refresh_vaults"
)

// Actions lists every gated action.
var Actions = []Action{
	ActionViewVaults,
	ActionDeposit,
	ActionWithdraw,
	ActionRegisterPolicy,
	ActionCreateVault,
	ActionAdjustRisk,
	ActionSwitchViewRole,
	ActionRefreshVaults,
}

// grants lists the roles allowed per action. A nil entry means any connected session.
var grants = map[Action][]Role{
	ActionDeposit:        nil,
	ActionWithdraw:       nil,
	ActionRegisterPolicy: {Admin, Insurance},
	ActionCreateVault:    {Admin, Syndicate},
	ActionAdjustRisk:     {Admin, Syndicate},
	ActionSwitchViewRole: {Admin},
	ActionRefreshVaults:  {Admin},
}

// Allowed reports whether the session may perform action.
func Allowed(s Session, action Action) bool {
	if action == ActionViewVaults {
		return true
	}
	if !s.Connected {
		return false
	}
	allowed, known := grants[action]
	if !known {
		return false
	}
	if allowed == nil {
		return true
	}
	for _, role := range allowed {
		if s.Role == role {
			return true
		}
	}
	return false
}

// Permissions lists the actions the session may perform.
func Permissions(s Session) []Action {
	out := make([]Action, 0, len(Actions))
	for _, a := range Actions {
		if Allowed(s, a) {
			out = append(out, a)
		}
	}
	return out
}
