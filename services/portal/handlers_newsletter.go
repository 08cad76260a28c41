package portal

import (
	"errors"
	"net/http"
	"strings"

	svcerrors "github.com/R3E-Network/vault_portal/internal/errors"
	"github.com/R3E-Network/vault_portal/internal/httputil"
	"github.com/R3E-Network/vault_portal/internal/notify"
)

const maxSubscriberNameLength = 100

// handleNewsletter subscribes an email address and sends the welcome email. A welcome
// failure after a successful subscription is reported, not returned as an error.
func (s *Service) handleNewsletter(w http.ResponseWriter, r *http.Request) {
	var input NewsletterInput
	if !httputil.DecodeJSON(w, r, &input) {
		return
	}
	email, err := notify.NormalizeEmail(input.Email)
	if err != nil {
		httputil.BadRequest(w, "valid email address is required")
		return
	}
	name := strings.TrimSpace(input.Name)
	if len(name) > maxSubscriberNameLength {
		httputil.BadRequest(w, "name must be at most 100 characters")
		return
	}

	if s.mailing == nil {
		httputil.WriteServiceError(w, r, svcerrors.SubmissionFailed(errors.New("mailing list not configured")))
		return
	}

	ctx := r.Context()
	if err := s.mailing.Subscribe(ctx, email); err != nil {
		if errors.Is(err, notify.ErrInvalidEmail) {
			httputil.BadRequest(w, "valid email address is required")
			return
		}
		httputil.WriteServiceError(w, r, svcerrors.SubmissionFailed(err))
		return
	}

	resp := NewsletterResponse{Subscribed: true}
	if s.welcome != nil {
		if err := s.welcome.SendWelcome(ctx, email, name); err != nil {
			s.Logger().WithContext(ctx).WithError(err).Warn("subscribed without welcome email")
		} else {
			resp.WelcomeSent = true
		}
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}
