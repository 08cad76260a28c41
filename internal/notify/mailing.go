package notify

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/R3E-Network/vault_portal/internal/httputil"
	"github.com/R3E-Network/vault_portal/internal/logging"
	"github.com/R3E-Network/vault_portal/internal/metrics"
)

// memberExistsTitle is the provider's error title for an already-subscribed address.
const memberExistsTitle = "Member Exists"

// MailingConfig configures a MailingList.
type MailingConfig struct {
	BaseURL string
	ListID  string
	APIKey  string
	Timeout time.Duration
}

// MailingList subscribes addresses to the newsletter list.
type MailingList struct {
	client  *httputil.JSONClient
	listID  string
	logger  *logging.Logger
	metrics *metrics.Metrics
}

// NewMailingList creates a mailing-list client.
func NewMailingList(cfg MailingConfig, logger *logging.Logger, m *metrics.Metrics) (*MailingList, error) {
	if cfg.BaseURL == "" || cfg.ListID == "" {
		return nil, fmt.Errorf("mailing list base URL and list ID required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	apiKey := cfg.APIKey
	client := httputil.NewJSONClient(httputil.JSONClientConfig{
		BaseURL: cfg.BaseURL,
		Timeout: cfg.Timeout,
		Hook: func(req *http.Request) {
			if apiKey != "" {
				req.SetBasicAuth("apikey", apiKey)
			}
		},
	})
	return &MailingList{client: client, listID: cfg.ListID, logger: logger, metrics: m}, nil
}

type subscribeRequest struct {
	EmailAddress string `json:"email_address"`
	Status       string `json:"status"`
}

// Subscribe adds email to the list. An address that is already a member counts as success.
func (l *MailingList) Subscribe(ctx context.Context, email string) error {
	normalized, err := NormalizeEmail(email)
	if err != nil {
		return err
	}

	resp, err := l.client.Post(ctx, "/lists/"+l.listID+"/members", subscribeRequest{
		EmailAddress: normalized,
		Status:       "subscribed",
	})
	if err != nil {
		return l.fail(ctx, err)
	}

	err = httputil.DecodeResponse(resp, nil)
	if err == nil {
		return nil
	}

	var statusErr *httputil.StatusError
	if errors.As(err, &statusErr) && isMemberExists(statusErr.Body) {
		l.logger.WithContext(ctx).WithField("subscriber", subscriberID(normalized)).Debug("already subscribed")
		return nil
	}
	return l.fail(ctx, err)
}

func (l *MailingList) fail(ctx context.Context, err error) error {
	l.metrics.RecordNotificationFailure("mailing_list")
	l.logger.WithContext(ctx).WithError(err).WithField("provider", l.client.BaseURL()).Error("mailing list subscription failed")
	return fmt.Errorf("subscribe: %w", err)
}

func isMemberExists(body []byte) bool {
	return strings.EqualFold(gjson.GetBytes(body, "title").String(), memberExistsTitle)
}

// subscriberID is the provider's member id: md5 of the lower-cased address. It keeps
// raw addresses out of the logs.
func subscriberID(email string) string {
	sum := md5.Sum([]byte(strings.ToLower(email)))
	return hex.EncodeToString(sum[:])
}
