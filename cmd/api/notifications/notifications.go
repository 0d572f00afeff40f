package notifications

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/lending-service/cmd/api/lending"
	"go.uber.org/zap"
)

// Ntfy publishes lending events to an ntfy.sh topic.
type Ntfy struct {
	baseURL string
	enabled bool
	timeout time.Duration
	client  *http.Client
	logger  *zap.Logger
}

func NewNtfy(enableNotifications bool, notificationsTimeout time.Duration, notificationsBaseURL string, client *http.Client, logger *zap.Logger) *Ntfy {
	if client == nil {
		client = &http.Client{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ntfy{
		baseURL: strings.TrimRight(notificationsBaseURL, "/"),
		enabled: enableNotifications,
		timeout: notificationsTimeout,
		client:  client,
		logger:  logger,
	}
}

func FineAssessedMessage(loan lending.LoanTransaction) string {
	return fmt.Sprintf("Fine assessed:\nBorrower: %s\nItem: %s\nAmount: %s", loan.BorrowerID, loan.ItemID, loan.Fine)
}

/* Tells the topic a returned loan was charged a fine. Does nothing when notifications are disabled. */
func (ntf *Ntfy) FineAssessed(ctx context.Context, loan lending.LoanTransaction) error {
	if !ntf.enabled {
		return nil
	}
	if ntf.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ntf.timeout)
		defer cancel()
	}

	topic := ntf.baseURL + "/Fine_assessed"
	message := FineAssessedMessage(loan)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, topic, strings.NewReader(message))
	if err != nil {
		return fmt.Errorf("error delivering message (%s) to topic (%s): %w", message, topic, err)
	}
	req.Header.Set("Title", "Fine assessed")
	req.Header.Set("Tags", "money_with_wings")

	resp, err := ntf.client.Do(req)
	if err != nil {
		return fmt.Errorf("error delivering message (%s) to topic (%s): %w", message, topic, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return lending.NewErrNotificationFailed(resp.StatusCode)
	}

	ntf.logger.Debug("fine notification delivered", zap.Int64("loan_id", loan.ID), zap.String("topic", topic))
	return nil
}
