package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/campuslink/campuslink-admin/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskBroadcastDeliver delivers one dispatched broadcast to its audience.
	TaskBroadcastDeliver = "broadcast:deliver"
)

// BroadcastDeliverPayload carries one settled dispatch for delivery.
type BroadcastDeliverPayload struct {
	RecordID   string   `json:"record_id"`
	Recipients []string `json:"recipients"`
	Sender     string   `json:"sender"`
	Kind       string   `json:"kind"`
	Title      string   `json:"title,omitempty"`
	Body       string   `json:"body"`
	Severity   string   `json:"severity"`
}

// NewBroadcastDeliverTask constructs an Asynq task. Delivery is single shot;
// a failed run stays failed in the broadcast log.
func NewBroadcastDeliverTask(payload BroadcastDeliverPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskBroadcastDeliver, data, asynq.Queue(QueueDefault), asynq.MaxRetry(0)), nil
}

// Mailer sends broadcast mail through the configured SMTP relay.
type Mailer struct {
	Addr string
	From string
}

// Send relays one message to the recipients. The "ALL" and "SELF" audience
// sentinels are expanded by the relay-side distribution lists.
func (m Mailer) Send(recipients []string, subject, body string) error {
	if m.Addr == "" {
		return fmt.Errorf("mailer: no smtp address configured")
	}
	msg := strings.Builder{}
	msg.WriteString("From: " + m.From + "\r\n")
	msg.WriteString("To: " + strings.Join(recipients, ", ") + "\r\n")
	msg.WriteString("Subject: " + subject + "\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)
	return smtp.SendMail(m.Addr, nil, m.From, recipients, []byte(msg.String()))
}

// NewBroadcastDeliverHandler returns the Asynq handler for broadcast delivery.
func NewBroadcastDeliverHandler(mailer Mailer, metrics *jobmetrics.Metrics, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload BroadcastDeliverPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		tracker := metrics.Track("broadcast_deliver")
		subject := payload.Title
		if subject == "" {
			subject = "[" + payload.Severity + "] " + payload.Kind
		}
		if err := mailer.Send(payload.Recipients, subject, payload.Body); err != nil {
			if logger != nil {
				logger.Error("broadcast delivery failed",
					slog.String("record_id", payload.RecordID),
					slog.Any("error", err))
			}
			return tracker.End(err)
		}
		if logger != nil {
			logger.Info("broadcast delivered",
				slog.String("record_id", payload.RecordID),
				slog.Int("recipients", len(payload.Recipients)))
		}
		return tracker.End(nil)
	}
}
