package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/payrecon/internal/clock"
	"github.com/smallbiznis/payrecon/internal/config"
	obsmetrics "github.com/smallbiznis/payrecon/internal/observability/metrics"
	"github.com/smallbiznis/payrecon/internal/payment/domain"
	"github.com/smallbiznis/payrecon/internal/providers/email"
	"github.com/smallbiznis/payrecon/internal/providers/pdf"
	"github.com/smallbiznis/payrecon/internal/providers/slack"
	"github.com/smallbiznis/payrecon/pkg/telemetry/correlation"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	taskTimeout           = 30 * time.Second
	operatorAlertTemplate = "operator_alert"
)

var ErrNoRecipient = errors.New("dispatch_no_recipient")

type Params struct {
	fx.In

	Queue     Queue
	Publisher Publisher
	Email     email.Provider
	Slack     slack.Provider
	Receipts  pdf.Provider `optional:"true"`
	Alerting  *config.AlertingConfigHolder
	Clock     clock.Clock
	Log       *zap.Logger
}

// Dispatcher turns post-commit side effects into queued tasks and delivers
// them from the queue's workers. Callers never wait on delivery.
type Dispatcher struct {
	queue     Queue
	publisher Publisher
	email     email.Provider
	slack     slack.Provider
	receipts  pdf.Provider
	alerting  *config.AlertingConfigHolder
	clock     clock.Clock
	log       *zap.Logger
}

func NewDispatcher(p Params) *Dispatcher {
	c := p.Clock
	if c == nil {
		c = clock.System()
	}
	return &Dispatcher{
		queue:     p.Queue,
		publisher: p.Publisher,
		email:     p.Email,
		slack:     p.Slack,
		receipts:  p.Receipts,
		alerting:  p.Alerting,
		clock:     c,
		log:       p.Log.Named("payment.dispatch"),
	}
}

func (d *Dispatcher) Notify(ctx context.Context, userID int64, channel string, payload map[string]any) error {
	return d.enqueue(ctx, Task{
		Kind:    KindPush,
		UserID:  userID,
		Channel: channel,
		Data:    payload,
	})
}

func (d *Dispatcher) EnqueueEmail(ctx context.Context, recipient string, template string, data map[string]any) error {
	if strings.TrimSpace(recipient) == "" {
		return ErrNoRecipient
	}
	return d.enqueue(ctx, Task{
		Kind:      KindEmail,
		Recipient: recipient,
		Template:  template,
		Data:      data,
	})
}

func (d *Dispatcher) AlertOperators(ctx context.Context, subject string, data map[string]any) error {
	return d.enqueue(ctx, Task{
		Kind:    KindAlert,
		Subject: subject,
		Data:    data,
	})
}

func (d *Dispatcher) enqueue(ctx context.Context, task Task) error {
	task.ID = ulid.Make().String()
	task.EnqueuedAt = d.clock.Now()
	task.Metadata = correlation.Inject(ctx, task.Metadata)

	err := d.queue.Enqueue(ctx, task)
	d.reportDepth()
	if err != nil {
		return fmt.Errorf("enqueue %s task: %w", task.Kind, err)
	}
	return nil
}

// Handle delivers a single task. It is the queue's handler.
func (d *Dispatcher) Handle(ctx context.Context, task Task) error {
	ctx = correlation.Extract(ctx, task.Metadata)
	ctx, cancel := context.WithTimeout(ctx, taskTimeout)
	defer cancel()
	d.reportDepth()

	log := d.log.With(
		zap.String("task_id", task.ID),
		zap.String("kind", string(task.Kind)),
		zap.String("correlation_id", correlation.ExtractCorrelationID(ctx)),
	)

	var err error
	switch task.Kind {
	case KindPush:
		err = d.push(ctx, task)
	case KindEmail:
		err = d.sendEmail(ctx, log, task)
	case KindAlert:
		err = d.alert(ctx, task)
	default:
		err = fmt.Errorf("unknown task kind %q", task.Kind)
	}

	if err != nil {
		obsmetrics.Payments().IncSideEffect(string(task.Kind), "failed")
		log.Warn("side effect delivery failed", zap.Error(err))
		return err
	}
	obsmetrics.Payments().IncSideEffect(string(task.Kind), "delivered")
	log.Debug("side effect delivered", zap.Duration("latency", d.clock.Now().Sub(task.EnqueuedAt)))
	return nil
}

func (d *Dispatcher) sendEmail(ctx context.Context, log *zap.Logger, task Task) error {
	data := map[string]any(task.Data)
	if task.Template != domain.TemplatePaymentReceipt || d.receipts == nil {
		return d.email.SendTemplate(ctx, []string{task.Recipient}, task.Template, data)
	}
	receipt := pdf.Receipt{
		PaymentID:   stringOf(data, "payment_id"),
		IntentID:    stringOf(data, "payment_intent_id"),
		OrderRef:    stringOf(data, "order_ref"),
		Description: stringOf(data, "description"),
		BuyerName:   stringOf(data, "name"),
		BuyerEmail:  task.Recipient,
		Amount:      stringOf(data, "amount"),
		Currency:    stringOf(data, "currency"),
		PaidAt:      stringOf(data, "paid_at"),
	}
	doc, err := d.receipts.RenderReceipt(ctx, receipt)
	if err != nil || len(doc) == 0 {
		// The receipt body still goes out; only the attachment is lost.
		log.Warn("receipt pdf not rendered", zap.Error(err))
		return d.email.SendTemplate(ctx, []string{task.Recipient}, task.Template, data)
	}
	return d.email.SendTemplate(ctx, []string{task.Recipient}, task.Template, data, email.Attachment{
		Filename:    "receipt-" + receipt.PaymentID + ".pdf",
		ContentType: "application/pdf",
		Content:     doc,
	})
}

func stringOf(data map[string]any, key string) string {
	if v, ok := data[key]; ok && v != nil {
		return fmt.Sprint(v)
	}
	return ""
}

func (d *Dispatcher) push(ctx context.Context, task Task) error {
	body, err := json.Marshal(task.Data)
	if err != nil {
		return fmt.Errorf("encode push payload: %w", err)
	}
	return d.publisher.Publish(ctx, UserTopic(task.UserID), body)
}

func (d *Dispatcher) alert(ctx context.Context, task Task) error {
	routing := config.DefaultAlertingConfig("")
	if d.alerting != nil {
		routing = d.alerting.Get()
	}

	var errs []error
	if routing.OperatorEmails && len(routing.AdminEmails) > 0 {
		data := map[string]any{
			"subject": task.Subject,
			"fields":  map[string]any(task.Data),
		}
		if err := d.email.SendTemplate(ctx, routing.AdminEmails, operatorAlertTemplate, data); err != nil {
			errs = append(errs, fmt.Errorf("alert email: %w", err))
		}
	}
	if routing.SlackChannel != "" {
		if err := d.slack.PostMessage(ctx, routing.SlackChannel, slackText(task.Subject, task.Data)); err != nil {
			errs = append(errs, fmt.Errorf("alert slack: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (d *Dispatcher) reportDepth() {
	if depth := d.queue.Depth(); depth >= 0 {
		obsmetrics.Payments().SetQueueDepth(depth)
	}
}

func slackText(subject string, data map[string]any) string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("*")
	b.WriteString(subject)
	b.WriteString("*")
	for _, k := range keys {
		fmt.Fprintf(&b, "\n• %s: %v", k, data[k])
	}
	return b.String()
}

var _ domain.SideEffects = (*Dispatcher)(nil)
