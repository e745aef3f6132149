// Package notify fans short human-readable messages out to chat webhooks.
// Sinks are independent: one slow or failing webhook never blocks another,
// and delivery is best-effort with no retries. Losing a notification is
// acceptable; the trade log is the durable record.
package notify

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/jaylee/stocklab-trader/internal/domain"
)

const sendTimeout = 5 * time.Second

// message is the webhook payload. Slack- and Discord-compatible hooks both
// accept a bare text field.
type message struct {
	Text string `json:"text"`
}

// Notifier posts messages to zero or more webhook URLs.
type Notifier struct {
	client   *resty.Client
	webhooks []string
	log      zerolog.Logger
}

// New creates a notifier. An empty webhook list is valid; every notify call
// becomes a no-op beyond logging.
func New(webhooks []string, log zerolog.Logger) *Notifier {
	client := resty.New().
		SetTimeout(sendTimeout).
		SetRetryCount(0).
		SetHeader("Content-Type", "application/json")

	return &Notifier{
		client:   client,
		webhooks: webhooks,
		log:      log.With().Str("component", "notify").Logger(),
	}
}

// send posts the text to every webhook concurrently and waits for all sinks
// to finish or time out. Failures are logged and swallowed.
func (n *Notifier) send(text string) {
	if len(n.webhooks) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, url := range n.webhooks {
		wg.Add(1)
		go func(url string) {
			defer wg.Done()

			resp, err := n.client.R().SetBody(message{Text: text}).Post(url)
			if err != nil {
				n.log.Warn().Err(err).Str("webhook", url).Msg("Webhook delivery failed")
				return
			}
			if resp.StatusCode() >= 300 {
				n.log.Warn().
					Int("status", resp.StatusCode()).
					Str("webhook", url).
					Msg("Webhook rejected notification")
			}
		}(url)
	}
	wg.Wait()
}

// NotifyResult reports the outcome of one order attempt. Implements the
// coordinator's Notifier interface.
func (n *Notifier) NotifyResult(result domain.OrderResult) {
	var text string
	switch result.Status {
	case domain.OrderSuccess:
		text = fmt.Sprintf("[%s] %s %s x%d @ %.2f (order %s)",
			result.Market, result.Action, result.Ticker,
			result.Quantity, result.Price, result.OrderNo)
	case domain.OrderSkipped:
		text = fmt.Sprintf("[%s] %s %s skipped: %s",
			result.Market, result.Action, result.Ticker, result.Reason)
	default:
		text = fmt.Sprintf("[%s] %s %s FAILED: %s",
			result.Market, result.Action, result.Ticker, failureLine(result))
	}
	n.send(text)
}

// NotifyScheduled reports that a signal was deferred to the next market open.
func (n *Notifier) NotifyScheduled(signal domain.Signal, executeAfter time.Time) {
	n.send(fmt.Sprintf("[%s] %s %s deferred to %s (market closed)",
		signal.Market, signal.Type, signal.Ticker,
		executeAfter.Format("2006-01-02 15:04 MST")))
}

// NotifyMarketEvent reports an observational EVENT signal. The dispatcher
// throttles these to one per source+ticker per day.
func (n *Notifier) NotifyMarketEvent(signal domain.Signal) {
	parts := []string{fmt.Sprintf("[%s] EVENT %s", signal.Market, signal.Ticker)}
	if signal.CompanyName != "" {
		parts = append(parts, signal.CompanyName)
	}
	if signal.Source != "" {
		parts = append(parts, "via "+signal.Source)
	}
	n.send(strings.Join(parts, " "))
}

// NotifyText sends a pre-formatted message, used by the daily summary job
// and lifecycle notifications.
func (n *Notifier) NotifyText(text string) {
	n.send(text)
}

func failureLine(result domain.OrderResult) string {
	if result.Message != "" {
		return result.Message
	}
	return result.Reason
}
