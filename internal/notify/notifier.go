// Package notify fans alerts out to chat senders (Telegram, Discord). Events
// can be filtered so operators only receive the kinds they asked for.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/alanyoungcy/sudarshan/internal/domain"
)

// EventVerdict is raised for every non-neutral fusion verdict.
const EventVerdict = "verdict"

// Sender is one notification channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier dispatches to every Sender, subject to the event filter.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	recent  *dedup // nil disables the verdict cooldown
	logger  *slog.Logger
}

// NewNotifier creates a Notifier. An empty events list allows every event.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether any sender is configured.
func (n *Notifier) Enabled() bool {
	return n != nil && len(n.senders) > 0
}

// Notify sends title and message when event passes the filter.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
		return nil
	}
	return n.dispatch(ctx, title, message)
}

// WithCooldown suppresses a verdict identical to one sent within d (same
// direction, same blade signals). Zero disables it.
func (n *Notifier) WithCooldown(d time.Duration) *Notifier {
	if d > 0 {
		n.recent = newDedup(d)
	} else {
		n.recent = nil
	}
	return n
}

// NotifyVerdict formats an analysis result and sends it as EventVerdict.
func (n *Notifier) NotifyVerdict(ctx context.Context, res domain.AnalyzeResult) error {
	if n.recent != nil && n.recent.isDuplicate(verdictFingerprint(res)) {
		n.logger.DebugContext(ctx, "verdict suppressed by cooldown", slog.String("id", res.ID))
		return nil
	}
	title := fmt.Sprintf("Sudarshan: %s", strings.ToUpper(string(res.Verdict)))
	return n.Notify(ctx, EventVerdict, title, FormatVerdict(res))
}

// FormatVerdict renders the score line followed by one line per blade in
// name order.
func FormatVerdict(res domain.AnalyzeResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "score %.3f, confirms %d", res.Score, res.Confirms)
	if res.ID != "" {
		fmt.Fprintf(&b, " (id %s)", res.ID)
	}

	names := make([]string, 0, len(res.Signals))
	for name := range res.Signals {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&b, "\n%s: %s", name, res.Signals[name])
	}
	return b.String()
}

// dispatch delivers to every sender. One failing sender does not stop the
// rest; failures are combined into the returned error.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	if len(n.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}
