package metrics

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"nftlend/core/events"
)

// LedgerMetrics counts committed ledger events. It implements events.Emitter
// so it can be attached to the ledger emitter fanout.
type LedgerMetrics struct {
	loanEvents   *prometheus.CounterVec
	marketEvents *prometheus.CounterVec
	assetEvents  *prometheus.CounterVec
}

var (
	ledgerOnce     sync.Once
	ledgerRegistry *LedgerMetrics
)

// Ledger returns the process wide metrics registered on the default
// prometheus registry.
func Ledger() *LedgerMetrics {
	ledgerOnce.Do(func() {
		ledgerRegistry = NewLedgerMetrics(prometheus.DefaultRegisterer)
	})
	return ledgerRegistry
}

// NewLedgerMetrics registers a fresh set of collectors on reg.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	m := &LedgerMetrics{
		loanEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nftlend",
			Subsystem: "loans",
			Name:      "events_total",
			Help:      "Committed borrow request lifecycle events by engine and event type.",
		}, []string{"engine", "event"}),
		marketEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nftlend",
			Subsystem: "moneymarket",
			Name:      "events_total",
			Help:      "Committed money market operations by event type and rate mode.",
		}, []string{"event", "rate_mode"}),
		assetEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nftlend",
			Subsystem: "assets",
			Name:      "events_total",
			Help:      "Committed token and collectible movements by event type.",
		}, []string{"event"}),
	}
	if reg != nil {
		reg.MustRegister(m.loanEvents, m.marketEvents, m.assetEvents)
	}
	return m
}

// Emit implements events.Emitter.
func (m *LedgerMetrics) Emit(evt events.Event) {
	if m == nil || evt == nil {
		return
	}
	eventType := evt.EventType()
	attrs := map[string]string{}
	if payload, ok := evt.(events.Payload); ok {
		if rendered := payload.Event(); rendered != nil {
			attrs = rendered.Attributes
		}
	}
	switch {
	case strings.HasPrefix(eventType, "loans."):
		m.loanEvents.WithLabelValues(labelOrUnknown(attrs["engine"]), shortName(eventType, "loans.")).Inc()
	case strings.HasPrefix(eventType, "moneymarket."):
		mode := attrs["rateMode"]
		if mode == "" {
			mode = "none"
		}
		m.marketEvents.WithLabelValues(shortName(eventType, "moneymarket."), mode).Inc()
	case strings.HasPrefix(eventType, "assets."):
		m.assetEvents.WithLabelValues(shortName(eventType, "assets.")).Inc()
	}
}

func shortName(eventType, prefix string) string {
	return labelOrUnknown(strings.TrimPrefix(eventType, prefix))
}

func labelOrUnknown(v string) string {
	if v = strings.TrimSpace(v); v == "" {
		return "unknown"
	}
	return v
}
