package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"nftlend/core/events"
	"nftlend/core/types"
)

type bareEvent string

func (e bareEvent) EventType() string { return string(e) }

func typed(eventType string, attrs map[string]string) events.Event {
	return events.Typed{Evt: &types.Event{Type: eventType, Attributes: attrs}}
}

func TestLedgerMetricsCountsByFamily(t *testing.T) {
	m := NewLedgerMetrics(prometheus.NewRegistry())

	m.Emit(typed("loans.request.created", map[string]string{"engine": "fixed"}))
	m.Emit(typed("loans.request.created", map[string]string{"engine": "fixed"}))
	m.Emit(typed("loans.request.settled", map[string]string{"engine": "stable"}))
	m.Emit(typed("moneymarket.borrow", map[string]string{"rateMode": "variable"}))
	m.Emit(typed("moneymarket.deposit", nil))
	m.Emit(bareEvent("assets.nft.transfer"))
	m.Emit(bareEvent("loans.request.removed"))
	m.Emit(bareEvent("unrelated"))

	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"fixed created", testutil.ToFloat64(m.loanEvents.WithLabelValues("fixed", "request.created")), 2},
		{"stable settled", testutil.ToFloat64(m.loanEvents.WithLabelValues("stable", "request.settled")), 1},
		{"unknown engine", testutil.ToFloat64(m.loanEvents.WithLabelValues("unknown", "request.removed")), 1},
		{"variable borrow", testutil.ToFloat64(m.marketEvents.WithLabelValues("borrow", "variable")), 1},
		{"deposit", testutil.ToFloat64(m.marketEvents.WithLabelValues("deposit", "none")), 1},
		{"nft transfer", testutil.ToFloat64(m.assetEvents.WithLabelValues("nft.transfer")), 1},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Fatalf("%s: got %v, want %v", c.name, c.got, c.want)
		}
	}
}

func TestNilLedgerMetricsIsSafe(t *testing.T) {
	var m *LedgerMetrics
	m.Emit(bareEvent("loans.request.created"))
}
