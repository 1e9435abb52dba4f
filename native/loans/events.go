package loans

import (
	"strconv"

	"nftlend/core/events"
	"nftlend/core/types"
	"nftlend/crypto"
)

const (
	EventTypeRequestCreated    = "loans.request.created"
	EventTypeRequestRemoved    = "loans.request.removed"
	EventTypeRequestFulfilled  = "loans.request.fulfilled"
	EventTypeRequestRepaid     = "loans.request.repaid"
	EventTypeRequestSettled    = "loans.request.settled"
	EventTypeRequestLiquidated = "loans.request.liquidated"
)

var eventStatus = map[string]Status{
	EventTypeRequestCreated:    StatusOpen,
	EventTypeRequestRemoved:    StatusRemoved,
	EventTypeRequestFulfilled:  StatusFulfilled,
	EventTypeRequestRepaid:     StatusFulfilled,
	EventTypeRequestSettled:    StatusRepaid,
	EventTypeRequestLiquidated: StatusLiquidated,
}

func (e *Engine) emit(eventType string, req *BorrowRequest, extra map[string]string) {
	if e == nil || e.emitter == nil || req == nil {
		return
	}
	e.emitter.Emit(events.Typed{Evt: newRequestEvent(eventType, e.namespace, req, extra)})
}

func newRequestEvent(eventType, namespace string, req *BorrowRequest, extra map[string]string) *types.Event {
	attrs := map[string]string{
		"engine":             namespace,
		"id":                 strconv.FormatUint(req.ID, 10),
		"status":             eventStatus[eventType].String(),
		"borrower":           crypto.Format(crypto.AccountPrefix, req.Borrower),
		"loanAsset":          crypto.Format(crypto.AssetPrefix, req.LoanAsset),
		"collateralContract": crypto.Format(crypto.AssetPrefix, req.CollateralContract),
		"collateralId":       req.CollateralID.String(),
		"principal":          req.Principal.String(),
	}
	if req.Lender != ([20]byte{}) {
		attrs["lender"] = crypto.Format(crypto.AccountPrefix, req.Lender)
	}
	if req.RateMode.Valid() {
		attrs["rateMode"] = req.RateMode.String()
	}
	for k, v := range extra {
		attrs[k] = v
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}
