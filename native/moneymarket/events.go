package moneymarket

import (
	"math/big"

	"nftlend/core/events"
	"nftlend/core/types"
	"nftlend/crypto"
)

const (
	EventTypeDeposit    = "moneymarket.deposit"
	EventTypeWithdraw   = "moneymarket.withdraw"
	EventTypeBorrow     = "moneymarket.borrow"
	EventTypeRepay      = "moneymarket.repay"
	EventTypeDelegation = "moneymarket.delegation"
)

// newMarketEvent renders a market movement. `actor` initiated the call and
// `account` is the position it applied to (or the recipient for withdrawals).
func newMarketEvent(eventType string, asset, actor, account [20]byte, mode RateMode, amount *big.Int) events.Event {
	attrs := map[string]string{
		"asset":   crypto.Format(crypto.AssetPrefix, asset),
		"actor":   crypto.Format(crypto.AccountPrefix, actor),
		"account": crypto.Format(crypto.AccountPrefix, account),
		"amount":  cloneBigInt(amount).String(),
	}
	if mode.Valid() {
		attrs["rateMode"] = mode.String()
	}
	return events.Typed{Evt: &types.Event{Type: eventType, Attributes: attrs}}
}
