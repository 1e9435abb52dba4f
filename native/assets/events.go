package assets

import (
	"math/big"

	"nftlend/core/events"
	"nftlend/core/types"
	"nftlend/crypto"
)

const (
	EventTypeTokenTransfer = "assets.token.transfer"
	EventTypeTokenApproval = "assets.token.approval"
	EventTypeNFTTransfer   = "assets.nft.transfer"
	EventTypeNFTApproval   = "assets.nft.approval"
)

func newTransferEvent(asset, from, to [20]byte, amount *big.Int) events.Event {
	return events.Typed{Evt: &types.Event{
		Type: EventTypeTokenTransfer,
		Attributes: map[string]string{
			"asset":  crypto.Format(crypto.AssetPrefix, asset),
			"from":   crypto.Format(crypto.AccountPrefix, from),
			"to":     crypto.Format(crypto.AccountPrefix, to),
			"amount": amount.String(),
		},
	}}
}

func newApprovalEvent(asset, owner, spender [20]byte, amount *big.Int) events.Event {
	return events.Typed{Evt: &types.Event{
		Type: EventTypeTokenApproval,
		Attributes: map[string]string{
			"asset":   crypto.Format(crypto.AssetPrefix, asset),
			"owner":   crypto.Format(crypto.AccountPrefix, owner),
			"spender": crypto.Format(crypto.AccountPrefix, spender),
			"amount":  amount.String(),
		},
	}}
}

func newNFTTransferEvent(contract, from, to [20]byte, id *big.Int) events.Event {
	return events.Typed{Evt: &types.Event{
		Type: EventTypeNFTTransfer,
		Attributes: map[string]string{
			"contract": crypto.Format(crypto.AssetPrefix, contract),
			"from":     crypto.Format(crypto.AccountPrefix, from),
			"to":       crypto.Format(crypto.AccountPrefix, to),
			"tokenId":  id.String(),
		},
	}}
}

func newNFTApprovalEvent(contract, owner, approved [20]byte, id *big.Int) events.Event {
	return events.Typed{Evt: &types.Event{
		Type: EventTypeNFTApproval,
		Attributes: map[string]string{
			"contract": crypto.Format(crypto.AssetPrefix, contract),
			"owner":    crypto.Format(crypto.AccountPrefix, owner),
			"approved": crypto.Format(crypto.AccountPrefix, approved),
			"tokenId":  id.String(),
		},
	}}
}
