package routes

import (
	"net/http"
	"time"

	"nftlend/core"
	"nftlend/crypto"
	"nftlend/gateway/middleware"
)

type advancer interface {
	Advance(d time.Duration) int64
}

func (h *handlers) mintToken(w http.ResponseWriter, r *http.Request) {
	var body mintTokenBody
	if err := decodeJSON(r, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	asset, err := parseAddress("asset", body.Asset)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	to, err := parseAddress("to", body.To)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	amount, err := parseInteger("amount", body.Amount)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	err = h.ledger.Execute(func(tx *core.Tx) error {
		return tx.Tokens().Mint(asset, to, amount)
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.logger.Info("dev token mint", "asset", crypto.Format(crypto.AssetPrefix, asset), "amount", amount.String())
	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"asset":  crypto.Format(crypto.AssetPrefix, asset),
		"to":     crypto.Format(crypto.AccountPrefix, to),
		"amount": amount.String(),
	})
}

func (h *handlers) mintNFT(w http.ResponseWriter, r *http.Request) {
	var body mintNFTBody
	if err := decodeJSON(r, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	contract, err := parseAddress("contract", body.Contract)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	to, err := parseAddress("to", body.To)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	id, err := parseInteger("id", body.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	err = h.ledger.Execute(func(tx *core.Tx) error {
		return tx.Collectibles().Mint(contract, to, id)
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.logger.Info("dev nft mint", "contract", crypto.Format(crypto.AssetPrefix, contract), "id", id.String())
	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"contract": crypto.Format(crypto.AssetPrefix, contract),
		"id":       id.String(),
		"owner":    crypto.Format(crypto.AccountPrefix, to),
	})
}

// advanceClock moves a manual ledger clock forward. Wall clocks are rejected.
func (h *handlers) advanceClock(w http.ResponseWriter, r *http.Request) {
	var body advanceClockBody
	if err := decodeJSON(r, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	if body.Seconds <= 0 {
		h.fail(w, r, errNonPositiveStep)
		return
	}
	clock, ok := h.ledger.Clock().(advancer)
	if !ok {
		h.fail(w, r, errClockNotManual)
		return
	}
	now := clock.Advance(time.Duration(body.Seconds) * time.Second)
	h.logger.Info("dev clock advanced", "seconds", body.Seconds, "now", now)
	middleware.WriteJSON(w, http.StatusOK, map[string]int64{"now": now})
}
