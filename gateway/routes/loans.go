package routes

import (
	"math/big"
	"net/http"

	"github.com/go-chi/chi/v5"

	"nftlend/core"
	"nftlend/crypto"
	"nftlend/gateway/middleware"
	"nftlend/native/loans"
)

type engineView struct {
	Account string `json:"account"`
	Prefix  string `json:"prefix"`
}

type modulesView struct {
	Pool    string                `json:"pool"`
	Engines map[string]engineView `json:"engines"`
}

func urlVariant(r *http.Request) (loans.Variant, error) {
	v, err := loans.ParseVariant(chi.URLParam(r, "variant"))
	if err != nil {
		return "", errUnknownVariant
	}
	return v, nil
}

// modules lists the custody accounts callers approve tokens, collectibles and
// delegations to.
func (h *handlers) modules(w http.ResponseWriter, r *http.Request) {
	view := modulesView{
		Pool:    crypto.Format(crypto.AccountPrefix, h.ledger.Pool()),
		Engines: make(map[string]engineView, len(loans.Variants)),
	}
	for _, v := range loans.Variants {
		view.Engines[string(v)] = engineView{
			Account: crypto.Format(crypto.AccountPrefix, h.ledger.ModuleAccount(v)),
			Prefix:  v.Prefix(),
		}
	}
	middleware.WriteJSON(w, http.StatusOK, view)
}

func (h *handlers) requestCount(w http.ResponseWriter, r *http.Request) {
	variant, err := urlVariant(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var count uint64
	err = h.ledger.View(func(tx *core.Tx) error {
		var err error
		count, err = tx.Loans(variant).TotalRequestCount()
		return err
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]uint64{"count": count})
}

func (h *handlers) request(w http.ResponseWriter, r *http.Request) {
	variant, id, err := variantAndID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req *loans.BorrowRequest
	err = h.ledger.View(func(tx *core.Tx) error {
		var err error
		req, err = tx.Loans(variant).BorrowRequestByID(id)
		return err
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, toRequestView(req))
}

func (h *handlers) requestDebt(w http.ResponseWriter, r *http.Request) {
	variant, id, err := variantAndID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var debt *big.Int
	err = h.ledger.View(func(tx *core.Tx) error {
		var err error
		debt, err = tx.Loans(variant).RequestDebtBalance(id)
		return err
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{"id": id, "debt": formatAmount(debt)})
}

func (h *handlers) createRequest(w http.ResponseWriter, r *http.Request) {
	variant, err := urlVariant(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	from, err := caller(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var body createRequestBody
	if err := decodeJSON(r, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	params, err := body.params()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var id uint64
	err = h.ledger.Execute(func(tx *core.Tx) error {
		var err error
		id, err = tx.Loans(variant).CreateBorrowRequest(from, params)
		return err
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, map[string]any{"id": id, "variant": variant})
}

func (h *handlers) removeRequest(w http.ResponseWriter, r *http.Request) {
	variant, id, err := variantAndID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	from, err := caller(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	err = h.ledger.Execute(func(tx *core.Tx) error {
		return tx.Loans(variant).RemoveRequest(from, id)
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{"id": id, "status": loans.StatusRemoved.String()})
}

func (h *handlers) fulfillRequest(w http.ResponseWriter, r *http.Request) {
	variant, id, err := variantAndID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	from, err := caller(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var body fulfillBody
	if err := decodeJSON(r, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	mode, err := parseRateMode(body.RateMode)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req *loans.BorrowRequest
	err = h.ledger.Execute(func(tx *core.Tx) error {
		engine := tx.Loans(variant)
		if err := engine.FulfillRequest(from, id, mode); err != nil {
			return err
		}
		var err error
		req, err = engine.BorrowRequestByID(id)
		return err
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, toRequestView(req))
}

func (h *handlers) repay(w http.ResponseWriter, r *http.Request) {
	variant, id, err := variantAndID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	from, err := caller(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var body amountBody
	if err := decodeJSON(r, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	amount, err := parseAmount("amount", body.Amount)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var (
		paid   *big.Int
		status loans.Status
	)
	err = h.ledger.Execute(func(tx *core.Tx) error {
		engine := tx.Loans(variant)
		var err error
		if paid, err = engine.Repay(from, id, amount); err != nil {
			return err
		}
		after, err := engine.BorrowRequestByID(id)
		if err != nil {
			return err
		}
		status = loans.StatusRepaid
		if !after.IsZero() {
			status = after.Status()
		}
		return nil
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"id":     id,
		"repaid": formatAmount(paid),
		"status": status.String(),
	})
}

func (h *handlers) liquidate(w http.ResponseWriter, r *http.Request) {
	variant, id, err := variantAndID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	from, err := caller(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	err = h.ledger.Execute(func(tx *core.Tx) error {
		return tx.Loans(variant).Liquidate(from, id)
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{"id": id, "status": loans.StatusLiquidated.String()})
}

func variantAndID(r *http.Request) (loans.Variant, uint64, error) {
	variant, err := urlVariant(r)
	if err != nil {
		return "", 0, err
	}
	id, err := urlID(r)
	if err != nil {
		return "", 0, err
	}
	return variant, id, nil
}
