package routes

import (
	"math/big"
	"net/http"

	"github.com/go-chi/chi/v5"

	"nftlend/core"
	"nftlend/crypto"
	"nftlend/gateway/middleware"
	"nftlend/native/moneymarket"
)

func (h *handlers) tokenBalance(w http.ResponseWriter, r *http.Request) {
	asset, err := urlAddress(r, "asset")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	holder, err := urlAddress(r, "holder")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var balance *big.Int
	err = h.ledger.View(func(tx *core.Tx) error {
		var err error
		balance, err = tx.Tokens().BalanceOf(asset, holder)
		return err
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"asset":   crypto.Format(crypto.AssetPrefix, asset),
		"holder":  crypto.Format(crypto.AccountPrefix, holder),
		"balance": formatAmount(balance),
	})
}

func (h *handlers) tokenAllowance(w http.ResponseWriter, r *http.Request) {
	asset, err := urlAddress(r, "asset")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	owner, err := urlAddress(r, "owner")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	spender, err := urlAddress(r, "spender")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var allowance *big.Int
	err = h.ledger.View(func(tx *core.Tx) error {
		var err error
		allowance, err = tx.Tokens().Allowance(asset, owner, spender)
		return err
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"asset":     crypto.Format(crypto.AssetPrefix, asset),
		"owner":     crypto.Format(crypto.AccountPrefix, owner),
		"spender":   crypto.Format(crypto.AccountPrefix, spender),
		"allowance": formatAmount(allowance),
	})
}

func (h *handlers) approveToken(w http.ResponseWriter, r *http.Request) {
	asset, err := urlAddress(r, "asset")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	owner, err := caller(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var body approveTokenBody
	if err := decodeJSON(r, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	spender, err := parseAddress("spender", body.Spender)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	amount, err := parseAmount("amount", body.Amount)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	err = h.ledger.Execute(func(tx *core.Tx) error {
		return tx.Tokens().Approve(asset, owner, spender, amount)
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"asset":     crypto.Format(crypto.AssetPrefix, asset),
		"owner":     crypto.Format(crypto.AccountPrefix, owner),
		"spender":   crypto.Format(crypto.AccountPrefix, spender),
		"allowance": formatAmount(amount),
	})
}

func (h *handlers) nftOwner(w http.ResponseWriter, r *http.Request) {
	contract, id, err := nftParams(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var owner [20]byte
	err = h.ledger.View(func(tx *core.Tx) error {
		var err error
		owner, err = tx.Collectibles().OwnerOf(contract, id)
		return err
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"contract": crypto.Format(crypto.AssetPrefix, contract),
		"id":       id.String(),
		"owner":    crypto.Format(crypto.AccountPrefix, owner),
	})
}

func (h *handlers) approveNFT(w http.ResponseWriter, r *http.Request) {
	contract, id, err := nftParams(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	from, err := caller(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var body approveNFTBody
	if err := decodeJSON(r, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	to, err := parseAddress("to", body.To)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	err = h.ledger.Execute(func(tx *core.Tx) error {
		return tx.Collectibles().Approve(contract, from, to, id)
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"contract": crypto.Format(crypto.AssetPrefix, contract),
		"id":       id.String(),
		"approved": crypto.Format(crypto.AccountPrefix, to),
	})
}

func (h *handlers) marketRates(w http.ResponseWriter, r *http.Request) {
	asset, err := urlAddress(r, "asset")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var rates *moneymarket.Rates
	err = h.ledger.View(func(tx *core.Tx) error {
		var err error
		rates, err = tx.MoneyMarket().CurrentRates(asset)
		return err
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, toRatesView(asset, rates))
}

func (h *handlers) marketAccount(w http.ResponseWriter, r *http.Request) {
	asset, err := urlAddress(r, "asset")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	account, err := urlAddress(r, "account")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var deposit, variable, stable *big.Int
	err = h.ledger.View(func(tx *core.Tx) error {
		market := tx.MoneyMarket()
		var err error
		if deposit, err = market.DepositBalance(asset, account); err != nil {
			return err
		}
		if variable, err = market.DebtBalance(asset, moneymarket.RateModeVariable, account); err != nil {
			return err
		}
		stable, err = market.DebtBalance(asset, moneymarket.RateModeStable, account)
		return err
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"asset":        crypto.Format(crypto.AssetPrefix, asset),
		"account":      crypto.Format(crypto.AccountPrefix, account),
		"deposit":      formatAmount(deposit),
		"variableDebt": formatAmount(variable),
		"stableDebt":   formatAmount(stable),
	})
}

func (h *handlers) deposit(w http.ResponseWriter, r *http.Request) {
	asset, err := urlAddress(r, "asset")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	from, err := caller(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var body depositBody
	if err := decodeJSON(r, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	amount, err := parseInteger("amount", body.Amount)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	beneficiary, err := parseOptionalAddress("onBehalfOf", body.OnBehalfOf, from)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var balance *big.Int
	err = h.ledger.Execute(func(tx *core.Tx) error {
		market := tx.MoneyMarket()
		if err := market.Deposit(asset, amount, from, beneficiary); err != nil {
			return err
		}
		var err error
		balance, err = market.DepositBalance(asset, beneficiary)
		return err
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"asset":   crypto.Format(crypto.AssetPrefix, asset),
		"account": crypto.Format(crypto.AccountPrefix, beneficiary),
		"deposit": formatAmount(balance),
	})
}

func (h *handlers) withdraw(w http.ResponseWriter, r *http.Request) {
	asset, err := urlAddress(r, "asset")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	from, err := caller(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var body withdrawBody
	if err := decodeJSON(r, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	amount, err := parseAmount("amount", body.Amount)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	to, err := parseOptionalAddress("to", body.To, from)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var withdrawn *big.Int
	err = h.ledger.Execute(func(tx *core.Tx) error {
		var err error
		withdrawn, err = tx.MoneyMarket().Withdraw(asset, amount, from, to)
		return err
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"asset":     crypto.Format(crypto.AssetPrefix, asset),
		"to":        crypto.Format(crypto.AccountPrefix, to),
		"withdrawn": formatAmount(withdrawn),
	})
}

func (h *handlers) delegate(w http.ResponseWriter, r *http.Request) {
	asset, err := urlAddress(r, "asset")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	delegator, err := caller(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var body delegateBody
	if err := decodeJSON(r, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	delegatee, err := parseAddress("delegatee", body.Delegatee)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	mode, err := parseRateMode(body.RateMode)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	amount, err := parseAmount("amount", body.Amount)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	err = h.ledger.Execute(func(tx *core.Tx) error {
		return tx.MoneyMarket().ApproveDelegation(asset, mode, delegator, delegatee, amount)
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"asset":     crypto.Format(crypto.AssetPrefix, asset),
		"delegator": crypto.Format(crypto.AccountPrefix, delegator),
		"delegatee": crypto.Format(crypto.AccountPrefix, delegatee),
		"rateMode":  mode.String(),
		"allowance": formatAmount(amount),
	})
}

func nftParams(r *http.Request) ([20]byte, *big.Int, error) {
	contract, err := urlAddress(r, "contract")
	if err != nil {
		return [20]byte{}, nil, err
	}
	id, err := parseInteger("id", chi.URLParam(r, "id"))
	if err != nil {
		return [20]byte{}, nil, err
	}
	return contract, id, nil
}
