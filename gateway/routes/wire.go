package routes

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"nftlend/crypto"
	"nftlend/native/assets"
	"nftlend/native/loans"
	"nftlend/native/moneymarket"
)

const requestBodyLimit = 1 << 20 // 1 MiB

// requestError marks malformed input rejected before reaching the ledger.
type requestError struct {
	err error
}

func (e *requestError) Error() string { return e.err.Error() }

func (e *requestError) Unwrap() error { return e.err }

func badRequest(format string, args ...any) error {
	return &requestError{err: fmt.Errorf(format, args...)}
}

type createRequestBody struct {
	LoanAsset          string `json:"loanAsset"`
	CollateralContract string `json:"collateralContract"`
	CollateralID       string `json:"collateralId"`
	Principal          string `json:"principal"`
	RepaymentTerm      string `json:"repaymentTerm"`
	LiqThreshold       string `json:"liqThreshold"`
	Duration           uint64 `json:"duration"`
	Expiry             uint64 `json:"expiry"`
}

func (b createRequestBody) params() (loans.CreateParams, error) {
	var (
		p   loans.CreateParams
		err error
	)
	if p.LoanAsset, err = parseAddress("loanAsset", b.LoanAsset); err != nil {
		return p, err
	}
	if p.CollateralContract, err = parseAddress("collateralContract", b.CollateralContract); err != nil {
		return p, err
	}
	if p.CollateralID, err = parseInteger("collateralId", b.CollateralID); err != nil {
		return p, err
	}
	if p.Principal, err = parseInteger("principal", b.Principal); err != nil {
		return p, err
	}
	term := b.RepaymentTerm
	if strings.TrimSpace(term) == "" {
		term = "0"
	}
	if p.RepaymentTerm, err = parseInteger("repaymentTerm", term); err != nil {
		return p, err
	}
	if p.LiqThreshold, err = parseInteger("liqThreshold", b.LiqThreshold); err != nil {
		return p, err
	}
	p.Duration = b.Duration
	p.Expiry = b.Expiry
	return p, nil
}

type fulfillBody struct {
	RateMode string `json:"rateMode"`
}

type amountBody struct {
	Amount string `json:"amount"`
}

type approveTokenBody struct {
	Spender string `json:"spender"`
	Amount  string `json:"amount"`
}

type approveNFTBody struct {
	To string `json:"to"`
}

type depositBody struct {
	Amount     string `json:"amount"`
	OnBehalfOf string `json:"onBehalfOf,omitempty"`
}

type withdrawBody struct {
	Amount string `json:"amount"`
	To     string `json:"to,omitempty"`
}

type delegateBody struct {
	Delegatee string `json:"delegatee"`
	RateMode  string `json:"rateMode"`
	Amount    string `json:"amount"`
}

type mintTokenBody struct {
	Asset  string `json:"asset"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

type mintNFTBody struct {
	Contract string `json:"contract"`
	To       string `json:"to"`
	ID       string `json:"id"`
}

type advanceClockBody struct {
	Seconds int64 `json:"seconds"`
}

type requestView struct {
	ID                 uint64 `json:"id"`
	Status             string `json:"status"`
	Borrower           string `json:"borrower"`
	Lender             string `json:"lender"`
	LoanAsset          string `json:"loanAsset"`
	CollateralContract string `json:"collateralContract"`
	CollateralID       string `json:"collateralId"`
	Principal          string `json:"principal"`
	RepaymentTerm      string `json:"repaymentTerm"`
	LiqThreshold       string `json:"liqThreshold"`
	Duration           uint64 `json:"duration"`
	Expiry             uint64 `json:"expiry"`
	Fulfilled          bool   `json:"fulfilled"`
	RateMode           string `json:"rateMode"`
	Repaid             string `json:"repaid"`
	CreatedAt          int64  `json:"createdAt"`
	FulfilledAt        int64  `json:"fulfilledAt"`
	ExpiresAt          int64  `json:"expiresAt,omitempty"`
	DueAt              int64  `json:"dueAt,omitempty"`
}

func toRequestView(req *loans.BorrowRequest) requestView {
	view := requestView{
		ID:                 req.ID,
		Status:             req.Status().String(),
		Borrower:           crypto.Format(crypto.AccountPrefix, req.Borrower),
		Lender:             crypto.Format(crypto.AccountPrefix, req.Lender),
		LoanAsset:          crypto.Format(crypto.AssetPrefix, req.LoanAsset),
		CollateralContract: crypto.Format(crypto.AssetPrefix, req.CollateralContract),
		CollateralID:       formatAmount(req.CollateralID),
		Principal:          formatAmount(req.Principal),
		RepaymentTerm:      formatAmount(req.RepaymentTerm),
		LiqThreshold:       formatAmount(req.LiqThreshold),
		Duration:           req.Duration,
		Expiry:             req.Expiry,
		Fulfilled:          req.Fulfilled,
		RateMode:           req.RateMode.String(),
		Repaid:             formatAmount(req.Repaid),
		CreatedAt:          req.CreatedAt,
		FulfilledAt:        req.FulfilledAt,
	}
	if !req.IsZero() {
		view.ExpiresAt = req.ExpiresAt()
	}
	if req.Fulfilled {
		view.DueAt = req.DueAt()
	}
	return view
}

type ratesView struct {
	Asset             string `json:"asset"`
	Utilisation       string `json:"utilisation"`
	VariableBorrowAPR string `json:"variableBorrowApr"`
	StableBorrowAPR   string `json:"stableBorrowApr"`
	SupplyAPY         string `json:"supplyApy"`
}

func toRatesView(asset [20]byte, rates *moneymarket.Rates) ratesView {
	return ratesView{
		Asset:             crypto.Format(crypto.AssetPrefix, asset),
		Utilisation:       formatRat(rates.Utilisation),
		VariableBorrowAPR: formatRat(rates.VariableBorrowAPR),
		StableBorrowAPR:   formatRat(rates.StableBorrowAPR),
		SupplyAPY:         formatRat(rates.SupplyAPY),
	}
}

// decodeJSON decodes an optional JSON body. An empty body leaves dst untouched.
func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(io.LimitReader(r.Body, requestBodyLimit))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return badRequest("decode request: %v", err)
	}
	return nil
}

func parseAddress(field, value string) ([20]byte, error) {
	addr, err := crypto.ParseAddress(value)
	if err != nil {
		return [20]byte{}, badRequest("invalid %s: %v", field, err)
	}
	return addr, nil
}

func parseOptionalAddress(field, value string, fallback [20]byte) ([20]byte, error) {
	if strings.TrimSpace(value) == "" {
		return fallback, nil
	}
	return parseAddress(field, value)
}

// parseInteger parses a base 10 integer. Range checks are left to the ledger
// so rejections carry the ledger's reason.
func parseInteger(field, value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, badRequest("%s required", field)
	}
	parsed, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, badRequest("invalid %s %q", field, value)
	}
	return parsed, nil
}

// parseAmount additionally accepts "max" for the 2^256-1 sentinel.
func parseAmount(field, value string) (*big.Int, error) {
	if strings.EqualFold(strings.TrimSpace(value), "max") {
		return new(big.Int).Set(assets.MaxUint256), nil
	}
	return parseInteger(field, value)
}

func parseRateMode(value string) (moneymarket.RateMode, error) {
	mode, err := moneymarket.ParseRateMode(value)
	if err != nil {
		return 0, badRequest("invalid rateMode: %v", err)
	}
	return mode, nil
}

func urlAddress(r *http.Request, param string) ([20]byte, error) {
	return parseAddress(param, chi.URLParam(r, param))
}

func urlID(r *http.Request) (uint64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, badRequest("invalid id %q", raw)
	}
	return id, nil
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func formatRat(r *big.Rat) string {
	if r == nil {
		return "0"
	}
	return r.FloatString(8)
}
