package loans

import (
	"errors"

	"nftlend/native/assets"
	nativecommon "nftlend/native/common"
	"nftlend/native/moneymarket"
)

// Kind classifies a failure so callers can react without parsing reasons.
type Kind uint8

const (
	// KindValidation covers bad callers, wrong states, expired deadlines and
	// duplicate keys.
	KindValidation Kind = iota + 1
	// KindAuthorization covers missing allowances, approvals and delegations.
	KindAuthorization
	// KindExternalCall covers rejections by the asset or debt ledgers.
	KindExternalCall
	// KindInvariant indicates a bug rather than a user error.
	KindInvariant
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthorization:
		return "authorization"
	case KindExternalCall:
		return "external_call"
	case KindInvariant:
		return "invariant"
	default:
		return "unknown"
	}
}

// Reasons surfaced by the engine. Rendered errors carry the deployment prefix,
// e.g. "LoanManager: Request exists".
var (
	ErrDuplicateRequest        = errors.New("Request exists")
	ErrNotCollateralOwner      = errors.New("Not the NFT owner")
	ErrNotBorrower             = errors.New("Not the borrower")
	ErrNotOpen                 = errors.New("Request not open")
	ErrAlreadyFulfilled        = errors.New("Fulfilled")
	ErrExpired                 = errors.New("Request expired")
	ErrNotFulfilled            = errors.New("Request not fulfilled")
	ErrNotLender               = errors.New("Not the lender")
	ErrRequestStillValid       = errors.New("Request valid")
	ErrInvalidAmount           = errors.New("Invalid amount")
	ErrInvalidAsset            = errors.New("Invalid asset")
	ErrRepaymentBelowPrincipal = errors.New("Repayment below principal")
	ErrInvalidRateMode         = errors.New("Invalid rate mode")
	ErrInsufficientDelegation  = errors.New("Insufficient delegation")
	ErrLenderHasActiveLoan     = errors.New("Lender has active loan")
	ErrLenderHasDebt           = errors.New("Lender has outstanding debt")
	ErrQuotaExceeded           = errors.New("Request quota exceeded")
	ErrCorruptRecord           = errors.New("Corrupt request record")

	errNilState  = errors.New("loans engine: state not configured")
	errNilAssets = errors.New("loans engine: asset adapters not configured")
	errNilDebt   = errors.New("loans engine: debt ledger not configured")
)

// Error is the failure returned by every engine write operation.
type Error struct {
	Kind Kind
	// Prefix names the engine deployment. External failures carry no prefix
	// so they surface verbatim.
	Prefix string
	Err    error
}

func (e *Error) Error() string {
	if e == nil || e.Err == nil {
		return ""
	}
	if e.Prefix == "" {
		return e.Err.Error()
	}
	return e.Prefix + ": " + e.Err.Error()
}

// Reason returns the bare reason string without the deployment prefix.
func (e *Error) Reason() string {
	if e == nil || e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// KindOf returns the classification of err, zero when err is not an engine
// failure.
func KindOf(err error) Kind {
	var engineErr *Error
	if errors.As(err, &engineErr) {
		return engineErr.Kind
	}
	return 0
}

func (e *Engine) fail(kind Kind, reason error) error {
	return &Error{Kind: kind, Prefix: e.prefix, Err: reason}
}

// modelErr classifies a failure returned by a debt model. Model reasons carry
// the engine prefix; collaborator failures go through external.
func (e *Engine) modelErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrInsufficientDelegation):
		return e.fail(KindAuthorization, ErrInsufficientDelegation)
	case errors.Is(err, ErrLenderHasActiveLoan),
		errors.Is(err, ErrLenderHasDebt),
		errors.Is(err, ErrRepaymentBelowPrincipal),
		errors.Is(err, ErrInvalidRateMode):
		return e.fail(KindValidation, err)
	default:
		return external(err)
	}
}

// external classifies a collaborator failure. Missing approvals and
// delegations are authorization failures; everything else is an external call
// failure. Both are surfaced without the engine prefix.
func external(err error) error {
	if err == nil {
		return nil
	}
	var engineErr *Error
	if errors.As(err, &engineErr) {
		return err
	}
	switch {
	case errors.Is(err, assets.ErrInsufficientAllowance),
		errors.Is(err, assets.ErrNotOwnerNorApproved),
		errors.Is(err, moneymarket.ErrBorrowAllowance):
		return &Error{Kind: KindAuthorization, Err: err}
	case errors.Is(err, nativecommon.ErrModulePaused):
		return &Error{Kind: KindValidation, Err: err}
	default:
		return &Error{Kind: KindExternalCall, Err: err}
	}
}
