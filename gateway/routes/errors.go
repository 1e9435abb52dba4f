package routes

import (
	"errors"
	"log/slog"
	"net/http"

	"nftlend/gateway/middleware"
	"nftlend/native/assets"
	nativecommon "nftlend/native/common"
	"nftlend/native/loans"
	"nftlend/native/moneymarket"
)

var (
	errCallerRequired  = errors.New("caller required")
	errClockNotManual  = errors.New("ledger clock is not manual")
	errUnknownVariant  = errors.New("unknown loan engine")
	errNonPositiveStep = errors.New("seconds must be positive")
)

// classify maps a failure to an HTTP status and the kind reported to clients.
func classify(err error) (int, string) {
	var reqErr *requestError
	switch {
	case errors.As(err, &reqErr):
		return http.StatusBadRequest, "request"
	case errors.Is(err, errCallerRequired):
		return http.StatusUnauthorized, "authentication"
	case errors.Is(err, errUnknownVariant):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, errClockNotManual), errors.Is(err, errNonPositiveStep):
		return http.StatusConflict, "validation"
	case errors.Is(err, nativecommon.ErrModulePaused):
		return http.StatusServiceUnavailable, "paused"
	}

	switch loans.KindOf(err) {
	case loans.KindValidation:
		if isMalformedTerm(err) {
			return http.StatusBadRequest, loans.KindValidation.String()
		}
		return http.StatusConflict, loans.KindValidation.String()
	case loans.KindAuthorization:
		return http.StatusForbidden, loans.KindAuthorization.String()
	case loans.KindExternalCall:
		return http.StatusUnprocessableEntity, loans.KindExternalCall.String()
	case loans.KindInvariant:
		return http.StatusInternalServerError, loans.KindInvariant.String()
	}

	// Direct asset and money market calls.
	switch {
	case errors.Is(err, assets.ErrNonexistentToken):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, assets.ErrInsufficientAllowance),
		errors.Is(err, assets.ErrNotOwnerNorApproved),
		errors.Is(err, assets.ErrApproveCaller),
		errors.Is(err, moneymarket.ErrBorrowAllowance):
		return http.StatusForbidden, loans.KindAuthorization.String()
	case errors.Is(err, assets.ErrNegativeAmount),
		errors.Is(err, assets.ErrAmountTooLarge),
		errors.Is(err, assets.ErrZeroAddress),
		errors.Is(err, assets.ErrInvalidTokenID),
		errors.Is(err, assets.ErrTransferToZero),
		errors.Is(err, moneymarket.ErrInvalidAmount),
		errors.Is(err, moneymarket.ErrInvalidRateMode):
		return http.StatusBadRequest, loans.KindValidation.String()
	case errors.Is(err, assets.ErrInsufficientBalance),
		errors.Is(err, assets.ErrSupplyOverflow),
		errors.Is(err, assets.ErrIncorrectOwner),
		errors.Is(err, assets.ErrAlreadyMinted),
		errors.Is(err, assets.ErrApproveToOwner),
		errors.Is(err, moneymarket.ErrInsufficientCollateral),
		errors.Is(err, moneymarket.ErrInsufficientLiquidity),
		errors.Is(err, moneymarket.ErrNoDebt),
		errors.Is(err, moneymarket.ErrDebtLocked),
		errors.Is(err, moneymarket.ErrReserveInactive),
		errors.Is(err, moneymarket.ErrWithdrawExceedsBalance):
		return http.StatusUnprocessableEntity, loans.KindExternalCall.String()
	}
	return http.StatusInternalServerError, "internal"
}

func isMalformedTerm(err error) bool {
	return errors.Is(err, loans.ErrInvalidAmount) ||
		errors.Is(err, loans.ErrInvalidAsset) ||
		errors.Is(err, loans.ErrRepaymentBelowPrincipal) ||
		errors.Is(err, loans.ErrInvalidRateMode)
}

func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status, kind := classify(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.RequestIDFromContext(r.Context()),
			"error", err)
		if kind == "internal" {
			message = "internal error"
		}
	}
	middleware.WriteJSON(w, status, middleware.ErrorBody{Error: message, Kind: kind})
}
