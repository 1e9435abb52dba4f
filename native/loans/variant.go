package loans

import (
	"fmt"
	"strings"

	"nftlend/native/moneymarket"
)

// Variant names one of the supported engine deployments.
type Variant string

const (
	VariantFixed    Variant = "fixed"
	VariantVariable Variant = "variable"
	VariantStable   Variant = "stable"
)

// Variants lists every deployment in a stable order.
var Variants = []Variant{VariantFixed, VariantVariable, VariantStable}

// ParseVariant normalises a deployment name.
func ParseVariant(value string) (Variant, error) {
	switch v := Variant(strings.ToLower(strings.TrimSpace(value))); v {
	case VariantFixed, VariantVariable, VariantStable:
		return v, nil
	default:
		return "", fmt.Errorf("unknown loan engine variant %q", value)
	}
}

// Model returns the debt model backing the deployment.
func (v Variant) Model() DebtModel {
	switch v {
	case VariantVariable:
		return PoolDebt{DefaultMode: moneymarket.RateModeVariable}
	case VariantStable:
		return PoolDebt{DefaultMode: moneymarket.RateModeStable}
	default:
		return FixedDebt{}
	}
}

// Prefix returns the reason prefix of the deployment.
func (v Variant) Prefix() string {
	switch v {
	case VariantVariable:
		return "VariableDelegationLoanManager"
	case VariantStable:
		return "StableDelegationLoanManager"
	default:
		return "LoanManager"
	}
}

// NewVariantEngine builds the engine of a named deployment.
func NewVariantEngine(v Variant, module [20]byte) *Engine {
	return NewEngine(v.Model(), module, v.Prefix())
}
