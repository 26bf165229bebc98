package validators

import (
	"github.com/shopspring/decimal"

	pkgerrors "github.com/angelmondragon/trackvault-backend/pkg/errors"
	"github.com/angelmondragon/trackvault-backend/pkg/money"
)

// ParsePositiveAmount converts a decimal amount to cents. Amounts must be
// positive and carry at most two decimal places.
func ParsePositiveAmount(value decimal.Decimal, field string) (int64, error) {
	if !value.IsPositive() {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive").WithDetails(map[string]any{"field": field})
	}
	if !value.Equal(money.Round2(value)) {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "amount must have at most two decimal places").WithDetails(map[string]any{"field": field})
	}
	return money.ToCents(value), nil
}
