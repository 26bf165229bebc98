package dto

import "github.com/angelmondragon/trackvault-backend/pkg/money"

// Amount renders cents as a fixed two-decimal string.
func Amount(cents int64) string {
	return money.FromCents(cents).StringFixed(2)
}
