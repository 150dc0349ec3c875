package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrInvalidItem is wrapped by every ValidateItem failure.
var ErrInvalidItem = errors.New("invalid auction item")

// ValidateItem checks the configuration invariants of an item.
func ValidateItem(item AuctionItem) error {
	if strings.TrimSpace(item.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidItem)
	}
	if item.StartingPrice.IsNegative() {
		return fmt.Errorf("%w: starting price must not be negative", ErrInvalidItem)
	}
	if !item.EndDate.After(item.StartDate) {
		return fmt.Errorf("%w: end date must be after start date", ErrInvalidItem)
	}
	if item.ParticipationFee.IsNegative() {
		return fmt.Errorf("%w: participation fee must not be negative", ErrInvalidItem)
	}
	if item.SecurityDeposit.IsNegative() {
		return fmt.Errorf("%w: security deposit must not be negative", ErrInvalidItem)
	}

	money := []struct {
		field  string
		amount decimal.Decimal
	}{
		{"starting price", item.StartingPrice},
		{"minimum increment", item.MinIncrement},
		{"maximum allowed value", item.MaxAllowedValue},
		{"participation fee", item.ParticipationFee},
		{"security deposit", item.SecurityDeposit},
	}
	for _, m := range money {
		if !HasMonetaryPrecision(m.amount) {
			return fmt.Errorf("%w: %s must have at most 2 decimal places", ErrInvalidItem, m.field)
		}
	}

	switch item.Type {
	case AuctionTypeLive:
		if !item.MinIncrement.IsPositive() {
			return fmt.Errorf("%w: live items require a positive minimum increment", ErrInvalidItem)
		}
		if !item.MaxAllowedValue.IsZero() {
			return fmt.Errorf("%w: maximum allowed value only applies to sealed items", ErrInvalidItem)
		}
	case AuctionTypeSealed:
		if !item.MaxAllowedValue.GreaterThan(item.StartingPrice) {
			return fmt.Errorf("%w: maximum allowed value must exceed the starting price", ErrInvalidItem)
		}
		if !item.MinIncrement.IsZero() {
			return fmt.Errorf("%w: minimum increment only applies to live items", ErrInvalidItem)
		}
	default:
		return fmt.Errorf("%w: unknown auction type %q", ErrInvalidItem, item.Type)
	}

	return nil
}
