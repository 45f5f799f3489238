// Package money provides integer minor-unit amount helpers.
//
// All amounts in the platform are int64 minor units (cents). Floats never
// touch money; the payout/fee split uses integer division so the fee always
// absorbs the rounding remainder.
package money

import (
	"errors"
	"fmt"
)

// ErrInvalidAmount is returned for zero or negative amounts.
var ErrInvalidAmount = errors.New("money: amount must be positive")

// BpsDenominator is the basis-point scale (10000 bps == 100%).
const BpsDenominator = 10000

// Split divides a stake into the winner's payout and the platform fee.
// payout = floor(stake * (10000 - feeBps) / 10000); fee is the remainder,
// so payout + fee == stake always holds.
func Split(stake int64, feeBps int) (payout, fee int64) {
	if stake <= 0 {
		return 0, 0
	}
	if feeBps < 0 {
		feeBps = 0
	}
	if feeBps > BpsDenominator {
		feeBps = BpsDenominator
	}
	payout = stake * int64(BpsDenominator-feeBps) / BpsDenominator
	fee = stake - payout
	return payout, fee
}

// Validate checks that amount is positive.
func Validate(amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Format renders a minor-unit amount as a decimal string ("1050" -> "10.50").
// Used for logging and event payloads only; wire amounts stay integers.
func Format(minor int64) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s%d.%02d", sign, minor/100, minor%100)
}
