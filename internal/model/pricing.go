package model

import "github.com/shopspring/decimal"

// Tax and fees are mutually recursive: the processing fee is charged on the
// post-tax amount, and tax applies to the fee-inclusive amount. Because every
// intermediate value must round to a whole cent, the closed-form solution
// drifts by a cent either way, so we solve by bounded fixed-point iteration
// instead.
const (
	// taxFeeMaxIterations caps the fixed-point loop. In practice the values
	// stabilize after two or three rounds.
	taxFeeMaxIterations = 10
)

// TaxesAndFees computes the tax and processing-fee amounts, in cents, for a
// given subtotal. A non-positive subtotal yields zero tax and zero fees.
//
//	tax  = round((amount + fees) * taxRate)
//	fees = round((amount + tax + flat) / (1 - feeRate)) - (amount + tax)
//
// Rounding is half away from zero to the cent.
func TaxesAndFees(amountCents int64, taxRate, feeRate decimal.Decimal, feeFlatCents int64) (tax, fees int64) {
	if amountCents <= 0 {
		return 0, 0
	}

	amount := decimal.NewFromInt(amountCents)
	flat := decimal.NewFromInt(feeFlatCents)
	divisor := decimal.NewFromInt(1).Sub(feeRate)

	taxD := decimal.Zero
	feesD := decimal.Zero
	for i := 0; i < taxFeeMaxIterations; i++ {
		nextTax := amount.Add(feesD).Mul(taxRate).Round(0)
		charged := amount.Add(nextTax)
		nextFees := charged.Add(flat).Div(divisor).Round(0).Sub(charged)

		if nextTax.Equal(taxD) && nextFees.Equal(feesD) {
			break
		}
		taxD, feesD = nextTax, nextFees
	}

	return taxD.IntPart(), feesD.IntPart()
}
