package model

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

var (
	testTaxRate = decimal.NewFromFloat(0.07)
	testFeeRate = decimal.NewFromFloat(0.029)
)

const testFeeFlat = int64(30)

func TestTaxesAndFees_ZeroAmount(t *testing.T) {
	tax, fees := TaxesAndFees(0, testTaxRate, testFeeRate, testFeeFlat)
	assert.Zero(t, tax)
	assert.Zero(t, fees)

	tax, fees = TaxesAndFees(-500, testTaxRate, testFeeRate, testFeeFlat)
	assert.Zero(t, tax)
	assert.Zero(t, fees)
}

func TestTaxesAndFees_FixedPoint(t *testing.T) {
	amount := int64(10000) // $100.00

	tax, fees := TaxesAndFees(amount, testTaxRate, testFeeRate, testFeeFlat)

	// The converged pair must satisfy both defining equations.
	wantTax := decimal.NewFromInt(amount + fees).Mul(testTaxRate).Round(0).IntPart()
	assert.Equal(t, wantTax, tax)

	charged := decimal.NewFromInt(amount + tax)
	wantFees := charged.Add(decimal.NewFromInt(testFeeFlat)).
		Div(decimal.NewFromInt(1).Sub(testFeeRate)).Round(0).
		Sub(charged).IntPart()
	assert.Equal(t, wantFees, fees)

	assert.Equal(t, int64(725), tax)
	assert.Equal(t, int64(351), fees)
}

func TestTaxesAndFees_Converges(t *testing.T) {
	// A spread of odd amounts; every result must be self-consistent.
	for _, amount := range []int64{1, 99, 101, 333, 2499, 54321, 1000000} {
		tax, fees := TaxesAndFees(amount, testTaxRate, testFeeRate, testFeeFlat)

		wantTax := decimal.NewFromInt(amount + fees).Mul(testTaxRate).Round(0).IntPart()
		assert.Equalf(t, wantTax, tax, "tax equation violated for amount %d", amount)

		charged := decimal.NewFromInt(amount + tax)
		wantFees := charged.Add(decimal.NewFromInt(testFeeFlat)).
			Div(decimal.NewFromInt(1).Sub(testFeeRate)).Round(0).
			Sub(charged).IntPart()
		assert.Equalf(t, wantFees, fees, "fee equation violated for amount %d", amount)
	}
}

func TestTaxesAndFees_ZeroRates(t *testing.T) {
	tax, fees := TaxesAndFees(10000, decimal.Zero, decimal.Zero, 0)
	assert.Zero(t, tax)
	assert.Zero(t, fees)

	// Flat fee alone still applies.
	tax, fees = TaxesAndFees(10000, decimal.Zero, decimal.Zero, 30)
	assert.Zero(t, tax)
	assert.Equal(t, int64(30), fees)
}
