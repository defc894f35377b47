package service

import (
	"fmt"
	"math"

	"auction-agent/domain"
)

type InputField string

const (
	FieldBidPrice           InputField = "bidPrice"
	FieldSalePrice          InputField = "salePrice"
	FieldLoanPercentage     InputField = "loanPercentage"
	FieldAcquisitionTaxRate InputField = "acquisitionTaxRate"
	FieldLoanInterestRate   InputField = "loanInterestRate"
	FieldMovingCost         InputField = "movingCost"
	FieldMaintenanceCost    InputField = "maintenanceCost"
	FieldRepairCost         InputField = "repairCost"
)

// CalculatorForm is the editable state behind one calculator view. The
// result is recomputed only when the input tuple or the context changes.
type CalculatorForm struct {
	inputs   domain.CalculatorInputs
	ctx      domain.PropertyContext
	legalFee int64

	memoKey    *memoKey
	memoResult domain.CalculationResult
}

type memoKey struct {
	inputs  domain.CalculatorInputs
	area    float64
	hasArea bool
	maxLoan int
}

func NewCalculatorForm(bid, sale domain.PriceRange, pctx domain.PropertyContext, legalFee int64) *CalculatorForm {
	return &CalculatorForm{
		inputs:   DefaultInputs(bid, sale),
		ctx:      pctx,
		legalFee: legalFee,
	}
}

func (f *CalculatorForm) Inputs() domain.CalculatorInputs { return f.inputs }

func (f *CalculatorForm) MaxLoanPercentage() int {
	return MaxLoanPercentage(f.ctx.PropertyType)
}

// SetPropertyType changes the classification and re-clamps the loan
// percentage against the new ceiling.
func (f *CalculatorForm) SetPropertyType(propertyType *string) {
	f.ctx.PropertyType = propertyType
	f.inputs.LoanPercentage = ClampLoanPercentage(f.inputs.LoanPercentage, propertyType)
}

func (f *CalculatorForm) SetArea(area *float64) {
	f.ctx.Area = area
}

// Set assigns a numeric field. Negative, non-finite or out-of-range values
// are rejected and the previous value kept; the loan percentage is clamped
// to the ceiling for the current property type.
func (f *CalculatorForm) Set(field InputField, value float64) error {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return fmt.Errorf("%s: %w", field, ErrNonFinite)
	}
	if value < 0 {
		return fmt.Errorf("%s: %w", field, ErrNegativeAmount)
	}

	switch field {
	case FieldBidPrice, FieldSalePrice, FieldMovingCost, FieldMaintenanceCost, FieldRepairCost:
		if value > MaxPriceAmount {
			return fmt.Errorf("%s: %w", field, ErrAmountTooLarge)
		}
	case FieldAcquisitionTaxRate, FieldLoanInterestRate:
		if value > MaxRatePercent {
			return fmt.Errorf("%s: %w", field, ErrInvalidRate)
		}
	}

	switch field {
	case FieldBidPrice:
		f.inputs.BidPrice = int64(value)
	case FieldSalePrice:
		f.inputs.SalePrice = int64(value)
	case FieldLoanPercentage:
		capped := math.Min(value, float64(f.MaxLoanPercentage()))
		f.inputs.LoanPercentage = ClampLoanPercentage(int(capped), f.ctx.PropertyType)
	case FieldAcquisitionTaxRate:
		f.inputs.AcquisitionTaxRate = value
	case FieldLoanInterestRate:
		f.inputs.LoanInterestRate = value
	case FieldMovingCost:
		f.inputs.MovingCost = int64(value)
	case FieldMaintenanceCost:
		f.inputs.MaintenanceCost = int64(value)
	case FieldRepairCost:
		f.inputs.RepairCost = int64(value)
	default:
		return fmt.Errorf("unknown field %q", field)
	}
	return nil
}

func (f *CalculatorForm) Result() domain.CalculationResult {
	key := memoKey{inputs: f.inputs, maxLoan: f.MaxLoanPercentage()}
	if f.ctx.Area != nil {
		key.area, key.hasArea = *f.ctx.Area, true
	}
	if f.memoKey != nil && *f.memoKey == key {
		return f.memoResult
	}
	f.memoResult = Calculate(f.inputs, f.ctx, f.legalFee)
	f.memoKey = &key
	return f.memoResult
}
