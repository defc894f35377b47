package service

import (
	"strings"

	"github.com/shopspring/decimal"

	"auction-agent/domain"
)

var (
	hundred          = decimal.NewFromInt(100)
	monthsPerYearPct = decimal.NewFromInt(1200) // 100 (percent) × 12 (months)
	ruralSpecialRate = decimal.RequireFromString(RuralSpecialTaxRate)
	brokerageRate    = decimal.RequireFromString(BrokerageFeeRate)
)

// IsApartment reports whether the free-text property type names an
// apartment-like building.
func IsApartment(propertyType *string) bool {
	if propertyType == nil || *propertyType == "" {
		return false
	}
	for _, k := range apartmentKeywords {
		if strings.Contains(*propertyType, k) {
			return true
		}
	}
	return false
}

// MaxLoanPercentage is the loan-to-bid ceiling for the property type.
func MaxLoanPercentage(propertyType *string) int {
	if IsApartment(propertyType) {
		return ApartmentMaxLoanPercentage
	}
	return OtherMaxLoanPercentage
}

// ClampLoanPercentage forces pct into [0, MaxLoanPercentage(propertyType)].
func ClampLoanPercentage(pct int, propertyType *string) int {
	limit := MaxLoanPercentage(propertyType)
	if pct < 0 {
		return 0
	}
	if pct > limit {
		return limit
	}
	return pct
}

// DefaultInputs seeds the calculator from the report's moderate estimates.
func DefaultInputs(bid, sale domain.PriceRange) domain.CalculatorInputs {
	return domain.CalculatorInputs{
		BidPrice:           bid.Moderate,
		SalePrice:          sale.Moderate,
		LoanPercentage:     0,
		AcquisitionTaxRate: DefaultAcquisitionTaxRate,
		LoanInterestRate:   DefaultLoanInterestRate,
	}
}

// roundWon rounds half away from zero to whole won.
func roundWon(d decimal.Decimal) int64 {
	return d.Round(0).IntPart()
}

// Calculate computes the cost breakdown and the 0..6 month return table.
// It is a pure function: identical arguments always give identical output.
// The loan percentage is used as given; callers clamp it beforehand.
func Calculate(in domain.CalculatorInputs, pctx domain.PropertyContext, legalFee int64) domain.CalculationResult {
	bid := decimal.NewFromInt(in.BidPrice)
	sale := decimal.NewFromInt(in.SalePrice)

	priceDifference := in.SalePrice - in.BidPrice
	loanAmount := roundWon(bid.Mul(decimal.NewFromInt(int64(in.LoanPercentage))).Div(hundred))

	// 취득비용
	acquisitionTax := roundWon(bid.Mul(decimal.NewFromFloat(in.AcquisitionTaxRate)).Div(hundred))
	var area float64
	if pctx.Area != nil {
		area = *pctx.Area
	}
	var ruralSpecialTax int64
	if area > RuralSpecialTaxAreaLimit {
		ruralSpecialTax = roundWon(bid.Mul(ruralSpecialRate))
	}
	acquisitionCostTotal := acquisitionTax + ruralSpecialTax + legalFee

	monthlyInterest := roundWon(decimal.NewFromInt(loanAmount).
		Mul(decimal.NewFromFloat(in.LoanInterestRate)).
		Div(monthsPerYearPct))

	// 명도비용
	evictionCostTotal := in.MovingCost + in.MaintenanceCost + in.RepairCost

	brokerageFee := roundWon(sale.Mul(brokerageRate))
	etcCostTotal := brokerageFee

	equity := in.BidPrice - loanAmount
	fixedCosts := acquisitionCostTotal + evictionCostTotal + etcCostTotal

	periods := make([]domain.PeriodEntry, 0, HoldingPeriodMonths+1)
	for months := 0; months <= HoldingPeriodMonths; months++ {
		interestCost := int64(months) * monthlyInterest
		actualInvestment := equity + interestCost
		totalCost := fixedCosts + interestCost
		netProfit := priceDifference - totalCost

		entry := domain.PeriodEntry{
			Months:           months,
			ActualInvestment: actualInvestment,
			InterestCost:     interestCost,
			TotalCost:        totalCost,
			NetProfit:        netProfit,
		}
		if actualInvestment > 0 {
			entry.ReturnRate = float64(netProfit) / float64(actualInvestment) * 100
			entry.ReturnRateAvailable = true
		}
		periods = append(periods, entry)
	}

	return domain.CalculationResult{
		PriceDifference:      priceDifference,
		LoanAmount:           loanAmount,
		AcquisitionTax:       acquisitionTax,
		RuralSpecialTax:      ruralSpecialTax,
		LegalFee:             legalFee,
		AcquisitionCostTotal: acquisitionCostTotal,
		MonthlyInterest:      monthlyInterest,
		EvictionCostTotal:    evictionCostTotal,
		BrokerageFee:         brokerageFee,
		EtcCostTotal:         etcCostTotal,
		FixedCosts:           fixedCosts,
		MaxLoanPercentage:    MaxLoanPercentage(pctx.PropertyType),
		PeriodAnalysis:       periods,
	}
}
