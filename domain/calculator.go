package domain

type CalculatorInputs struct {
	BidPrice           int64   `json:"bidPrice"`
	SalePrice          int64   `json:"salePrice"`
	LoanPercentage     int     `json:"loanPercentage"`
	AcquisitionTaxRate float64 `json:"acquisitionTaxRate"`
	LoanInterestRate   float64 `json:"loanInterestRate"`
	MovingCost         int64   `json:"movingCost"`
	MaintenanceCost    int64   `json:"maintenanceCost"`
	RepairCost         int64   `json:"repairCost"`
}

// PropertyContext carries the facts about the property that the form does
// not edit. Both fields may be unknown.
type PropertyContext struct {
	PropertyType *string  `json:"propertyType"`
	Area         *float64 `json:"area"`
}

// PriceRange is the backend's three-point estimate for bid or sale price.
type PriceRange struct {
	Conservative int64 `json:"conservative"`
	Moderate     int64 `json:"moderate"`
	Aggressive   int64 `json:"aggressive"`
}

type PeriodEntry struct {
	Months           int     `json:"months"`
	ActualInvestment int64   `json:"actualInvestment"`
	InterestCost     int64   `json:"interestCost"`
	TotalCost        int64   `json:"totalCost"`
	NetProfit        int64   `json:"netProfit"`
	ReturnRate       float64 `json:"returnRate"`
	// ReturnRateAvailable is false when ActualInvestment <= 0.
	ReturnRateAvailable bool `json:"returnRateAvailable"`
}

type CalculationResult struct {
	PriceDifference      int64 `json:"priceDifference"`
	LoanAmount           int64 `json:"loanAmount"`
	AcquisitionTax       int64 `json:"acquisitionTax"`
	RuralSpecialTax      int64 `json:"ruralSpecialTax"`
	LegalFee             int64 `json:"legalFee"`
	AcquisitionCostTotal int64 `json:"acquisitionCostTotal"`
	MonthlyInterest      int64 `json:"monthlyInterest"`
	EvictionCostTotal    int64 `json:"evictionCostTotal"`
	BrokerageFee         int64 `json:"brokerageFee"`
	EtcCostTotal         int64 `json:"etcCostTotal"`
	FixedCosts           int64 `json:"fixedCosts"`
	MaxLoanPercentage    int   `json:"maxLoanPercentage"`

	PeriodAnalysis []PeriodEntry `json:"periodAnalysis"`
}

type CalculationRequest struct {
	Inputs       CalculatorInputs `json:"inputs"`
	PropertyType *string          `json:"propertyType"`
	Area         *float64         `json:"area"`
}

// CostBreakdown mirrors the backend's valuation cost section. Absent items
// are nil and excluded from the total.
type CostBreakdown struct {
	AcquisitionTax  *int64 `json:"acquisition_tax,omitempty"`
	RegistrationFee *int64 `json:"registration_fee,omitempty"`
	LegalFee        *int64 `json:"legal_fee,omitempty"`
	EvictionCost    *int64 `json:"eviction_cost,omitempty"`
	RepairCost      *int64 `json:"repair_cost,omitempty"`
	CapitalGainsTax *int64 `json:"capital_gains_tax,omitempty"`
}

type CostEntry struct {
	Label string `json:"label"`
	Value int64  `json:"value"`
}
