package service

const (
	DefaultLegalFee = 800_000 // 법무사 비용

	RuralSpecialTaxRate      = "0.002" // 농어촌특별세, bid price multiplier
	RuralSpecialTaxAreaLimit = 85.0    // m², strictly greater triggers the surtax
	BrokerageFeeRate         = "0.004" // 중개보수, sale price multiplier

	ApartmentMaxLoanPercentage = 70
	OtherMaxLoanPercentage     = 60

	DefaultAcquisitionTaxRate = 1.1
	DefaultLoanInterestRate   = 5.0

	HoldingPeriodMonths = 6 // table covers 0..HoldingPeriodMonths inclusive

	// Upper bounds accepted by the HTTP layer.
	MaxPriceAmount = 1_000_000_000_000 // 1조원
	MaxRatePercent = 100.0
)

// apartmentKeywords classify a property type as apartment-like.
var apartmentKeywords = []string{"아파트", "공동주택"}
