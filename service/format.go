package service

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"auction-agent/domain"
)

const (
	wonPerMan = 10_000
	wonPerEok = 100_000_000
)

var krPrinter = message.NewPrinter(language.Korean)

// FormatKRW renders an amount the way the report does: 억 and 만원 units,
// dropping anything below 1만원 once the amount reaches that unit.
func FormatKRW(value int64) string {
	abs := value
	sign := ""
	if value < 0 {
		abs = -value
		sign = "-"
	}
	switch {
	case abs >= wonPerEok:
		eok := abs / wonPerEok
		man := (abs % wonPerEok) / wonPerMan
		if man > 0 {
			return sign + krPrinter.Sprintf("%d억 %d만원", eok, man)
		}
		return sign + fmt.Sprintf("%d억원", eok)
	case abs >= wonPerMan:
		return sign + krPrinter.Sprintf("%d만원", abs/wonPerMan)
	default:
		return sign + krPrinter.Sprintf("%d원", abs)
	}
}

// FormatReturnRate gives a signed one-decimal percentage, or N/A when the
// actual investment is not positive.
func FormatReturnRate(p domain.PeriodEntry) string {
	if !p.ReturnRateAvailable {
		return "N/A"
	}
	sign := ""
	if p.ReturnRate >= 0 {
		sign = "+"
	}
	return sign + strconv.FormatFloat(p.ReturnRate, 'f', 1, 64) + "%"
}

// ToMan converts won to the nearest 만원.
func ToMan(won int64) int64 {
	return int64(math.Round(float64(won) / wonPerMan))
}

func FromMan(man float64) int64 {
	return int64(math.Round(man * wonPerMan))
}

// ParseManAmount reads a 만원 amount typed into an edit control. Text that
// is not a finite non-negative number leaves the prior value in place.
func ParseManAmount(text string, prior int64) int64 {
	v, ok := parseNonNegative(text)
	if !ok {
		return prior
	}
	return FromMan(v)
}

// ParsePercent is ParseManAmount for percentage inputs.
func ParsePercent(text string, prior float64) float64 {
	v, ok := parseNonNegative(text)
	if !ok {
		return prior
	}
	return v
}

func parseNonNegative(text string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0, false
	}
	return v, true
}

var costLabels = []struct {
	label string
	pick  func(domain.CostBreakdown) *int64
}{
	{"취득세", func(c domain.CostBreakdown) *int64 { return c.AcquisitionTax }},
	{"등록비", func(c domain.CostBreakdown) *int64 { return c.RegistrationFee }},
	{"법무사 비용", func(c domain.CostBreakdown) *int64 { return c.LegalFee }},
	{"명도 비용", func(c domain.CostBreakdown) *int64 { return c.EvictionCost }},
	{"수리 비용", func(c domain.CostBreakdown) *int64 { return c.RepairCost }},
	{"양도소득세", func(c domain.CostBreakdown) *int64 { return c.CapitalGainsTax }},
}

// CostEntries lists the present cost items in display order.
func CostEntries(c domain.CostBreakdown) []domain.CostEntry {
	entries := []domain.CostEntry{}
	for _, l := range costLabels {
		if v := l.pick(c); v != nil {
			entries = append(entries, domain.CostEntry{Label: l.label, Value: *v})
		}
	}
	return entries
}

// CostBreakdownOf lists a calculation's one-off costs in the report's cost
// vocabulary. Registration fee and capital gains tax come only from the
// backend report and stay absent.
func CostBreakdownOf(in domain.CalculatorInputs, r domain.CalculationResult) domain.CostBreakdown {
	acquisition := r.AcquisitionTax + r.RuralSpecialTax
	legal := r.LegalFee
	eviction := in.MovingCost + in.MaintenanceCost
	repair := in.RepairCost
	return domain.CostBreakdown{
		AcquisitionTax: &acquisition,
		LegalFee:       &legal,
		EvictionCost:   &eviction,
		RepairCost:     &repair,
	}
}

func CostTotal(c domain.CostBreakdown) int64 {
	var total int64
	for _, e := range CostEntries(c) {
		total += e.Value
	}
	return total
}
