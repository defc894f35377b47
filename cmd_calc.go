package main

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"auction-agent/domain"
	"auction-agent/service"
)

var (
	headerStyle   = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle     = lipgloss.NewStyle().Padding(0, 1).Align(lipgloss.Right)
	gainStyle     = cellStyle.Foreground(lipgloss.Color("#3FB950"))
	lossStyle     = cellStyle.Foreground(lipgloss.Color("#FF4D4F"))
	labelStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C"))
	returnRateCol = 5
)

// calcFlags holds the raw flag text; amounts are in 만원 and rates in
// percent, parsed the way the edit controls parse them.
type calcFlags struct {
	bid, sale                   string
	loanPct                     int
	taxRate, interestRate       string
	moving, maintenance, repair string
	propertyType                string
	area                        float64
	legalFee                    int64
}

func newCalcCmd() *cobra.Command {
	var f calcFlags

	cmd := &cobra.Command{
		Use:   "calc",
		Short: "Print the return table for one bid scenario",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("legal-fee") {
				f.legalFee = loaded.Calculator.LegalFee
			}
			form, err := buildForm(f, cmd.Flags().Changed("area"), cmd.Flags().Changed("property-type"))
			if err != nil {
				return err
			}
			renderCalculation(os.Stdout, form.Inputs(), form.Result())
			return nil
		},
	}

	cmd.Flags().StringVar(&f.bid, "bid", "", "Bid price in 만원")
	cmd.Flags().StringVar(&f.sale, "sale", "", "Expected sale price in 만원")
	cmd.Flags().IntVar(&f.loanPct, "loan", 0, "Loan percentage of the bid")
	cmd.Flags().StringVar(&f.taxRate, "tax-rate", "", "Acquisition tax rate in percent")
	cmd.Flags().StringVar(&f.interestRate, "interest-rate", "", "Annual loan interest rate in percent")
	cmd.Flags().StringVar(&f.moving, "moving", "", "Moving cost in 만원")
	cmd.Flags().StringVar(&f.maintenance, "maintenance", "", "Unpaid maintenance fees in 만원")
	cmd.Flags().StringVar(&f.repair, "repair", "", "Repair cost in 만원")
	cmd.Flags().StringVar(&f.propertyType, "property-type", "", "Property type, e.g. 아파트")
	cmd.Flags().Float64Var(&f.area, "area", 0, "Exclusive area in m²")
	cmd.Flags().Int64Var(&f.legalFee, "legal-fee", service.DefaultLegalFee, "Legal fee in won")
	cmd.MarkFlagRequired("bid")
	cmd.MarkFlagRequired("sale")

	return cmd
}

func buildForm(f calcFlags, hasArea, hasType bool) (*service.CalculatorForm, error) {
	var pctx domain.PropertyContext
	if hasType {
		pctx.PropertyType = &f.propertyType
	}
	if hasArea {
		pctx.Area = &f.area
	}

	bid := service.ParseManAmount(f.bid, -1)
	sale := service.ParseManAmount(f.sale, -1)
	if bid < 0 || sale < 0 {
		return nil, fmt.Errorf("bid and sale must be non-negative amounts in 만원")
	}

	form := service.NewCalculatorForm(
		domain.PriceRange{Moderate: bid},
		domain.PriceRange{Moderate: sale},
		pctx, f.legalFee)

	in := form.Inputs()
	fields := []struct {
		field service.InputField
		value float64
	}{
		{service.FieldLoanPercentage, float64(f.loanPct)},
		{service.FieldAcquisitionTaxRate, service.ParsePercent(f.taxRate, in.AcquisitionTaxRate)},
		{service.FieldLoanInterestRate, service.ParsePercent(f.interestRate, in.LoanInterestRate)},
		{service.FieldMovingCost, float64(service.ParseManAmount(f.moving, 0))},
		{service.FieldMaintenanceCost, float64(service.ParseManAmount(f.maintenance, 0))},
		{service.FieldRepairCost, float64(service.ParseManAmount(f.repair, 0))},
	}
	for _, fv := range fields {
		if err := form.Set(fv.field, fv.value); err != nil {
			return nil, err
		}
	}
	return form, nil
}

func renderCalculation(w io.Writer, in domain.CalculatorInputs, r domain.CalculationResult) {
	summary := []struct {
		label string
		value int64
	}{
		{"입찰가", in.BidPrice},
		{"예상 매도가", in.SalePrice},
		{"대출금 (" + strconv.Itoa(in.LoanPercentage) + "%)", r.LoanAmount},
		{"취득 비용", r.AcquisitionCostTotal},
		{"명도 비용", r.EvictionCostTotal},
		{"중개수수료", r.BrokerageFee},
		{"월 이자", r.MonthlyInterest},
	}
	for _, s := range summary {
		fmt.Fprintf(w, "%s %s (%d만원)\n", labelStyle.Render(s.label+":"), service.FormatKRW(s.value), service.ToMan(s.value))
	}
	fmt.Fprintf(w, "%s %d%%\n\n", labelStyle.Render("최대 대출 비율:"), r.MaxLoanPercentage)

	costs := service.CostBreakdownOf(in, r)
	for _, c := range service.CostEntries(costs) {
		fmt.Fprintf(w, "  %s %s\n", labelStyle.Render(c.Label+":"), service.FormatKRW(c.Value))
	}
	fmt.Fprintf(w, "  %s %s\n\n", labelStyle.Render("비용 합계:"), service.FormatKRW(service.CostTotal(costs)))

	fmt.Fprintln(w, periodTable(r.PeriodAnalysis).Render())
}

func periodTable(periods []domain.PeriodEntry) *table.Table {
	rows := make([][]string, 0, len(periods))
	for _, p := range periods {
		rows = append(rows, []string{
			strconv.Itoa(p.Months) + "개월",
			service.FormatKRW(p.ActualInvestment),
			service.FormatKRW(p.InterestCost),
			service.FormatKRW(p.TotalCost),
			service.FormatKRW(p.NetProfit),
			service.FormatReturnRate(p),
		})
	}

	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers("보유 기간", "실투자금", "이자 비용", "총 비용", "순수익", "수익률").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if col == returnRateCol && row >= 0 && row < len(periods) && periods[row].ReturnRateAvailable {
				if periods[row].ReturnRate < 0 {
					return lossStyle
				}
				return gainStyle
			}
			return cellStyle
		})
}
