package http

import (
	"encoding/json"
	"net/http"

	"auction-agent/domain"
	"auction-agent/service"
)

type CalculatorHandler struct {
	service *service.CalculatorService
}

func NewCalculatorHandler(service *service.CalculatorService) *CalculatorHandler {
	return &CalculatorHandler{service: service}
}

// PeriodRow is one line of the holding-period table as the report shows it.
type PeriodRow struct {
	Months           int    `json:"months"`
	ActualInvestment string `json:"actualInvestment"`
	InterestCost     string `json:"interestCost"`
	TotalCost        string `json:"totalCost"`
	NetProfit        string `json:"netProfit"`
	ReturnRate       string `json:"returnRate"`
}

type CalculateResponse struct {
	Result    domain.CalculationResult `json:"result"`
	Rows      []PeriodRow              `json:"rows"`
	Costs     []domain.CostEntry       `json:"costs"`
	CostTotal int64                    `json:"costTotal"`
}

type LoanLimitResponse struct {
	PropertyType      *string `json:"propertyType"`
	MaxLoanPercentage int     `json:"maxLoanPercentage"`
}

func (h *CalculatorHandler) Calculate(w http.ResponseWriter, r *http.Request) {

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req domain.CalculationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	pctx := domain.PropertyContext{PropertyType: req.PropertyType, Area: req.Area}
	result, err := h.service.Calculate(req.Inputs, pctx)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	costs := service.CostBreakdownOf(req.Inputs, result)
	writeJSON(w, http.StatusOK, CalculateResponse{
		Result:    result,
		Rows:      periodRows(result),
		Costs:     service.CostEntries(costs),
		CostTotal: service.CostTotal(costs),
	})
}

// History lists recently computed scenarios, oldest first.
func (h *CalculatorHandler) History(w http.ResponseWriter, r *http.Request) {

	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	writeJSON(w, http.StatusOK, h.service.History())
}

func (h *CalculatorHandler) LoanLimit(w http.ResponseWriter, r *http.Request) {

	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var propertyType *string
	if v, ok := r.URL.Query()["propertyType"]; ok && len(v) > 0 {
		propertyType = &v[0]
	}

	writeJSON(w, http.StatusOK, LoanLimitResponse{
		PropertyType:      propertyType,
		MaxLoanPercentage: service.MaxLoanPercentage(propertyType),
	})
}

func periodRows(result domain.CalculationResult) []PeriodRow {
	rows := make([]PeriodRow, 0, len(result.PeriodAnalysis))
	for _, p := range result.PeriodAnalysis {
		rows = append(rows, PeriodRow{
			Months:           p.Months,
			ActualInvestment: service.FormatKRW(p.ActualInvestment),
			InterestCost:     service.FormatKRW(p.InterestCost),
			TotalCost:        service.FormatKRW(p.TotalCost),
			NetProfit:        service.FormatKRW(p.NetProfit),
			ReturnRate:       service.FormatReturnRate(p),
		})
	}
	return rows
}
