package repository

import "auction-agent/domain"

// Scenario is one evaluated what-if calculation.
type Scenario struct {
	Inputs  domain.CalculatorInputs  `json:"inputs"`
	Context domain.PropertyContext   `json:"context"`
	Result  domain.CalculationResult `json:"result"`
}

type ScenarioRepository interface {
	Save(scenario Scenario) error
	List() []Scenario
}
