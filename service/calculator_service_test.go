package service

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auction-agent/domain"
	"auction-agent/metrics"
	"auction-agent/repository"
)

type MockScenarioRepository struct {
	SaveCalls  int
	ForceError bool
}

func (m *MockScenarioRepository) Save(scenario repository.Scenario) error {
	m.SaveCalls++
	if m.ForceError {
		return errors.New("save error")
	}
	return nil
}

func (m *MockScenarioRepository) List() []repository.Scenario { return nil }

type failingCache struct{}

func (failingCache) Get(string) (string, bool) { return "", false }
func (failingCache) Set(string, string) error  { return errors.New("cache down") }

func TestCalculatorService_Calculate(t *testing.T) {
	mockRepo := &MockScenarioRepository{}
	service := NewCalculatorService(mockRepo, repository.NewMemoryCache(), nil, DefaultLegalFee)
	in, pctx := apartmentScenario()

	result, err := service.Calculate(in, pctx)

	require.NoError(t, err)
	assert.Equal(t, Calculate(in, pctx, DefaultLegalFee), result)
	assert.Equal(t, 1, mockRepo.SaveCalls)
}

func TestCalculatorService_ClampsLoanPercentage(t *testing.T) {
	service := NewCalculatorService(&MockScenarioRepository{}, repository.NewMemoryCache(), nil, DefaultLegalFee)
	in, _ := apartmentScenario()
	in.LoanPercentage = 90

	result, err := service.Calculate(in, domain.PropertyContext{PropertyType: strPtr("근린상가")})

	require.NoError(t, err)
	assert.Equal(t, 60, result.MaxLoanPercentage)
	assert.Equal(t, int64(180_000_000), result.LoanAmount)
}

func TestCalculatorService_ServesRepeatsFromCache(t *testing.T) {
	m := metrics.NewRegistry()
	mockRepo := &MockScenarioRepository{}
	cache := repository.NewMemoryCache()
	service := NewCalculatorService(mockRepo, cache, m, DefaultLegalFee)
	in, pctx := apartmentScenario()

	first, err := service.Calculate(in, pctx)
	require.NoError(t, err)
	second, err := service.Calculate(in, pctx)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, mockRepo.SaveCalls)
	assert.Len(t, cache.Data, 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("miss")))

	// a different area is a different tuple
	pctx.Area = floatPtr(100)
	third, err := service.Calculate(in, pctx)
	require.NoError(t, err)
	assert.Equal(t, int64(600_000), third.RuralSpecialTax)
	assert.Len(t, cache.Data, 2)
}

func TestCalculatorService_SideFailuresDoNotFail(t *testing.T) {
	mockRepo := &MockScenarioRepository{ForceError: true}
	service := NewCalculatorService(mockRepo, failingCache{}, nil, DefaultLegalFee)
	in, pctx := apartmentScenario()

	_, err := service.Calculate(in, pctx)

	assert.NoError(t, err)
	assert.Equal(t, 1, mockRepo.SaveCalls)
}

func TestCalculatorService_InvalidInput(t *testing.T) {
	mockRepo := &MockScenarioRepository{}
	service := NewCalculatorService(mockRepo, repository.NewMemoryCache(), nil, DefaultLegalFee)

	tests := []struct {
		name string
		in   domain.CalculatorInputs
		want error
	}{
		{"negative bid", domain.CalculatorInputs{BidPrice: -1}, ErrNegativeAmount},
		{"negative repair", domain.CalculatorInputs{RepairCost: -5}, ErrNegativeAmount},
		{"huge sale", domain.CalculatorInputs{SalePrice: MaxPriceAmount + 1}, ErrAmountTooLarge},
		{"negative tax rate", domain.CalculatorInputs{AcquisitionTaxRate: -0.1}, ErrInvalidRate},
		{"interest over 100", domain.CalculatorInputs{LoanInterestRate: 101}, ErrInvalidRate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := service.Calculate(tt.in, domain.PropertyContext{})
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Zero(t, mockRepo.SaveCalls, "repository Save should NOT be called")
}
