package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog/log"

	"auction-agent/domain"
	"auction-agent/metrics"
	"auction-agent/repository"
)

var (
	ErrNegativeAmount = errors.New("amount must not be negative")
	ErrAmountTooLarge = errors.New("amount exceeds the allowed maximum")
	ErrInvalidRate    = errors.New("rate must be between 0 and 100")
	ErrNonFinite      = errors.New("value must be a finite number")
)

const cacheKeyPrefix = "calc:"

type CalculatorService struct {
	repo     repository.ScenarioRepository
	cache    repository.CacheRepository
	metrics  *metrics.Registry
	legalFee int64
}

// NewCalculatorService creates a CalculatorService. metrics may be nil.
func NewCalculatorService(repo repository.ScenarioRepository,
	cache repository.CacheRepository,
	m *metrics.Registry,
	legalFee int64,
) *CalculatorService {
	return &CalculatorService{repo: repo, cache: cache, metrics: m, legalFee: legalFee}
}

// Validate rejects input the edit controls should never have produced.
func Validate(in domain.CalculatorInputs) error {
	amounts := []struct {
		name  string
		value int64
	}{
		{"bidPrice", in.BidPrice},
		{"salePrice", in.SalePrice},
		{"movingCost", in.MovingCost},
		{"maintenanceCost", in.MaintenanceCost},
		{"repairCost", in.RepairCost},
	}
	for _, a := range amounts {
		if a.value < 0 {
			return fmt.Errorf("%s: %w", a.name, ErrNegativeAmount)
		}
		if a.value > MaxPriceAmount {
			return fmt.Errorf("%s: %w", a.name, ErrAmountTooLarge)
		}
	}
	if in.AcquisitionTaxRate < 0 || in.AcquisitionTaxRate > MaxRatePercent {
		return fmt.Errorf("acquisitionTaxRate: %w", ErrInvalidRate)
	}
	if in.LoanInterestRate < 0 || in.LoanInterestRate > MaxRatePercent {
		return fmt.Errorf("loanInterestRate: %w", ErrInvalidRate)
	}
	return nil
}

// Calculate validates, clamps the loan percentage and returns the return
// table, serving repeated tuples from the cache.
func (s *CalculatorService) Calculate(
	in domain.CalculatorInputs,
	pctx domain.PropertyContext,
) (domain.CalculationResult, error) {

	if err := Validate(in); err != nil {
		s.count("invalid")
		return domain.CalculationResult{}, err
	}
	in.LoanPercentage = ClampLoanPercentage(in.LoanPercentage, pctx.PropertyType)

	key := s.cacheKey(in, pctx)
	if cached, ok := s.cache.Get(key); ok {
		var result domain.CalculationResult
		if err := json.Unmarshal([]byte(cached), &result); err == nil {
			s.lookup("hit")
			s.count("ok")
			return result, nil
		}
		log.Warn().Str("key", key).Msg("discarding undecodable cached calculation")
	}
	s.lookup("miss")

	result := Calculate(in, pctx, s.legalFee)

	// 캐시와 이력 저장은 실패해도 계산 결과에 영향 없음
	if data, err := json.Marshal(result); err == nil {
		if err := s.cache.Set(key, string(data)); err != nil {
			log.Warn().Err(err).Msg("failed to cache calculation")
		}
	}
	if err := s.repo.Save(repository.Scenario{Inputs: in, Context: pctx, Result: result}); err != nil {
		log.Warn().Err(err).Msg("failed to save scenario")
	}

	s.count("ok")
	return result, nil
}

// History returns previously computed scenarios, oldest first.
func (s *CalculatorService) History() []repository.Scenario {
	return s.repo.List()
}

// cacheKey hashes the full input tuple together with the property context
// and the legal fee in effect.
func (s *CalculatorService) cacheKey(in domain.CalculatorInputs, pctx domain.PropertyContext) string {
	payload, _ := json.Marshal(struct {
		In       domain.CalculatorInputs
		Ctx      domain.PropertyContext
		LegalFee int64
	}{in, pctx, s.legalFee})
	return cacheKeyPrefix + strconv.FormatUint(xxhash.Sum64(payload), 16)
}

func (s *CalculatorService) count(result string) {
	if s.metrics != nil {
		s.metrics.Calculations.WithLabelValues(result).Inc()
	}
}

func (s *CalculatorService) lookup(result string) {
	if s.metrics != nil {
		s.metrics.CacheLookups.WithLabelValues(result).Inc()
	}
}
