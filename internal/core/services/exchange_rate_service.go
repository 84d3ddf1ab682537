package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Dours-d/D2C/internal/apperrors"
	"github.com/Dours-d/D2C/internal/core/domain"
	"github.com/Dours-d/D2C/internal/core/ports/gateways"
	portsrepo "github.com/Dours-d/D2C/internal/core/ports/repositories"
	portssvc "github.com/Dours-d/D2C/internal/core/ports/services"
	"github.com/Dours-d/D2C/internal/dto"
	"github.com/google/uuid"
)

// ErrRateStale is returned when the newest stored rate is older than the allowed age.
var ErrRateStale = errors.New("exchange rate is stale")

// exchangeRateService provides business logic for exchange rates. It also serves as the rate
// provider read by batch processing.
type exchangeRateService struct {
	BaseService
	rateRepo portsrepo.ExchangeRateRepositoryFacade
	maxAge   time.Duration
}

// ExchangeRateServiceOption is a function that configures an exchangeRateService
type ExchangeRateServiceOption func(*exchangeRateService)

// WithRateClock replaces the service clock.
func WithRateClock(now func() time.Time) ExchangeRateServiceOption {
	return func(s *exchangeRateService) {
		s.Now = now
	}
}

// ExchangeRateService is the combined operator facade and rate provider.
type ExchangeRateService interface {
	portssvc.ExchangeRateSvcFacade
	gateways.RateProvider
}

// NewExchangeRateService creates a new exchange rate service. A positive maxAge bounds how old
// the newest stored rate may be when a batch consumes it.
func NewExchangeRateService(rateRepo portsrepo.ExchangeRateRepositoryFacade, maxAge time.Duration, opts ...ExchangeRateServiceOption) ExchangeRateService {
	s := &exchangeRateService{
		BaseService: newBaseService(),
		rateRepo:    rateRepo,
		maxAge:      maxAge,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ ExchangeRateService = (*exchangeRateService)(nil)

func normalizeCurrencyCode(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) < 3 || len(code) > 5 {
		return "", fmt.Errorf("%w: currency code '%s' must be 3 to 5 letters", apperrors.ErrValidation, code)
	}
	return code, nil
}

// CreateExchangeRate handles the creation of a new exchange rate.
func (s *exchangeRateService) CreateExchangeRate(ctx context.Context, req dto.CreateExchangeRateRequest, creatorUserID string) (*domain.ExchangeRate, error) {
	fromCode, err := normalizeCurrencyCode(req.FromCurrencyCode)
	if err != nil {
		return nil, err
	}
	toCode, err := normalizeCurrencyCode(req.ToCurrencyCode)
	if err != nil {
		return nil, err
	}
	if !req.Rate.IsPositive() {
		return nil, fmt.Errorf("%w: exchange rate must be positive", apperrors.ErrValidation)
	}
	if fromCode == toCode {
		return nil, fmt.Errorf("%w: from and to currency codes cannot be the same", apperrors.ErrValidation)
	}

	source := strings.TrimSpace(req.Source)
	if source == "" {
		source = "manual"
	}

	now := s.Now()
	rate := domain.ExchangeRate{
		ExchangeRateID:   uuid.NewString(),
		FromCurrencyCode: fromCode,
		ToCurrencyCode:   toCode,
		Rate:             req.Rate,
		Source:           source,
		DateEffective:    req.DateEffective,
		AuditFields: domain.AuditFields{
			CreatedAt:     now,
			CreatedBy:     creatorUserID,
			LastUpdatedAt: now,
			LastUpdatedBy: creatorUserID,
		},
	}

	if err := s.rateRepo.SaveExchangeRate(ctx, rate); err != nil {
		if errors.Is(err, apperrors.ErrDuplicate) {
			return nil, fmt.Errorf("%w: a rate for %s/%s effective %s already exists", apperrors.ErrValidation, fromCode, toCode, req.DateEffective.Format(time.RFC3339))
		}
		s.LogError(ctx, err, "Failed to save exchange rate", slog.String("from", fromCode), slog.String("to", toCode))
		return nil, fmt.Errorf("failed to create exchange rate: %w", err)
	}

	s.LogInfo(ctx, "Exchange rate created",
		slog.String("rate_id", rate.ExchangeRateID),
		slog.String("pair", fromCode+"/"+toCode),
		slog.String("rate", rate.Rate.String()))
	return &rate, nil
}

// GetExchangeRate retrieves the newest effective rate for a currency pair.
func (s *exchangeRateService) GetExchangeRate(ctx context.Context, fromCode, toCode string) (*domain.ExchangeRate, error) {
	fromCode, err := normalizeCurrencyCode(fromCode)
	if err != nil {
		return nil, err
	}
	toCode, err = normalizeCurrencyCode(toCode)
	if err != nil {
		return nil, err
	}

	rate, err := s.rateRepo.FindExchangeRate(ctx, fromCode, toCode)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			s.LogError(ctx, err, "Failed to load exchange rate", slog.String("pair", fromCode+"/"+toCode))
		}
		return nil, fmt.Errorf("failed to get exchange rate %s/%s: %w", fromCode, toCode, err)
	}
	return rate, nil
}

// GetRate returns the snapshot a batch is processed with. The snapshot is valid from the rate's
// effective date until maxAge later, and a rate already past that is rejected.
func (s *exchangeRateService) GetRate(ctx context.Context, base, target string) (*domain.ExchangeRateSnapshot, error) {
	rate, err := s.GetExchangeRate(ctx, base, target)
	if err != nil {
		return nil, err
	}

	snapshot := &domain.ExchangeRateSnapshot{
		Base:      rate.FromCurrencyCode,
		Target:    rate.ToCurrencyCode,
		Rate:      rate.Rate,
		Source:    rate.Source,
		ValidFrom: rate.DateEffective,
	}
	if s.maxAge > 0 {
		until := rate.DateEffective.Add(s.maxAge)
		snapshot.ValidUntil = &until
	}
	if now := s.Now(); !snapshot.IsValidAt(now) {
		s.LogWarn(ctx, "Exchange rate not valid now",
			slog.String("pair", snapshot.Base+"/"+snapshot.Target),
			slog.Time("valid_from", snapshot.ValidFrom))
		return nil, fmt.Errorf("%w: %s/%s effective %s", ErrRateStale, snapshot.Base, snapshot.Target, snapshot.ValidFrom.Format(time.RFC3339))
	}
	return snapshot, nil
}
