package warehouse

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/pricedash/pricedash/internal/config"
	"github.com/pricedash/pricedash/internal/observability"
)

const defaultProbeTimeout = 10 * time.Second

type StrategyFailure struct {
	Strategy string
	Err      error
}

// ConnectionError reports that no strategy produced a live connection.
type ConnectionError struct {
	Failures []StrategyFailure
}

func (e *ConnectionError) Error() string {
	if len(e.Failures) == 0 {
		return "connect to warehouse: no connection strategies configured"
	}
	parts := make([]string, 0, len(e.Failures))
	for _, failure := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %v", failure.Strategy, failure.Err))
	}
	return "connect to warehouse: " + strings.Join(parts, "; ")
}

func (e *ConnectionError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, failure := range e.Failures {
		errs = append(errs, failure.Err)
	}
	return errs
}

type Provider struct {
	strategies   []Strategy
	probeTimeout time.Duration
	logger       *slog.Logger
}

func NewProvider(logger *slog.Logger, probeTimeout time.Duration, strategies ...Strategy) *Provider {
	if probeTimeout <= 0 {
		probeTimeout = defaultProbeTimeout
	}
	return &Provider{
		strategies:   strategies,
		probeTimeout: probeTimeout,
		logger:       observability.Component(logger, "warehouse"),
	}
}

// NewProviderFromConfig tries the ambient session first, then the credential bundle.
func NewProviderFromConfig(cfg config.WarehouseConfig, logger *slog.Logger) *Provider {
	return NewProvider(logger, cfg.ProbeTimeout,
		NewAmbientDSN(cfg.AmbientDriver, cfg.AmbientDSN, nil),
		&CredentialStrategy{
			Driver: cfg.Driver,
			Credentials: Credentials{
				Account:   cfg.Account,
				User:      cfg.User,
				Password:  cfg.Password,
				Warehouse: cfg.Warehouse,
				Database:  cfg.Database,
				Schema:    cfg.Schema,
			},
		},
	)
}

// Acquire returns the first connection, in strategy order, that passes SELECT 1.
func (p *Provider) Acquire(ctx context.Context) (*Conn, error) {
	connErr := &ConnectionError{}
	for _, strategy := range p.strategies {
		conn, err := p.tryStrategy(ctx, strategy)
		if err == nil {
			observability.ObserveConnectionAcquire(strategy.Name(), "ok")
			p.logger.DebugContext(ctx, "warehouse connection acquired", slog.String("strategy", strategy.Name()))
			return conn, nil
		}

		outcome := "failed"
		if errors.Is(err, ErrNoAmbientSession) {
			outcome = "unavailable"
		} else {
			p.logger.WarnContext(ctx, "warehouse connection strategy failed",
				slog.String("strategy", strategy.Name()),
				slog.Any("error", err),
			)
		}
		observability.ObserveConnectionAcquire(strategy.Name(), outcome)
		connErr.Failures = append(connErr.Failures, StrategyFailure{Strategy: strategy.Name(), Err: err})

		if ctx.Err() != nil {
			break
		}
	}
	return nil, connErr
}

func (p *Provider) tryStrategy(ctx context.Context, strategy Strategy) (*Conn, error) {
	conn, err := strategy.Open(ctx)
	if err != nil {
		return nil, err
	}
	probeCtx, cancel := context.WithTimeout(ctx, p.probeTimeout)
	defer cancel()
	if err := conn.probe(probeCtx); err != nil {
		_ = conn.Release()
		return nil, err
	}
	return conn, nil
}

// Close releases any sessions held by strategies.
func (p *Provider) Close() error {
	var errs []error
	for _, strategy := range p.strategies {
		if closer, ok := strategy.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
