// Package seed writes deterministic demo price tables into a local DuckDB
// warehouse so the dashboard can run without a remote warehouse.
package seed

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/pricedash/pricedash/internal/observability"
)

type Table struct {
	Name        string
	ValueColumn string
	Premium     float64
}

var (
	RegularTable = Table{Name: "price_after_launch", ValueColumn: "AVG_USD", Premium: 1}
	FoilTable    = Table{Name: "price_after_launch_foil", ValueColumn: "AVG_USD_FOIL", Premium: 3}
)

type Summary struct {
	Table string
	Rows  int
}

type Seeder struct {
	db     *sql.DB
	cfg    Config
	logger *slog.Logger
}

// Open opens the DuckDB file named by cfg.Database for writing.
func Open(cfg Config, logger *slog.Logger) (*Seeder, error) {
	db, err := sql.Open("duckdb", cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open duckdb %q: %w", cfg.Database, err)
	}
	return NewSeeder(db, cfg, logger), nil
}

func NewSeeder(db *sql.DB, cfg Config, logger *slog.Logger) *Seeder {
	return &Seeder{db: db, cfg: cfg, logger: observability.Component(logger, "seed")}
}

func (s *Seeder) Close() error {
	return s.db.Close()
}

// Run replaces every demo table. Each table gets its own generator so the
// regular series does not depend on whether foil is included.
func (s *Seeder) Run(ctx context.Context) ([]Summary, error) {
	tables := []Table{RegularTable}
	if s.cfg.IncludeFoil {
		tables = append(tables, FoilTable)
	}

	summaries := make([]Summary, 0, len(tables))
	for i, table := range tables {
		gen := NewGenerator(s.cfg.Seed+int64(i), s.cfg.Sets, s.cfg.Days, s.cfg.StepDays)
		rows := gen.Series(table.Premium)
		if err := s.writeTable(ctx, table, rows); err != nil {
			return summaries, err
		}
		s.logger.InfoContext(ctx, "seeded table", slog.String("table", table.Name), slog.Int("rows", len(rows)))
		summaries = append(summaries, Summary{Table: table.Name, Rows: len(rows)})
	}
	return summaries, nil
}

func (s *Seeder) writeTable(ctx context.Context, table Table, rows []PriceRow) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin seed tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	create := fmt.Sprintf("CREATE OR REPLACE TABLE %s (DATE_DIFF BIGINT, %s DOUBLE, SET_NAME VARCHAR)", table.Name, table.ValueColumn)
	if _, err := tx.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("create %s: %w", table.Name, err)
	}

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (DATE_DIFF, %s, SET_NAME) VALUES (?, ?, ?)", table.Name, table.ValueColumn))
	if err != nil {
		return fmt.Errorf("prepare insert %s: %w", table.Name, err)
	}
	defer func() { _ = stmt.Close() }()

	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, row.DateDiff, row.AvgUSD, row.SetName); err != nil {
			return fmt.Errorf("insert %s: %w", table.Name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", table.Name, err)
	}
	return nil
}
