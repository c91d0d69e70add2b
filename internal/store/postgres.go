package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/atmx/classroom-exchange/internal/ledger"
	"github.com/atmx/classroom-exchange/internal/model"
)

//go:embed schema.sql
var schemaSQL string

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate creates the tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	return nil
}

func (s *PostgresStore) LoadPortfolio(ctx context.Context, team string) (*ledger.Portfolio, error) {
	var cashS, realizedS string
	err := s.pool.QueryRow(ctx,
		`SELECT cash::TEXT, realized_pnl::TEXT FROM portfolios WHERE team = $1`, team).
		Scan(&cashS, &realizedS)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get portfolio %s: %w", team, err)
	}

	p := ledger.New(team, decimal.Zero)
	if p.Cash, err = decimal.NewFromString(cashS); err != nil {
		return nil, fmt.Errorf("%w: %s cash: %v", ErrCorruptPortfolio, team, err)
	}
	if p.RealizedPnL, err = decimal.NewFromString(realizedS); err != nil {
		return nil, fmt.Errorf("%w: %s realized_pnl: %v", ErrCorruptPortfolio, team, err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT ticker, qty, avg_cost::TEXT FROM positions WHERE team = $1`, team)
	if err != nil {
		return nil, fmt.Errorf("get positions %s: %w", team, err)
	}
	defer rows.Close()

	for rows.Next() {
		var ticker, avgS string
		var qty int64
		if err := rows.Scan(&ticker, &qty, &avgS); err != nil {
			return nil, err
		}
		avg, err := decimal.NewFromString(avgS)
		if err != nil {
			return nil, fmt.Errorf("%w: %s avg_cost for %s: %v", ErrCorruptPortfolio, team, ticker, err)
		}
		p.Positions[ticker] = qty
		p.AvgCost[ticker] = avg
	}
	return p, rows.Err()
}

// SavePortfolio replaces the portfolio row and its positions in one
// transaction.
func (s *PostgresStore) SavePortfolio(ctx context.Context, p *ledger.Portfolio) error {
	if err := ValidateTeam(p.Team); err != nil {
		return err
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO portfolios (team, cash, realized_pnl, updated_at)
			 VALUES ($1, $2::NUMERIC, $3::NUMERIC, NOW())
			 ON CONFLICT (team) DO UPDATE
			 SET cash = EXCLUDED.cash, realized_pnl = EXCLUDED.realized_pnl, updated_at = NOW()`,
			p.Team, p.Cash.String(), p.RealizedPnL.String(),
		)
		if err != nil {
			return fmt.Errorf("upsert portfolio %s: %w", p.Team, err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM positions WHERE team = $1`, p.Team); err != nil {
			return fmt.Errorf("clear positions %s: %w", p.Team, err)
		}
		for _, ticker := range p.Tickers() {
			_, err := tx.Exec(ctx,
				`INSERT INTO positions (team, ticker, qty, avg_cost) VALUES ($1, $2, $3, $4::NUMERIC)`,
				p.Team, ticker, p.Positions[ticker], p.AvgCost[ticker].String(),
			)
			if err != nil {
				return fmt.Errorf("insert position %s/%s: %w", p.Team, ticker, err)
			}
		}
		return nil
	})
}

func (s *PostgresStore) ListPortfolios(ctx context.Context) ([]*ledger.Portfolio, error) {
	rows, err := s.pool.Query(ctx, `SELECT team FROM portfolios ORDER BY team`)
	if err != nil {
		return nil, err
	}
	teams, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}

	out := make([]*ledger.Portfolio, 0, len(teams))
	for _, team := range teams {
		p, err := s.LoadPortfolio(ctx, team)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *PostgresStore) AppendTrades(ctx context.Context, entries []model.TradeLogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(
			`INSERT INTO trades (id, ts, team, ticker, side, qty, status, price, fee, order_type, limit_price, ref)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8::NUMERIC, $9::NUMERIC, $10, $11::NUMERIC, $12)`,
			e.ID, e.Timestamp, e.Team, e.Ticker, string(e.Side), e.Qty, string(e.Status),
			decimalArg(e.Price), decimalArg(e.Fee), string(e.OrderType), decimalArg(e.LimitPrice), e.Ref,
		)
	}
	return s.pool.SendBatch(ctx, batch).Close()
}

func (s *PostgresStore) ListTrades(ctx context.Context, team string) ([]model.TradeLogEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id::TEXT, ts, team, ticker, side, qty, status,
		        price::TEXT, fee::TEXT, order_type, limit_price::TEXT, ref
		 FROM trades
		 WHERE $1 = '' OR team = $1
		 ORDER BY seq`, team)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTrades(rows)
}

func scanTrades(rows pgx.Rows) ([]model.TradeLogEntry, error) {
	var entries []model.TradeLogEntry
	for rows.Next() {
		var e model.TradeLogEntry
		var side, status, orderType string
		var priceS, feeS, limitS *string

		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Team, &e.Ticker, &side, &e.Qty, &status,
			&priceS, &feeS, &orderType, &limitS, &e.Ref); err != nil {
			return nil, err
		}
		e.Side = model.Side(side)
		e.Status = model.Status(status)
		e.OrderType = model.OrderType(orderType)
		var err error
		if e.Price, err = parseNumeric(priceS); err != nil {
			return nil, fmt.Errorf("%w: trade %s price: %v", ErrCorruptTradeLog, e.ID, err)
		}
		if e.Fee, err = parseNumeric(feeS); err != nil {
			return nil, fmt.Errorf("%w: trade %s fee: %v", ErrCorruptTradeLog, e.ID, err)
		}
		if e.LimitPrice, err = parseNumeric(limitS); err != nil {
			return nil, fmt.Errorf("%w: trade %s limit price: %v", ErrCorruptTradeLog, e.ID, err)
		}

		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// decimalArg maps an optional decimal to a nullable NUMERIC argument.
func decimalArg(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}

// parseNumeric maps a nullable NUMERIC column to an optional decimal. NULL
// is nil; text that is not a number is an error.
func parseNumeric(s *string) (*decimal.Decimal, error) {
	if s == nil {
		return nil, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
