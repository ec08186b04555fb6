package timescale

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"polyshark/internal/config"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

const writeTimeout = 3 * time.Second

// DecisionRow is one decision-loop cycle outcome, one insert per cycle.
type DecisionRow struct {
	Time              time.Time
	Pair              string
	Decision          string
	Status            string
	Mode              string
	PriceSum          float64
	Deviation         float64
	Direction         string
	NotionalUSD       float64
	RawEdgeUSD        float64
	FeeUSD            float64
	SlippageUSD       float64
	FillProbability   float64
	ExpectedProfitUSD float64
	FilledUSD         float64
	ConsumedUSD       float64
	PermittedUSD      float64
	Reason            string
}

type Writer struct {
	db        *sql.DB
	log       *zap.Logger
	schema    string
	decisions chan DecisionRow
	started   atomic.Bool
	dropped   atomic.Uint64
}

func New(cfg config.TimescaleConfig, log *zap.Logger) (*Writer, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("timescale dsn is required")
	}
	schema := strings.TrimSpace(cfg.Schema)
	if schema == "" {
		schema = "public"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}
	writer := &Writer{
		db:        db,
		log:       log,
		schema:    schema,
		decisions: make(chan DecisionRow, queueSize),
	}
	if err := writer.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return writer, nil
}

func (w *Writer) Start(ctx context.Context) {
	if w == nil {
		return
	}
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	go w.run(ctx)
}

func (w *Writer) Close() error {
	if w == nil || w.db == nil {
		return nil
	}
	return w.db.Close()
}

// EnqueueDecision never blocks the decision loop; rows are dropped when the
// queue is full.
func (w *Writer) EnqueueDecision(row DecisionRow) {
	if w == nil {
		return
	}
	select {
	case w.decisions <- row:
		return
	default:
		if w.dropped.Add(1) == 1 && w.log != nil {
			w.log.Warn("timescale decision queue full")
		}
	}
}

func (w *Writer) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case row := <-w.decisions:
			w.writeDecision(ctx, row)
		}
	}
}

func (w *Writer) ensureSchema(ctx context.Context) error {
	if w.db == nil {
		return errors.New("timescale db not initialized")
	}
	if w.schema != "public" {
		if err := w.exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", w.schema)); err != nil {
			return err
		}
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		pair TEXT NOT NULL,
		decision TEXT NOT NULL,
		status TEXT NOT NULL,
		mode TEXT NOT NULL,
		price_sum DOUBLE PRECISION NOT NULL,
		deviation DOUBLE PRECISION NOT NULL,
		direction TEXT NOT NULL,
		notional_usd DOUBLE PRECISION NOT NULL,
		raw_edge_usd DOUBLE PRECISION NOT NULL,
		fee_usd DOUBLE PRECISION NOT NULL,
		slippage_usd DOUBLE PRECISION NOT NULL,
		fill_probability DOUBLE PRECISION NOT NULL,
		expected_profit_usd DOUBLE PRECISION NOT NULL,
		filled_usd DOUBLE PRECISION NOT NULL,
		consumed_usd DOUBLE PRECISION NOT NULL,
		permitted_usd DOUBLE PRECISION NOT NULL,
		reason TEXT NOT NULL DEFAULT ''
	)`, w.table("decision_events"))); err != nil {
		return err
	}
	if err := w.exec(ctx, "CREATE EXTENSION IF NOT EXISTS timescaledb"); err != nil {
		if w.log != nil {
			w.log.Warn("timescale extension ensure failed", zap.Error(err))
		}
		return nil
	}
	if err := w.exec(ctx, fmt.Sprintf("SELECT create_hypertable('%s', 'ts', if_not_exists => TRUE)", w.table("decision_events"))); err != nil && w.log != nil {
		w.log.Warn("timescale decision_events hypertable create failed", zap.Error(err))
	}
	return nil
}

func (w *Writer) writeDecision(ctx context.Context, row DecisionRow) {
	if w.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	query := fmt.Sprintf(`INSERT INTO %s (
		ts, pair, decision, status, mode, price_sum, deviation, direction,
		notional_usd, raw_edge_usd, fee_usd, slippage_usd, fill_probability,
		expected_profit_usd, filled_usd, consumed_usd, permitted_usd, reason
	) VALUES (
		$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18
	)`, w.table("decision_events"))
	if _, err := w.db.ExecContext(ctx, query,
		row.Time,
		row.Pair,
		row.Decision,
		row.Status,
		row.Mode,
		row.PriceSum,
		row.Deviation,
		row.Direction,
		row.NotionalUSD,
		row.RawEdgeUSD,
		row.FeeUSD,
		row.SlippageUSD,
		row.FillProbability,
		row.ExpectedProfitUSD,
		row.FilledUSD,
		row.ConsumedUSD,
		row.PermittedUSD,
		row.Reason,
	); err != nil && w.log != nil {
		w.log.Warn("timescale decision insert failed", zap.Error(err))
	}
}

func (w *Writer) exec(ctx context.Context, query string) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_, err := w.db.ExecContext(ctx, query)
	return err
}

func (w *Writer) table(name string) string {
	return w.schema + "." + name
}
