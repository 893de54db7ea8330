// Package history 把成交对账结果与持仓对账记录落盘到 sqlite，
// 供监控接口查询历史。
package history

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/betbot/hedgex/internal/execution"
	"github.com/betbot/hedgex/internal/reconcile"
)

type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "opening db")
	}

	// WAL 模式，读写不互斥
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "setting WAL mode")
	}

	if _, err := db.Exec(schemaDDL); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "schema migration")
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Execution 一条已落盘的下单记录
type Execution struct {
	ID           int64     `json:"id"`
	Venue        string    `json:"venue"`
	Instrument   string    `json:"instrument"`
	Side         string    `json:"side"`
	Size         float64   `json:"size"`
	OrderID      string    `json:"order_id"`
	SubmitTimeMs int64     `json:"submit_time_ms"`
	Filled       bool      `json:"filled"`
	FillPrice    float64   `json:"fill_price"`
	FillSize     float64   `json:"fill_size"`
	FillFee      float64   `json:"fill_fee"`
	RealizedPnl  float64   `json:"realized_pnl"`
	Reason       string    `json:"reason"`
	APIError     string    `json:"api_error,omitempty"`
	RecordedAt   time.Time `json:"recorded_at"`
}

// RecordExecution 落盘一次下单的最终对账结果
func (s *Store) RecordExecution(ctx context.Context, venue, instrument, side string, size float64, res *execution.Result) error {
	var (
		filled                 bool
		price, fsize, fee, pnl float64
		reason                 string
	)
	if res.Fill != nil {
		filled = res.Fill.Filled
		price = res.Fill.AvgPrice
		fsize = res.Fill.TotalSize
		fee = res.Fill.TotalFee
		pnl = res.Fill.TotalPnl
		reason = res.Fill.Reason
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO executions (venue, instrument, side, size, order_id, submit_time_ms,
			filled, fill_price, fill_size, fill_fee, realized_pnl, reason, api_error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		venue, instrument, side, size, res.OrderID, res.SubmitTimeMs,
		filled, price, fsize, fee, pnl, reason, res.APIError,
	)
	return err
}

// RecordReconciliation 落盘一次跨所持仓对账
func (s *Store) RecordReconciliation(ctx context.Context, rep *reconcile.Report) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reconciliations (venue_a, venue_b, size_a, size_b, delta_abs, verdict, checked_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rep.LegA.Venue, rep.LegB.Venue, rep.LegA.SignedSize, rep.LegB.SignedSize,
		rep.DeltaAbs, rep.Verdict, rep.CheckedAt.UTC(),
	)
	return err
}

func (s *Store) RecentExecutions(ctx context.Context, limit int) ([]Execution, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, venue, instrument, side, size, order_id, submit_time_ms,
			filled, fill_price, fill_size, fill_fee, realized_pnl, reason, api_error, recorded_at
		FROM executions ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Execution
	for rows.Next() {
		var e Execution
		if err := rows.Scan(&e.ID, &e.Venue, &e.Instrument, &e.Side, &e.Size,
			&e.OrderID, &e.SubmitTimeMs, &e.Filled, &e.FillPrice, &e.FillSize,
			&e.FillFee, &e.RealizedPnl, &e.Reason, &e.APIError, &e.RecordedAt); err != nil {
			return nil, err
		}
		results = append(results, e)
	}
	return results, rows.Err()
}

// ReconRecord 一条持仓对账历史
type ReconRecord struct {
	ID        int64     `json:"id"`
	VenueA    string    `json:"venue_a"`
	VenueB    string    `json:"venue_b"`
	SizeA     float64   `json:"size_a"`
	SizeB     float64   `json:"size_b"`
	DeltaAbs  float64   `json:"delta_abs"`
	Verdict   string    `json:"verdict"`
	CheckedAt time.Time `json:"checked_at"`
}

func (s *Store) RecentReconciliations(ctx context.Context, limit int) ([]ReconRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, venue_a, venue_b, size_a, size_b, delta_abs, verdict, checked_at
		FROM reconciliations ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []ReconRecord
	for rows.Next() {
		var r ReconRecord
		if err := rows.Scan(&r.ID, &r.VenueA, &r.VenueB, &r.SizeA, &r.SizeB,
			&r.DeltaAbs, &r.Verdict, &r.CheckedAt); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
