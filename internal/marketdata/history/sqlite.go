package history

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pxbt-dev/AiTradingCharts/internal/model"
)

// SQLiteSource reads a local klines archive. The database is opened read
// only; some other process owns the writes.
//
//	CREATE TABLE klines (
//	    symbol    TEXT    NOT NULL,
//	    open_time INTEGER NOT NULL, -- epoch ms
//	    open REAL, high REAL, low REAL, close REAL, volume REAL
//	);
type SQLiteSource struct {
	db *sql.DB
}

// NewSQLiteSource opens the archive at path.
func NewSQLiteSource(path string) (*SQLiteSource, error) {
	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open archive: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)
	return &SQLiteSource{db: db}, nil
}

// DB returns the underlying handle for health checks.
func (s *SQLiteSource) DB() *sql.DB { return s.db }

// Name implements Source.
func (s *SQLiteSource) Name() string { return "sqlite" }

// Load implements Source.
func (s *SQLiteSource) Load(ctx context.Context, symbol string, limit int) ([]model.PricePoint, error) {
	if limit <= 0 {
		limit = maxKlines
	}
	symbol = strings.ToUpper(symbol)
	rows, err := s.db.QueryContext(ctx, `
		SELECT open_time, open, high, low, close, volume
		FROM klines
		WHERE symbol = ?
		ORDER BY open_time DESC
		LIMIT ?
	`, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query klines: %w", err)
	}
	defer rows.Close()

	var points []model.PricePoint
	for rows.Next() {
		p := model.PricePoint{Symbol: symbol}
		if err := rows.Scan(&p.Timestamp, &p.Open, &p.High, &p.Low, &p.Close, &p.Volume); err != nil {
			return nil, fmt.Errorf("sqlite scan klines: %w", err)
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(points)-1; i < j; i, j = i+1, j-1 {
		points[i], points[j] = points[j], points[i]
	}
	return points, nil
}

// Close closes the archive.
func (s *SQLiteSource) Close() error {
	return s.db.Close()
}
