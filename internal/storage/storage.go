// Package storage persists scan results and tracked positions in SQLite.
// Scored opportunities are stored with their full signal payload so past
// scans can be re-examined, and rotated by age to prevent unbounded growth.
//
// Timestamps are stored as Unix nanoseconds so range queries compare
// numerically. The pure-Go driver keeps the binary free of cgo; ":memory:"
// gives tests a throwaway database.
package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/voledgehq/voledge/internal/models"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("storage: not found")

const schema = `
CREATE TABLE IF NOT EXISTS opportunities (
	id              TEXT PRIMARY KEY,
	underlying      TEXT NOT NULL,
	option_type     TEXT NOT NULL,
	strike          REAL NOT NULL,
	expiry          INTEGER NOT NULL,
	premium         REAL NOT NULL,
	composite_score REAL NOT NULL,
	scanned_at      INTEGER NOT NULL,
	payload         TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_opportunities_scanned_at ON opportunities(scanned_at);
CREATE INDEX IF NOT EXISTS idx_opportunities_underlying ON opportunities(underlying);

CREATE TABLE IF NOT EXISTS positions (
	id               TEXT PRIMARY KEY,
	opportunity_id   TEXT,
	underlying       TEXT NOT NULL,
	option_type      TEXT NOT NULL,
	strike           REAL NOT NULL,
	expiry           INTEGER NOT NULL,
	quantity         INTEGER NOT NULL,
	premium_received REAL NOT NULL,
	opened_at        INTEGER NOT NULL,
	status           TEXT NOT NULL,
	closed_at        INTEGER,
	close_price      REAL,
	notes            TEXT
);
CREATE INDEX IF NOT EXISTS idx_positions_status ON positions(status);
`

// Storage wraps the SQLite database. database/sql serializes access, so the
// type is safe for concurrent use without extra locking.
type Storage struct {
	db *sql.DB
}

// New opens (creating if needed) the database at path and ensures the
// schema exists. Pass ":memory:" for an ephemeral database.
func New(path string) (*Storage, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &Storage{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Storage) Close() error {
	return s.db.Close()
}

// SaveOpportunities stores a batch of scan results in one transaction.
// Scoring produces opportunities without identity; a UUID is assigned here
// to any opportunity that does not carry one yet. Re-saving an existing ID
// replaces the row.
func (s *Storage) SaveOpportunities(opps []models.ScoredOpportunity) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO opportunities
		(id, underlying, option_type, strike, expiry, premium, composite_score, scanned_at, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i := range opps {
		opp := &opps[i]
		if opp.ID == "" {
			opp.ID = uuid.New().String()
		}
		if err := opp.Validate(); err != nil {
			return fmt.Errorf("invalid opportunity: %w", err)
		}
		payload, err := json.Marshal(opp)
		if err != nil {
			return fmt.Errorf("failed to marshal opportunity: %w", err)
		}
		q := &opp.Signal.Quote
		if _, err := stmt.Exec(
			opp.ID, q.Underlying, string(q.Type), q.Strike, q.Expiry.UnixNano(),
			q.Mid(), opp.CompositeScore, opp.ScannedAt.UnixNano(), string(payload),
		); err != nil {
			return fmt.Errorf("failed to insert opportunity: %w", err)
		}
	}
	return tx.Commit()
}

// RecentOpportunities returns opportunities scanned at or after since,
// best score first, at most limit rows.
func (s *Storage) RecentOpportunities(since time.Time, limit int) ([]models.ScoredOpportunity, error) {
	rows, err := s.db.Query(`
		SELECT payload FROM opportunities
		WHERE scanned_at >= ?
		ORDER BY composite_score DESC, id ASC
		LIMIT ?`,
		since.UnixNano(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query opportunities: %w", err)
	}
	defer rows.Close()

	var opps []models.ScoredOpportunity
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		var opp models.ScoredOpportunity
		if err := json.Unmarshal([]byte(payload), &opp); err != nil {
			return nil, fmt.Errorf("failed to unmarshal opportunity: %w", err)
		}
		opps = append(opps, opp)
	}
	return opps, rows.Err()
}

// GetOpportunity fetches one stored opportunity by ID.
func (s *Storage) GetOpportunity(id string) (*models.ScoredOpportunity, error) {
	var payload string
	err := s.db.QueryRow(`SELECT payload FROM opportunities WHERE id = ?`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: opportunity %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query opportunity: %w", err)
	}
	var opp models.ScoredOpportunity
	if err := json.Unmarshal([]byte(payload), &opp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal opportunity: %w", err)
	}
	return &opp, nil
}

// PruneOpportunities deletes scan results older than cutoff and reports how
// many rows were removed.
func (s *Storage) PruneOpportunities(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM opportunities WHERE scanned_at < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to prune opportunities: %w", err)
	}
	return res.RowsAffected()
}

// AddPosition stores a new tracked position.
func (s *Storage) AddPosition(p *models.Position) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid position: %w", err)
	}

	closedAt := sql.NullInt64{}
	if !p.ClosedAt.IsZero() {
		closedAt = sql.NullInt64{Int64: p.ClosedAt.UnixNano(), Valid: true}
	}
	_, err := s.db.Exec(`
		INSERT INTO positions
		(id, opportunity_id, underlying, option_type, strike, expiry, quantity,
		 premium_received, opened_at, status, closed_at, close_price, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.OpportunityID, p.Underlying, string(p.Type), p.Strike,
		p.Expiry.UnixNano(), p.Quantity, p.PremiumReceived,
		p.OpenedAt.UnixNano(), string(p.Status), closedAt, p.ClosePrice, p.Notes)
	if err != nil {
		return fmt.Errorf("failed to insert position: %w", err)
	}
	return nil
}

// GetPosition fetches one position by ID.
func (s *Storage) GetPosition(id string) (*models.Position, error) {
	p, err := scanPosition(s.db.QueryRow(`
		SELECT id, opportunity_id, underlying, option_type, strike, expiry, quantity,
		       premium_received, opened_at, status, closed_at, close_price, notes
		FROM positions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: position %s", ErrNotFound, id)
	}
	return p, err
}

// OpenPositions returns every position still open, oldest first.
func (s *Storage) OpenPositions() ([]models.Position, error) {
	rows, err := s.db.Query(`
		SELECT id, opportunity_id, underlying, option_type, strike, expiry, quantity,
		       premium_received, opened_at, status, closed_at, close_price, notes
		FROM positions WHERE status = ? ORDER BY opened_at ASC`,
		string(models.StatusOpen))
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	var positions []models.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, *p)
	}
	return positions, rows.Err()
}

// ClosePosition transitions a position to a terminal status and records the
// closing price and time.
func (s *Storage) ClosePosition(id string, status models.PositionStatus, closedAt time.Time, closePrice float64) error {
	if !status.Valid() || status == models.StatusOpen {
		return fmt.Errorf("storage: %q is not a terminal status", status)
	}
	res, err := s.db.Exec(`
		UPDATE positions SET status = ?, closed_at = ?, close_price = ?
		WHERE id = ? AND status = ?`,
		string(status), closedAt.UnixNano(), closePrice,
		id, string(models.StatusOpen))
	if err != nil {
		return fmt.Errorf("failed to close position: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: open position %s", ErrNotFound, id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPosition(row rowScanner) (*models.Position, error) {
	var (
		p          models.Position
		typ        string
		status     string
		expiry     int64
		openedAt   int64
		closedAt   sql.NullInt64
		closePrice sql.NullFloat64
		notes      sql.NullString
	)
	err := row.Scan(&p.ID, &p.OpportunityID, &p.Underlying, &typ, &p.Strike, &expiry,
		&p.Quantity, &p.PremiumReceived, &openedAt, &status, &closedAt, &closePrice, &notes)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan position: %w", err)
	}
	p.Type = models.OptionType(typ)
	p.Status = models.PositionStatus(status)
	p.Expiry = time.Unix(0, expiry).UTC()
	p.OpenedAt = time.Unix(0, openedAt).UTC()
	if closedAt.Valid {
		p.ClosedAt = time.Unix(0, closedAt.Int64).UTC()
	}
	if closePrice.Valid {
		p.ClosePrice = closePrice.Float64
	}
	if notes.Valid {
		p.Notes = notes.String
	}
	return &p, nil
}
