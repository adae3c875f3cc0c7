package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	_ "modernc.org/sqlite"

	"RecallSentinel/internal/model"
)

// SQLiteStore persists engine state to a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the SQLite database and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL mode for better concurrent read performance (the API reads while
	// runs write).
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Printf("[INFO] sqlite store opened: %s", dbPath)
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS banned_products (
			id               TEXT PRIMARY KEY,
			name             TEXT NOT NULL,
			manufacturer     TEXT,
			model_numbers    TEXT,
			hazard_tags      TEXT,
			deaths           INTEGER NOT NULL DEFAULT 0,
			serious_injuries INTEGER NOT NULL DEFAULT 0,
			minor_injuries   INTEGER NOT NULL DEFAULT 0,
			units_affected   INTEGER NOT NULL DEFAULT 0,
			risk_level       TEXT NOT NULL,
			imported_at      INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS investigations (
			id              TEXT PRIMARY KEY,
			name            TEXT NOT NULL,
			product_ids     TEXT NOT NULL,
			marketplace_ids TEXT NOT NULL,
			recurrence      TEXT NOT NULL,
			start_at        INTEGER NOT NULL,
			timezone        TEXT NOT NULL,
			state           TEXT NOT NULL,
			next_run_at     INTEGER,
			created_by      TEXT,
			created_at      INTEGER NOT NULL,
			updated_at      INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_inv_due ON investigations(state, next_run_at)`,

		`CREATE TABLE IF NOT EXISTS investigation_runs (
			id               TEXT PRIMARY KEY,
			investigation_id TEXT NOT NULL REFERENCES investigations(id),
			started_at       INTEGER NOT NULL,
			ended_at         INTEGER NOT NULL,
			status           TEXT NOT NULL,
			outcomes         TEXT,
			listings_found   INTEGER NOT NULL DEFAULT 0,
			flagged_count    INTEGER NOT NULL DEFAULT 0,
			cancelled        INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_run_inv ON investigation_runs(investigation_id, started_at)`,

		`CREATE TABLE IF NOT EXISTS candidate_listings (
			id             TEXT PRIMARY KEY,
			run_id         TEXT NOT NULL REFERENCES investigation_runs(id),
			marketplace_id TEXT NOT NULL,
			product_id     TEXT NOT NULL,
			external_id    TEXT,
			title          TEXT,
			description    TEXT,
			seller         TEXT,
			price          REAL,
			currency       TEXT,
			url            TEXT,
			image_urls     TEXT,
			confidence     REAL NOT NULL,
			flagged        INTEGER NOT NULL,
			discovered_at  INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_listing_run ON candidate_listings(run_id)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:40], err)
		}
	}
	return nil
}

func toJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func fromJSON[T any](s string) T {
	var v T
	if s != "" {
		_ = json.Unmarshal([]byte(s), &v)
	}
	return v
}

func (s *SQLiteStore) SaveProduct(ctx context.Context, p *model.BannedProduct) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO banned_products
		(id, name, manufacturer, model_numbers, hazard_tags, deaths, serious_injuries, minor_injuries, units_affected, risk_level, imported_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			name=excluded.name, manufacturer=excluded.manufacturer,
			model_numbers=excluded.model_numbers, hazard_tags=excluded.hazard_tags,
			deaths=excluded.deaths, serious_injuries=excluded.serious_injuries,
			minor_injuries=excluded.minor_injuries, units_affected=excluded.units_affected,
			risk_level=excluded.risk_level, imported_at=excluded.imported_at`,
		p.ID, p.Name, p.Manufacturer, toJSON(p.ModelNumbers), toJSON(p.HazardTags),
		p.Deaths, p.SeriousInjuries, p.MinorInjuries, p.UnitsAffected,
		string(p.RiskLevel), p.ImportedAt.Unix(),
	)
	return err
}

func (s *SQLiteStore) scanProduct(row interface{ Scan(...any) error }) (*model.BannedProduct, error) {
	var p model.BannedProduct
	var models, tags, risk string
	var imported int64
	if err := row.Scan(&p.ID, &p.Name, &p.Manufacturer, &models, &tags,
		&p.Deaths, &p.SeriousInjuries, &p.MinorInjuries, &p.UnitsAffected, &risk, &imported); err != nil {
		return nil, err
	}
	p.ModelNumbers = fromJSON[[]string](models)
	p.HazardTags = fromJSON[[]string](tags)
	p.RiskLevel = model.RiskLevel(risk)
	p.ImportedAt = time.Unix(imported, 0)
	return &p, nil
}

const productCols = `id, name, manufacturer, model_numbers, hazard_tags,
	deaths, serious_injuries, minor_injuries, units_affected, risk_level, imported_at`

func (s *SQLiteStore) GetProduct(ctx context.Context, id string) (*model.BannedProduct, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+productCols+` FROM banned_products WHERE id=?`, id)
	p, err := s.scanProduct(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return p, err
}

func (s *SQLiteStore) ListProducts(ctx context.Context) ([]*model.BannedProduct, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+productCols+` FROM banned_products ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.BannedProduct
	for rows.Next() {
		p, err := s.scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func nullableUnix(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Unix()
}

func (s *SQLiteStore) CreateInvestigation(ctx context.Context, inv *model.Investigation) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO investigations
		(id, name, product_ids, marketplace_ids, recurrence, start_at, timezone, state, next_run_at, created_by, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		inv.ID, inv.Name, toJSON(inv.ProductIDs), toJSON(inv.MarketplaceIDs),
		string(inv.Recurrence), inv.StartAt.Unix(), inv.Timezone, string(inv.State),
		nullableUnix(inv.NextRunAt), inv.CreatedBy, inv.CreatedAt.Unix(), inv.UpdatedAt.Unix(),
	)
	return err
}

// UpdateInvestigation writes the record guarded by the state the caller read:
// the WHERE clause on state makes the edit lose cleanly against a concurrent
// claim or finalize instead of stomping it.
func (s *SQLiteStore) UpdateInvestigation(ctx context.Context, inv *model.Investigation, expect model.InvestigationState) (bool, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE investigations SET
		name=?, product_ids=?, marketplace_ids=?, recurrence=?, start_at=?, timezone=?,
		state=?, next_run_at=?, updated_at=? WHERE id=? AND state=?`,
		inv.Name, toJSON(inv.ProductIDs), toJSON(inv.MarketplaceIDs),
		string(inv.Recurrence), inv.StartAt.Unix(), inv.Timezone,
		string(inv.State), nullableUnix(inv.NextRunAt), time.Now().Unix(), inv.ID, string(expect),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 1 {
		return true, nil
	}
	// Distinguish a state conflict from a missing row.
	var one int
	err = s.db.QueryRowContext(ctx, `SELECT 1 FROM investigations WHERE id=?`, inv.ID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, ErrNotFound
	}
	return false, err
}

const invCols = `id, name, product_ids, marketplace_ids, recurrence, start_at,
	timezone, state, next_run_at, created_by, created_at, updated_at`

func (s *SQLiteStore) scanInvestigation(row interface{ Scan(...any) error }) (*model.Investigation, error) {
	var inv model.Investigation
	var products, markets, recurrence, state string
	var startAt, createdAt, updatedAt int64
	var nextRun sql.NullInt64
	if err := row.Scan(&inv.ID, &inv.Name, &products, &markets, &recurrence,
		&startAt, &inv.Timezone, &state, &nextRun, &inv.CreatedBy, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	inv.ProductIDs = fromJSON[[]string](products)
	inv.MarketplaceIDs = fromJSON[[]string](markets)
	inv.Recurrence = model.Recurrence(recurrence)
	inv.State = model.InvestigationState(state)
	inv.StartAt = time.Unix(startAt, 0)
	inv.CreatedAt = time.Unix(createdAt, 0)
	inv.UpdatedAt = time.Unix(updatedAt, 0)
	if nextRun.Valid {
		t := time.Unix(nextRun.Int64, 0)
		inv.NextRunAt = &t
	}
	return &inv, nil
}

func (s *SQLiteStore) GetInvestigation(ctx context.Context, id string) (*model.Investigation, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+invCols+` FROM investigations WHERE id=?`, id)
	inv, err := s.scanInvestigation(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return inv, err
}

func (s *SQLiteStore) ListInvestigations(ctx context.Context) ([]*model.Investigation, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+invCols+` FROM investigations ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return s.collectInvestigations(rows)
}

func (s *SQLiteStore) DueInvestigations(ctx context.Context, now time.Time) ([]*model.Investigation, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+invCols+` FROM investigations
		WHERE state=? AND next_run_at IS NOT NULL AND next_run_at<=?
		ORDER BY next_run_at`, string(model.StateScheduled), now.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return s.collectInvestigations(rows)
}

func (s *SQLiteStore) collectInvestigations(rows *sql.Rows) ([]*model.Investigation, error) {
	var out []*model.Investigation
	for rows.Next() {
		inv, err := s.scanInvestigation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

// ClaimInvestigation performs the conditional Scheduled->Running transition.
// The WHERE clause on state makes the claim atomic: of two racing claims,
// exactly one update affects a row.
func (s *SQLiteStore) ClaimInvestigation(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE investigations
		SET state=?, updated_at=? WHERE id=? AND state=?`,
		string(model.StateRunning), time.Now().Unix(), id, string(model.StateScheduled))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *SQLiteStore) SetInvestigationState(ctx context.Context, id string, state model.InvestigationState, nextRunAt *time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE investigations
		SET state=?, next_run_at=?, updated_at=? WHERE id=?`,
		string(state), nullableUnix(nextRunAt), time.Now().Unix(), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return ErrNotFound
	}
	return err
}

// SaveRunResults writes the run record and its candidate listings in one
// transaction, so a run and its listings are recorded atomically or not at
// all.
func (s *SQLiteStore) SaveRunResults(ctx context.Context, run *model.InvestigationRun, listings []*model.CandidateListing) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	cancelled := 0
	if run.Cancelled {
		cancelled = 1
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO investigation_runs
		(id, investigation_id, started_at, ended_at, status, outcomes, listings_found, flagged_count, cancelled)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		run.ID, run.InvestigationID, run.StartedAt.Unix(), run.EndedAt.Unix(),
		string(run.Status), toJSON(run.Outcomes), run.ListingsFound, run.FlaggedCount, cancelled,
	); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for _, l := range listings {
		flagged := 0
		if l.Flagged {
			flagged = 1
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO candidate_listings
			(id, run_id, marketplace_id, product_id, external_id, title, description, seller, price, currency, url, image_urls, confidence, flagged, discovered_at)
			VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
			l.ID, l.RunID, l.MarketplaceID, l.ProductID,
			l.Listing.ExternalID, l.Listing.Title, l.Listing.Description, l.Listing.Seller,
			l.Listing.Price, l.Listing.Currency, l.Listing.URL, toJSON(l.Listing.ImageURLs),
			l.ConfidenceScore, flagged, l.DiscoveredAt.Unix(),
		); err != nil {
			return fmt.Errorf("insert listing: %w", err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) RunHistory(ctx context.Context, investigationID string) ([]*model.InvestigationRun, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, investigation_id, started_at, ended_at, status, outcomes, listings_found, flagged_count, cancelled
		FROM investigation_runs WHERE investigation_id=? ORDER BY started_at`, investigationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.InvestigationRun
	for rows.Next() {
		var r model.InvestigationRun
		var started, ended int64
		var status, outcomes string
		var cancelled int
		if err := rows.Scan(&r.ID, &r.InvestigationID, &started, &ended, &status, &outcomes,
			&r.ListingsFound, &r.FlaggedCount, &cancelled); err != nil {
			return nil, err
		}
		r.StartedAt = time.Unix(started, 0)
		r.EndedAt = time.Unix(ended, 0)
		r.Status = model.RunStatus(status)
		r.Outcomes = fromJSON[[]model.MarketplaceOutcome](outcomes)
		r.Cancelled = cancelled == 1
		out = append(out, &r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ListingsForRun(ctx context.Context, runID string) ([]*model.CandidateListing, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, run_id, marketplace_id, product_id, external_id, title, description, seller, price, currency, url, image_urls, confidence, flagged, discovered_at
		FROM candidate_listings WHERE run_id=?`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.CandidateListing
	for rows.Next() {
		var l model.CandidateListing
		var images string
		var flagged int
		var discovered int64
		if err := rows.Scan(&l.ID, &l.RunID, &l.MarketplaceID, &l.ProductID,
			&l.Listing.ExternalID, &l.Listing.Title, &l.Listing.Description, &l.Listing.Seller,
			&l.Listing.Price, &l.Listing.Currency, &l.Listing.URL, &images,
			&l.ConfidenceScore, &flagged, &discovered); err != nil {
			return nil, err
		}
		l.Listing.ImageURLs = fromJSON[[]string](images)
		l.Flagged = flagged == 1
		l.DiscoveredAt = time.Unix(discovered, 0)
		out = append(out, &l)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	log.Println("[INFO] closing sqlite store")
	return s.db.Close()
}
