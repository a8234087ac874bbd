package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/propdoc/analyzer/internal/common"
	"github.com/propdoc/analyzer/internal/entity"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS pdf_text_data (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	filename     TEXT NOT NULL,
	page_number  INTEGER NOT NULL,
	text_content TEXT NOT NULL DEFAULT '',
	created_at   TEXT NOT NULL DEFAULT (datetime('now'))
);
CREATE INDEX IF NOT EXISTS idx_pdf_text_data_filename ON pdf_text_data (filename);

CREATE TABLE IF NOT EXISTS image_analysis_results (
	id                          TEXT PRIMARY KEY,
	filename                    TEXT NOT NULL,
	image_name                  TEXT NOT NULL,
	model_name                  TEXT NOT NULL,
	page_number                 INTEGER NOT NULL,
	is_property_image           INTEGER NOT NULL DEFAULT 0,
	for_sale_sign               INTEGER NOT NULL DEFAULT 0,
	for_sale_sign_confidence    REAL NOT NULL DEFAULT 0,
	solar_panels                INTEGER NOT NULL DEFAULT 0,
	solar_panels_confidence     REAL NOT NULL DEFAULT 0,
	human_presence              INTEGER NOT NULL DEFAULT 0,
	human_presence_confidence   REAL NOT NULL DEFAULT 0,
	potential_damage            INTEGER NOT NULL DEFAULT 0,
	potential_damage_confidence REAL NOT NULL DEFAULT 0,
	damage_description          TEXT NOT NULL DEFAULT '',
	full_analysis_text          TEXT NOT NULL DEFAULT '',
	metadata                    TEXT NOT NULL DEFAULT '{}',
	analysis_timestamp          TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_image_analysis_results_filename ON image_analysis_results (filename);
`

var sqlitePragmas = []string{
	"PRAGMA foreign_keys = ON",
	"PRAGMA journal_mode = WAL",
	"PRAGMA busy_timeout = 10000",
	"PRAGMA synchronous = NORMAL",
}

// SQLiteStore is the embedded-database store, used by the batch CLI and
// tests. Pass ":memory:" for an ephemeral database.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewSQLiteStore(ctx context.Context, path string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// In-memory databases vanish per-connection; a single connection keeps
	// one coherent database and also serializes WAL writers.
	db.SetMaxOpenConns(1)

	for _, pragma := range sqlitePragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: ensure schema: %v", common.ErrPersistence, err)
	}
	return &SQLiteStore{db: db, logger: logger}, nil
}

func (s *SQLiteStore) SavePageTexts(ctx context.Context, pages []entity.PageText) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin tx: %v", common.ErrPersistence, err)
	}
	for _, p := range pages {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO pdf_text_data (filename, page_number, text_content) VALUES (?, ?, ?)`,
			p.FileName, p.PageNumber, p.Text,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("%w: insert page text: %v", common.ErrPersistence, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit page texts: %v", common.ErrPersistence, err)
	}
	s.logger.Info("store.page_texts.ok", "rows", len(pages))
	return nil
}

func (s *SQLiteStore) SaveFinding(ctx context.Context, f entity.Finding) error {
	r, err := flatten(f)
	if err != nil {
		return err
	}
	ts := f.AnalyzedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO image_analysis_results (
			id, filename, image_name, model_name, page_number,
			is_property_image,
			for_sale_sign, for_sale_sign_confidence,
			solar_panels, solar_panels_confidence,
			human_presence, human_presence_confidence,
			potential_damage, potential_damage_confidence,
			damage_description, full_analysis_text, metadata, analysis_timestamp
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		f.ID.String(), f.FileName, f.UnitName, f.ModelName, f.PageNumber,
		r.property,
		r.canon.ForSaleSign.Detected, r.canon.ForSaleSign.Confidence,
		r.canon.SolarPanels.Detected, r.canon.SolarPanels.Confidence,
		r.canon.HumanPresence.Detected, r.canon.HumanPresence.Confidence,
		r.canon.PotentialDamage.Detected, r.canon.PotentialDamage.Confidence,
		r.canon.PotentialDamage.Description, r.raw, string(r.metadata),
		ts.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("%w: insert finding: %v", common.ErrPersistence, err)
	}
	return nil
}

func (s *SQLiteStore) ListFindings(ctx context.Context, fileName string, limit int) ([]entity.Finding, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, filename, image_name, model_name, page_number, full_analysis_text, metadata, analysis_timestamp
		FROM image_analysis_results
		WHERE (? = '' OR filename = ?)
		ORDER BY analysis_timestamp DESC
		LIMIT ?`,
		fileName, fileName, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: query findings: %v", common.ErrPersistence, err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			s.logger.Warn("store.findings.rows_close_error", "error", cerr)
		}
	}()

	var out []entity.Finding
	for rows.Next() {
		var (
			f     entity.Finding
			id    string
			meta  string
			rawTS string
		)
		if err := rows.Scan(&id, &f.FileName, &f.UnitName, &f.ModelName, &f.PageNumber, &f.RawResponse, &meta, &rawTS); err != nil {
			return nil, fmt.Errorf("%w: scan finding: %v", common.ErrPersistence, err)
		}
		f.ID, _ = uuid.Parse(id)
		if err := json.Unmarshal([]byte(meta), &f.Categories); err != nil {
			s.logger.Warn("store.findings.metadata_decode_error", "id", id, "error", err)
			f.Categories = map[string]entity.CategoryFinding{}
		}
		if ts, err := time.Parse(time.RFC3339Nano, rawTS); err == nil {
			f.AnalyzedAt = ts
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate findings: %v", common.ErrPersistence, err)
	}
	return out, nil
}

func (s *SQLiteStore) Close() {
	if err := s.db.Close(); err != nil {
		s.logger.Warn("store.close_error", "error", err)
	}
}
