package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/propdoc/analyzer/internal/common"
	"github.com/propdoc/analyzer/internal/entity"
)

const pgSchema = `
CREATE TABLE IF NOT EXISTS pdf_text_data (
	id           UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	filename     TEXT NOT NULL,
	page_number  INTEGER NOT NULL,
	text_content TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_pdf_text_data_filename ON pdf_text_data (filename);

CREATE TABLE IF NOT EXISTS image_analysis_results (
	id                          UUID PRIMARY KEY,
	filename                    TEXT NOT NULL,
	image_name                  TEXT NOT NULL,
	model_name                  TEXT NOT NULL,
	page_number                 INTEGER NOT NULL,
	is_property_image           BOOLEAN NOT NULL DEFAULT FALSE,
	for_sale_sign               BOOLEAN NOT NULL DEFAULT FALSE,
	for_sale_sign_confidence    DOUBLE PRECISION NOT NULL DEFAULT 0,
	solar_panels                BOOLEAN NOT NULL DEFAULT FALSE,
	solar_panels_confidence     DOUBLE PRECISION NOT NULL DEFAULT 0,
	human_presence              BOOLEAN NOT NULL DEFAULT FALSE,
	human_presence_confidence   DOUBLE PRECISION NOT NULL DEFAULT 0,
	potential_damage            BOOLEAN NOT NULL DEFAULT FALSE,
	potential_damage_confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
	damage_description          TEXT NOT NULL DEFAULT '',
	full_analysis_text          VARCHAR(500) NOT NULL DEFAULT '',
	metadata                    JSONB NOT NULL DEFAULT '{}',
	analysis_timestamp          TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_image_analysis_results_filename ON image_analysis_results (filename);
`

// PostgresStore persists results through a pgx connection pool.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewPostgresStore(ctx context.Context, dsn string, logger *slog.Logger) (*PostgresStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &PostgresStore{pool: pool, logger: logger}, nil
}

// EnsureSchema creates the result tables when they do not exist yet.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, pgSchema); err != nil {
		return fmt.Errorf("%w: ensure schema: %v", common.ErrPersistence, err)
	}
	return nil
}

func (s *PostgresStore) SavePageTexts(ctx context.Context, pages []entity.PageText) error {
	batch := &pgx.Batch{}
	for _, p := range pages {
		batch.Queue(
			`INSERT INTO pdf_text_data (filename, page_number, text_content) VALUES ($1, $2, $3)`,
			p.FileName, p.PageNumber, p.Text,
		)
	}
	br := s.pool.SendBatch(ctx, batch)
	defer func() {
		if err := br.Close(); err != nil {
			s.logger.Warn("store.page_texts.batch_close_error", "error", err)
		}
	}()
	for range pages {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("%w: insert page text: %v", common.ErrPersistence, err)
		}
	}
	s.logger.Info("store.page_texts.ok", "rows", len(pages))
	return nil
}

func (s *PostgresStore) SaveFinding(ctx context.Context, f entity.Finding) error {
	r, err := flatten(f)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO image_analysis_results (
			id, filename, image_name, model_name, page_number,
			is_property_image,
			for_sale_sign, for_sale_sign_confidence,
			solar_panels, solar_panels_confidence,
			human_presence, human_presence_confidence,
			potential_damage, potential_damage_confidence,
			damage_description, full_analysis_text, metadata, analysis_timestamp
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,now())`,
		f.ID, f.FileName, f.UnitName, f.ModelName, f.PageNumber,
		r.property,
		r.canon.ForSaleSign.Detected, r.canon.ForSaleSign.Confidence,
		r.canon.SolarPanels.Detected, r.canon.SolarPanels.Confidence,
		r.canon.HumanPresence.Detected, r.canon.HumanPresence.Confidence,
		r.canon.PotentialDamage.Detected, r.canon.PotentialDamage.Confidence,
		r.canon.PotentialDamage.Description, r.raw, r.metadata,
	)
	if err != nil {
		return fmt.Errorf("%w: insert finding: %v", common.ErrPersistence, err)
	}
	return nil
}

func (s *PostgresStore) ListFindings(ctx context.Context, fileName string, limit int) ([]entity.Finding, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, filename, image_name, model_name, page_number, full_analysis_text, metadata, analysis_timestamp
		FROM image_analysis_results
		WHERE ($1 = '' OR filename = $1)
		ORDER BY analysis_timestamp DESC
		LIMIT $2`,
		fileName, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: query findings: %v", common.ErrPersistence, err)
	}
	defer rows.Close()

	var out []entity.Finding
	for rows.Next() {
		var (
			f    entity.Finding
			meta []byte
			ts   time.Time
		)
		if err := rows.Scan(&f.ID, &f.FileName, &f.UnitName, &f.ModelName, &f.PageNumber, &f.RawResponse, &meta, &ts); err != nil {
			return nil, fmt.Errorf("%w: scan finding: %v", common.ErrPersistence, err)
		}
		if err := json.Unmarshal(meta, &f.Categories); err != nil {
			s.logger.Warn("store.findings.metadata_decode_error", "id", f.ID, "error", err)
			f.Categories = map[string]entity.CategoryFinding{}
		}
		f.AnalyzedAt = ts
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate findings: %v", common.ErrPersistence, err)
	}
	return out, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}
