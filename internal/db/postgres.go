package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/XSAM/otelsql"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/patrickwarner/openbidder/internal/models"
)

// Postgres wraps a postgres DB connection holding the bidder's catalogue.
type Postgres struct {
	DB *sql.DB
}

// schemaSQL sets up the necessary tables if they don't exist.
const schemaSQL = `CREATE TABLE IF NOT EXISTS line_items (
    id SERIAL PRIMARY KEY,
    campaign_id INT NOT NULL,
    name TEXT NOT NULL,
    seat TEXT NOT NULL DEFAULT '',
    cpm DOUBLE PRECISION NOT NULL,
    active BOOLEAN NOT NULL DEFAULT TRUE,
    device_type TEXT,
    country TEXT,
    key_values JSONB,
    frequency_cap INT,
    frequency_window INT,
    adomain TEXT[],
    deal_id TEXT
);

CREATE TABLE IF NOT EXISTS creatives (
    id SERIAL PRIMARY KEY,
    line_item_id INT REFERENCES line_items(id),
    width INT NOT NULL,
    height INT NOT NULL,
    format TEXT NOT NULL DEFAULT 'html',
    html TEXT,
    banner JSONB,
    click_url TEXT
);

CREATE INDEX IF NOT EXISTS idx_creatives_line_item_id ON creatives (line_item_id);
CREATE INDEX IF NOT EXISTS idx_creatives_size ON creatives (width, height);
`

// PoolConfig sizes the connection pool.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// InitPostgres connects to Postgres and ensures the catalogue schema exists.
func InitPostgres(ctx context.Context, dsn string, pool PoolConfig) (*Postgres, error) {
	driverName, err := otelsql.Register("postgres",
		otelsql.WithAttributes(attribute.String("db.system", "postgresql")),
	)
	if err != nil {
		return nil, fmt.Errorf("register otelsql: %w", err)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres open: %w", err)
	}

	db.SetMaxOpenConns(pool.MaxOpenConns)
	db.SetMaxIdleConns(pool.MaxIdleConns)
	db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	db.SetConnMaxIdleTime(pool.ConnMaxIdleTime)

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	p := &Postgres{DB: db}
	if _, err := p.DB.ExecContext(ctx, schemaSQL); err != nil {
		return nil, fmt.Errorf("create schema: %w", err)
	}
	zap.L().Info("Connected to Postgres",
		zap.Int("max_open_conns", pool.MaxOpenConns),
		zap.Int("max_idle_conns", pool.MaxIdleConns),
		zap.Duration("conn_max_lifetime", pool.ConnMaxLifetime))
	return p, nil
}

// Close terminates the Postgres connection.
func (p *Postgres) Close() {
	if p != nil && p.DB != nil {
		if err := p.DB.Close(); err != nil {
			zap.L().Error("postgres close", zap.Error(err))
		}
	}
}

// LoadLineItems retrieves all line items, active or not.
func (p *Postgres) LoadLineItems(ctx context.Context) ([]models.LineItem, error) {
	rows, err := p.DB.QueryContext(ctx, `SELECT id, campaign_id, name, seat, cpm, active, device_type, country, key_values, frequency_cap, frequency_window, adomain, deal_id FROM line_items ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query line items: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var items []models.LineItem
	for rows.Next() {
		var li models.LineItem
		var deviceType, country, kv, dealID sql.NullString
		var freqCap, freqWindow sql.NullInt64
		var adomain []string
		if err := rows.Scan(&li.ID, &li.CampaignID, &li.Name, &li.Seat, &li.CPM, &li.Active,
			&deviceType, &country, &kv, &freqCap, &freqWindow, pq.Array(&adomain), &dealID); err != nil {
			return nil, fmt.Errorf("scan line item: %w", err)
		}
		li.DeviceType = deviceType.String
		li.Country = country.String
		li.DealID = dealID.String
		li.ADomain = adomain
		li.FrequencyCap = int(freqCap.Int64)
		if freqWindow.Valid {
			li.FrequencyWindow = time.Duration(freqWindow.Int64) * time.Second
		}
		if kv.Valid {
			if err := json.Unmarshal([]byte(kv.String), &li.KeyValues); err != nil {
				return nil, fmt.Errorf("parse key_values of line item %d: %w", li.ID, err)
			}
		}
		items = append(items, li)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return items, nil
}

// LoadCreatives retrieves all creatives.
func (p *Postgres) LoadCreatives(ctx context.Context) ([]models.Creative, error) {
	rows, err := p.DB.QueryContext(ctx, `SELECT id, line_item_id, width, height, format, html, banner, click_url FROM creatives ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query creatives: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var cs []models.Creative
	for rows.Next() {
		var c models.Creative
		var html, banner, clickURL sql.NullString
		if err := rows.Scan(&c.ID, &c.LineItemID, &c.Width, &c.Height, &c.Format, &html, &banner, &clickURL); err != nil {
			return nil, fmt.Errorf("scan creative: %w", err)
		}
		c.HTML = html.String
		c.ClickURL = clickURL.String
		if banner.Valid {
			c.Banner = json.RawMessage(banner.String)
		}
		cs = append(cs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return cs, nil
}

// InsertLineItem inserts a new line item and sets its generated ID.
func (p *Postgres) InsertLineItem(ctx context.Context, li *models.LineItem) error {
	kv, err := json.Marshal(li.KeyValues)
	if err != nil {
		return fmt.Errorf("marshal key_values: %w", err)
	}
	err = p.DB.QueryRowContext(ctx, `INSERT INTO line_items (
        campaign_id, name, seat, cpm, active, device_type, country, key_values,
        frequency_cap, frequency_window, adomain, deal_id) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
    ) RETURNING id`,
		li.CampaignID, li.Name, li.Seat, li.CPM, li.Active, li.DeviceType, li.Country, kv,
		li.FrequencyCap, int(li.FrequencyWindow.Seconds()), pq.Array(li.ADomain), li.DealID).Scan(&li.ID)
	if err != nil {
		return fmt.Errorf("insert line item: %w", err)
	}
	return nil
}

// InsertCreative inserts a new creative and sets its generated ID.
func (p *Postgres) InsertCreative(ctx context.Context, c *models.Creative) error {
	var banner any
	if len(c.Banner) > 0 {
		banner = []byte(c.Banner)
	}
	err := p.DB.QueryRowContext(ctx, `INSERT INTO creatives (line_item_id, width, height, format, html, banner, click_url)
        VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`,
		c.LineItemID, c.Width, c.Height, c.Format, c.HTML, banner, c.ClickURL).Scan(&c.ID)
	if err != nil {
		return fmt.Errorf("insert creative: %w", err)
	}
	return nil
}
