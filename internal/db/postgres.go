package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/XSAM/otelsql"
	_ "github.com/lib/pq"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/patrickwarner/adtarget/internal/models"
	"github.com/patrickwarner/adtarget/internal/targeting"
)

// Postgres wraps a postgres DB connection.
type Postgres struct {
	DB *sql.DB
}

// schemaSQL sets up the necessary tables if they don't exist.
const schemaSQL = `CREATE TABLE IF NOT EXISTS advertisement_content (
    id TEXT PRIMARY KEY,
    marketplace_id TEXT NOT NULL,
    renderable_content TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS targeting_groups (
    id TEXT PRIMARY KEY,
    content_id TEXT NOT NULL REFERENCES advertisement_content(id),
    click_through_rate DOUBLE PRECISION NOT NULL,
    predicates JSONB NOT NULL DEFAULT '[]'
);

CREATE INDEX IF NOT EXISTS idx_content_marketplace_id ON advertisement_content (marketplace_id);
CREATE INDEX IF NOT EXISTS idx_groups_content_id ON targeting_groups (content_id);
`

// InitPostgres connects to Postgres with connection pooling configuration.
func InitPostgres(dsn string, maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) (*Postgres, error) {
	driverName, err := otelsql.Register("postgres",
		otelsql.WithAttributes(
			attribute.String("db.system", "postgresql"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("register otelsql: %w", err)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres open: %w", err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)
	db.SetConnMaxIdleTime(connMaxIdleTime)

	if err := db.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	p := &Postgres{DB: db}
	if err := p.ensureSchema(); err != nil {
		return nil, err
	}
	zap.L().Info("Connected to Postgres with connection pooling",
		zap.Int("max_open_conns", maxOpenConns),
		zap.Int("max_idle_conns", maxIdleConns),
		zap.Duration("conn_max_lifetime", connMaxLifetime))
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

// ensureSchema creates the required tables if they do not exist.
func (p *Postgres) ensureSchema() error {
	ctx := context.Background()
	if _, err := p.DB.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// LoadContent retrieves all advertisement content.
func (p *Postgres) LoadContent() ([]models.AdvertisementContent, error) {
	rows, err := p.DB.QueryContext(context.Background(), `SELECT id, marketplace_id, renderable_content FROM advertisement_content`)
	if err != nil {
		return nil, fmt.Errorf("query content: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var contents []models.AdvertisementContent
	for rows.Next() {
		var c models.AdvertisementContent
		if err := rows.Scan(&c.ID, &c.MarketplaceID, &c.RenderableContent); err != nil {
			return nil, fmt.Errorf("scan content: %w", err)
		}
		contents = append(contents, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return contents, nil
}

// LoadTargetingGroups retrieves all targeting groups with their serialized
// predicate specs. Predicates are not materialized here; the caller runs the
// specs through the predicate factory.
func (p *Postgres) LoadTargetingGroups() ([]models.TargetingGroup, error) {
	rows, err := p.DB.QueryContext(context.Background(), `SELECT id, content_id, click_through_rate, predicates FROM targeting_groups`)
	if err != nil {
		return nil, fmt.Errorf("query targeting groups: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var groups []models.TargetingGroup
	for rows.Next() {
		var g models.TargetingGroup
		var specs []byte
		if err := rows.Scan(&g.ID, &g.ContentID, &g.ClickThroughRate, &specs); err != nil {
			return nil, fmt.Errorf("scan targeting group: %w", err)
		}
		if len(specs) > 0 {
			if err := json.Unmarshal(specs, &g.PredicateSpecs); err != nil {
				return nil, fmt.Errorf("parse predicates for group %s: %w", g.ID, err)
			}
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return groups, nil
}

// InsertContent inserts a new advertisement content record.
func (p *Postgres) InsertContent(c models.AdvertisementContent) error {
	_, err := p.DB.ExecContext(context.Background(),
		`INSERT INTO advertisement_content (id, marketplace_id, renderable_content) VALUES ($1,$2,$3)`,
		c.ID, c.MarketplaceID, c.RenderableContent)
	if err != nil {
		return fmt.Errorf("insert content: %w", err)
	}
	return nil
}

// UpdateContent overwrites the marketplace and renderable payload of an
// existing content record.
func (p *Postgres) UpdateContent(c models.AdvertisementContent) error {
	_, err := p.DB.ExecContext(context.Background(),
		`UPDATE advertisement_content SET marketplace_id=$1, renderable_content=$2 WHERE id=$3`,
		c.MarketplaceID, c.RenderableContent, c.ID)
	if err != nil {
		return fmt.Errorf("update content: %w", err)
	}
	return nil
}

// DeleteContent removes a content record along with its targeting groups.
func (p *Postgres) DeleteContent(id string) error {
	_, err := p.DB.ExecContext(context.Background(), `DELETE FROM targeting_groups WHERE content_id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete targeting groups for content: %w", err)
	}

	_, err = p.DB.ExecContext(context.Background(), `DELETE FROM advertisement_content WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete content: %w", err)
	}
	return nil
}

// InsertTargetingGroup inserts a new targeting group with its predicate specs
// serialized as JSONB.
func (p *Postgres) InsertTargetingGroup(g models.TargetingGroup) error {
	specs, err := json.Marshal(specsOrEmpty(g.PredicateSpecs))
	if err != nil {
		return fmt.Errorf("marshal predicates: %w", err)
	}
	_, err = p.DB.ExecContext(context.Background(),
		`INSERT INTO targeting_groups (id, content_id, click_through_rate, predicates) VALUES ($1,$2,$3,$4)`,
		g.ID, g.ContentID, g.ClickThroughRate, specs)
	if err != nil {
		return fmt.Errorf("insert targeting group: %w", err)
	}
	return nil
}

// DeleteTargetingGroup removes a targeting group by ID.
func (p *Postgres) DeleteTargetingGroup(id string) error {
	_, err := p.DB.ExecContext(context.Background(), `DELETE FROM targeting_groups WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete targeting group: %w", err)
	}
	return nil
}

// DeleteTargetingGroupsByContent removes every targeting group attached to a
// content item.
func (p *Postgres) DeleteTargetingGroupsByContent(contentID string) error {
	_, err := p.DB.ExecContext(context.Background(), `DELETE FROM targeting_groups WHERE content_id=$1`, contentID)
	if err != nil {
		return fmt.Errorf("delete targeting groups for content: %w", err)
	}
	return nil
}

// UpdateClickThroughRate persists a new CTR for one targeting group.
func (p *Postgres) UpdateClickThroughRate(id string, ctr float64) error {
	_, err := p.DB.ExecContext(context.Background(), `UPDATE targeting_groups SET click_through_rate=$1 WHERE id=$2`, ctr, id)
	if err != nil {
		return fmt.Errorf("update click through rate: %w", err)
	}
	return nil
}

// UpdateClickThroughRates persists a batch of CTR updates in one transaction.
func (p *Postgres) UpdateClickThroughRates(rates map[string]float64) error {
	tx, err := p.DB.BeginTx(context.Background(), nil)
	if err != nil {
		return fmt.Errorf("begin ctr update: %w", err)
	}
	for id, ctr := range rates {
		if _, err := tx.ExecContext(context.Background(), `UPDATE targeting_groups SET click_through_rate=$1 WHERE id=$2`, ctr, id); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("update ctr for group %s: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit ctr update: %w", err)
	}
	return nil
}

func specsOrEmpty(specs []targeting.PredicateSpec) []targeting.PredicateSpec {
	if specs == nil {
		return []targeting.PredicateSpec{}
	}
	return specs
}
