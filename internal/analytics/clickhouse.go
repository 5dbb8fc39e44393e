package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	_ "github.com/ClickHouse/clickhouse-go/v2"
)

// ErrUnavailable is returned when the analytics DB is not configured.
var ErrUnavailable = fmt.Errorf("analytics unavailable")

// AnalyticsService records selection decisions and feedback events.
// Implementations should return ErrUnavailable when the underlying storage
// is not configured.
type AnalyticsService interface {
	RecordDecision(ctx context.Context, d DecisionEvent) error
	RecordFeedback(ctx context.Context, eventType, groupID string) error
}

// DecisionEvent captures one selection call for offline analysis.
type DecisionEvent struct {
	Timestamp        time.Time `json:"timestamp"`
	AdvertisementID  string    `json:"advertisement_id"`
	ContentID        string    `json:"content_id"`
	MarketplaceID    string    `json:"marketplace_id"`
	CustomerID       string    `json:"customer_id"`
	TargetingGroupID string    `json:"targeting_group_id"`
	Recognized       bool      `json:"recognized"`
	Filled           bool      `json:"filled"`
	ClickThroughRate float64   `json:"click_through_rate"`
	DeviceType       string    `json:"device_type"`
	Country          string    `json:"country"`
	DurationMs       float64   `json:"duration_ms"`
}

// Analytics wraps a ClickHouse DB connection.
type Analytics struct {
	DB *sql.DB
}

// InitClickHouse connects to ClickHouse and ensures the decision tables exist.
func InitClickHouse(dsn string) (*Analytics, error) {
	db, err := sql.Open("clickhouse", dsn)
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}
	db.SetMaxOpenConns(25)
	if err := db.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}
	create := `CREATE TABLE IF NOT EXISTS decisions (
       timestamp          DateTime,
       advertisement_id   String,
       content_id         String,
       marketplace_id     String,
       customer_id        String,
       targeting_group_id String,
       recognized         UInt8,
       filled             UInt8,
       click_through_rate Float64,
       device_type        Nullable(String),
       country            Nullable(String),
       duration_ms        Float64
   ) ENGINE=MergeTree() ORDER BY (marketplace_id, timestamp)`
	if _, err := db.ExecContext(context.Background(), create); err != nil {
		return nil, fmt.Errorf("clickhouse create decisions table: %w", err)
	}
	createFeedback := `CREATE TABLE IF NOT EXISTS feedback (
       timestamp  DateTime,
       event_type String,
       group_id   String
   ) ENGINE=MergeTree() ORDER BY (event_type, timestamp)`
	if _, err := db.ExecContext(context.Background(), createFeedback); err != nil {
		return nil, fmt.Errorf("clickhouse create feedback table: %w", err)
	}

	zap.L().Info("Connected to ClickHouse")
	return &Analytics{DB: db}, nil
}

// RecordDecision inserts one selection decision row.
func (a *Analytics) RecordDecision(ctx context.Context, d DecisionEvent) error {
	if a == nil || a.DB == nil {
		return ErrUnavailable
	}
	if d.Timestamp.IsZero() {
		d.Timestamp = time.Now()
	}

	var dt, co sql.NullString
	if d.DeviceType != "" {
		dt.String = d.DeviceType
		dt.Valid = true
	}
	if d.Country != "" {
		co.String = d.Country
		co.Valid = true
	}

	stmt := `INSERT INTO decisions (timestamp, advertisement_id, content_id, marketplace_id, customer_id, targeting_group_id, recognized, filled, click_through_rate, device_type, country, duration_ms) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := a.DB.ExecContext(ctx, stmt, d.Timestamp, d.AdvertisementID, d.ContentID, d.MarketplaceID, d.CustomerID, d.TargetingGroupID, boolToUInt8(d.Recognized), boolToUInt8(d.Filled), d.ClickThroughRate, dt, co, d.DurationMs); err != nil {
		zap.L().Error("clickhouse insert failed", zap.Error(err), zap.String("marketplace_id", d.MarketplaceID))
		return fmt.Errorf("insert decision event: %w", err)
	}
	return nil
}

// RecordFeedback inserts one impression or click feedback row.
func (a *Analytics) RecordFeedback(ctx context.Context, eventType, groupID string) error {
	if a == nil || a.DB == nil {
		return ErrUnavailable
	}
	stmt := `INSERT INTO feedback (timestamp, event_type, group_id) VALUES (?, ?, ?)`
	if _, err := a.DB.ExecContext(ctx, stmt, time.Now(), eventType, groupID); err != nil {
		zap.L().Error("clickhouse insert failed", zap.Error(err), zap.String("event_type", eventType))
		return fmt.Errorf("insert %s event: %w", eventType, err)
	}
	return nil
}

// Close terminates the ClickHouse connection.
func (a *Analytics) Close() {
	if a != nil && a.DB != nil {
		if err := a.DB.Close(); err != nil {
			zap.L().Error("clickhouse close", zap.Error(err))
		}
	}
}

// GetDecisionsByMarketplace returns recent decisions for a marketplace
// ordered by timestamp.
func (a *Analytics) GetDecisionsByMarketplace(marketplaceID string, limit int) ([]DecisionEvent, error) {
	if a == nil || a.DB == nil {
		return nil, ErrUnavailable
	}
	query := `SELECT timestamp, advertisement_id, content_id, marketplace_id, customer_id, targeting_group_id, recognized, filled, click_through_rate, device_type, country, duration_ms FROM decisions WHERE marketplace_id=? ORDER BY timestamp DESC LIMIT ?`
	rows, err := a.DB.QueryContext(context.Background(), query, marketplaceID, limit)
	if err != nil {
		return nil, fmt.Errorf("query decisions: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			zap.L().Warn("rows close", zap.Error(err))
		}
	}()

	var decisions []DecisionEvent
	for rows.Next() {
		var d DecisionEvent
		var recognized, filled uint8
		var dt, co sql.NullString
		if err := rows.Scan(&d.Timestamp, &d.AdvertisementID, &d.ContentID, &d.MarketplaceID, &d.CustomerID, &d.TargetingGroupID, &recognized, &filled, &d.ClickThroughRate, &dt, &co, &d.DurationMs); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		d.Recognized = recognized != 0
		d.Filled = filled != 0
		if dt.Valid {
			d.DeviceType = dt.String
		}
		if co.Valid {
			d.Country = co.String
		}
		decisions = append(decisions, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return decisions, nil
}

func boolToUInt8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
