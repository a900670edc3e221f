package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"zigbee-zones/internal/models"
)

// ZoneEventsRepository 区域状态迁移历史仓库
//
// 表结构（zone_events）：
//
//	event_id        uuid PRIMARY KEY
//	zone_name       text NOT NULL
//	from_state      text NOT NULL
//	to_state        text NOT NULL
//	triggered_links jsonb
//	occurred_at     timestamptz NOT NULL
//	created_at      timestamptz NOT NULL DEFAULT now()
type ZoneEventsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewZoneEventsRepository 创建区域事件仓库
func NewZoneEventsRepository(db *sql.DB, logger *zap.Logger) *ZoneEventsRepository {
	return &ZoneEventsRepository{
		db:     db,
		logger: logger,
	}
}

// RecordTransition 写入一条状态迁移记录（实现 engine.TransitionRecorder）
func (r *ZoneEventsRepository) RecordTransition(ctx context.Context, event *models.ZoneEvent) error {
	if event.EventID == "" {
		return fmt.Errorf("event_id is required")
	}
	if event.ZoneName == "" {
		return fmt.Errorf("zone_name is required")
	}

	query := `
		INSERT INTO zone_events (
			event_id,
			zone_name,
			from_state,
			to_state,
			triggered_links,
			occurred_at
		) VALUES ($1, $2, $3, $4, $5, $6)
	`

	// triggered_links 为空时写入 NULL 而不是空串（JSONB 列）
	var triggeredLinks interface{}
	if len(event.TriggeredLinks) > 0 {
		triggeredLinks = []byte(event.TriggeredLinks)
	}

	_, err := r.db.ExecContext(ctx, query,
		event.EventID,
		event.ZoneName,
		string(event.FromState),
		string(event.ToState),
		triggeredLinks,
		event.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert zone event: %w", err)
	}

	return nil
}

// ZoneEventFilters 事件查询过滤条件
type ZoneEventFilters struct {
	StartTime *time.Time // occurred_at >= StartTime
	EndTime   *time.Time // occurred_at <= EndTime
	ToState   *string    // 只看进入某状态的迁移
	Limit     int        // 0 表示默认 100
}

// ListZoneEvents 查询某区域的迁移历史（按时间倒序）
func (r *ZoneEventsRepository) ListZoneEvents(ctx context.Context, zoneName string, filters ZoneEventFilters) ([]models.ZoneEvent, error) {
	if zoneName == "" {
		return nil, fmt.Errorf("zone_name is required")
	}

	query := `
		SELECT
			event_id,
			zone_name,
			from_state,
			to_state,
			triggered_links,
			occurred_at,
			created_at
		FROM zone_events
		WHERE zone_name = $1
	`
	args := []interface{}{zoneName}
	argIdx := 2

	if filters.StartTime != nil {
		query += fmt.Sprintf(" AND occurred_at >= $%d", argIdx)
		args = append(args, *filters.StartTime)
		argIdx++
	}
	if filters.EndTime != nil {
		query += fmt.Sprintf(" AND occurred_at <= $%d", argIdx)
		args = append(args, *filters.EndTime)
		argIdx++
	}
	if filters.ToState != nil {
		query += fmt.Sprintf(" AND to_state = $%d", argIdx)
		args = append(args, *filters.ToState)
		argIdx++
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(" ORDER BY occurred_at DESC LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query zone events: %w", err)
	}
	defer rows.Close()

	var events []models.ZoneEvent
	for rows.Next() {
		var event models.ZoneEvent
		var fromState, toState string
		var triggeredLinks []byte

		if err := rows.Scan(
			&event.EventID,
			&event.ZoneName,
			&fromState,
			&toState,
			&triggeredLinks,
			&event.OccurredAt,
			&event.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan zone event: %w", err)
		}

		event.FromState = models.ZoneState(fromState)
		event.ToState = models.ZoneState(toState)
		if len(triggeredLinks) > 0 {
			event.TriggeredLinks = triggeredLinks
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate zone events: %w", err)
	}

	return events, nil
}
