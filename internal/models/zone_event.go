package models

import (
	"encoding/json"
	"time"
)

// ZoneEvent 区域状态迁移的历史记录（写入 PostgreSQL zone_events 表）
type ZoneEvent struct {
	EventID        string          `json:"event_id"`
	ZoneName       string          `json:"zone_name"`
	FromState      ZoneState       `json:"from_state"`
	ToState        ZoneState       `json:"to_state"`
	TriggeredLinks json.RawMessage `json:"triggered_links,omitempty"` // JSONB：触发投票的链路键列表
	OccurredAt     time.Time       `json:"occurred_at"`
	CreatedAt      time.Time       `json:"created_at,omitempty"`
}
