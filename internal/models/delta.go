package models

import (
	"time"
)

// ZoneDelta 区域变更事件（增量文档）
//
// 只携带发生变化的字段：消费方按 merge-on-present 规则把存在的字段
// 合并进本地缓存，缺失字段保持原值。ZoneName 和 Seq 总是存在。
//
// 同一区域的事件按 Seq 严格递增（单写者保证顺序）；跨区域不保证顺序。
type ZoneDelta struct {
	ZoneName string `json:"zone_name"`
	EventID  string `json:"event_id"`
	Seq      uint64 `json:"seq"`

	// 以下字段仅在变化时出现
	State         *ZoneState              `json:"state,omitempty"`
	Occupied      *bool                   `json:"occupied,omitempty"`
	OccupiedSince *time.Time              `json:"occupied_since,omitempty"`
	Links         map[string]LinkSnapshot `json:"links,omitempty"`

	Timestamp int64 `json:"timestamp"`

	// Topic 发布路由提示（区域的 mqtt_topic_override，为空用默认主题）。
	// 只用于 sink 路由，不进入事件载荷。
	Topic string `json:"-"`
}

// HasStateChange 判断该事件是否包含状态变更
func (d *ZoneDelta) HasStateChange() bool {
	return d.State != nil
}
