package models

import (
	"time"
)

// ZoneState 区域状态
//
// 状态机：CALIBRATING → VACANT ⇄ OCCUPIED
// 任何状态都可以通过重新校准回到 CALIBRATING
type ZoneState string

const (
	// ZoneStateCalibrating 校准中：正在采集链路基线，不产生占用判断
	ZoneStateCalibrating ZoneState = "CALIBRATING"
	// ZoneStateVacant 无人：所有链路信号接近基线
	ZoneStateVacant ZoneState = "VACANT"
	// ZoneStateOccupied 有人：足够多的链路信号偏离基线
	ZoneStateOccupied ZoneState = "OCCUPIED"
)

// ZoneConfig 区域检测配置
//
// 阈值语义：
// - DeviationThreshold: 链路偏离基线多少个标准差算"触发"（z-score）
// - VarianceThreshold: 近期样本方差超过该值时按"波动"触发（次级投票）
// - MinLinksTriggered: 至少多少条链路同时触发才判定有人
// - CalibrationTime: 基线采集时长（秒）
// - ClearDelay: 连续无触发多少秒后才从 OCCUPIED 回到 VACANT（消抖）
type ZoneConfig struct {
	DeviationThreshold float64 `json:"deviation_threshold"`
	VarianceThreshold  float64 `json:"variance_threshold"`
	MinLinksTriggered  int     `json:"min_links_triggered"`
	CalibrationTime    int     `json:"calibration_time"`
	ClearDelay         int     `json:"clear_delay"`

	// FullRecalibrationOnChange 成员变更时的重置策略：
	// false = 只重置受影响的链路（保留其余链路的基线）
	// true  = 整个区域回到 CALIBRATING，清空全部基线
	FullRecalibrationOnChange bool `json:"full_recalibration_on_change"`

	// MQTTTopicOverride 自定义状态发布主题（为空时使用 zones/{name}/state）
	MQTTTopicOverride string `json:"mqtt_topic_override,omitempty"`
}

// DefaultZoneConfig 默认区域配置
func DefaultZoneConfig() ZoneConfig {
	return ZoneConfig{
		DeviationThreshold: 2.5,
		VarianceThreshold:  4.0,
		MinLinksTriggered:  2,
		CalibrationTime:    120,
		ClearDelay:         30,
	}
}

// ZoneConfigPatch 区域配置的部分更新（nil 字段表示不修改）
type ZoneConfigPatch struct {
	DeviationThreshold        *float64 `json:"deviation_threshold,omitempty"`
	VarianceThreshold         *float64 `json:"variance_threshold,omitempty"`
	MinLinksTriggered         *int     `json:"min_links_triggered,omitempty"`
	ClearDelay                *int     `json:"clear_delay,omitempty"`
	FullRecalibrationOnChange *bool    `json:"full_recalibration_on_change,omitempty"`
	MQTTTopicOverride         *string  `json:"mqtt_topic_override,omitempty"`
}

// LinkSnapshot 链路统计快照（只读副本）
type LinkSnapshot struct {
	SampleCount  int64   `json:"sample_count"`
	LastRSSI     int     `json:"last_rssi"`
	MinRSSI      int     `json:"min_rssi"`
	MaxRSSI      int     `json:"max_rssi"`
	BaselineMean float64 `json:"baseline_mean"`
	BaselineStd  float64 `json:"baseline_std"`
	Deviation    float64 `json:"deviation"`
	Calibrated   bool    `json:"calibrated"`
}

// ZoneSnapshot 区域完整快照（getZone 返回）
//
// 快照是深拷贝：调用方持有快照期间区域可以继续被写入
type ZoneSnapshot struct {
	Name          string                  `json:"name"`
	Devices       []string                `json:"devices"`
	State         ZoneState               `json:"state"`
	OccupiedSince *time.Time              `json:"occupied_since,omitempty"`
	Degraded      bool                    `json:"degraded,omitempty"`
	Config        ZoneConfig              `json:"config"`
	Links         map[string]LinkSnapshot `json:"links"`
}

// ZoneSummary 区域摘要（listZones 返回）
type ZoneSummary struct {
	Name          string     `json:"name"`
	State         ZoneState  `json:"state"`
	DeviceCount   int        `json:"device_count"`
	LinkCount     int        `json:"link_count"`
	OccupiedSince *time.Time `json:"occupied_since,omitempty"`
}
