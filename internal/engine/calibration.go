package engine

import (
	"time"

	"zigbee-zones/internal/models"
)

// MinCalibrationSamples 链路校准的最小可用样本数
//
// 校准窗口结束时样本数不足的链路继续等待，直到采满为止
const MinCalibrationSamples = 5

// CalibrationController 单个区域的校准控制器
//
// 负责基线采集阶段：从 Restart 起计时 calibration_time，
// 窗口结束后把样本数达标的链路逐条冻结；所有链路冻结完毕即校准完成。
// 多个区域的控制器完全独立，互不影响。
type CalibrationController struct {
	startedAt time.Time
	duration  time.Duration
}

// NewCalibrationController 创建校准控制器并立即开始计时
func NewCalibrationController(now time.Time, cfg models.ZoneConfig) *CalibrationController {
	c := &CalibrationController{}
	c.Restart(now, cfg)
	return c
}

// Restart 重新开始校准计时（区域创建、重新校准、成员变更时调用）
func (c *CalibrationController) Restart(now time.Time, cfg models.ZoneConfig) {
	c.startedAt = now
	c.duration = time.Duration(cfg.CalibrationTime) * time.Second
}

// Elapsed 校准窗口是否已结束
func (c *CalibrationController) Elapsed(now time.Time) bool {
	return !now.Before(c.startedAt.Add(c.duration))
}

// Remaining 距离校准窗口结束还有多久（已结束时返回 0）
func (c *CalibrationController) Remaining(now time.Time) time.Duration {
	r := c.startedAt.Add(c.duration).Sub(now)
	if r < 0 {
		return 0
	}
	return r
}

// Advance 推进校准：冻结达标链路，返回是否全部链路都已校准
//
// 链路冻结需要同时满足：
// (a) 校准窗口已结束
// (b) 该链路样本数 ≥ MinCalibrationSamples
//
// 区域从 CALIBRATING 转入 VACANT 要求**所有**成员对链路都已校准；
// 不允许部分链路先行监测（见 DESIGN.md 的策略决定）。
func (c *CalibrationController) Advance(now time.Time, links map[models.LinkKey]*LinkStats) bool {
	if !c.Elapsed(now) {
		return false
	}

	allCalibrated := len(links) > 0
	for _, link := range links {
		if link.Calibrated() {
			continue
		}
		if link.SampleCount() >= MinCalibrationSamples {
			link.Freeze()
		} else {
			allCalibrated = false
		}
	}
	return allCalibrated
}
