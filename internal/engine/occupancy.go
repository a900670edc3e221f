package engine

import (
	"time"

	"zigbee-zones/internal/models"
)

// Transition 一次状态迁移
type Transition struct {
	From models.ZoneState
	To   models.ZoneState
	// TriggeredLinks 本次评估中投票的链路（进入 OCCUPIED 时非空）
	TriggeredLinks []models.LinkKey
}

// OccupancyStateMachine 区域占用状态机
//
// 状态：CALIBRATING / VACANT / OCCUPIED，初始 CALIBRATING，无终止状态。
// 进入 OCCUPIED 立即生效；退出 OCCUPIED 需要连续 clear_delay 秒无触发
// （消抖窗口），防止瞬时噪声造成状态抖动。
type OccupancyStateMachine struct {
	state           models.ZoneState
	occupiedSince   *time.Time
	lastTriggeredAt time.Time
}

// NewOccupancyStateMachine 创建状态机（初始 CALIBRATING）
func NewOccupancyStateMachine() *OccupancyStateMachine {
	return &OccupancyStateMachine{state: models.ZoneStateCalibrating}
}

// State 当前状态
func (m *OccupancyStateMachine) State() models.ZoneState {
	return m.state
}

// OccupiedSince 进入 OCCUPIED 的时间（非 OCCUPIED 时为 nil）
func (m *OccupancyStateMachine) OccupiedSince() *time.Time {
	return m.occupiedSince
}

// SetCalibrating 回到校准状态（显式重校准或成员变更）
//
// 不变式：occupied_since 只在 OCCUPIED 状态下非空
func (m *OccupancyStateMachine) SetCalibrating() *Transition {
	if m.state == models.ZoneStateCalibrating {
		return nil
	}
	t := &Transition{From: m.state, To: models.ZoneStateCalibrating}
	m.state = models.ZoneStateCalibrating
	m.occupiedSince = nil
	return t
}

// SetVacant 校准完成，进入 VACANT
func (m *OccupancyStateMachine) SetVacant() *Transition {
	if m.state == models.ZoneStateVacant {
		return nil
	}
	t := &Transition{From: m.state, To: models.ZoneStateVacant}
	m.state = models.ZoneStateVacant
	m.occupiedSince = nil
	return t
}

// Tick 执行一次占用评估
//
// triggeredLinks 为本次评估投票的链路集合。
// 返回值：
//   - transition: 发生的状态迁移（无迁移时为 nil）
//   - recheckIn:  >0 时表示需要在该时长后做一次定时复评
//     （OCCUPIED 且当前无触发时，消抖窗口到期必须在没有新采样的
//     情况下也能翻转到 VACANT）
func (m *OccupancyStateMachine) Tick(now time.Time, triggeredLinks []models.LinkKey, cfg models.ZoneConfig) (*Transition, time.Duration) {
	if m.state == models.ZoneStateCalibrating {
		return nil, 0
	}

	triggered := len(triggeredLinks) >= cfg.MinLinksTriggered
	clearDelay := time.Duration(cfg.ClearDelay) * time.Second

	switch m.state {
	case models.ZoneStateVacant:
		if triggered {
			// 立即进入 OCCUPIED
			t := &Transition{
				From:           models.ZoneStateVacant,
				To:             models.ZoneStateOccupied,
				TriggeredLinks: triggeredLinks,
			}
			m.state = models.ZoneStateOccupied
			ts := now
			m.occupiedSince = &ts
			m.lastTriggeredAt = now
			return t, 0
		}
		return nil, 0

	case models.ZoneStateOccupied:
		if triggered {
			// 触发条件持续：刷新水位线，状态和 occupied_since 不变
			m.lastTriggeredAt = now
			return nil, clearDelay
		}

		// 无触发：连续静默满 clear_delay 才回到 VACANT
		quiet := now.Sub(m.lastTriggeredAt)
		if quiet >= clearDelay {
			t := &Transition{From: models.ZoneStateOccupied, To: models.ZoneStateVacant}
			m.state = models.ZoneStateVacant
			m.occupiedSince = nil
			return t, 0
		}
		return nil, clearDelay - quiet
	}

	return nil, 0
}
