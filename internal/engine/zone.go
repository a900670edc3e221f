package engine

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"zigbee-zones/internal/models"
)

// DeltaPublisher 变更事件发布接口（由 notifier 实现）
type DeltaPublisher interface {
	PublishDelta(ctx context.Context, delta *models.ZoneDelta) error
}

// TransitionRecorder 状态迁移历史记录接口（由 repository 实现，可选）
type TransitionRecorder interface {
	RecordTransition(ctx context.Context, event *models.ZoneEvent) error
}

// zone 单个区域的运行时
//
// 并发约束（单写者纪律）：采样、成员变更、状态评估、事件发布
// 全部在 mu 保护下串行执行；跨区域互不共享可变状态。
// 定时器回调通过 generation 校验丢弃过期触发，删除/重校准后
// 不会有旧定时器复活已重置的状态。
type zone struct {
	mu sync.Mutex

	name    string
	devices map[string]struct{}
	config  models.ZoneConfig
	links   map[models.LinkKey]*LinkStats

	calib *CalibrationController
	sm    *OccupancyStateMachine

	degraded   bool
	generation uint64
	timer      *time.Timer
	seq        uint64

	publisher DeltaPublisher
	recorder  TransitionRecorder
	logger    *zap.Logger
	now       func() time.Time
}

func newZone(
	name string,
	deviceIDs []string,
	cfg models.ZoneConfig,
	publisher DeltaPublisher,
	recorder TransitionRecorder,
	logger *zap.Logger,
	now func() time.Time,
) *zone {
	z := &zone{
		name:      name,
		devices:   make(map[string]struct{}),
		config:    cfg,
		links:     make(map[models.LinkKey]*LinkStats),
		sm:        NewOccupancyStateMachine(),
		publisher: publisher,
		recorder:  recorder,
		logger:    logger,
		now:       now,
	}
	for _, id := range deviceIDs {
		z.devices[id] = struct{}{}
	}
	z.rebuildLinks()
	z.calib = NewCalibrationController(now(), cfg)
	// 校准窗口到期时做一次复评（此时 zone 尚未发布，无需加锁）
	z.scheduleEvaluation(z.calib.Remaining(now()))
	return z
}

// rebuildLinks 按当前成员补齐缺失的链路条目（已有条目保留）
func (z *zone) rebuildLinks() {
	ids := z.deviceList()
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			key := models.NewLinkKey(ids[i], ids[j])
			if _, ok := z.links[key]; !ok {
				z.links[key] = NewLinkStats(key)
			}
		}
	}
}

func (z *zone) deviceList() []string {
	ids := make([]string, 0, len(z.devices))
	for id := range z.devices {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// linkPairCount 成员数 n 可导出的链路对数 C(n,2)
func linkPairCount(n int) int {
	return n * (n - 1) / 2
}

// ============================================
// 采样与评估
// ============================================

// ingest 处理一条路由到本区域的采样
func (z *zone) ingest(sample models.LinkSample) {
	z.mu.Lock()
	defer z.mu.Unlock()

	key := models.NewLinkKey(sample.DeviceA, sample.DeviceB)
	link, ok := z.links[key]
	if !ok {
		// 设备对不属于本区域：正常情况，静默忽略
		return
	}

	link.Observe(sample.RSSI)

	// 以采样时间作为本次评估的逻辑时刻（到达顺序 = 观察顺序）
	transition := z.evaluate(sample.Timestamp)

	// 每条采样都发布一次链路统计增量；状态迁移搭同一条事件
	delta := &models.ZoneDelta{
		Links: map[string]models.LinkSnapshot{
			string(key): link.Snapshot(),
		},
	}
	z.attachTransition(delta, transition)
	z.publishDelta(delta, sample.Timestamp)

	if transition != nil {
		z.recordTransition(transition, sample.Timestamp)
	}
}

// evaluate 执行一次评估（调用方必须持有 z.mu）
//
// CALIBRATING：尝试推进校准，全部链路冻结后进入 VACANT。
// VACANT/OCCUPIED：统计投票链路并驱动状态机；需要消抖复评时挂定时器。
func (z *zone) evaluate(now time.Time) *Transition {
	if z.sm.State() == models.ZoneStateCalibrating {
		if z.calib.Advance(now, z.links) {
			return z.sm.SetVacant()
		}
		// 校准窗口未结束时挂一个窗口到期的复评定时器
		if remaining := z.calib.Remaining(now); remaining > 0 {
			z.scheduleEvaluation(remaining)
		}
		return nil
	}

	triggered := z.triggeredLinks()
	transition, recheckIn := z.sm.Tick(now, triggered, z.config)
	if recheckIn > 0 {
		z.scheduleEvaluation(recheckIn)
	}
	return transition
}

// triggeredLinks 收集本轮投票的链路（仅已校准链路参与）
func (z *zone) triggeredLinks() []models.LinkKey {
	// 波动触发只参与进入 OCCUPIED 的投票（见 LinkStats.Votes）
	includeFluctuation := z.sm.State() != models.ZoneStateOccupied
	var voted []models.LinkKey
	for key, link := range z.links {
		if link.Votes(z.config, includeFluctuation) {
			voted = append(voted, key)
		}
	}
	sort.Slice(voted, func(i, j int) bool { return voted[i] < voted[j] })
	return voted
}

// scheduleEvaluation 挂一个一次性复评定时器（调用方必须持有 z.mu）
//
// 同一时刻只保留一个定时器；generation 保证删除/重置后旧回调失效
func (z *zone) scheduleEvaluation(d time.Duration) {
	if z.timer != nil {
		z.timer.Stop()
	}
	gen := z.generation
	z.timer = time.AfterFunc(d, func() {
		z.onTimer(gen)
	})
}

// onTimer 定时复评回调
//
// 回调里的 panic 被捕获：记录日志并把区域标记为 degraded
// （保持最后已知状态），由外部监督者通过 recalibrate 恢复
func (z *zone) onTimer(gen uint64) {
	z.mu.Lock()
	defer z.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			z.degraded = true
			z.logger.Error("Zone evaluation timer fault, marking zone degraded",
				zap.String("zone", z.name),
				zap.Any("panic", r),
			)
		}
	}()

	if gen != z.generation {
		// 过期定时器：区域已被删除或重置
		return
	}

	now := z.now()
	transition := z.evaluate(now)
	if transition != nil {
		delta := &models.ZoneDelta{}
		z.attachTransition(delta, transition)
		z.publishDelta(delta, now)
		z.recordTransition(transition, now)
	}
}

// ============================================
// 生命周期与成员变更
// ============================================

// resetForCalibration 回到校准状态（调用方必须持有 z.mu）
//
// resetAll 为 true 时清空全部链路统计，否则只重启校准计时
func (z *zone) resetForCalibration(now time.Time, resetAll bool) *Transition {
	if resetAll {
		for _, link := range z.links {
			link.Reset()
		}
	}
	z.generation++
	if z.timer != nil {
		z.timer.Stop()
		z.timer = nil
	}
	z.degraded = false
	z.calib.Restart(now, z.config)
	transition := z.sm.SetCalibrating()
	z.scheduleEvaluation(z.calib.Remaining(now))
	return transition
}

// recalibrate 显式重新校准：清空全部链路统计
func (z *zone) recalibrate() *Transition {
	z.mu.Lock()
	defer z.mu.Unlock()

	now := z.now()
	transition := z.resetForCalibration(now, true)
	if transition != nil {
		delta := &models.ZoneDelta{}
		z.attachTransition(delta, transition)
		z.publishDelta(delta, now)
		z.recordTransition(transition, now)
	}
	z.logger.Info("Zone recalibration started", zap.String("zone", z.name))
	return transition
}

// addDevice 添加成员设备
func (z *zone) addDevice(deviceID string) error {
	z.mu.Lock()
	defer z.mu.Unlock()

	if _, ok := z.devices[deviceID]; ok {
		// 已是成员：幂等处理
		return nil
	}

	z.devices[deviceID] = struct{}{}
	z.rebuildLinks()

	now := z.now()
	var transition *Transition
	if z.config.FullRecalibrationOnChange {
		// 策略：整区重校准
		transition = z.resetForCalibration(now, true)
	} else {
		// 策略：只影响新链路。新链路从零开始校准，已冻结基线保留；
		// 区域此时不再满足"全部链路已校准"，回到 CALIBRATING
		transition = z.resetForCalibration(now, false)
	}

	if transition != nil {
		delta := &models.ZoneDelta{}
		z.attachTransition(delta, transition)
		z.publishDelta(delta, now)
		z.recordTransition(transition, now)
	}
	return nil
}

// removeDevice 移除成员设备（连带删除其全部链路）
func (z *zone) removeDevice(deviceID string) error {
	z.mu.Lock()
	defer z.mu.Unlock()

	if _, ok := z.devices[deviceID]; !ok {
		return ErrDeviceNotInZone
	}
	if len(z.devices)-1 < 2 {
		return ErrInsufficientDevices
	}
	if remaining := linkPairCount(len(z.devices) - 1); z.config.MinLinksTriggered > remaining {
		return &InvalidConfigError{
			Field:  "min_links_triggered",
			Reason: "exceeds remaining link pairs after device removal",
		}
	}

	delete(z.devices, deviceID)
	for key := range z.links {
		a, b := key.Devices()
		if a == deviceID || b == deviceID {
			delete(z.links, key)
		}
	}

	now := z.now()
	var transition *Transition
	if z.config.FullRecalibrationOnChange {
		transition = z.resetForCalibration(now, true)
	} else if z.sm.State() == models.ZoneStateCalibrating {
		// 移除未校准链路后剩余链路可能已经齐备，立即复评
		transition = z.evaluate(now)
	}
	// 剩余链路全部已校准时区域保持运行，无需重置

	if transition != nil {
		delta := &models.ZoneDelta{}
		z.attachTransition(delta, transition)
		z.publishDelta(delta, now)
		z.recordTransition(transition, now)
	}
	return nil
}

// updateConfig 部分更新配置（越界时整体拒绝，不做半套修改）
func (z *zone) updateConfig(patch models.ZoneConfigPatch) error {
	z.mu.Lock()
	defer z.mu.Unlock()

	next := z.config
	if patch.DeviationThreshold != nil {
		next.DeviationThreshold = *patch.DeviationThreshold
	}
	if patch.VarianceThreshold != nil {
		next.VarianceThreshold = *patch.VarianceThreshold
	}
	if patch.MinLinksTriggered != nil {
		next.MinLinksTriggered = *patch.MinLinksTriggered
	}
	if patch.ClearDelay != nil {
		next.ClearDelay = *patch.ClearDelay
	}
	if patch.FullRecalibrationOnChange != nil {
		next.FullRecalibrationOnChange = *patch.FullRecalibrationOnChange
	}
	if patch.MQTTTopicOverride != nil {
		next.MQTTTopicOverride = *patch.MQTTTopicOverride
	}

	if err := validateConfig(next, len(z.devices)); err != nil {
		return err
	}
	z.config = next
	return nil
}

// close 释放区域：停止定时器并使未触发的回调失效
func (z *zone) close() {
	z.mu.Lock()
	defer z.mu.Unlock()

	z.generation++
	if z.timer != nil {
		z.timer.Stop()
		z.timer = nil
	}
}

// ============================================
// 快照与事件
// ============================================

// snapshot 深拷贝快照（并发读者不会看到半更新的区域）
func (z *zone) snapshot() *models.ZoneSnapshot {
	z.mu.Lock()
	defer z.mu.Unlock()

	snap := &models.ZoneSnapshot{
		Name:     z.name,
		Devices:  z.deviceList(),
		State:    z.sm.State(),
		Degraded: z.degraded,
		Config:   z.config,
		Links:    make(map[string]models.LinkSnapshot, len(z.links)),
	}
	if since := z.sm.OccupiedSince(); since != nil {
		ts := *since
		snap.OccupiedSince = &ts
	}
	for key, link := range z.links {
		snap.Links[string(key)] = link.Snapshot()
	}
	return snap
}

// summary 摘要快照
func (z *zone) summary() models.ZoneSummary {
	z.mu.Lock()
	defer z.mu.Unlock()

	s := models.ZoneSummary{
		Name:        z.name,
		State:       z.sm.State(),
		DeviceCount: len(z.devices),
		LinkCount:   len(z.links),
	}
	if since := z.sm.OccupiedSince(); since != nil {
		ts := *since
		s.OccupiedSince = &ts
	}
	return s
}

// attachTransition 把状态迁移合并进增量事件（transition 为 nil 时不动）
func (z *zone) attachTransition(delta *models.ZoneDelta, transition *Transition) {
	if transition == nil {
		return
	}
	state := transition.To
	occupied := state == models.ZoneStateOccupied
	delta.State = &state
	delta.Occupied = &occupied
	if occupied {
		if since := z.sm.OccupiedSince(); since != nil {
			ts := *since
			delta.OccupiedSince = &ts
		}
	}
}

// publishDelta 发布增量事件（调用方必须持有 z.mu，保证单区域有序）
func (z *zone) publishDelta(delta *models.ZoneDelta, now time.Time) {
	if z.publisher == nil {
		return
	}
	z.seq++
	delta.ZoneName = z.name
	delta.EventID = uuid.NewString()
	delta.Seq = z.seq
	delta.Timestamp = now.Unix()
	delta.Topic = z.config.MQTTTopicOverride

	if err := z.publisher.PublishDelta(context.Background(), delta); err != nil {
		z.logger.Error("Failed to publish zone delta",
			zap.String("zone", z.name),
			zap.Uint64("seq", delta.Seq),
			zap.Error(err),
		)
	}
}

// recordTransition 写入状态迁移历史（recorder 可选）
func (z *zone) recordTransition(transition *Transition, now time.Time) {
	z.logger.Info("Zone state transition",
		zap.String("zone", z.name),
		zap.String("from", string(transition.From)),
		zap.String("to", string(transition.To)),
		zap.Int("triggered_links", len(transition.TriggeredLinks)),
	)

	if z.recorder == nil {
		return
	}

	var triggeredJSON json.RawMessage
	if len(transition.TriggeredLinks) > 0 {
		if b, err := json.Marshal(transition.TriggeredLinks); err == nil {
			triggeredJSON = b
		}
	}

	event := &models.ZoneEvent{
		EventID:        uuid.NewString(),
		ZoneName:       z.name,
		FromState:      transition.From,
		ToState:        transition.To,
		TriggeredLinks: triggeredJSON,
		OccurredAt:     now,
	}
	if err := z.recorder.RecordTransition(context.Background(), event); err != nil {
		z.logger.Error("Failed to record zone transition",
			zap.String("zone", z.name),
			zap.String("event_id", event.EventID),
			zap.Error(err),
		)
	}
}
