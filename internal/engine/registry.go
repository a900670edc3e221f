package engine

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"zigbee-zones/internal/models"
)

// Registry 区域注册表
//
// 唯一的跨区域共享结构是 name→zone 映射和 device→zones 索引，
// 由注册表自己的读写锁保护；区域内部状态由各区域的写锁保护，
// 两级锁互不嵌套持有（fan-out 先在读锁下取出区域引用再逐个处理）。
//
// 注册表必须显式构造并注入到采样入口和查询入口，
// 不允许包级共享实例（并发处理和测试隔离都依赖这一点）。
type Registry struct {
	mu          sync.RWMutex
	zones       map[string]*zone
	deviceIndex map[string]map[string]struct{} // device → zone 名称集合

	publisher DeltaPublisher
	recorder  TransitionRecorder
	logger    *zap.Logger
	now       func() time.Time
}

// NewRegistry 创建区域注册表
//
// publisher、recorder 允许为 nil（不发布/不落库）
func NewRegistry(publisher DeltaPublisher, recorder TransitionRecorder, logger *zap.Logger) *Registry {
	return NewRegistryWithClock(publisher, recorder, logger, time.Now)
}

// NewRegistryWithClock 创建注册表并注入时钟（测试用）
func NewRegistryWithClock(publisher DeltaPublisher, recorder TransitionRecorder, logger *zap.Logger, now func() time.Time) *Registry {
	return &Registry{
		zones:       make(map[string]*zone),
		deviceIndex: make(map[string]map[string]struct{}),
		publisher:   publisher,
		recorder:    recorder,
		logger:      logger,
		now:         now,
	}
}

// validateConfig 校验配置边界（见 InvalidConfigError）
func validateConfig(cfg models.ZoneConfig, deviceCount int) error {
	if cfg.DeviationThreshold <= 0 {
		return &InvalidConfigError{Field: "deviation_threshold", Reason: "must be greater than 0"}
	}
	if cfg.VarianceThreshold < 0 {
		return &InvalidConfigError{Field: "variance_threshold", Reason: "must not be negative"}
	}
	if cfg.MinLinksTriggered < 1 {
		return &InvalidConfigError{Field: "min_links_triggered", Reason: "must be at least 1"}
	}
	if pairs := linkPairCount(deviceCount); cfg.MinLinksTriggered > pairs {
		return &InvalidConfigError{Field: "min_links_triggered", Reason: "exceeds number of derivable link pairs"}
	}
	if cfg.CalibrationTime < 0 {
		return &InvalidConfigError{Field: "calibration_time", Reason: "must not be negative"}
	}
	if cfg.ClearDelay < 0 {
		return &InvalidConfigError{Field: "clear_delay", Reason: "must not be negative"}
	}
	return nil
}

// normalizeDevices 规范化并去重设备列表
func normalizeDevices(deviceIDs []string) []string {
	seen := make(map[string]struct{}, len(deviceIDs))
	var out []string
	for _, id := range deviceIDs {
		norm := models.NormalizeDeviceID(id)
		if norm == "" {
			continue
		}
		if _, ok := seen[norm]; ok {
			continue
		}
		seen[norm] = struct{}{}
		out = append(out, norm)
	}
	sort.Strings(out)
	return out
}

// ============================================
// 区域 CRUD
// ============================================

// CreateZone 创建区域，初始状态 CALIBRATING
func (r *Registry) CreateZone(name string, deviceIDs []string, cfg models.ZoneConfig) (*models.ZoneSnapshot, error) {
	devices := normalizeDevices(deviceIDs)
	if len(devices) < 2 {
		return nil, ErrInsufficientDevices
	}
	if err := validateConfig(cfg, len(devices)); err != nil {
		return nil, err
	}

	r.mu.Lock()
	if _, exists := r.zones[name]; exists {
		r.mu.Unlock()
		return nil, ErrDuplicateZoneName
	}

	z := newZone(name, devices, cfg, r.publisher, r.recorder, r.logger, r.now)
	r.zones[name] = z
	for _, id := range devices {
		r.indexDevice(id, name)
	}
	r.mu.Unlock()

	r.logger.Info("Zone created",
		zap.String("zone", name),
		zap.Int("device_count", len(devices)),
		zap.Int("link_count", linkPairCount(len(devices))),
	)
	return z.snapshot(), nil
}

// DeleteZone 删除区域：释放全部状态并取消定时器
func (r *Registry) DeleteZone(name string) error {
	r.mu.Lock()
	z, ok := r.zones[name]
	if !ok {
		r.mu.Unlock()
		return ErrZoneNotFound
	}
	delete(r.zones, name)
	for id := range z.devices {
		r.unindexDevice(id, name)
	}
	r.mu.Unlock()

	// 定时器取消与状态移除对外表现为原子：
	// 索引删除后不再有新采样进入，close 使在途回调失效
	z.close()

	r.logger.Info("Zone deleted", zap.String("zone", name))
	return nil
}

// Recalibrate 强制重新校准区域
func (r *Registry) Recalibrate(name string) error {
	z, err := r.lookup(name)
	if err != nil {
		return err
	}
	z.recalibrate()
	return nil
}

// AddDevice 向区域添加成员设备
func (r *Registry) AddDevice(name, deviceID string) error {
	norm := models.NormalizeDeviceID(deviceID)
	if norm == "" {
		return ErrDeviceNotInZone
	}

	z, err := r.lookup(name)
	if err != nil {
		return err
	}
	if err := z.addDevice(norm); err != nil {
		return err
	}

	r.indexDeviceIfCurrent(norm, name, z)
	return nil
}

// RemoveDevice 从区域移除成员设备
func (r *Registry) RemoveDevice(name, deviceID string) error {
	norm := models.NormalizeDeviceID(deviceID)

	z, err := r.lookup(name)
	if err != nil {
		return err
	}
	if err := z.removeDevice(norm); err != nil {
		return err
	}

	r.mu.Lock()
	r.unindexDevice(norm, name)
	r.mu.Unlock()
	return nil
}

// UpdateZoneConfig 部分更新区域配置
func (r *Registry) UpdateZoneConfig(name string, patch models.ZoneConfigPatch) (*models.ZoneSnapshot, error) {
	z, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	if err := z.updateConfig(patch); err != nil {
		return nil, err
	}
	return z.snapshot(), nil
}

// GetZone 获取区域完整快照
func (r *Registry) GetZone(name string) (*models.ZoneSnapshot, error) {
	z, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	return z.snapshot(), nil
}

// ListZones 列出全部区域摘要（按名称排序）
func (r *Registry) ListZones() []models.ZoneSummary {
	r.mu.RLock()
	zones := make([]*zone, 0, len(r.zones))
	for _, z := range r.zones {
		zones = append(zones, z)
	}
	r.mu.RUnlock()

	summaries := make([]models.ZoneSummary, 0, len(zones))
	for _, z := range zones {
		summaries = append(summaries, z.summary())
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].Name < summaries[j].Name })
	return summaries
}

// ============================================
// 采样入口
// ============================================

// IngestSample 接收一条链路质量采样并路由到所有包含该设备对的区域
//
// 没有区域匹配时静默丢弃（正常工况，不是错误）
func (r *Registry) IngestSample(deviceA, deviceB string, rssi int, timestamp time.Time) {
	a := models.NormalizeDeviceID(deviceA)
	b := models.NormalizeDeviceID(deviceB)
	if a == "" || b == "" || a == b {
		return
	}

	// 读锁下求两设备所属区域的交集，拷出引用后释放
	r.mu.RLock()
	var matched []*zone
	if zonesA, ok := r.deviceIndex[a]; ok {
		if zonesB, ok := r.deviceIndex[b]; ok {
			for name := range zonesA {
				if _, both := zonesB[name]; both {
					if z, exists := r.zones[name]; exists {
						matched = append(matched, z)
					}
				}
			}
		}
	}
	r.mu.RUnlock()

	sample := models.LinkSample{DeviceA: a, DeviceB: b, RSSI: rssi, Timestamp: timestamp}
	for _, z := range matched {
		z.ingest(sample)
	}
}

// ============================================
// 内部辅助
// ============================================

func (r *Registry) lookup(name string) (*zone, error) {
	r.mu.RLock()
	z, ok := r.zones[name]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrZoneNotFound
	}
	return z, nil
}

// indexDeviceIfCurrent 仅当该区域实例仍然注册时写入索引
//
// addDevice 与 DeleteZone 交错时，删除流程已经清掉了该区域的全部
// 索引项；这里再补一条就是悬空记录。按指针比对：同名重建的新区域
// 也不能继承旧实例的索引写入。
func (r *Registry) indexDeviceIfCurrent(deviceID, zoneName string, z *zone) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.zones[zoneName]; ok && current == z {
		r.indexDevice(deviceID, zoneName)
	}
}

// indexDevice 调用方必须持有 r.mu 写锁
func (r *Registry) indexDevice(deviceID, zoneName string) {
	if _, ok := r.deviceIndex[deviceID]; !ok {
		r.deviceIndex[deviceID] = make(map[string]struct{})
	}
	r.deviceIndex[deviceID][zoneName] = struct{}{}
}

// unindexDevice 调用方必须持有 r.mu 写锁
func (r *Registry) unindexDevice(deviceID, zoneName string) {
	if zones, ok := r.deviceIndex[deviceID]; ok {
		delete(zones, zoneName)
		if len(zones) == 0 {
			delete(r.deviceIndex, deviceID)
		}
	}
}
