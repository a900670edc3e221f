package engine

import (
	"math"

	"zigbee-zones/internal/models"
)

// welfordTracker Welford 在线均值/方差累积器
//
// 单趟增量更新，不保存历史样本，适用于无界的采样流。
// 参考: https://en.wikipedia.org/wiki/Algorithms_for_calculating_variance#Welford's_online_algorithm
type welfordTracker struct {
	count int64
	mean  float64
	m2    float64 // 与当前均值的差的平方和
}

// update 累积一个新样本
func (w *welfordTracker) update(value float64) {
	w.count++
	delta := value - w.mean
	w.mean += delta / float64(w.count)
	delta2 := value - w.mean
	w.m2 += delta * delta2
}

// variance 样本方差（n-1）
func (w *welfordTracker) variance() float64 {
	if w.count < 2 {
		return 0
	}
	return w.m2 / float64(w.count-1)
}

// stdDev 样本标准差
func (w *welfordTracker) stdDev() float64 {
	return math.Sqrt(w.variance())
}

func (w *welfordTracker) reset() {
	w.count = 0
	w.mean = 0
	w.m2 = 0
}

const (
	// recentWindowSize 波动检测的滑动窗口大小
	recentWindowSize = 16
	// recentWindowMin 窗口内至少多少个样本才计算波动方差
	recentWindowMin = 8

	// minBaselineStd z-score 分母的下限（dBm）。
	// 极安静链路的基线标准差可能接近 0，不加下限时 1dBm 的抖动
	// 就会产生无穷大的 z 值；0.5dBm 低于 Zigbee RSSI 上报的量化步长。
	minBaselineStd = 0.5
)

// LinkStats 单条链路的在线统计
//
// 校准完成前，welford 累积器本身就是基线候选；
// 冻结后累积器不再更新，保证基线不被占用期间的信号污染。
type LinkStats struct {
	key models.LinkKey

	baseline welfordTracker // 基线候选（冻结后停止更新）

	sampleCount int64
	lastRSSI    int
	minRSSI     int
	maxRSSI     int

	calibrated   bool
	baselineMean float64
	baselineStd  float64

	// 近期样本环形缓冲，支撑 variance_threshold 波动检测
	recent    [recentWindowSize]float64
	recentLen int
	recentPos int
}

// NewLinkStats 创建链路统计
func NewLinkStats(key models.LinkKey) *LinkStats {
	return &LinkStats{key: key}
}

// Key 返回链路键
func (l *LinkStats) Key() models.LinkKey {
	return l.key
}

// Observe 记录一个 RSSI 采样
func (l *LinkStats) Observe(rssi int) {
	if l.sampleCount == 0 {
		l.minRSSI = rssi
		l.maxRSSI = rssi
	} else {
		if rssi < l.minRSSI {
			l.minRSSI = rssi
		}
		if rssi > l.maxRSSI {
			l.maxRSSI = rssi
		}
	}
	l.sampleCount++
	l.lastRSSI = rssi

	// 冻结后基线累积器不再更新
	if !l.calibrated {
		l.baseline.update(float64(rssi))
	}

	// 滑动窗口始终更新
	l.recent[l.recentPos] = float64(rssi)
	l.recentPos = (l.recentPos + 1) % recentWindowSize
	if l.recentLen < recentWindowSize {
		l.recentLen++
	}
}

// Freeze 冻结基线（校准完成时调用）
func (l *LinkStats) Freeze() {
	l.baselineMean = l.baseline.mean
	l.baselineStd = l.baseline.stdDev()
	l.calibrated = true
}

// Reset 清空全部统计，回到未校准状态
func (l *LinkStats) Reset() {
	l.baseline.reset()
	l.sampleCount = 0
	l.lastRSSI = 0
	l.minRSSI = 0
	l.maxRSSI = 0
	l.calibrated = false
	l.baselineMean = 0
	l.baselineStd = 0
	l.recentLen = 0
	l.recentPos = 0
}

// Calibrated 基线是否已冻结
func (l *LinkStats) Calibrated() bool {
	return l.calibrated
}

// SampleCount 累计采样数
func (l *LinkStats) SampleCount() int64 {
	return l.sampleCount
}

// Deviation 最近一次采样相对基线的 z-score
//
// 未校准的链路没有基线，返回 0
func (l *LinkStats) Deviation() float64 {
	if !l.calibrated || l.sampleCount == 0 {
		return 0
	}
	std := l.baselineStd
	if std < minBaselineStd {
		std = minBaselineStd
	}
	return math.Abs(float64(l.lastRSSI)-l.baselineMean) / std
}

// RecentVariance 滑动窗口内的样本方差
//
// 窗口样本不足 recentWindowMin 时返回 ok=false
func (l *LinkStats) RecentVariance() (float64, bool) {
	if l.recentLen < recentWindowMin {
		return 0, false
	}
	var sum float64
	for i := 0; i < l.recentLen; i++ {
		sum += l.recent[i]
	}
	mean := sum / float64(l.recentLen)
	var sq float64
	for i := 0; i < l.recentLen; i++ {
		d := l.recent[i] - mean
		sq += d * d
	}
	return sq / float64(l.recentLen-1), true
}

// Votes 判断链路是否对"有人"投票
//
// 主触发：z-score 超过 deviation_threshold。
// 次级触发（仅 includeFluctuation 为 true 时）：近期窗口方差超过
// variance_threshold。波动触发只用于进入 OCCUPIED 的投票——退出
// 消抖必须只看 z-score，否则窗口里残留的占用期样本会不断刷新
// 水位线，把 clear_delay 拖长一个窗口的长度。
// 未校准的链路永远不投票。
func (l *LinkStats) Votes(cfg models.ZoneConfig, includeFluctuation bool) bool {
	if !l.calibrated || l.sampleCount == 0 {
		return false
	}
	if l.Deviation() > cfg.DeviationThreshold {
		return true
	}
	if includeFluctuation && cfg.VarianceThreshold > 0 {
		if v, ok := l.RecentVariance(); ok && v > cfg.VarianceThreshold {
			return true
		}
	}
	return false
}

// Snapshot 返回链路统计的只读副本
func (l *LinkStats) Snapshot() models.LinkSnapshot {
	return models.LinkSnapshot{
		SampleCount:  l.sampleCount,
		LastRSSI:     l.lastRSSI,
		MinRSSI:      l.minRSSI,
		MaxRSSI:      l.maxRSSI,
		BaselineMean: l.baselineMean,
		BaselineStd:  l.baselineStd,
		Deviation:    l.Deviation(),
		Calibrated:   l.calibrated,
	}
}
