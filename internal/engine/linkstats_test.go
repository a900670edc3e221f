package engine_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"zigbee-zones/internal/engine"
	"zigbee-zones/internal/models"
)

// naiveMeanStd 两趟批量计算均值/样本标准差（与在线算法对照）
func naiveMeanStd(values []int) (float64, float64) {
	var sum float64
	for _, v := range values {
		sum += float64(v)
	}
	mean := sum / float64(len(values))

	var sq float64
	for _, v := range values {
		d := float64(v) - mean
		sq += d * d
	}
	if len(values) < 2 {
		return mean, 0
	}
	return mean, math.Sqrt(sq / float64(len(values)-1))
}

func TestLinkStats_BaselineMatchesBatchComputation(t *testing.T) {
	// 典型的 Zigbee RSSI 序列：围绕 -60dBm 的小幅抖动
	samples := []int{-60, -61, -59, -60, -62, -58, -60, -61, -59, -60, -63, -57}

	link := engine.NewLinkStats(models.NewLinkKey("dev-a", "dev-b"))
	for _, v := range samples {
		link.Observe(v)
	}
	link.Freeze()

	wantMean, wantStd := naiveMeanStd(samples)
	snap := link.Snapshot()

	require.InDelta(t, wantMean, snap.BaselineMean, 1e-9)
	require.InDelta(t, wantStd, snap.BaselineStd, 1e-9)
	require.True(t, snap.Calibrated)
	require.Equal(t, int64(len(samples)), snap.SampleCount)
}

func TestLinkStats_TracksExtremaAndLastSample(t *testing.T) {
	link := engine.NewLinkStats(models.NewLinkKey("dev-a", "dev-b"))
	for _, v := range []int{-60, -72, -55, -61} {
		link.Observe(v)
	}

	snap := link.Snapshot()
	require.Equal(t, -61, snap.LastRSSI)
	require.Equal(t, -72, snap.MinRSSI)
	require.Equal(t, -55, snap.MaxRSSI)
}

func TestLinkStats_FreezeStopsBaselineUpdates(t *testing.T) {
	link := engine.NewLinkStats(models.NewLinkKey("dev-a", "dev-b"))
	for i := 0; i < 10; i++ {
		link.Observe(-60)
	}
	link.Freeze()
	frozen := link.Snapshot()

	// 冻结后再喂大幅偏离的样本：基线不动，极值和最近值照常更新
	for i := 0; i < 5; i++ {
		link.Observe(-80)
	}
	snap := link.Snapshot()

	require.Equal(t, frozen.BaselineMean, snap.BaselineMean)
	require.Equal(t, frozen.BaselineStd, snap.BaselineStd)
	require.Equal(t, -80, snap.LastRSSI)
	require.Equal(t, -80, snap.MinRSSI)
	require.Equal(t, int64(15), snap.SampleCount)
}

func TestLinkStats_DeviationUsesStdFloor(t *testing.T) {
	// 完全恒定的基线：标准差为 0，z-score 分母退化
	link := engine.NewLinkStats(models.NewLinkKey("dev-a", "dev-b"))
	for i := 0; i < 10; i++ {
		link.Observe(-60)
	}
	link.Freeze()

	link.Observe(-61)
	// 分母下限 0.5dBm：|-61 - (-60)| / 0.5 = 2.0
	require.InDelta(t, 2.0, link.Deviation(), 1e-9)
}

func TestLinkStats_DeviationZeroBeforeCalibration(t *testing.T) {
	link := engine.NewLinkStats(models.NewLinkKey("dev-a", "dev-b"))
	link.Observe(-90)
	require.Equal(t, 0.0, link.Deviation())
	require.False(t, link.Votes(models.DefaultZoneConfig(), true))
}

func TestLinkStats_VotesOnDeviationThreshold(t *testing.T) {
	cfg := models.DefaultZoneConfig() // deviation_threshold 2.5

	link := engine.NewLinkStats(models.NewLinkKey("dev-a", "dev-b"))
	for i := 0; i < 10; i++ {
		link.Observe(-60)
	}
	link.Freeze()

	// z = 1.0/0.5 = 2.0，未过阈值
	link.Observe(-61)
	require.False(t, link.Votes(cfg, false))

	// z = 10.0/0.5 = 20，过阈值
	link.Observe(-70)
	require.True(t, link.Votes(cfg, false))
}

func TestLinkStats_FluctuationVoteOnlyWhenIncluded(t *testing.T) {
	cfg := models.DefaultZoneConfig()
	cfg.VarianceThreshold = 4.0

	link := engine.NewLinkStats(models.NewLinkKey("dev-a", "dev-b"))
	for i := 0; i < 10; i++ {
		link.Observe(-60)
	}
	link.Freeze()

	// 交替 ±3dBm 把窗口方差推过 variance_threshold，
	// 最后回到基线值：z-score 为 0，主投票不触发
	for i := 0; i < 15; i++ {
		if i%2 == 0 {
			link.Observe(-63)
		} else {
			link.Observe(-57)
		}
	}
	link.Observe(-60)

	require.True(t, link.Votes(cfg, true))
	require.False(t, link.Votes(cfg, false))
}

func TestLinkStats_RecentVarianceNeedsMinimumWindow(t *testing.T) {
	link := engine.NewLinkStats(models.NewLinkKey("dev-a", "dev-b"))
	for i := 0; i < 7; i++ {
		link.Observe(-60 - i)
	}
	_, ok := link.RecentVariance()
	require.False(t, ok)

	link.Observe(-50)
	v, ok := link.RecentVariance()
	require.True(t, ok)
	require.Greater(t, v, 0.0)
}

func TestLinkStats_ResetClearsEverything(t *testing.T) {
	link := engine.NewLinkStats(models.NewLinkKey("dev-a", "dev-b"))
	for i := 0; i < 10; i++ {
		link.Observe(-60)
	}
	link.Freeze()
	link.Reset()

	snap := link.Snapshot()
	require.False(t, snap.Calibrated)
	require.Equal(t, int64(0), snap.SampleCount)
	require.Equal(t, 0.0, snap.BaselineMean)
	require.Equal(t, 0.0, snap.BaselineStd)
}
