package engine_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"zigbee-zones/internal/engine"
	"zigbee-zones/internal/models"
)

func calibrationLinks(sampleCounts map[string]int) map[models.LinkKey]*engine.LinkStats {
	links := make(map[models.LinkKey]*engine.LinkStats)
	for key, count := range sampleCounts {
		k := models.LinkKey(key)
		link := engine.NewLinkStats(k)
		for i := 0; i < count; i++ {
			link.Observe(-60)
		}
		links[k] = link
	}
	return links
}

func TestCalibration_WindowTiming(t *testing.T) {
	cfg := models.DefaultZoneConfig()
	cfg.CalibrationTime = 60

	t0 := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	c := engine.NewCalibrationController(t0, cfg)

	require.False(t, c.Elapsed(t0.Add(59*time.Second)))
	require.True(t, c.Elapsed(t0.Add(60*time.Second)))
	require.Equal(t, 45*time.Second, c.Remaining(t0.Add(15*time.Second)))
	require.Equal(t, time.Duration(0), c.Remaining(t0.Add(90*time.Second)))
}

func TestCalibration_NoFreezeBeforeWindowEnds(t *testing.T) {
	cfg := models.DefaultZoneConfig()
	cfg.CalibrationTime = 60

	t0 := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	c := engine.NewCalibrationController(t0, cfg)

	// 样本再多也不提前冻结：必须等窗口结束
	links := calibrationLinks(map[string]int{"a|b": 100})
	require.False(t, c.Advance(t0.Add(30*time.Second), links))
	require.False(t, links[models.LinkKey("a|b")].Calibrated())
}

func TestCalibration_FreezesLinksWithEnoughSamples(t *testing.T) {
	cfg := models.DefaultZoneConfig()
	cfg.CalibrationTime = 60

	t0 := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	c := engine.NewCalibrationController(t0, cfg)

	// a|b 达标，a|c 样本不足：只冻结 a|b，整体未完成
	links := calibrationLinks(map[string]int{
		"a|b": engine.MinCalibrationSamples,
		"a|c": engine.MinCalibrationSamples - 1,
	})
	done := c.Advance(t0.Add(61*time.Second), links)

	require.False(t, done)
	require.True(t, links[models.LinkKey("a|b")].Calibrated())
	require.False(t, links[models.LinkKey("a|c")].Calibrated())

	// 补齐 a|c 的样本后再推进：全部冻结，校准完成
	links[models.LinkKey("a|c")].Observe(-60)
	require.True(t, c.Advance(t0.Add(62*time.Second), links))
	require.True(t, links[models.LinkKey("a|c")].Calibrated())
}

func TestCalibration_EmptyLinkSetNeverCompletes(t *testing.T) {
	cfg := models.DefaultZoneConfig()
	cfg.CalibrationTime = 0

	t0 := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	c := engine.NewCalibrationController(t0, cfg)
	require.False(t, c.Advance(t0, map[models.LinkKey]*engine.LinkStats{}))
}

func TestCalibration_RestartResetsWindow(t *testing.T) {
	cfg := models.DefaultZoneConfig()
	cfg.CalibrationTime = 60

	t0 := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	c := engine.NewCalibrationController(t0, cfg)
	require.True(t, c.Elapsed(t0.Add(2*time.Minute)))

	c.Restart(t0.Add(2*time.Minute), cfg)
	require.False(t, c.Elapsed(t0.Add(2*time.Minute+30*time.Second)))
	require.True(t, c.Elapsed(t0.Add(3*time.Minute)))
}
