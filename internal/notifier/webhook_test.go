package notifier_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"zigbee-zones/internal/models"
	"zigbee-zones/internal/notifier"
)

func TestWebhookNotifier_PostsStateChanges(t *testing.T) {
	var mu sync.Mutex
	var bodies [][]byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, body)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := notifier.NewWebhookNotifier(server.URL, zap.NewNop())

	state := models.ZoneStateOccupied
	occupied := true
	delta := &models.ZoneDelta{
		ZoneName: "kitchen",
		EventID:  "evt-1",
		Seq:      1,
		State:    &state,
		Occupied: &occupied,
	}
	require.NoError(t, n.PublishDelta(context.Background(), delta))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, bodies, 1)

	var decoded models.ZoneDelta
	require.NoError(t, json.Unmarshal(bodies[0], &decoded))
	require.Equal(t, "kitchen", decoded.ZoneName)
	require.Equal(t, models.ZoneStateOccupied, *decoded.State)
}

func TestWebhookNotifier_SkipsLinkOnlyDeltas(t *testing.T) {
	var count int
	var mu sync.Mutex
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		count++
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := notifier.NewWebhookNotifier(server.URL, zap.NewNop())

	// 只有链路统计、没有状态变更：回调方不关心，跳过
	delta := &models.ZoneDelta{
		ZoneName: "kitchen",
		Seq:      2,
		Links:    map[string]models.LinkSnapshot{"a|b": {SampleCount: 1}},
	}
	require.NoError(t, n.PublishDelta(context.Background(), delta))

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 0, count)
}

func TestWebhookNotifier_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	n := notifier.NewWebhookNotifier(server.URL, zap.NewNop())

	state := models.ZoneStateVacant
	delta := &models.ZoneDelta{ZoneName: "kitchen", Seq: 3, State: &state}
	require.Error(t, n.PublishDelta(context.Background(), delta))
}
