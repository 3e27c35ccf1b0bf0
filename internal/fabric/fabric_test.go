// SPDX-License-Identifier: MIT

package fabric

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moodpulse/moodpulse/internal/bus"
	"github.com/moodpulse/moodpulse/internal/emotion"
	"github.com/moodpulse/moodpulse/internal/intervention"
	"github.com/moodpulse/moodpulse/internal/pattern"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

type harness struct {
	hub *Hub
	b   *bus.MemoryBus
	srv *httptest.Server
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{hub: NewHub(), b: bus.NewMemoryBus()}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = h.hub.Run(ctx, h.b)
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws/emotions", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		var f Filter
		f.TenantID = r.URL.Query().Get("tenant_id")
		f.PriorityOnly = r.URL.Query().Get("priority_only") == "true"
		h.hub.ServeDashboard(conn, f)
	})
	mux.HandleFunc("/ws/session/", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		id := strings.TrimPrefix(r.URL.Path, "/ws/session/")
		h.hub.ServeSession(id, conn)
	})
	h.srv = httptest.NewServer(mux)

	t.Cleanup(func() {
		h.srv.Close()
		cancel()
		<-done
		_ = h.b.Close()
	})
	return h
}

func (h *harness) dial(t *testing.T, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.srv.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var f Frame
	require.NoError(t, json.Unmarshal(raw, &f))
	return f
}

func waitDashboards(t *testing.T, hub *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return hub.DashboardCount() == n },
		2*time.Second, 10*time.Millisecond)
}

func TestDashboardReceivesEmotions(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t, "/ws/emotions")
	waitDashboards(t, h.hub, 1)

	sample := emotion.Sample{SessionID: "s1", TenantID: "t1", Emotion: emotion.Rage, Confidence: 95}
	require.NoError(t, bus.PublishJSON(context.Background(), h.b, bus.TopicEmotions, sample))

	frame := readFrame(t, conn)
	assert.Equal(t, FrameEmotion, frame.Type)
	var got emotion.Sample
	require.NoError(t, json.Unmarshal(frame.Data, &got))
	assert.Equal(t, emotion.Rage, got.Emotion)
}

func TestTenantFilter(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t, "/ws/emotions?tenant_id=t2")
	waitDashboards(t, h.hub, 1)

	require.NoError(t, bus.PublishJSON(context.Background(), h.b, bus.TopicEmotions,
		emotion.Sample{TenantID: "t1", Emotion: emotion.Rage, Confidence: 95}))
	require.NoError(t, bus.PublishJSON(context.Background(), h.b, bus.TopicEmotions,
		emotion.Sample{TenantID: "t2", Emotion: emotion.Delight, Confidence: 85}))

	var got emotion.Sample
	require.NoError(t, json.Unmarshal(readFrame(t, conn).Data, &got))
	assert.Equal(t, "t2", got.TenantID, "the t1 sample must have been filtered out")
}

// A subscribe frame sent over the socket replaces the filter the
// connection was opened with.
func TestSubscribeFrameReplacesFilter(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t, "/ws/emotions")
	waitDashboards(t, h.hub, 1)

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type": "subscribe", "tenant": "t2",
	}))
	require.Eventually(t, func() bool {
		h.hub.mu.RLock()
		defer h.hub.mu.RUnlock()
		for _, f := range h.hub.dashboards {
			if f.TenantID == "t2" {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, bus.PublishJSON(context.Background(), h.b, bus.TopicEmotions,
		emotion.Sample{TenantID: "t1", Emotion: emotion.Rage, Confidence: 95}))
	require.NoError(t, bus.PublishJSON(context.Background(), h.b, bus.TopicEmotions,
		emotion.Sample{TenantID: "t2", Emotion: emotion.Delight, Confidence: 85}))

	frame := readFrame(t, conn)
	assert.Equal(t, FrameEmotion, frame.Type)
	var got emotion.Sample
	require.NoError(t, json.Unmarshal(frame.Data, &got))
	assert.Equal(t, "t2", got.TenantID, "the re-subscribe must filter out t1")
}

func TestSubscribeFrameNestedFilter(t *testing.T) {
	sf := subscribeFrame{
		Type:   "subscribe",
		Tenant: "t9",
		Filter: &Filter{MinConfidence: 80},
	}
	f := sf.filter()
	assert.Equal(t, "t9", f.TenantID, "tenant shorthand fills an empty nested filter")
	assert.Equal(t, 80, f.MinConfidence)

	flat := subscribeFrame{
		Type:          "subscribe",
		TenantID:      "t1",
		EmotionFilter: []emotion.Emotion{emotion.Rage},
		PriorityOnly:  true,
	}
	f = flat.filter()
	assert.Equal(t, "t1", f.TenantID)
	assert.Equal(t, []emotion.Emotion{emotion.Rage}, f.Emotions)
	assert.True(t, f.PriorityOnly)
}

func TestPingGetsPong(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t, "/ws/emotions")
	waitDashboards(t, h.hub, 1)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))
	frame := readFrame(t, conn)
	assert.Equal(t, FramePong, frame.Type)
	assert.Empty(t, frame.Data)
}

func TestPriorityOnlySuppressesEmotions(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t, "/ws/emotions?priority_only=true")
	waitDashboards(t, h.hub, 1)

	require.NoError(t, bus.PublishJSON(context.Background(), h.b, bus.TopicEmotions,
		emotion.Sample{TenantID: "t1", Emotion: emotion.Rage, Confidence: 95}))
	cmd := intervention.Command{ID: "c1", SessionID: "s1", TenantID: "t1",
		Type: pattern.HelpOffer, Priority: pattern.PriorityHigh}
	require.NoError(t, bus.PublishJSON(context.Background(), h.b, bus.TopicInterventions, cmd))

	frame := readFrame(t, conn)
	assert.Equal(t, FrameIntervention, frame.Type)
}

func TestFilterPredicates(t *testing.T) {
	sample := emotion.Sample{TenantID: "t1", Emotion: emotion.Rage, Confidence: 70}

	assert.True(t, Filter{}.wantsEmotion(sample))
	assert.False(t, Filter{MinConfidence: 80}.wantsEmotion(sample))
	assert.True(t, Filter{Emotions: []emotion.Emotion{emotion.Rage}}.wantsEmotion(sample))
	assert.False(t, Filter{Emotions: []emotion.Emotion{emotion.Delight}}.wantsEmotion(sample))
	assert.False(t, Filter{TenantID: "t2"}.wantsEmotion(sample))
	assert.False(t, Filter{PriorityOnly: true}.wantsEmotion(sample))

	cmd := intervention.Command{TenantID: "t1"}
	assert.True(t, Filter{}.wantsIntervention(cmd))
	assert.True(t, Filter{TenantID: "t1"}.wantsIntervention(cmd))
	assert.False(t, Filter{TenantID: "t2"}.wantsIntervention(cmd))
}

func TestSessionSocketReceivesCommand(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t, "/ws/session/s1")
	require.Eventually(t, func() bool { return h.hub.SessionCount() == 1 },
		2*time.Second, 10*time.Millisecond)

	cmd := intervention.Command{ID: "c1", SessionID: "s1", TenantID: "t1",
		Type: pattern.CartSaveModal, Priority: pattern.PriorityCritical, TTLMS: 10000}
	require.NoError(t, bus.PublishJSON(context.Background(), h.b, bus.TopicInterventions, cmd))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var got intervention.Command
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "c1", got.ID)
	assert.Equal(t, pattern.CartSaveModal, got.Type)

	// The page acknowledges; the hub must tolerate it without closing.
	require.NoError(t, conn.WriteJSON(Ack{CommandID: "c1", Displayed: true}))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, h.hub.SessionCount())
}

func TestCommandForUnknownSessionIsDropped(t *testing.T) {
	h := newHarness(t)
	cmd := intervention.Command{ID: "c1", SessionID: "ghost", TenantID: "t1"}
	// Must not panic or block.
	require.NoError(t, bus.PublishJSON(context.Background(), h.b, bus.TopicInterventions, cmd))
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, h.hub.SessionCount())
}

func TestNewSessionConnectionReplacesOld(t *testing.T) {
	h := newHarness(t)
	old := h.dial(t, "/ws/session/s1")
	require.Eventually(t, func() bool { return h.hub.SessionCount() == 1 },
		2*time.Second, 10*time.Millisecond)

	h.dial(t, "/ws/session/s1")
	// The old socket is closed server-side.
	require.NoError(t, old.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		if _, _, err := old.ReadMessage(); err != nil {
			break
		}
	}
	assert.Equal(t, 1, h.hub.SessionCount())
}

func TestDisconnectUpdatesCount(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t, "/ws/emotions")
	waitDashboards(t, h.hub, 1)
	require.NoError(t, conn.Close())
	waitDashboards(t, h.hub, 0)
}

func TestSlowClientDisconnected(t *testing.T) {
	// A client whose queue is saturated gets shut down instead of
	// blocking the hub.
	c := newClient(nil)
	big := make([]byte, maxBuffered/2+1)
	assert.True(t, c.enqueue(big))
	assert.False(t, c.enqueue(big), "second oversized frame exceeds the byte budget")
	select {
	case <-c.done:
	default:
		t.Fatal("slow client was not shut down")
	}
	assert.False(t, c.enqueue([]byte("late")), "a shut-down client accepts nothing")
}
