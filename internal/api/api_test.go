package api_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bbernstein/lumenbridge-go/internal/api"
	"github.com/bbernstein/lumenbridge-go/internal/database/models"
	"github.com/bbernstein/lumenbridge-go/internal/metrics"
	"github.com/bbernstein/lumenbridge-go/internal/services/ingest"
	"github.com/bbernstein/lumenbridge-go/internal/services/pubsub"
	"github.com/bbernstein/lumenbridge-go/internal/services/testutil"
	"github.com/bbernstein/lumenbridge-go/internal/state"
	"github.com/bbernstein/lumenbridge-go/internal/store"
)

func newTestServer(t *testing.T) (*httptest.Server, *store.Store, *pubsub.Bus, func()) {
	t.Helper()
	s, db, cleanup := testutil.SetupTestStore(t)
	bus := pubsub.New()

	registry := prometheus.NewRegistry()
	metrics.New(registry)

	server := api.New(api.Config{CORSOrigin: "http://localhost:3000", Version: "test"}, s, bus, registry)
	ts := httptest.NewServer(server.Handler())

	testutil.AddDevice(t, db, models.Device{
		ID: "dev-A", IP: "10.0.0.2", Protocol: "govee", Port: 4003, Enabled: true,
	})

	return ts, s, bus, func() {
		ts.Close()
		cleanup()
	}
}

func TestHealthEndpoint(t *testing.T) {
	ts, _, _, cleanup := newTestServer(t)
	defer cleanup()

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "test", body["version"])
}

func TestDevicesEndpoint(t *testing.T) {
	ts, _, _, cleanup := newTestServer(t)
	defer cleanup()

	resp, err := http.Get(ts.URL + "/devices")
	require.NoError(t, err)
	defer resp.Body.Close()

	var devices []models.Device
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&devices))
	require.Len(t, devices, 1)
	assert.Equal(t, "dev-A", devices[0].ID)
}

func TestDeadLettersEndpoint(t *testing.T) {
	ts, s, _, cleanup := newTestServer(t)
	defer cleanup()

	require.NoError(t, s.DeadLetter(context.Background(), "dev-A",
		state.Payload{Turn: "on"}, store.ReasonMissingIP, 0))

	resp, err := http.Get(ts.URL + "/deadletters")
	require.NoError(t, err)
	defer resp.Body.Close()

	var letters []models.DeadLetter
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&letters))
	require.Len(t, letters, 1)
	assert.Equal(t, store.ReasonMissingIP, letters[0].Reason)
}

func TestMetricsEndpoint(t *testing.T) {
	ts, _, _, cleanup := newTestServer(t)
	defer cleanup()

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestDMXSocketStreamsFrames(t *testing.T) {
	ts, _, bus, cleanup := newTestServer(t)
	defer cleanup()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/dmx"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	frame := &ingest.Frame{
		SourceID: "sacn-test-u1",
		Protocol: ingest.ProtocolSACN,
		Universe: 1,
		Priority: 100,
		Sequence: 9,
	}
	frame.Data[0] = 255

	// The subscription races the dial; publish until one lands.
	received := make(chan map[string]interface{}, 1)
	go func() {
		var msg map[string]interface{}
		if err := conn.ReadJSON(&msg); err == nil {
			received <- msg
		}
	}()

	deadline := time.After(2 * time.Second)
	for {
		bus.Publish(pubsub.TopicDMXOutput, frame)
		select {
		case msg := <-received:
			assert.Equal(t, float64(1), msg["universe"])
			assert.Equal(t, "sacn", msg["protocol"])
			assert.Equal(t, float64(100), msg["priority"])
			data, err := base64.StdEncoding.DecodeString(msg["data"].(string))
			require.NoError(t, err)
			require.Len(t, data, 512)
			assert.Equal(t, byte(255), data[0])
			return
		case <-deadline:
			t.Fatal("timed out waiting for DMX monitor frame")
		case <-time.After(10 * time.Millisecond):
		}
	}
}
