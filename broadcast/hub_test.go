// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package broadcast_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Azure/iot-operations-sdks/go/sensorview/broadcast"
	"github.com/Azure/iot-operations-sdks/go/sensorview/internal/wallclock/wallclocktest"
	"github.com/Azure/iot-operations-sdks/go/sensorview/sensor"
	"github.com/Azure/iot-operations-sdks/go/sensorview/throttle"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

type fractions struct {
	mu     sync.Mutex
	values []float64
}

func (f *fractions) ReportVisibility(fraction float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values = append(f.values, fraction)
}

func (f *fractions) last() (float64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.values) == 0 {
		return 0, false
	}
	return f.values[len(f.values)-1], true
}

func (f *fractions) lastIs(want float64) func() bool {
	return func() bool {
		got, ok := f.last()
		return ok && got == want
	}
}

func serve(t *testing.T, hub *broadcast.Hub) string {
	r := mux.NewRouter()
	hub.Route(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	t.Cleanup(hub.Close)
	return srv.URL
}

func dial(t *testing.T, base, channel string) *websocket.Conn {
	url := "ws" + strings.TrimPrefix(base, "http") + "/ws/" + channel
	conn, res, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, res.StatusCode)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readView(t *testing.T, conn *websocket.Conn) sensor.View {
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var v sensor.View
	require.NoError(t, conn.ReadJSON(&v))
	return v
}

func snapshot(seq uint64, xs ...float64) throttle.Snapshot[sensor.Sample] {
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := throttle.Snapshot[sensor.Sample]{Seq: seq, EmittedAt: at}
	for i, x := range xs {
		s.Events = append(s.Events, throttle.Event[sensor.Sample]{
			Payload:   sensor.Sample{X: x},
			Timestamp: at.Add(time.Duration(i) * time.Millisecond),
		})
	}
	return s
}

func TestNewClientsReceiveHistoryFirst(t *testing.T) {
	hub := broadcast.NewHub()
	ch, err := hub.Add("accel", sensor.Accelerometer, broadcast.WithHistory(2))
	require.NoError(t, err)
	base := serve(t, hub)

	ch.Consume(snapshot(1, 1))
	ch.Consume(snapshot(2, 2))
	ch.Consume(snapshot(3, 3))

	conn := dial(t, base, "accel")
	require.Equal(t, uint64(2), readView(t, conn).Seq)
	require.Equal(t, uint64(3), readView(t, conn).Seq)

	require.Eventually(t, func() bool { return ch.Clients() == 1 },
		5*time.Second, 10*time.Millisecond)
	ch.Consume(snapshot(4, 4, 5))

	live := readView(t, conn)
	require.Equal(t, uint64(4), live.Seq)
	require.Equal(t, sensor.Accelerometer, live.Kind)
	require.Equal(t, 2, live.Count)
	require.Equal(t, 5.0, live.X.Max)
}

func TestVisibilityFollowsClients(t *testing.T) {
	hub := broadcast.NewHub()
	ch, err := hub.Add("fused", sensor.Fused)
	require.NoError(t, err)
	base := serve(t, hub)

	var f fractions
	ch.Attach(&f)
	got, ok := f.last()
	require.True(t, ok)
	require.Zero(t, got)

	first := dial(t, base, "fused")
	require.Eventually(t, f.lastIs(1), 5*time.Second, 10*time.Millisecond)

	require.NoError(t, first.WriteJSON(map[string]float64{"visibility": 0.05}))
	require.Eventually(t, f.lastIs(0.05), 5*time.Second, 10*time.Millisecond)

	// The most visible client wins.
	second := dial(t, base, "fused")
	require.Eventually(t, f.lastIs(1), 5*time.Second, 10*time.Millisecond)
	require.NoError(t, second.WriteJSON(map[string]float64{"visibility": 0.02}))
	require.Eventually(t, f.lastIs(0.05), 5*time.Second, 10*time.Millisecond)

	// Unrelated messages are ignored.
	require.NoError(t, second.WriteMessage(websocket.TextMessage, []byte("hello")))

	require.NoError(t, first.Close())
	require.Eventually(t, f.lastIs(0.02), 5*time.Second, 10*time.Millisecond)
	require.NoError(t, second.Close())
	require.Eventually(t, f.lastIs(0), 5*time.Second, 10*time.Millisecond)
}

func TestAggregatorDrivesChannel(t *testing.T) {
	hub := broadcast.NewHub()
	ch, err := hub.Add("gyro", sensor.Gyroscope)
	require.NoError(t, err)
	base := serve(t, hub)

	agg, err := throttle.New[sensor.Sample](ch, throttle.WithDelay(time.Hour))
	require.NoError(t, err)
	defer agg.Close()

	ch.Attach(agg)
	require.False(t, agg.Visible())

	// Nobody is watching, so the sample is ignored.
	agg.OnEvent(sensor.Sample{X: 100})
	require.Zero(t, agg.Len())

	conn := dial(t, base, "gyro")
	require.Eventually(t, agg.Visible, 5*time.Second, 10*time.Millisecond)

	agg.OnEvent(sensor.Sample{X: 1})
	agg.OnEvent(sensor.Sample{X: 2})
	agg.Tick()

	v := readView(t, conn)
	require.Equal(t, uint64(1), v.Seq)
	require.Equal(t, sensor.Gyroscope, v.Kind)
	require.Equal(t, 2, v.Count)
	require.Equal(t, sensor.Range{Min: 1, Max: 2}, v.X)

	require.NoError(t, conn.WriteJSON(map[string]float64{"visibility": 0}))
	require.Eventually(t, func() bool { return !agg.Visible() },
		5*time.Second, 10*time.Millisecond)
}

func TestHistoryEndpoints(t *testing.T) {
	hub := broadcast.NewHub()
	ch, err := hub.Add("accel", sensor.Accelerometer)
	require.NoError(t, err)
	_, err = hub.Add("gyro", sensor.Gyroscope)
	require.NoError(t, err)
	base := serve(t, hub)

	ch.Consume(snapshot(7, 1, 2, 3))

	res, err := http.Get(base + "/channels")
	require.NoError(t, err)
	var names []string
	require.NoError(t, json.NewDecoder(res.Body).Decode(&names))
	require.NoError(t, res.Body.Close())
	require.Equal(t, []string{"accel", "gyro"}, names)

	res, err = http.Get(base + "/channels/accel/history")
	require.NoError(t, err)
	var views []sensor.View
	require.NoError(t, json.NewDecoder(res.Body).Decode(&views))
	require.NoError(t, res.Body.Close())
	require.Len(t, views, 1)
	require.Equal(t, uint64(7), views[0].Seq)
	require.Equal(t, 3, views[0].Count)

	res, err = http.Get(base + "/channels/baro/history")
	require.NoError(t, err)
	require.NoError(t, res.Body.Close())
	require.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestUnknownChannelIsNotFound(t *testing.T) {
	base := serve(t, broadcast.NewHub())

	url := "ws" + strings.TrimPrefix(base, "http") + "/ws/baro"
	_, res, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, res)
	require.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestCloseDisconnectsClients(t *testing.T) {
	hub := broadcast.NewHub()
	ch, err := hub.Add("accel", sensor.Accelerometer)
	require.NoError(t, err)
	base := serve(t, hub)

	conn := dial(t, base, "accel")
	require.Eventually(t, func() bool { return ch.Clients() == 1 },
		5*time.Second, 10*time.Millisecond)

	ch.Close()
	require.Zero(t, ch.Clients())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err = conn.ReadMessage()
	require.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))
}

func TestAddValidates(t *testing.T) {
	hub := broadcast.NewHub()

	_, err := hub.Add("", sensor.Fused)
	require.Error(t, err)

	_, err = hub.Add("fused", sensor.Fused, broadcast.WithHistory(0))
	var cfgErr *throttle.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)

	_, err = hub.Add("fused", sensor.Fused)
	require.NoError(t, err)
	_, err = hub.Add("fused", sensor.Fused)
	require.Error(t, err)
}

func TestWriteDeadlineFollowsWallClock(t *testing.T) {
	// A clock stuck in the past puts every write deadline behind real time.
	wallclocktest.NewManual(wallclocktest.Epoch).Install(t)

	hub := broadcast.NewHub()
	ch, err := hub.Add("accel", sensor.Accelerometer)
	require.NoError(t, err)
	base := serve(t, hub)
	ch.Consume(snapshot(1, 1))

	conn := dial(t, base, "accel")
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var v sensor.View
	require.Error(t, conn.ReadJSON(&v))
}
