// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package broadcast

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/Azure/iot-operations-sdks/go/sensorview/internal/wallclock"
	"github.com/Azure/iot-operations-sdks/go/sensorview/sensor"
	"github.com/Azure/iot-operations-sdks/go/sensorview/throttle"
	"github.com/gorilla/websocket"
)

type (
	// Visibility receives the on-screen fraction of a channel's viewers.
	// *throttle.Aggregator satisfies it.
	Visibility interface {
		ReportVisibility(fraction float64)
	}

	// Channel renders the snapshots of one sensor stream as views and fans
	// them out to its websocket clients. It implements
	// throttle.Consumer[sensor.Sample].
	Channel struct {
		name         string
		viewer       *sensor.Viewer
		history      *throttle.History[sensor.View]
		opts         ChannelOptions
		writeTimeout time.Duration
		logger       logger

		mu      sync.Mutex
		clients map[*client]struct{}
		target  Visibility
		closed  bool
	}

	client struct {
		conn     *websocket.Conn
		remote   string
		send     chan []byte
		fraction float64
	}

	// Message sent by clients to report how much of the view is on-screen.
	visibilityMessage struct {
		Visibility *float64 `json:"visibility"`
	}
)

// Name returns the channel name.
func (c *Channel) Name() string {
	return c.name
}

// Kind returns the sensor kind rendered by the channel.
func (c *Channel) Kind() sensor.Kind {
	return c.viewer.Kind()
}

// History returns the retained views, oldest first.
func (c *Channel) History() []sensor.View {
	return c.history.Values()
}

// Clients returns the number of connected clients.
func (c *Channel) Clients() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.clients)
}

// Attach sets the target that visibility changes are reported to and reports
// the current visibility immediately. With no clients connected the channel
// is reported as fully hidden.
func (c *Channel) Attach(target Visibility) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.target = target
	c.reportLocked()
}

// Consume renders a snapshot, retains it for replay and sends it to every
// connected client. Clients whose queue is full miss the view.
func (c *Channel) Consume(snap throttle.Snapshot[sensor.Sample]) {
	ctx := context.Background()

	view := c.viewer.View(snap)
	data, err := json.Marshal(view)
	if err != nil {
		c.logger.Err(ctx, err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.history.Push(view)
	for cl := range c.clients {
		select {
		case cl.send <- data:
		default:
			c.logger.lagging(ctx, cl.remote, view.Seq)
		}
	}
}

// Close disconnects every client and stops accepting new ones.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	for cl := range c.clients {
		c.removeLocked(cl)
	}
	c.reportLocked()
}

// Serve a websocket client until it disconnects.
func (c *Channel) serve(ctx context.Context, conn *websocket.Conn) {
	cl := &client{
		conn:     conn,
		remote:   conn.RemoteAddr().String(),
		send:     make(chan []byte, c.opts.History+c.opts.SendBuffer),
		fraction: 1,
	}
	if !c.join(ctx, cl) {
		_ = conn.Close()
		return
	}

	go c.write(cl)
	c.read(ctx, cl)
	c.leave(ctx, cl)
}

func (c *Channel) join(ctx context.Context, cl *client) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}

	// Queue the replay before registering so that no live view can be sent
	// ahead of it.
	for _, view := range c.history.Values() {
		data, err := json.Marshal(view)
		if err != nil {
			c.logger.Err(ctx, err)
			continue
		}
		cl.send <- data
	}

	c.clients[cl] = struct{}{}
	if c.opts.Clients != nil {
		c.opts.Clients.Inc()
	}
	c.logger.joined(ctx, cl.remote, len(c.clients))
	c.reportLocked()
	return true
}

func (c *Channel) leave(ctx context.Context, cl *client) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.clients[cl]; !ok {
		return
	}
	c.removeLocked(cl)
	c.logger.left(ctx, cl.remote, len(c.clients))
	c.reportLocked()
}

func (c *Channel) read(ctx context.Context, cl *client) {
	for {
		_, data, err := cl.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg visibilityMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.badMessage(ctx, cl.remote, err)
			continue
		}
		if msg.Visibility == nil {
			continue
		}

		c.mu.Lock()
		if _, ok := c.clients[cl]; ok {
			cl.fraction = *msg.Visibility
			c.reportLocked()
		}
		c.mu.Unlock()
	}
}

func (c *Channel) write(cl *client) {
	defer cl.conn.Close()

	for data := range cl.send {
		_ = cl.conn.SetWriteDeadline(wallclock.Instance.Now().Add(c.writeTimeout))
		if err := cl.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}

	_ = cl.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		wallclock.Instance.Now().Add(c.writeTimeout),
	)
}

// Must be called with the lock held.
func (c *Channel) removeLocked(cl *client) {
	delete(c.clients, cl)
	close(cl.send)
	if c.opts.Clients != nil {
		c.opts.Clients.Dec()
	}
}

// Report the largest on-screen fraction across clients. Must be called with
// the lock held.
func (c *Channel) reportLocked() {
	if c.target == nil {
		return
	}
	var fraction float64
	for cl := range c.clients {
		fraction = max(fraction, cl.fraction)
	}
	c.target.ReportVisibility(fraction)
}
