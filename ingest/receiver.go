// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Package ingest subscribes to upstream sensor topics on an MQTT broker and
// dispatches decoded samples to per-topic handlers.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/Azure/iot-operations-sdks/go/sensorview/internal/log"
	"github.com/Azure/iot-operations-sdks/go/sensorview/internal/retry"
	"github.com/Azure/iot-operations-sdks/go/sensorview/internal/wallclock"
	"github.com/Azure/iot-operations-sdks/go/sensorview/iso"
	"github.com/Azure/iot-operations-sdks/go/sensorview/sensor"
	"github.com/eclipse/paho.golang/paho"
	"github.com/google/uuid"
)

type (
	// Handler receives every sample decoded from a route's topic. It is
	// called on the MQTT receive path and must not block.
	Handler func(sensor.Sample)

	// Route binds an MQTT topic to the sensor kind published on it.
	Route struct {
		Topic   string
		Kind    sensor.Kind
		Handler Handler
	}

	// Receiver subscribes to the routed topics and dispatches samples. Once
	// started it reconnects and resubscribes whenever the broker connection
	// is lost.
	Receiver struct {
		routes map[string]Route
		opts   ReceiverOptions
		logger logger

		mu     sync.Mutex
		client *paho.Client
		cancel context.CancelFunc
		done   chan struct{}
	}
)

// Reason codes in a CONNACK that will not improve by retrying.
var fatalConnack = map[byte]struct{}{
	0x84: {}, // Unsupported protocol version
	0x85: {}, // Client identifier not valid
	0x86: {}, // Bad user name or password
	0x87: {}, // Not authorized
	0x8A: {}, // Banned
}

// NewReceiver creates a receiver for the given routes. Topics must be unique
// and may not contain wildcards.
func NewReceiver(routes []Route, opt ...ReceiverOption) (*Receiver, error) {
	opts := ReceiverOptions{KeepAlive: defaultKeepAlive}
	opts.Apply(opt)

	if len(routes) == 0 {
		return nil, &RouteError{Message: "at least one route is required"}
	}

	r := &Receiver{
		routes: make(map[string]Route, len(routes)),
		logger: logger{log.Wrap(opts.Logger)},
	}
	for _, route := range routes {
		switch {
		case route.Topic == "":
			return nil, &RouteError{Message: "topic must not be empty"}
		case strings.ContainsAny(route.Topic, "+#"):
			return nil, &RouteError{
				Message: "topic must not contain wildcards",
				Topic:   route.Topic,
			}
		case route.Handler == nil:
			return nil, &RouteError{
				Message: "handler must not be nil",
				Topic:   route.Topic,
			}
		}
		if _, ok := r.routes[route.Topic]; ok {
			return nil, &RouteError{
				Message: "duplicate topic",
				Topic:   route.Topic,
			}
		}
		r.routes[route.Topic] = route
	}

	if opts.ClientID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return nil, err
		}
		opts.ClientID = "sensorview-" + id.String()
	}
	if opts.Retry == nil {
		opts.Retry = &retry.ExponentialBackoff{
			MaxInterval: 10 * time.Second,
			Logger:      opts.Logger,
		}
	}
	r.opts = opts
	return r, nil
}

// ClientID returns the MQTT client identifier.
func (r *Receiver) ClientID() string {
	return r.opts.ClientID
}

// Start connects to the broker at the given address, retrying per the
// receiver's policy, and subscribes to every routed topic. The connection is
// then maintained in the background until Close is called or ctx is done.
func (r *Receiver) Start(ctx context.Context, address string) error {
	network, host, err := parseAddress(address)
	if err != nil {
		return err
	}

	r.mu.Lock()
	if r.cancel != nil {
		r.mu.Unlock()
		return errors.New("receiver already started")
	}
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.mu.Unlock()

	lost, err := r.connect(ctx, network, host)
	if err != nil {
		r.mu.Lock()
		r.cancel = nil
		r.mu.Unlock()
		cancel()
		return fmt.Errorf("connect to %s: %w", address, err)
	}
	r.logger.connected(ctx, address, r.opts.ClientID)

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	r.done = make(chan struct{})
	go r.maintain(ctx, network, host, address, lost, r.done)
	return nil
}

// Connected reports whether the receiver currently holds a broker
// connection.
func (r *Receiver) Connected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.client != nil
}

// Close stops reconnection and disconnects from the broker. It is a no-op if
// the receiver was not started.
func (r *Receiver) Close() error {
	r.mu.Lock()
	cancel, done, client := r.cancel, r.done, r.client
	r.cancel, r.done, r.client = nil, nil, nil
	if cancel != nil {
		cancel()
	}
	r.mu.Unlock()

	if done != nil {
		<-done
	}
	if client == nil {
		return nil
	}
	return client.Disconnect(&paho.Disconnect{})
}

// Wait for the connection to drop, then connect again. Returns when ctx is
// done or reconnection fails permanently.
func (r *Receiver) maintain(
	ctx context.Context,
	network, host, address string,
	lost <-chan error,
	done chan<- struct{},
) {
	defer close(done)

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-lost:
			r.mu.Lock()
			if ctx.Err() != nil {
				r.mu.Unlock()
				return
			}
			r.client = nil
			r.mu.Unlock()
			r.logger.connectionLost(ctx, err)

			next, err := r.connect(ctx, network, host)
			if err != nil {
				if ctx.Err() == nil {
					r.logger.Err(ctx, fmt.Errorf("reconnect to %s: %w", address, err))
				}
				return
			}
			r.logger.reconnected(ctx, address)
			lost = next
		}
	}
}

// Dial, connect and subscribe under the retry policy. On success the client
// is recorded and the returned channel yields the error that ends the
// connection.
func (r *Receiver) connect(
	ctx context.Context,
	network, host string,
) (<-chan error, error) {
	var lost <-chan error
	err := r.opts.Retry.Start(ctx, "connect", func(
		ctx context.Context,
	) (bool, error) {
		client, l, retryable, err := r.attempt(ctx, network, host)
		if err != nil {
			return retryable, err
		}

		r.mu.Lock()
		defer r.mu.Unlock()
		if err := ctx.Err(); err != nil {
			_ = client.Disconnect(&paho.Disconnect{})
			return false, err
		}
		r.client = client
		lost = l
		return false, nil
	})
	return lost, err
}

func (r *Receiver) attempt(
	ctx context.Context,
	network, host string,
) (client *paho.Client, lost <-chan error, retryable bool, err error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, network, host)
	if err != nil {
		return nil, nil, true, err
	}

	lostC := make(chan error, 1)
	signal := func(err error) {
		select {
		case lostC <- err:
		default:
		}
	}

	c := paho.NewClient(paho.ClientConfig{
		ClientID: r.opts.ClientID,
		Conn:     conn,
		OnPublishReceived: []func(paho.PublishReceived) (bool, error){
			r.onPublish,
		},
		OnClientError: signal,
		OnServerDisconnect: func(d *paho.Disconnect) {
			signal(&DisconnectError{ReasonCode: d.ReasonCode})
		},
	})

	connack, err := c.Connect(ctx, &paho.Connect{
		ClientID:   r.opts.ClientID,
		KeepAlive:  r.opts.KeepAlive,
		CleanStart: true,
	})
	if err != nil {
		_ = conn.Close()
		if connack != nil {
			_, fatal := fatalConnack[connack.ReasonCode]
			return nil, nil, !fatal, err
		}
		return nil, nil, true, err
	}

	subs := make([]paho.SubscribeOptions, 0, len(r.routes))
	for topic := range r.routes {
		subs = append(subs, paho.SubscribeOptions{Topic: topic, QoS: r.opts.QoS})
	}
	suback, err := c.Subscribe(ctx, &paho.Subscribe{Subscriptions: subs})
	if err != nil {
		_ = c.Disconnect(&paho.Disconnect{})
		return nil, nil, true, err
	}
	for i, reason := range suback.Reasons {
		if reason >= 0x80 {
			_ = c.Disconnect(&paho.Disconnect{})
			return nil, nil, false, fmt.Errorf(
				"subscribe to %s refused with reason code %d",
				subs[i].Topic, reason)
		}
	}
	for _, sub := range subs {
		r.logger.subscribed(ctx, sub.Topic)
	}
	return c, lostC, false, nil
}

func (r *Receiver) onPublish(pub paho.PublishReceived) (bool, error) {
	ctx := context.Background()
	p := pub.Packet

	route, ok := r.routes[p.Topic]
	if !ok {
		r.logger.unrouted(ctx, p.Topic)
		return false, nil
	}

	sample, err := Decode(p.Payload)
	if err != nil {
		r.logger.Warn(ctx, &PayloadError{Topic: p.Topic, Err: err})
		return true, nil
	}

	sample.Kind = route.Kind
	if time.Time(sample.Timestamp).IsZero() {
		sample.Timestamp = iso.DateTime(wallclock.Instance.Now())
	}
	route.Handler(sample)
	return true, nil
}

// Decode parses a JSON sample payload.
func Decode(payload []byte) (sensor.Sample, error) {
	var raw struct {
		Timestamp *iso.DateTime `json:"timestamp"`
		X         *float64      `json:"x"`
		Y         *float64      `json:"y"`
		Z         *float64      `json:"z"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return sensor.Sample{}, err
	}
	if raw.X == nil || raw.Y == nil || raw.Z == nil {
		return sensor.Sample{}, errors.New("sample requires x, y and z")
	}

	s := sensor.Sample{X: *raw.X, Y: *raw.Y, Z: *raw.Z}
	if raw.Timestamp != nil {
		s.Timestamp = *raw.Timestamp
	}
	return s, nil
}

// Accept "host:port" or a URL with a tcp or mqtt scheme.
func parseAddress(address string) (network, host string, err error) {
	if !strings.Contains(address, "://") {
		return "tcp", address, nil
	}

	u, err := url.Parse(address)
	if err != nil {
		return "", "", err
	}
	switch u.Scheme {
	case "tcp", "mqtt":
		return "tcp", u.Host, nil
	default:
		return "", "", fmt.Errorf("unsupported broker scheme %q", u.Scheme)
	}
}
