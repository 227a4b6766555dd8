// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Package broadcast serves rendered sensor views to websocket clients and
// reports how much of each view is on-screen back to its aggregator.
package broadcast

import (
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"sync"

	"github.com/Azure/iot-operations-sdks/go/sensorview/internal/log"
	"github.com/Azure/iot-operations-sdks/go/sensorview/sensor"
	"github.com/Azure/iot-operations-sdks/go/sensorview/throttle"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// Hub owns the named channels and their HTTP routes.
type Hub struct {
	opts     HubOptions
	upgrader websocket.Upgrader
	logger   logger

	mu       sync.RWMutex
	channels map[string]*Channel
	names    []string
}

// NewHub creates an empty hub.
func NewHub(opt ...HubOption) *Hub {
	opts := HubOptions{WriteTimeout: DefaultWriteTimeout}
	opts.Apply(opt)

	h := &Hub{
		opts:     opts,
		logger:   logger{Logger: log.Wrap(opts.Logger)},
		channels: map[string]*Channel{},
	}
	if opts.CheckOrigin != nil {
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			return opts.CheckOrigin(r.Header.Get("Origin"))
		}
	}
	return h
}

// Add creates a channel rendering views of the given sensor kind.
func (h *Hub) Add(
	name string,
	kind sensor.Kind,
	opt ...ChannelOption,
) (*Channel, error) {
	opts := ChannelOptions{
		History:    DefaultHistory,
		SendBuffer: DefaultSendBuffer,
		Logger:     h.opts.Logger,
	}
	opts.Apply(opt)

	if name == "" {
		return nil, &throttle.ConfigurationError{
			Message:       "channel name must not be empty",
			PropertyName:  "name",
			PropertyValue: name,
		}
	}
	if opts.SendBuffer < 0 {
		return nil, &throttle.ConfigurationError{
			Message:       "send buffer must not be negative",
			PropertyName:  "SendBuffer",
			PropertyValue: opts.SendBuffer,
		}
	}
	history, err := throttle.NewHistory[sensor.View](opts.History)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.channels[name]; ok {
		return nil, fmt.Errorf("channel %q already exists", name)
	}
	c := &Channel{
		name:         name,
		viewer:       sensor.NewViewer(kind),
		history:      history,
		opts:         opts,
		writeTimeout: h.opts.WriteTimeout,
		logger:       logger{log.Wrap(opts.Logger), name},
		clients:      map[*client]struct{}{},
	}
	h.channels[name] = c
	h.names = append(h.names, name)
	return c, nil
}

// Channel returns the named channel.
func (h *Hub) Channel(name string) (*Channel, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.channels[name]
	return c, ok
}

// Names returns the channel names in the order they were added.
func (h *Hub) Names() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return slices.Clone(h.names)
}

// Route registers the hub's endpoints on the router:
//
//	GET /ws/{channel}                live views over a websocket
//	GET /channels                    channel names
//	GET /channels/{channel}/history  retained views
func (h *Hub) Route(r *mux.Router) {
	r.HandleFunc("/ws/{channel}", h.serveWS).Methods(http.MethodGet)
	r.HandleFunc("/channels", h.serveNames).Methods(http.MethodGet)
	r.HandleFunc("/channels/{channel}/history", h.serveHistory).
		Methods(http.MethodGet)
}

// Close closes every channel.
func (h *Hub) Close() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.channels {
		c.Close()
	}
}

func (h *Hub) lookup(w http.ResponseWriter, r *http.Request) (*Channel, bool) {
	c, ok := h.Channel(mux.Vars(r)["channel"])
	if !ok {
		http.Error(w, "unknown channel", http.StatusNotFound)
	}
	return c, ok
}

func (h *Hub) serveWS(w http.ResponseWriter, r *http.Request) {
	c, ok := h.lookup(w, r)
	if !ok {
		return
	}

	// The upgrader writes the HTTP error response itself.
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn(r.Context(), err)
		return
	}
	c.serve(r.Context(), conn)
}

func (h *Hub) serveNames(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, h.Names())
}

func (h *Hub) serveHistory(w http.ResponseWriter, r *http.Request) {
	c, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, c.History())
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
