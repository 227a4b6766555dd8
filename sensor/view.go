// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package sensor

import (
	"encoding/binary"
	"math"
	"sync"
	"time"

	"github.com/Azure/iot-operations-sdks/go/sensorview/iso"
	"github.com/Azure/iot-operations-sdks/go/sensorview/throttle"
	"github.com/cespare/xxhash/v2"
)

type (
	// Range is the minimum and maximum of a series.
	Range struct {
		Min float64 `json:"min"`
		Max float64 `json:"max"`
	}

	// Summary holds the display values derived from a batch of samples.
	Summary struct {
		Count  int      `json:"count"`
		Rate   float64  `json:"rate"`
		Latest *Sample  `json:"latest,omitempty"`
		X      Range    `json:"x"`
		Y      Range    `json:"y"`
		Z      Range    `json:"z"`
		Series []float64 `json:"series"`
	}

	// View is the render-ready form of a snapshot.
	View struct {
		Kind      Kind         `json:"kind"`
		Seq       uint64       `json:"seq"`
		Ingested  uint64       `json:"ingested"`
		Evicted   uint64       `json:"evicted"`
		EmittedAt iso.DateTime `json:"emitted_at"`
		Summary
	}

	// Viewer converts snapshots to views, recomputing the summary only when
	// the batch content changes.
	Viewer struct {
		kind Kind

		mu         sync.Mutex
		digest     uint64
		valid      bool
		summary    Summary
		recomputed int
	}
)

// Summarize derives the display values of a batch of samples. The series is
// the min/max-normalised magnitude of each sample in arrival order.
func Summarize(events []throttle.Event[Sample]) Summary {
	s := Summary{Count: len(events), Series: []float64{}}
	if len(events) == 0 {
		return s
	}

	first, last := events[0], events[len(events)-1]
	s.Rate = throttle.Rate(len(events), last.Timestamp.Sub(first.Timestamp))

	latest := last.Payload
	s.Latest = &latest

	xs := make([]float64, len(events))
	ys := make([]float64, len(events))
	zs := make([]float64, len(events))
	mags := make([]float64, len(events))
	for i, e := range events {
		xs[i], ys[i], zs[i] = e.Payload.X, e.Payload.Y, e.Payload.Z
		mags[i] = e.Payload.Magnitude()
	}

	s.X, s.Y, s.Z = rangeOf(xs), rangeOf(ys), rangeOf(zs)
	s.Series = Normalize(mags)
	return s
}

// Normalize scales values linearly into [0, 1] by their minimum and maximum.
// A flat series normalises to zeros.
func Normalize(values []float64) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}

	r := rangeOf(values)
	span := r.Max - r.Min
	if span == 0 || math.IsNaN(span) || math.IsInf(span, 0) {
		return out
	}
	for i, v := range values {
		out[i] = (v - r.Min) / span
	}
	return out
}

// Digest returns a content hash of a batch, covering arrival times and
// payloads.
func Digest(events []throttle.Event[Sample]) uint64 {
	d := xxhash.New()
	buf := make([]byte, 0, 40)
	for _, e := range events {
		buf = buf[:0]
		buf = binary.LittleEndian.AppendUint64(buf, uint64(e.Timestamp.UnixNano()))
		buf = binary.LittleEndian.AppendUint64(buf,
			uint64(time.Time(e.Payload.Timestamp).UnixNano()))
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(e.Payload.X))
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(e.Payload.Y))
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(e.Payload.Z))
		_, _ = d.Write(buf)
	}
	return d.Sum64()
}

// NewViewer creates a viewer for the given sensor kind.
func NewViewer(kind Kind) *Viewer {
	return &Viewer{kind: kind}
}

// Kind returns the sensor kind of the views.
func (v *Viewer) Kind() Kind {
	return v.kind
}

// View converts a snapshot into a view.
func (v *Viewer) View(snap throttle.Snapshot[Sample]) View {
	digest := Digest(snap.Events)

	v.mu.Lock()
	if !v.valid || v.digest != digest {
		v.summary = Summarize(snap.Events)
		v.digest = digest
		v.valid = true
		v.recomputed++
	}
	summary := v.summary
	v.mu.Unlock()

	return View{
		Kind:      v.kind,
		Seq:       snap.Seq,
		Ingested:  snap.Ingested,
		Evicted:   snap.Evicted,
		EmittedAt: iso.DateTime(snap.EmittedAt),
		Summary:   summary,
	}
}

// Recomputed returns how many times the summary has been recomputed.
func (v *Viewer) Recomputed() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.recomputed
}

func rangeOf(values []float64) Range {
	r := Range{Min: values[0], Max: values[0]}
	for _, v := range values[1:] {
		r.Min = min(r.Min, v)
		r.Max = max(r.Max, v)
	}
	return r
}
