// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Package sensor defines the typed sensor samples carried through the
// aggregation pipeline and the view model derived from their snapshots.
package sensor

import (
	"fmt"
	"math"

	"github.com/Azure/iot-operations-sdks/go/sensorview/iso"
)

type (
	// Kind identifies the sensor channel a sample belongs to.
	Kind byte

	// Sample is a single three-axis reading.
	Sample struct {
		Kind      Kind         `json:"kind"`
		Timestamp iso.DateTime `json:"timestamp"`
		X         float64      `json:"x"`
		Y         float64      `json:"y"`
		Z         float64      `json:"z"`
	}
)

// The defined sensor kinds.
const (
	Accelerometer Kind = iota
	Gyroscope
	Fused
)

var kindNames = [...]string{
	Accelerometer: "accelerometer",
	Gyroscope:     "gyroscope",
	Fused:         "fused",
}

// Kinds returns all defined sensor kinds.
func Kinds() []Kind {
	return []Kind{Accelerometer, Gyroscope, Fused}
}

// ParseKind returns the kind with the given name.
func ParseKind(name string) (Kind, error) {
	for k, n := range kindNames {
		if n == name {
			return Kind(k), nil
		}
	}
	return 0, fmt.Errorf("unknown sensor kind %q", name)
}

// String returns the name of the kind.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", byte(k))
}

// MarshalText marshals the kind to its name.
func (k Kind) MarshalText() ([]byte, error) {
	if int(k) >= len(kindNames) {
		return nil, fmt.Errorf("unknown sensor kind %d", byte(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText unmarshals the kind from its name.
func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Magnitude returns the Euclidean norm of the sample.
func (s Sample) Magnitude() float64 {
	return math.Sqrt(s.X*s.X + s.Y*s.Y + s.Z*s.Z)
}
