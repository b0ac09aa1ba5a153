// Package domain holds the value types of the rating service: busbar
// configurations, catalog components and their configuration sets, and
// per-user daily quotas.
package domain

import (
	"fmt"
	"math"
	"strconv"
)

// MaxBusbarsPerPhase is the largest B the calculation engine accepts.
const MaxBusbarsPerPhase = 4

// Configuration is a physical busbar configuration. Every field is a whole
// number because the engine only accepts integers.
type Configuration struct {
	W     int `json:"W"`
	T     int `json:"T"`
	B     int `json:"B"`
	Angle int `json:"Angle"`
	A     int `json:"a"`
	Icc   int `json:"Icc"`
	Force int `json:"Force"`
	Poles int `json:"NbrePhase"`
}

// NewConfiguration truncates each input toward zero.
func NewConfiguration(w, t, b, angle, a, icc, force, poles float64) Configuration {
	return Configuration{
		W:     truncate(w),
		T:     truncate(t),
		B:     truncate(b),
		Angle: truncate(angle),
		A:     truncate(a),
		Icc:   truncate(icc),
		Force: truncate(force),
		Poles: truncate(poles),
	}
}

func truncate(v float64) int {
	return int(math.Trunc(v))
}

// Normalize clamps B to MaxBusbarsPerPhase. It must be applied before any
// lookup or engine call so that B=5 and B=4 share one rating.
func (c Configuration) Normalize() Configuration {
	if c.B > MaxBusbarsPerPhase {
		c.B = MaxBusbarsPerPhase
	}
	return c
}

// WithForce returns a copy of c with the given force.
func (c Configuration) WithForce(force int) Configuration {
	c.Force = force
	return c
}

// Key is the canonical cache key of the normalized configuration.
func (c Configuration) Key() string {
	n := c.Normalize()
	return fmt.Sprintf("rating:%d:%d:%d:%d:%d:%d:%d:%d",
		n.W, n.T, n.B, n.Angle, n.A, n.Icc, n.Force, n.Poles)
}

// Validate rejects configurations the engine can never rate.
func (c Configuration) Validate() error {
	switch {
	case c.W <= 0:
		return fmt.Errorf("W must be positive, got %d", c.W)
	case c.T <= 0:
		return fmt.Errorf("T must be positive, got %d", c.T)
	case c.B <= 0:
		return fmt.Errorf("B must be positive, got %d", c.B)
	case c.Poles <= 0:
		return fmt.Errorf("NbrePhase must be positive, got %d", c.Poles)
	}
	return nil
}

// QueryValues returns the engine query parameters in wire order.
func (c Configuration) QueryValues() [][2]string {
	return [][2]string{
		{"W", strconv.Itoa(c.W)},
		{"T", strconv.Itoa(c.T)},
		{"B", strconv.Itoa(c.B)},
		{"Angle", strconv.Itoa(c.Angle)},
		{"a", strconv.Itoa(c.A)},
		{"Icc", strconv.Itoa(c.Icc)},
		{"Force", strconv.Itoa(c.Force)},
		{"NbrePhase", strconv.Itoa(c.Poles)},
	}
}
