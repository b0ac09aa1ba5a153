package domain

import (
	"strconv"
	"strings"
	"time"
)

// DefaultAmini is the spacing used when a component's a_list has no usable first value.
const DefaultAmini = 60

// Component is a catalog clamp, identified by (Key, NbPhase).
type Component struct {
	Key       string    `json:"key"`
	NbPhase   int       `json:"nbphase"`
	Angle     int       `json:"angle"`
	ResMini   float64   `json:"resmini"`
	Info      string    `json:"info"`
	AList     string    `json:"a_list"`
	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// Amini returns the first admissible spacing of the component.
func (c *Component) Amini() int {
	first, _, _ := strings.Cut(c.AList, ",")
	first = strings.TrimSpace(first)
	if first == "" || strings.IndexFunc(first, func(r rune) bool { return r < '0' || r > '9' }) >= 0 {
		return DefaultAmini
	}
	v, err := strconv.Atoi(first)
	if err != nil {
		return DefaultAmini
	}
	return v
}

// Spacings returns every numeric spacing in a_list, in order.
func (c *Component) Spacings() []int {
	var out []int
	for _, part := range strings.Split(c.AList, ",") {
		if v, err := strconv.Atoi(strings.TrimSpace(part)); err == nil {
			out = append(out, v)
		}
	}
	return out
}

// Force is the applied force derived from the component's minimum resistance.
func (c *Component) Force() int {
	return truncate(c.ResMini * 10)
}

// ComponentPatch lists every field an update may change. Nil fields are left as is.
type ComponentPatch struct {
	Angle   *int     `json:"angle,omitempty"`
	ResMini *float64 `json:"resmini,omitempty"`
	Info    *string  `json:"info,omitempty"`
	AList   *string  `json:"a_list,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p ComponentPatch) Empty() bool {
	return p.Angle == nil && p.ResMini == nil && p.Info == nil && p.AList == nil
}

// Apply writes the set fields of p onto c.
func (p ComponentPatch) Apply(c *Component) {
	if p.Angle != nil {
		c.Angle = *p.Angle
	}
	if p.ResMini != nil {
		c.ResMini = *p.ResMini
	}
	if p.Info != nil {
		c.Info = *p.Info
	}
	if p.AList != nil {
		c.AList = *p.AList
	}
}
