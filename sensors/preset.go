// Package sensors derives the per-vehicle sensor geometry (three nested
// zone quadrilaterals plus the body rectangle) from pose and preset, and
// provides the SAT overlap kernel the collision pipeline runs on.
package sensors

import (
	"github.com/pthm-cable/railsim/config"
	"github.com/pthm-cable/railsim/rail"
)

// Zone indices, outer to inner.
const (
	ZoneApproach = 0
	ZoneBrake    = 1
	ZoneStop     = 2
	NumZones     = 3
)

// Zone holds one zone's reach and the deceleration applied on a hit.
type Zone struct {
	LeftLength  float32 // forward reach from the vehicle origin
	RightLength float32 // rearward reach
	SideWidth   float32 // half width
	Dec         float32 // negative; -Inf means hard stop
	MinSpeed    float32 // below this the zone stops decelerating
}

// Preset is one resolved sensor configuration.
type Preset struct {
	Name       string
	Zones      [NumZones]Zone
	BodyLength float32
	BodyWidth  float32
}

// Table is the resolved preset list plus the kind-based selection indices.
type Table struct {
	Presets    []Preset
	linearIdx  int32
	curveLeft  int32
	curveRight int32
}

// BuildTable resolves the config preset list. Config validation guarantees
// the three named presets exist and carry exactly three zones.
func BuildTable(cfg *config.Config) *Table {
	t := &Table{Presets: make([]Preset, len(cfg.Sensors.Presets))}
	for i, pc := range cfg.Sensors.Presets {
		p := Preset{
			Name:       pc.Name,
			BodyLength: float32(cfg.Vehicle.BodyLength),
			BodyWidth:  float32(cfg.Vehicle.BodyWidth),
		}
		for z := 0; z < NumZones; z++ {
			p.Zones[z] = Zone{
				LeftLength:  float32(pc.Zones[z].LeftLength),
				RightLength: float32(pc.Zones[z].RightLength),
				SideWidth:   float32(pc.Zones[z].SideWidth),
				Dec:         float32(pc.Zones[z].Dec),
				MinSpeed:    float32(pc.Zones[z].MinSpeed),
			}
		}
		t.Presets[i] = p
	}
	t.linearIdx = int32(cfg.Derived.PresetIndex["linear"])
	t.curveLeft = int32(cfg.Derived.PresetIndex["curve_left"])
	t.curveRight = int32(cfg.Derived.PresetIndex["curve_right"])
	return t
}

// ForEdge selects the preset index for an edge by kind and curve direction.
func (t *Table) ForEdge(e *rail.Edge) int32 {
	if !e.IsCurve() {
		return t.linearIdx
	}
	if e.CurveDir == rail.DirRight {
		return t.curveRight
	}
	return t.curveLeft
}

// At returns the preset at idx, clamping invalid indices to the linear one.
func (t *Table) At(idx int32) *Preset {
	if idx < 0 || int(idx) >= len(t.Presets) {
		return &t.Presets[t.linearIdx]
	}
	return &t.Presets[idx]
}
