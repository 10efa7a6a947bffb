package layout

import "fmt"

// Render sections of the sensor render buffer, in stored order. Each section
// holds totalVehicles x 4 floats (two xy points per vehicle): the start/end
// pair is a zone's front corners (FL, FR), the other pair its side corners
// (SL, SR); the final body section holds the body rear corners (BL, BR).
const (
	SectionZone0StartEnd = iota
	SectionZone0Other
	SectionZone1StartEnd
	SectionZone1Other
	SectionZone2StartEnd
	SectionZone2Other
	SectionBodyOther
	NumRenderSections
)

// FloatsPerSectionVehicle is the per-vehicle float count inside one section.
const FloatsPerSectionVehicle = 4

// VehicleRenderStride is the per-vehicle float count of the vehicle render
// buffer: x, y, z, rotation.
const VehicleRenderStride = 4

// RenderFabSlice is one fab's contiguous slot range inside every section of
// the continuous render layout.
type RenderFabSlice struct {
	FabID             string
	VehicleStartIndex int
	NumVehicles       int
	OffsetX, OffsetY  float32 // fab world translation; render emission does not read it
}

// RenderLayout is the renderer-facing continuous packing, computed after
// initialization once actual per-fab vehicle counts are known. It is
// independent of the worker layout.
type RenderLayout struct {
	TotalVehicles int
	Fabs          []RenderFabSlice

	byFab map[string]int
}

// ComputeRender packs fabs back to back by actual vehicle count, in the
// given order.
func ComputeRender(fabs []RenderFabSlice) (*RenderLayout, error) {
	rl := &RenderLayout{byFab: make(map[string]int, len(fabs))}
	start := 0
	for _, f := range fabs {
		if f.NumVehicles < 0 {
			return nil, fmt.Errorf("layout: negative vehicle count for fab %q", f.FabID)
		}
		f.VehicleStartIndex = start
		rl.byFab[f.FabID] = len(rl.Fabs)
		rl.Fabs = append(rl.Fabs, f)
		start += f.NumVehicles
	}
	rl.TotalVehicles = start
	return rl, nil
}

// Fab returns the render slice for a fab id.
func (rl *RenderLayout) Fab(fabID string) (RenderFabSlice, bool) {
	i, ok := rl.byFab[fabID]
	if !ok {
		return RenderFabSlice{}, false
	}
	return rl.Fabs[i], true
}

// SensorFloats is the total float32 length of the sensor render buffer.
func (rl *RenderLayout) SensorFloats() int {
	return NumRenderSections * rl.TotalVehicles * FloatsPerSectionVehicle
}

// VehicleFloats is the total float32 length of the vehicle render buffer.
func (rl *RenderLayout) VehicleFloats() int {
	return rl.TotalVehicles * VehicleRenderStride
}

// SectionBase returns the float offset where a section starts.
func (rl *RenderLayout) SectionBase(section int) int {
	return section * rl.TotalVehicles * FloatsPerSectionVehicle
}

// FabSectionBase returns the float offset of a fab's slice inside a section.
func (rl *RenderLayout) FabSectionBase(section int, slice RenderFabSlice) int {
	return rl.SectionBase(section) + slice.VehicleStartIndex*FloatsPerSectionVehicle
}
