package engine

import (
	"github.com/pthm-cable/railsim/layout"
	"github.com/pthm-cable/railsim/sensors"
)

// emitRender writes the fab's slice of the continuous render buffers: pose
// per vehicle plus the sectioned sensor corner pairs, with the fab's world
// offset applied to every x/y. Offsets live only here, never in sim state.
func (f *FabContext) emitRender() {
	if f.renderLayout == nil {
		return
	}

	var startEnd, other, body [4]float32

	for v := 0; v < f.numVehicles; v++ {
		slot := f.renderSlice.VehicleStartIndex + v

		x, y, z := f.st.Position(v)
		base := slot * layout.VehicleRenderStride
		f.renderVeh[base] = x + f.offsetX
		f.renderVeh[base+1] = y + f.offsetY
		f.renderVeh[base+2] = z
		f.renderVeh[base+3] = f.st.Rotation(v)

		sen := f.st.SensorSlice(v)
		for zone := 0; zone < sensors.NumZones; zone++ {
			sensors.ZonePoints(sen, zone, startEnd[:], other[:])
			f.writePair(2*zone, slot, &startEnd)
			f.writePair(2*zone+1, slot, &other)
		}
		sensors.BodyPoints(sen, body[:])
		f.writePair(layout.SectionBodyOther, slot, &body)
	}
}

// writePair stores two translated (x, y) points into one section slot.
func (f *FabContext) writePair(section, slot int, pts *[4]float32) {
	base := f.renderLayout.SectionBase(section) + slot*layout.FloatsPerSectionVehicle
	f.renderSen[base] = pts[0] + f.offsetX
	f.renderSen[base+1] = pts[1] + f.offsetY
	f.renderSen[base+2] = pts[2] + f.offsetX
	f.renderSen[base+3] = pts[3] + f.offsetY
}
