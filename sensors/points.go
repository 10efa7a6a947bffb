package sensors

// Sensor record layout, per vehicle, in float32 slots (40 total):
// zone z in 0..2 at base z*12, points in order FL FR SL SR BL BR, each (x,y);
// body front corners at slots 36..39. The body rear corners are stored in
// every zone's BL/BR pair (the renderer reads zone 0's).
const (
	ptFL = 0
	ptFR = 2
	ptSL = 4
	ptSR = 6
	ptBL = 8
	ptBR = 10

	zoneStride = 12
	offBodyFL  = 36
	offBodyFR  = 38
)

// UpdatePoints rewrites a vehicle's sensor record from pose and preset.
// sen must be the vehicle's SensorDataSize slice.
func UpdatePoints(sen []float32, x, y, rotation float32, p *Preset) {
	fx := fastCos(rotation)
	fy := fastSin(rotation)
	// Left normal of the forward direction.
	lx := -fy
	ly := fx

	halfLen := p.BodyLength / 2
	halfWid := p.BodyWidth / 2

	// Body rear corners, shared into every zone's BL/BR.
	rearX := x - fx*halfLen
	rearY := y - fy*halfLen
	blx, bly := rearX+lx*halfWid, rearY+ly*halfWid
	brx, bry := rearX-lx*halfWid, rearY-ly*halfWid

	for z := 0; z < NumZones; z++ {
		zn := &p.Zones[z]
		base := z * zoneStride

		frontX := x + fx*zn.LeftLength
		frontY := y + fy*zn.LeftLength
		backX := x - fx*zn.RightLength
		backY := y - fy*zn.RightLength

		sen[base+ptFL] = frontX + lx*zn.SideWidth
		sen[base+ptFL+1] = frontY + ly*zn.SideWidth
		sen[base+ptFR] = frontX - lx*zn.SideWidth
		sen[base+ptFR+1] = frontY - ly*zn.SideWidth
		sen[base+ptSL] = backX + lx*zn.SideWidth
		sen[base+ptSL+1] = backY + ly*zn.SideWidth
		sen[base+ptSR] = backX - lx*zn.SideWidth
		sen[base+ptSR+1] = backY - ly*zn.SideWidth
		sen[base+ptBL] = blx
		sen[base+ptBL+1] = bly
		sen[base+ptBR] = brx
		sen[base+ptBR+1] = bry
	}

	frontX := x + fx*halfLen
	frontY := y + fy*halfLen
	sen[offBodyFL] = frontX + lx*halfWid
	sen[offBodyFL+1] = frontY + ly*halfWid
	sen[offBodyFR] = frontX - lx*halfWid
	sen[offBodyFR+1] = frontY - ly*halfWid
}

// Quad is four (x, y) corners in winding order.
type Quad [4][2]float32

// ZoneQuad extracts zone z's quad as FL, SL, SR, FR.
func ZoneQuad(sen []float32, z int) Quad {
	base := z * zoneStride
	return Quad{
		{sen[base+ptFL], sen[base+ptFL+1]},
		{sen[base+ptSL], sen[base+ptSL+1]},
		{sen[base+ptSR], sen[base+ptSR+1]},
		{sen[base+ptFR], sen[base+ptFR+1]},
	}
}

// BodyQuad extracts the body rectangle as FL, BL, BR, FR.
func BodyQuad(sen []float32) Quad {
	return Quad{
		{sen[offBodyFL], sen[offBodyFL+1]},
		{sen[ptBL], sen[ptBL+1]},
		{sen[ptBR], sen[ptBR+1]},
		{sen[offBodyFR], sen[offBodyFR+1]},
	}
}

// ZonePoints copies one zone's front (FL, FR) and side (SL, SR) pairs into
// dst slices of 4 floats each; used by the render emission.
func ZonePoints(sen []float32, z int, startEnd, other []float32) {
	base := z * zoneStride
	startEnd[0] = sen[base+ptFL]
	startEnd[1] = sen[base+ptFL+1]
	startEnd[2] = sen[base+ptFR]
	startEnd[3] = sen[base+ptFR+1]
	other[0] = sen[base+ptSL]
	other[1] = sen[base+ptSL+1]
	other[2] = sen[base+ptSR]
	other[3] = sen[base+ptSR+1]
}

// BodyPoints copies the body rear pair (zone 0's BL, BR) into dst.
func BodyPoints(sen []float32, dst []float32) {
	dst[0] = sen[ptBL]
	dst[1] = sen[ptBL+1]
	dst[2] = sen[ptBR]
	dst[3] = sen[ptBR+1]
}
