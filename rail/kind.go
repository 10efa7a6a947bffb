package rail

import "fmt"

// Kind is the closed set of edge geometries. The engine only branches on
// IsCurve, and preset selection only on IsCurve and CurveDir; the concrete
// curve family is carried into checkpoints and matters for hosts that
// generate polylines.
type Kind int

const (
	KindLinear Kind = iota
	KindCurve90
	KindCurve180
	KindCurveCSC
	KindSCurve
	KindCSCHomo
)

var kindNames = map[Kind]string{
	KindLinear:   "LINEAR",
	KindCurve90:  "CURVE_90",
	KindCurve180: "CURVE_180",
	KindCurveCSC: "CURVE_CSC",
	KindSCurve:   "S_CURVE",
	KindCSCHomo:  "CSC_HOMO",
}

var kindValues = func() map[string]Kind {
	m := make(map[string]Kind, len(kindNames))
	for k, n := range kindNames {
		m[n] = k
	}
	return m
}()

// ParseKind maps a rail-type string to a Kind. Unknown or empty strings are
// an error; ambiguity is resolved at build time, never in the tick loop.
func ParseKind(s string) (Kind, error) {
	k, ok := kindValues[s]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownEdgeKind, s)
	}
	return k, nil
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// IsCurve reports whether the kind is any of the curve families.
func (k Kind) IsCurve() bool {
	return k != KindLinear
}

// CurveDir is the turning direction of a curve edge, derived from its
// polyline at build time. Linear edges are DirNone.
type CurveDir int

const (
	DirNone CurveDir = iota
	DirLeft
	DirRight
)

// Axis is the dominant travel axis of a linear edge.
type Axis int

const (
	AxisX Axis = iota
	AxisY
)

// ParseAxis maps "x"/"y" to an Axis.
func ParseAxis(s string) (Axis, error) {
	switch s {
	case "x", "X", "":
		return AxisX, nil
	case "y", "Y":
		return AxisY, nil
	default:
		return 0, fmt.Errorf("unknown edge axis %q", s)
	}
}
