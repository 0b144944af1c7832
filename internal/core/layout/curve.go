package layout

import (
	"fmt"
	"math"
	"strconv"
)

// minControlOffset keeps a visible bend between nearly touching columns.
const minControlOffset = 40

// Path is a cubic Bézier segment.
type Path struct {
	Start Point `json:"start"`
	C1    Point `json:"c1"`
	C2    Point `json:"c2"`
	End   Point `json:"end"`
}

// CurvePath connects the right-centre of the box at a to the left-centre of
// the box at b. Control points are pulled horizontally by 30% of the gap.
func (e *Engine) CurvePath(a, b Point) Path {
	start, end := e.RightCenter(a), e.LeftCenter(b)
	offset := math.Abs(end.X-start.X) * 0.3
	if offset < minControlOffset {
		offset = minControlOffset
	}
	return Path{
		Start: start,
		C1:    Point{X: start.X + offset, Y: start.Y},
		C2:    Point{X: end.X - offset, Y: end.Y},
		End:   end,
	}
}

// StraightPath connects the same anchors with a straight segment expressed
// as a degenerate cubic.
func (e *Engine) StraightPath(a, b Point) Path {
	start, end := e.RightCenter(a), e.LeftCenter(b)
	return Path{
		Start: start,
		C1:    lerp(start, end, 1.0/3),
		C2:    lerp(start, end, 2.0/3),
		End:   end,
	}
}

// PointAt evaluates the curve at t in [0, 1].
func (p Path) PointAt(t float64) Point {
	t = math.Max(0, math.Min(1, t))
	u := 1 - t
	a, b, c, d := u*u*u, 3*u*u*t, 3*u*t*t, t*t*t
	return Point{
		X: a*p.Start.X + b*p.C1.X + c*p.C2.X + d*p.End.X,
		Y: a*p.Start.Y + b*p.C1.Y + c*p.C2.Y + d*p.End.Y,
	}
}

// SVG renders the path as an SVG path command.
func (p Path) SVG() string {
	return fmt.Sprintf("M %s %s C %s %s, %s %s, %s %s",
		num(p.Start.X), num(p.Start.Y),
		num(p.C1.X), num(p.C1.Y),
		num(p.C2.X), num(p.C2.Y),
		num(p.End.X), num(p.End.Y))
}

func num(f float64) string {
	return strconv.FormatFloat(math.Round(f*100)/100, 'f', -1, 64)
}

func lerp(a, b Point, t float64) Point {
	return Point{X: a.X + (b.X-a.X)*t, Y: a.Y + (b.Y-a.Y)*t}
}

// EdgeState is the visual state of an edge, derived at render time.
type EdgeState string

const (
	EdgeInactive  EdgeState = "inactive"
	EdgeActive    EdgeState = "active"
	EdgeAnimating EdgeState = "animating"
)

// RunView is the part of a run state needed to derive edge visuals.
// *sequencer.RunState satisfies it.
type RunView interface {
	IsCompleted(id string) bool
	InFlightBetween(from, to string) bool
}

// EdgeVisual derives the state of the edge from -> to. A transfer in flight
// on the edge wins; otherwise the edge is active once both endpoints have
// completed and inactive until then.
func EdgeVisual(from, to string, run RunView) EdgeState {
	if run == nil {
		return EdgeInactive
	}
	if run.InFlightBetween(from, to) {
		return EdgeAnimating
	}
	if run.IsCompleted(from) && run.IsCompleted(to) {
		return EdgeActive
	}
	return EdgeInactive
}
