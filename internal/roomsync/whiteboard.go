package roomsync

import (
	"liveclass-backend/internal/wire"
)

// Erase strokes are occlusion, not deletion: the eraser paints the canvas
// background color with a wider brush. Strokes are never removed from the
// logical event stream.
const (
	eraseColor           = "#FFFFFF"
	eraserWidthMultiplier = 4.0
)

// Surface is the raster target the engine replays onto. Implementations are
// a canvas in a real client and a recording surface in tests.
type Surface interface {
	// StrokePath draws a polyline through points (always >= 2).
	StrokePath(points []wire.Point, color string, width float64)
	// Dot draws the immediate-feedback filled circle for a single-click
	// stroke start.
	Dot(p wire.Point, color string, width float64)
	// Clear blanks the whole surface.
	Clear()
}

// StrokeStyle is the pen state for local drawing.
type StrokeStyle struct {
	Color string
	Width float64
	Tool  wire.Tool
}

// Whiteboard keeps a shared raster surface in sync by replaying remote
// stroke/clear events and emitting local ones. The visible surface is the
// sequential replay, in arrival order, of every admitted event since the
// engine was initialized; a participant who opens the panel late starts from
// a blank surface (no history backfill).
type Whiteboard struct {
	surface Surface
	send    func(wire.StrokePayload) error
}

// NewWhiteboard creates an engine drawing onto surface and emitting local
// events through send.
func NewWhiteboard(surface Surface, send func(wire.StrokePayload) error) *Whiteboard {
	return &Whiteboard{surface: surface, send: send}
}

// ApplyRemote replays one admitted stroke event. A draw with fewer than two
// points is a no-op here, even though the originating client rendered a dot
// locally; that asymmetry is accepted.
func (w *Whiteboard) ApplyRemote(p wire.StrokePayload) {
	switch p.Kind {
	case wire.StrokeClear:
		w.surface.Clear()
	case wire.StrokeDraw:
		if len(p.Points) < 2 {
			return
		}
		color, width := resolveStyle(p.Color, p.BrushWidth, p.Tool)
		w.surface.StrokePath(p.Points, color, width)
	}
}

// DrawLocal renders a stroke segment immediately and emits the event. When
// from and to coincide (a single click) the local surface gets a dot while
// the emitted single-point event replays as a no-op remotely.
//
// The relay does not echo whiteboard events back to their sender, so local
// rendering here is the only time a participant sees their own strokes.
func (w *Whiteboard) DrawLocal(from, to wire.Point, style StrokeStyle) error {
	color, width := resolveStyle(style.Color, style.Width, style.Tool)

	points := []wire.Point{from, to}
	if from == to {
		w.surface.Dot(from, color, width)
		points = []wire.Point{from}
	} else {
		w.surface.StrokePath(points, color, width)
	}

	return w.send(wire.StrokePayload{
		Kind:       wire.StrokeDraw,
		Points:     points,
		Color:      style.Color,
		BrushWidth: style.Width,
		Tool:       style.Tool,
	})
}

// ClearLocal blanks the local surface and emits a clear event. A clear does
// not retroactively invalidate draw events already in flight; they replay on
// top of the blank canvas when they arrive.
func (w *Whiteboard) ClearLocal() error {
	w.surface.Clear()
	return w.send(wire.StrokePayload{Kind: wire.StrokeClear})
}

// resolveStyle maps the eraser tool onto its fixed visual style.
func resolveStyle(color string, width float64, tool wire.Tool) (string, float64) {
	if width <= 0 {
		width = 2
	}
	if tool == wire.ToolEraser {
		return eraseColor, width * eraserWidthMultiplier
	}
	if color == "" {
		color = "#000000"
	}
	return color, width
}
