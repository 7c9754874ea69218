package roomsync

import (
	"testing"

	"liveclass-backend/internal/wire"
)

// recordingSurface captures draw calls for assertions.
type recordingSurface struct {
	strokes []recordedStroke
	dots    []recordedStroke
	clears  int
}

type recordedStroke struct {
	points []wire.Point
	color  string
	width  float64
}

func (s *recordingSurface) StrokePath(points []wire.Point, color string, width float64) {
	s.strokes = append(s.strokes, recordedStroke{points: points, color: color, width: width})
}

func (s *recordingSurface) Dot(p wire.Point, color string, width float64) {
	s.dots = append(s.dots, recordedStroke{points: []wire.Point{p}, color: color, width: width})
}

func (s *recordingSurface) Clear() {
	s.clears++
}

func TestWhiteboard_RemoteDraw(t *testing.T) {
	surface := &recordingSurface{}
	w := NewWhiteboard(surface, func(wire.StrokePayload) error { return nil })

	w.ApplyRemote(wire.StrokePayload{
		Kind:       wire.StrokeDraw,
		Points:     []wire.Point{{X: 0, Y: 0}, {X: 10, Y: 10}},
		Color:      "#FF0000",
		BrushWidth: 3,
		Tool:       wire.ToolPen,
	})

	if len(surface.strokes) != 1 {
		t.Fatalf("expected 1 stroke, got %d", len(surface.strokes))
	}
	if surface.strokes[0].color != "#FF0000" || surface.strokes[0].width != 3 {
		t.Errorf("style not applied: %+v", surface.strokes[0])
	}
}

func TestWhiteboard_RemoteSinglePointIsNoOp(t *testing.T) {
	surface := &recordingSurface{}
	w := NewWhiteboard(surface, func(wire.StrokePayload) error { return nil })

	w.ApplyRemote(wire.StrokePayload{
		Kind:   wire.StrokeDraw,
		Points: []wire.Point{{X: 5, Y: 5}},
	})
	w.ApplyRemote(wire.StrokePayload{Kind: wire.StrokeDraw})

	if len(surface.strokes) != 0 || len(surface.dots) != 0 {
		t.Error("draws with fewer than two points must not render remotely")
	}
}

func TestWhiteboard_RemoteEraserStyle(t *testing.T) {
	surface := &recordingSurface{}
	w := NewWhiteboard(surface, func(wire.StrokePayload) error { return nil })

	w.ApplyRemote(wire.StrokePayload{
		Kind:       wire.StrokeDraw,
		Points:     []wire.Point{{X: 0, Y: 0}, {X: 1, Y: 1}},
		Color:      "#123456",
		BrushWidth: 2,
		Tool:       wire.ToolEraser,
	})

	got := surface.strokes[0]
	if got.color != eraseColor {
		t.Errorf("eraser must paint %s, got %s", eraseColor, got.color)
	}
	if got.width != 2*eraserWidthMultiplier {
		t.Errorf("eraser width must be scaled, got %v", got.width)
	}
}

func TestWhiteboard_RemoteClear(t *testing.T) {
	surface := &recordingSurface{}
	w := NewWhiteboard(surface, func(wire.StrokePayload) error { return nil })

	w.ApplyRemote(wire.StrokePayload{Kind: wire.StrokeClear})

	if surface.clears != 1 {
		t.Errorf("expected 1 clear, got %d", surface.clears)
	}
}

func TestWhiteboard_LocalClickDotAsymmetry(t *testing.T) {
	surface := &recordingSurface{}
	var sent []wire.StrokePayload
	w := NewWhiteboard(surface, func(p wire.StrokePayload) error {
		sent = append(sent, p)
		return nil
	})

	p := wire.Point{X: 4, Y: 4}
	if err := w.DrawLocal(p, p, StrokeStyle{Color: "#000000", Width: 2, Tool: wire.ToolPen}); err != nil {
		t.Fatalf("draw failed: %v", err)
	}

	// Local side renders a dot.
	if len(surface.dots) != 1 {
		t.Fatalf("expected 1 local dot, got %d", len(surface.dots))
	}
	// The emitted event carries a single point, which remote peers drop.
	if len(sent) != 1 || len(sent[0].Points) != 1 {
		t.Fatalf("expected a single-point event, got %+v", sent)
	}

	remote := &recordingSurface{}
	NewWhiteboard(remote, func(wire.StrokePayload) error { return nil }).ApplyRemote(sent[0])
	if len(remote.strokes) != 0 || len(remote.dots) != 0 {
		t.Error("single-point event must replay as a no-op remotely")
	}
}

func TestWhiteboard_LocalSegmentEmitted(t *testing.T) {
	surface := &recordingSurface{}
	var sent []wire.StrokePayload
	w := NewWhiteboard(surface, func(p wire.StrokePayload) error {
		sent = append(sent, p)
		return nil
	})

	err := w.DrawLocal(wire.Point{X: 0, Y: 0}, wire.Point{X: 5, Y: 5},
		StrokeStyle{Color: "#00FF00", Width: 1, Tool: wire.ToolPen})
	if err != nil {
		t.Fatalf("draw failed: %v", err)
	}

	if len(surface.strokes) != 1 {
		t.Fatalf("expected immediate local render, got %d strokes", len(surface.strokes))
	}
	if len(sent) != 1 || len(sent[0].Points) != 2 {
		t.Fatalf("expected a two-point event, got %+v", sent)
	}
}

func TestWhiteboard_LocalClearEmitsEvent(t *testing.T) {
	surface := &recordingSurface{}
	var sent []wire.StrokePayload
	w := NewWhiteboard(surface, func(p wire.StrokePayload) error {
		sent = append(sent, p)
		return nil
	})

	if err := w.ClearLocal(); err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	if surface.clears != 1 {
		t.Error("local surface should clear immediately")
	}
	if len(sent) != 1 || sent[0].Kind != wire.StrokeClear {
		t.Errorf("expected a clear event, got %+v", sent)
	}
}

func TestWhiteboard_TwoSendersReplayInAdmissionOrder(t *testing.T) {
	surface := &recordingSurface{}
	w := NewWhiteboard(surface, func(wire.StrokePayload) error { return nil })

	// Two participants draw adjacent segments of one continuous line; a
	// third client replays them in the order they were admitted.
	first := wire.StrokePayload{
		Kind:   wire.StrokeDraw,
		Points: []wire.Point{{X: 0, Y: 0}, {X: 5, Y: 5}},
	}
	second := wire.StrokePayload{
		Kind:   wire.StrokeDraw,
		Points: []wire.Point{{X: 5, Y: 5}, {X: 10, Y: 10}},
	}
	w.ApplyRemote(first)
	w.ApplyRemote(second)

	if len(surface.strokes) != 2 {
		t.Fatalf("expected 2 strokes, got %d", len(surface.strokes))
	}
	var path []wire.Point
	for _, s := range surface.strokes {
		path = append(path, s.points...)
	}
	want := []wire.Point{{X: 0, Y: 0}, {X: 5, Y: 5}, {X: 5, Y: 5}, {X: 10, Y: 10}}
	for i := range want {
		if path[i] != want[i] {
			t.Fatalf("replayed path diverges at %d: got %v, want %v", i, path, want)
		}
	}
}

func TestWhiteboard_DrawAfterClearReplaysOnTop(t *testing.T) {
	surface := &recordingSurface{}
	w := NewWhiteboard(surface, func(wire.StrokePayload) error { return nil })

	w.ApplyRemote(wire.StrokePayload{Kind: wire.StrokeClear})
	w.ApplyRemote(wire.StrokePayload{
		Kind:   wire.StrokeDraw,
		Points: []wire.Point{{X: 0, Y: 0}, {X: 1, Y: 1}},
	})

	if surface.clears != 1 || len(surface.strokes) != 1 {
		t.Error("an in-flight draw arriving after a clear still renders")
	}
}
