package mission

import (
	"errors"
	"fmt"

	"rovergrid.ai/internal/protocol"
	"rovergrid.ai/internal/sim/grid"
)

// Mission is a validated-or-not description of one run: the grid, where the
// components are (components[i] has id i+1) and where the rover starts.
type Mission struct {
	Name       string
	GridSize   int
	Start      grid.Coord
	Components []grid.Coord
}

// Error carries a protocol error code (protocol.Err*) alongside the message.
type Error struct {
	Code string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Msg, e.Err)
	}
	return e.Code + ": " + e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

func errorf(code string, format string, args ...any) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the protocol code from err; unknown errors map to E_INTERNAL.
func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	var me *Error
	if errors.As(err, &me) {
		return me.Code
	}
	return protocol.ErrInternal
}

// Validate rejects missions the rover cannot be trusted to finish: non-positive
// grid size, no components, anything outside [0,size] on either axis, and two
// components on one cell.
func (m Mission) Validate() error {
	if m.GridSize <= 0 {
		return errorf(protocol.ErrGridSize, "grid size must be positive, got %d", m.GridSize)
	}
	if len(m.Components) == 0 {
		return errorf(protocol.ErrNoComponents, "mission has no components")
	}
	in := func(c grid.Coord) bool {
		return c.X >= 0 && c.Y >= 0 && c.X <= m.GridSize && c.Y <= m.GridSize
	}
	if !in(m.Start) {
		return errorf(protocol.ErrOutOfBounds, "start %s outside [0,%d]", m.Start, m.GridSize)
	}
	seen := make(map[grid.Coord]int, len(m.Components))
	for i, c := range m.Components {
		id := i + 1
		if !in(c) {
			return errorf(protocol.ErrOutOfBounds, "component %d at %s outside [0,%d]", id, c, m.GridSize)
		}
		if prev, ok := seen[c]; ok {
			return errorf(protocol.ErrDuplicateComponent, "components %d and %d share cell %s", prev, id, c)
		}
		seen[c] = id
	}
	return nil
}

// Grid builds the rover environment. It does not call Validate.
func (m Mission) Grid() (*grid.Grid, error) {
	g, err := grid.New(m.GridSize, m.Components)
	if err != nil {
		switch {
		case errors.Is(err, grid.ErrBadSize):
			return nil, &Error{Code: protocol.ErrGridSize, Msg: "build grid", Err: err}
		case errors.Is(err, grid.ErrNoComponents):
			return nil, &Error{Code: protocol.ErrNoComponents, Msg: "build grid", Err: err}
		}
		return nil, err
	}
	return g, nil
}

func (m Mission) Doc() protocol.MissionDoc {
	d := protocol.MissionDoc{
		Name:       m.Name,
		GridSize:   m.GridSize,
		Start:      [2]int{m.Start.X, m.Start.Y},
		Components: make([][2]int, 0, len(m.Components)),
	}
	for _, c := range m.Components {
		d.Components = append(d.Components, [2]int{c.X, c.Y})
	}
	return d
}

func FromDoc(d protocol.MissionDoc) Mission {
	m := Mission{
		Name:       d.Name,
		GridSize:   d.GridSize,
		Start:      grid.Coord{X: d.Start[0], Y: d.Start[1]},
		Components: make([]grid.Coord, 0, len(d.Components)),
	}
	for _, c := range d.Components {
		m.Components = append(m.Components, grid.Coord{X: c[0], Y: c[1]})
	}
	return m
}
