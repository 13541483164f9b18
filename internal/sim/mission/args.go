package mission

import (
	"strconv"
	"strings"

	"rovergrid.ai/internal/protocol"
	"rovergrid.ai/internal/sim/grid"
)

// ParseArgs reads the command line form:
//
//	<gridSize> <componentCount> <x,y>... <startX,startY>
//
// with exactly componentCount component coordinates.
func ParseArgs(args []string) (Mission, error) {
	if len(args) < 4 {
		return Mission{}, errorf(protocol.ErrBadArgs, "incorrect number of arguments: got %d, want at least 4", len(args))
	}
	size, err := strconv.Atoi(strings.TrimSpace(args[0]))
	if err != nil {
		return Mission{}, &Error{Code: protocol.ErrBadArgs, Msg: "grid size is not an integer", Err: err}
	}
	count, err := strconv.Atoi(strings.TrimSpace(args[1]))
	if err != nil {
		return Mission{}, &Error{Code: protocol.ErrBadArgs, Msg: "component count is not an integer", Err: err}
	}
	if count < 0 || len(args) != count+3 {
		return Mission{}, errorf(protocol.ErrBadArgs, "incorrect number of arguments: %d components need %d, got %d", count, count+3, len(args))
	}
	if size <= 0 {
		return Mission{}, errorf(protocol.ErrGridSize, "grid size must be positive, got %d", size)
	}

	m := Mission{GridSize: size, Components: make([]grid.Coord, 0, count)}
	for i := 0; i < count; i++ {
		c, err := grid.ParseCoord(args[i+2])
		if err != nil {
			return Mission{}, &Error{Code: protocol.ErrBadCoord, Msg: "component " + strconv.Itoa(i+1), Err: err}
		}
		m.Components = append(m.Components, c)
	}
	start, err := grid.ParseCoord(args[len(args)-1])
	if err != nil {
		return Mission{}, &Error{Code: protocol.ErrBadCoord, Msg: "start", Err: err}
	}
	m.Start = start
	return m, nil
}

// Args is the inverse of ParseArgs.
func (m Mission) Args() []string {
	out := make([]string, 0, len(m.Components)+3)
	out = append(out, strconv.Itoa(m.GridSize), strconv.Itoa(len(m.Components)))
	for _, c := range m.Components {
		out = append(out, c.String())
	}
	return append(out, m.Start.String())
}
