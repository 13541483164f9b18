package grid

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Coord is a cell on the grid. It is a value type and is used directly as a map key.
type Coord struct {
	X int
	Y int
}

func (c Coord) String() string {
	return strconv.Itoa(c.X) + "," + strconv.Itoa(c.Y)
}

// Add returns c shifted by (dx, dy).
func (c Coord) Add(dx, dy int) Coord {
	return Coord{X: c.X + dx, Y: c.Y + dy}
}

func ManhattanDistance(a, b Coord) int {
	return absInt(a.X-b.X) + absInt(a.Y-b.Y)
}

// ParseCoord parses an "x,y" pair.
func ParseCoord(s string) (Coord, error) {
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 2 {
		return Coord{}, fmt.Errorf("coordinate %q: want x,y", s)
	}
	x, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return Coord{}, fmt.Errorf("coordinate %q: bad x: %w", s, err)
	}
	y, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return Coord{}, fmt.Errorf("coordinate %q: bad y: %w", s, err)
	}
	return Coord{X: x, Y: y}, nil
}

var (
	ErrBadSize      = errors.New("grid size must be positive")
	ErrNoComponents = errors.New("grid needs at least one component")
)

// Grid is the read-only environment a rover explores: the cells [0,size] on both axes
// and the numbered components placed on them. Component ids are 1..ComponentCount.
type Grid struct {
	size  int
	byPos map[Coord]int
	byID  []Coord // byID[id-1]
}

// New builds a grid from components listed in id order (components[0] is id 1).
// When two components share a cell the lower id keeps it.
func New(size int, components []Coord) (*Grid, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrBadSize, size)
	}
	if len(components) == 0 {
		return nil, ErrNoComponents
	}
	g := &Grid{
		size:  size,
		byPos: make(map[Coord]int, len(components)),
		byID:  make([]Coord, len(components)),
	}
	copy(g.byID, components)
	for i, c := range components {
		if _, ok := g.byPos[c]; ok {
			continue
		}
		g.byPos[c] = i + 1
	}
	return g, nil
}

func (g *Grid) Size() int           { return g.size }
func (g *Grid) ComponentCount() int { return len(g.byID) }

// ComponentAt reports the id of the component occupying c, if any.
func (g *Grid) ComponentAt(c Coord) (int, bool) {
	id, ok := g.byPos[c]
	return id, ok
}

// Location is the reverse of ComponentAt.
func (g *Grid) Location(id int) (Coord, bool) {
	if id < 1 || id > len(g.byID) {
		return Coord{}, false
	}
	return g.byID[id-1], true
}

// InBounds reports whether c lies in [0,size] on both axes.
func (g *Grid) InBounds(c Coord) bool {
	return c.X >= 0 && c.Y >= 0 && c.X <= g.size && c.Y <= g.size
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
