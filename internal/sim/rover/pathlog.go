package rover

import (
	"fmt"
	"strings"

	"rovergrid.ai/internal/sim/grid"
)

// Token is one entry of the path log: a unit move or a pick.
type Token byte

const (
	TokenNorth Token = 'N'
	TokenSouth Token = 'S'
	TokenEast  Token = 'E'
	TokenWest  Token = 'W'
	TokenPick  Token = 'P'
)

func (t Token) String() string { return string(rune(t)) }

// Delta is the unit offset of a move token; picks do not move.
func (t Token) Delta() (dx, dy int) {
	switch t {
	case TokenNorth:
		return 0, 1
	case TokenSouth:
		return 0, -1
	case TokenEast:
		return 1, 0
	case TokenWest:
		return -1, 0
	}
	return 0, 0
}

func (t Token) IsMove() bool {
	switch t {
	case TokenNorth, TokenSouth, TokenEast, TokenWest:
		return true
	}
	return false
}

func ParseToken(b byte) (Token, error) {
	t := Token(b)
	if t.IsMove() || t == TokenPick {
		return t, nil
	}
	return 0, fmt.Errorf("unknown path token %q", b)
}

// PathLog is the append-only record of a run. It only becomes a string at the edges.
type PathLog []Token

func (l PathLog) String() string {
	var b strings.Builder
	b.Grow(len(l))
	for _, t := range l {
		b.WriteByte(byte(t))
	}
	return b.String()
}

func ParsePathLog(s string) (PathLog, error) {
	out := make(PathLog, 0, len(s))
	for i := 0; i < len(s); i++ {
		t, err := ParseToken(s[i])
		if err != nil {
			return nil, fmt.Errorf("offset %d: %w", i, err)
		}
		out = append(out, t)
	}
	return out, nil
}

func (l PathLog) Picks() int {
	n := 0
	for _, t := range l {
		if t == TokenPick {
			n++
		}
	}
	return n
}

func (l PathLog) Moves() int {
	return len(l) - l.Picks()
}

// Replay applies the log to start and returns the position after every token.
func (l PathLog) Replay(start grid.Coord) []grid.Coord {
	out := make([]grid.Coord, 0, len(l))
	p := start
	for _, t := range l {
		dx, dy := t.Delta()
		p = p.Add(dx, dy)
		out = append(out, p)
	}
	return out
}
