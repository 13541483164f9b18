package rover

import (
	"context"
	"crypto/sha256"
	"sort"

	"rovergrid.ai/internal/sim/grid"
)

// Rover walks a grid collecting components in ascending id order.
// It homes to the origin, then sweeps the grid column by column (north up the
// first column, south down the next, and so on). Components sighted out of order
// are remembered and collected by direct moves once every component has been seen.
//
// A Rover is single-use and not safe for concurrent use.
type Rover struct {
	grid *grid.Grid
	cfg  Config
	sink StepSink

	pos     grid.Coord
	log     PathLog
	next    int
	seen    int
	dir     int
	pending map[int]grid.Coord
	moves   int

	pendingSum [sha256.Size]byte

	phase Phase
	stop  Reason
	ran   bool
}

func New(g *grid.Grid, start grid.Coord, cfg Config) *Rover {
	if cfg.MaxSteps < 0 {
		cfg.MaxSteps = 0
	}
	return &Rover{
		grid:    g,
		cfg:     cfg,
		pos:     start,
		next:    1,
		dir:     North,
		pending: map[int]grid.Coord{},
		phase:   PhaseHoming,
	}
}

// SetStepSink installs an observer for appended tokens (may be nil).
func (r *Rover) SetStepSink(s StepSink) { r.sink = s }

func (r *Rover) Position() grid.Coord { return r.pos }
func (r *Rover) Next() int            { return r.next }
func (r *Rover) Seen() int            { return r.seen }
func (r *Rover) Direction() int       { return r.dir }
func (r *Rover) Log() PathLog         { return append(PathLog(nil), r.log...) }

// Pending returns a copy of the deferred sightings table.
func (r *Rover) Pending() map[int]grid.Coord {
	out := make(map[int]grid.Coord, len(r.pending))
	for id, c := range r.pending {
		out[id] = c
	}
	return out
}

// Run drives the rover until every component is collected or a guard stops it.
// The context is checked once per sweep step; on cancellation the partial result
// is returned together with ctx.Err(). Calling Run again returns the same result.
func (r *Rover) Run(ctx context.Context) (Result, error) {
	if r.ran {
		return r.result(), nil
	}
	r.ran = true

	r.phase = PhaseHoming
	if r.moveTo(grid.Coord{}) {
		r.phase = PhaseSweep
		r.checkCell()
	}
	for r.stop == "" {
		if err := ctx.Err(); err != nil {
			return r.result(), err
		}
		if r.seen == r.grid.ComponentCount() {
			r.backfill()
			if r.stop != "" {
				break
			}
		}
		r.phase = PhaseSweep
		if !r.sweepStep() {
			if r.stop != "" {
				break
			}
			// Last cell of the last column. Only reachable when some component lies
			// off the grid: seen never reached the count, so the loop-top backfill
			// never ran. Collect what the pending table allows, then give up.
			r.backfill()
			if r.stop == "" {
				r.stop = ReasonSweepExhausted
			}
			break
		}
		r.checkCell()
	}
	return r.result(), nil
}

func (r *Rover) checkCell() {
	id, ok := r.grid.ComponentAt(r.pos)
	if !ok {
		return
	}
	r.seen++
	if id == r.next {
		r.collect()
		return
	}
	if id < r.next {
		return
	}
	if _, dup := r.pending[id]; !dup {
		r.pending[id] = r.pos
		r.togglePending(id, r.pos)
	}
}

func (r *Rover) collect() {
	id := r.next
	if c, ok := r.pending[id]; ok {
		delete(r.pending, id)
		r.togglePending(id, c)
	}
	r.next++
	r.appendToken(TokenPick, id)
	if r.next > r.grid.ComponentCount() {
		r.stop = ReasonComplete
	}
}

// backfill collects pending components for as long as the next id is among them.
func (r *Rover) backfill() {
	for r.stop == "" {
		target, ok := r.pending[r.next]
		if !ok {
			return
		}
		r.phase = PhaseBackfill
		if !r.moveTo(target) {
			return
		}
		r.collect()
	}
}

// moveTo walks to target one cell at a time: south, west, north, then east.
// It returns false if a guard stopped the rover on the way.
func (r *Rover) moveTo(target grid.Coord) bool {
	for r.pos.Y > target.Y {
		if !r.step(TokenSouth) {
			return false
		}
	}
	for r.pos.X > target.X {
		if !r.step(TokenWest) {
			return false
		}
	}
	for r.pos.Y < target.Y {
		if !r.step(TokenNorth) {
			return false
		}
	}
	for r.pos.X < target.X {
		if !r.step(TokenEast) {
			return false
		}
	}
	return true
}

// sweepStep advances the zig-zag by one cell. It returns false when no cell is
// left to sweep or a guard stopped the rover.
func (r *Rover) sweepStep() bool {
	ny := r.pos.Y + r.dir
	if ny < 0 || ny > r.grid.Size() {
		if r.pos.X+1 > r.grid.Size() {
			return false
		}
		r.dir = -r.dir
		if !r.step(TokenEast) {
			r.dir = -r.dir
			return false
		}
		return true
	}
	if r.dir == North {
		return r.step(TokenNorth)
	}
	return r.step(TokenSouth)
}

func (r *Rover) step(t Token) bool {
	if r.stop != "" {
		return false
	}
	if r.cfg.MaxSteps > 0 && r.moves >= r.cfg.MaxSteps {
		r.stop = ReasonStepLimit
		return false
	}
	dx, dy := t.Delta()
	r.pos = r.pos.Add(dx, dy)
	r.moves++
	r.appendToken(t, 0)
	return true
}

func (r *Rover) appendToken(t Token, component int) {
	r.log = append(r.log, t)
	if r.sink == nil {
		return
	}
	_ = r.sink.WriteStep(StepEntry{
		Seq:       len(r.log),
		Token:     t.String(),
		Pos:       [2]int{r.pos.X, r.pos.Y},
		Phase:     r.phase,
		Component: component,
		Next:      r.next,
		Seen:      r.seen,
		Digest:    r.Digest(),
	})
}

func (r *Rover) pendingIDs() []int {
	ids := make([]int, 0, len(r.pending))
	for id := range r.pending {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func (r *Rover) result() Result {
	return Result{
		Log:       r.Log(),
		Reason:    r.stop,
		Final:     r.pos,
		Collected: r.next - 1,
		Seen:      r.seen,
		Steps:     r.moves,
		Pending:   r.pendingIDs(),
		Digest:    r.Digest(),
	}
}
