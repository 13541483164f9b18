package rover

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"

	"rovergrid.ai/internal/sim/grid"
)

// Digest hashes the rover state that drives future behaviour: position, sweep
// direction, counters, log length and the pending table.
// Two rovers with equal digests on the same grid produce the same remaining log.
//
// The pending table enters through pendingSum, a running XOR of one hash per
// entry, so the cost does not grow with the number of deferred sightings.
func (r *Rover) Digest() string {
	h := sha256.New()
	var tmp [8]byte

	digestWriteI64(h, &tmp, int64(r.pos.X))
	digestWriteI64(h, &tmp, int64(r.pos.Y))
	digestWriteI64(h, &tmp, int64(r.dir))
	digestWriteU64(h, &tmp, uint64(r.next))
	digestWriteU64(h, &tmp, uint64(r.seen))
	digestWriteU64(h, &tmp, uint64(r.moves))
	digestWriteU64(h, &tmp, uint64(len(r.log)))

	digestWriteU64(h, &tmp, uint64(len(r.pending)))
	h.Write(r.pendingSum[:])
	return hex.EncodeToString(h.Sum(nil))
}

// togglePending adds or removes one entry's hash from pendingSum.
func (r *Rover) togglePending(id int, c grid.Coord) {
	var buf [24]byte
	binary.LittleEndian.PutUint64(buf[0:], uint64(id))
	binary.LittleEndian.PutUint64(buf[8:], uint64(int64(c.X)))
	binary.LittleEndian.PutUint64(buf[16:], uint64(int64(c.Y)))
	sum := sha256.Sum256(buf[:])
	for i := range r.pendingSum {
		r.pendingSum[i] ^= sum[i]
	}
}

func digestWriteU64(h hash.Hash, tmp *[8]byte, v uint64) {
	binary.LittleEndian.PutUint64(tmp[:], v)
	h.Write(tmp[:])
}

func digestWriteI64(h hash.Hash, tmp *[8]byte, v int64) {
	digestWriteU64(h, tmp, uint64(v))
}
