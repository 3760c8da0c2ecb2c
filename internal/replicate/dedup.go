package replicate

import "time"

// Dedup is a time-bounded, capacity-bounded membership set used to suppress
// re-processing of already-seen fill and trade identifiers. Entries expire
// after ttl; under capacity pressure the oldest-inserted entry is evicted
// regardless of TTL.
//
// It is not safe for concurrent use: only the ingestion goroutine touches it.
type Dedup struct {
	ttl  time.Duration
	max  int
	seen map[string]time.Time
	// queue holds entries in insertion order; entries whose timestamp no
	// longer matches the map are stale re-marks and are dropped lazily.
	queue []dedupEntry
}

type dedupEntry struct {
	id string
	at time.Time
}

// NewDedup builds a store with the given TTL and capacity.
func NewDedup(ttl time.Duration, maxEntries int) *Dedup {
	if maxEntries <= 0 {
		maxEntries = 1
	}
	return &Dedup{
		ttl:  ttl,
		max:  maxEntries,
		seen: make(map[string]time.Time),
	}
}

// Seen reports whether id was already recorded, and (re)marks it either way
// so its TTL restarts. Empty ids are never recorded.
func (d *Dedup) Seen(id string) bool {
	if id == "" {
		return false
	}
	now := time.Now()
	d.expire(now)

	_, hit := d.seen[id]
	d.seen[id] = now
	d.queue = append(d.queue, dedupEntry{id: id, at: now})

	for len(d.seen) > d.max {
		d.evictOldest()
	}
	// Re-marks leave stale copies behind live head entries that expire()
	// cannot reach; compact before they outnumber the live set.
	if len(d.queue) > 2*d.max {
		d.compact()
	}
	return hit
}

// Len returns the number of live identifiers.
func (d *Dedup) Len() int {
	d.expire(time.Now())
	return len(d.seen)
}

// expire drops expired and stale entries from the front of the queue.
func (d *Dedup) expire(now time.Time) {
	for len(d.queue) > 0 {
		head := d.queue[0]
		at, ok := d.seen[head.id]
		switch {
		case !ok || !at.Equal(head.at):
			// Stale copy of a re-marked or already-evicted id.
		case now.Sub(at) >= d.ttl:
			delete(d.seen, head.id)
		default:
			return
		}
		d.queue = d.queue[1:]
	}
}

// compact rebuilds the queue keeping only the one live entry per id (the one
// whose timestamp matches the map), preserving insertion order.
func (d *Dedup) compact() {
	live := d.queue[:0]
	for _, ent := range d.queue {
		if at, ok := d.seen[ent.id]; ok && at.Equal(ent.at) {
			live = append(live, ent)
		}
	}
	d.queue = live
}

// evictOldest removes the oldest live entry, skipping stale copies.
func (d *Dedup) evictOldest() {
	for len(d.queue) > 0 {
		head := d.queue[0]
		d.queue = d.queue[1:]
		if at, ok := d.seen[head.id]; ok && at.Equal(head.at) {
			delete(d.seen, head.id)
			return
		}
	}
}
