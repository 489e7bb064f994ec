// Package channel implements seekable read channels over remote objects.
//
// A channel presents a position-based byte view of one object and turns
// arbitrary read/seek traffic into as few range fetches as possible. Every
// read runs through a pure decision table that picks the cheapest source
// for the current position:
//
//	read(pos) ──► decide ──┬─► reuse    live stream already at pos
//	                       ├─► footer   pos in the cached object tail
//	                       ├─► skip     short forward hop, discard in place
//	                       └─► fetch    new range, sized by access pattern
//
// The footer cache exists for formats that keep their metadata at the end
// of the file (Parquet, ORC, ZIP). Probing such a tail through plain range
// fetches costs a round trip per probe; caching the last
// MinRangeRequestSize bytes on first touch makes every later probe free.
// Objects smaller than the zone are cached whole, so tiny objects cost
// exactly one fetch no matter how they are read.
//
// Fetch sizing follows the declared access pattern. Sequential channels
// read through to the end of the object; random channels request only what
// is asked for, padded to the minimum range size. Auto channels start
// random and upgrade to sequential sizing once enough contiguous reads are
// observed.
//
// Transient transport failures never surface here; the fetch package
// resumes broken streams at the current offset with bounded retries.
package channel
