package channel

import (
	"github.com/objstream/objstream/pkg/types"
)

// action is what a read at the current position should do to get bytes.
type action int

const (
	// actionReuse continues reading from the live stream as-is.
	actionReuse action = iota
	// actionFooter serves the read from the footer cache.
	actionFooter
	// actionSkip discards bytes from the live stream up to the target.
	actionSkip
	// actionFetch opens a new range fetch at the target.
	actionFetch
)

func (a action) String() string {
	switch a {
	case actionFooter:
		return "footer"
	case actionSkip:
		return "skip"
	case actionFetch:
		return "fetch"
	default:
		return "reuse"
	}
}

// decision is the outcome of the seek policy for one read.
type decision struct {
	action action

	// skip is the number of bytes to discard, for actionSkip.
	skip int64

	// fetchRange is the range to request, for actionFetch.
	fetchRange types.Range
}

// state is a snapshot of everything the policy may consult. The policy
// itself holds no state and performs no IO.
type state struct {
	// target is the absolute position the next read starts at.
	target int64

	// reqLen is the length of the read request.
	reqLen int64

	objectSize int64

	// streamActive, streamOffset and streamEnd describe the live fetch
	// stream, if any.
	streamActive bool
	streamOffset int64
	streamEnd    int64

	// footerLoaded and footerStart describe the footer cache.
	footerLoaded bool
	footerStart  int64

	// pattern is the effective access pattern, already resolved from
	// auto-detection when applicable.
	pattern types.AccessPattern

	inPlaceSeekLimit    int64
	minRangeRequestSize int64
}

// decide maps a read position onto the cheapest way to serve it. Rules are
// evaluated in order:
//
//  1. a live stream already positioned at the target is reused
//  2. a loaded footer serves any position inside the footer zone
//  3. with no live stream, a position inside the footer zone loads the
//     footer
//  4. a short forward distance within the live stream's range is skipped
//     in place
//  5. everything else opens a new fetch sized by the access pattern
func decide(s state) decision {
	if s.streamActive && s.target == s.streamOffset {
		return decision{action: actionReuse}
	}

	inFooterZone := s.target >= s.footerStart && s.target < s.objectSize
	if inFooterZone {
		if s.footerLoaded {
			return decision{action: actionFooter}
		}
		if !s.streamActive {
			return decision{action: actionFooter}
		}
	}

	if s.streamActive && s.target > s.streamOffset && s.target < s.streamEnd {
		if dist := s.target - s.streamOffset; dist <= s.inPlaceSeekLimit {
			return decision{action: actionSkip, skip: dist}
		}
	}

	return decision{action: actionFetch, fetchRange: fetchRange(s)}
}

// fetchRange sizes a new fetch. Sequential access reads through to the end
// of the object; random access requests only what is asked for, padded to
// the minimum range size to amortize round trips.
func fetchRange(s state) types.Range {
	if s.pattern == types.PatternSequential {
		return types.Range{Start: s.target, End: s.objectSize}
	}
	want := s.reqLen
	if want < s.minRangeRequestSize {
		want = s.minRangeRequestSize
	}
	end := s.target + want
	if end > s.objectSize {
		end = s.objectSize
	}
	return types.Range{Start: s.target, End: end}
}

// autoUpgradeThreshold is the number of contiguous reads after which an
// auto-pattern channel switches to sequential fetch sizing.
const autoUpgradeThreshold = 2

// patternState tracks access locality for auto-detection. Declared patterns
// never change; auto starts random and upgrades to sequential once enough
// contiguous reads are observed.
type patternState struct {
	declared   types.AccessPattern
	contiguous int
	upgraded   bool
	lastEnd    int64
	started    bool
}

func newPatternState(declared types.AccessPattern) *patternState {
	return &patternState{declared: declared}
}

// effective returns the pattern fetch sizing should use right now.
func (p *patternState) effective() types.AccessPattern {
	switch p.declared {
	case types.PatternSequential, types.PatternRandom:
		return p.declared
	}
	if p.upgraded {
		return types.PatternSequential
	}
	return types.PatternRandom
}

// observe records one completed read. A read starting exactly where the
// previous one ended counts toward the upgrade; anything else resets the
// count. The upgrade itself is sticky for the life of the channel.
func (p *patternState) observe(start, end int64) {
	if p.declared != types.PatternAuto || p.upgraded {
		return
	}
	if p.started && start == p.lastEnd {
		p.contiguous++
		if p.contiguous >= autoUpgradeThreshold {
			p.upgraded = true
		}
	} else if p.started {
		p.contiguous = 0
	}
	p.started = true
	p.lastEnd = end
}
