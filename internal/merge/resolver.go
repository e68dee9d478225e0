package merge

import (
	"github.com/mediavault/mediavault-core/internal/chunk"
	"github.com/mediavault/mediavault-core/internal/domain"
)

// Strategy names one of the conflict-resolution strategies spec §4.7
// lists: ours/theirs/latest-mtime/largest/manual.
type Strategy string

const (
	StrategyOurs        Strategy = "ours"
	StrategyTheirs      Strategy = "theirs"
	StrategyLatestMtime Strategy = "latest_mtime"
	StrategyLargest     Strategy = "largest"
	StrategyManual      Strategy = "manual"
)

// DefaultStrategyFor picks manual for structured, tree/commit-carrying
// media formats (PSD's layer structure is itself meaningful and should
// not be silently picked by a heuristic) and latest-mtime for everything
// else (spec §4.7: "default is manual for structured formats ... ,
// latest-mtime otherwise").
func DefaultStrategyFor(path string) Strategy {
	if chunk.Detect(path, nil) == chunk.FormatPSD {
		return StrategyManual
	}
	return StrategyLatestMtime
}

// Resolution is the outcome of applying a Strategy to a Conflict: either
// Entry is the winning side's content, or Deleted reports the winning side
// removed the path entirely (a delete/modify conflict resolved in favor of
// the deleting side).
type Resolution struct {
	Entry   FlatEntry
	Deleted bool
}

// Resolve applies strategy to a conflict, using ourCommit/theirCommit's
// timestamps as the "mtime" proxy for latest-mtime (trees carry no
// per-entry modification time of their own — a commit's timestamp is the
// closest faithful substitute). ok is false when the strategy cannot
// resolve the conflict (manual, or ours/theirs referencing an absent
// side with nothing to fall back to), meaning the path stays conflicted.
func Resolve(strategy Strategy, c Conflict, ourCommit, theirCommit *domain.Commit) (res Resolution, ok bool) {
	switch strategy {
	case StrategyOurs:
		return sideOrDelete(c.Ours, c.Base)
	case StrategyTheirs:
		return sideOrDelete(c.Theirs, c.Base)
	case StrategyLatestMtime:
		switch {
		case c.Ours == nil && c.Theirs == nil:
			return Resolution{}, false
		case c.Ours == nil:
			return Resolution{Entry: *c.Theirs}, true
		case c.Theirs == nil:
			return Resolution{Entry: *c.Ours}, true
		case ourCommit.Timestamp.After(theirCommit.Timestamp):
			return Resolution{Entry: *c.Ours}, true
		default:
			return Resolution{Entry: *c.Theirs}, true
		}
	case StrategyLargest:
		switch {
		case c.Ours == nil && c.Theirs == nil:
			return Resolution{}, false
		case c.Ours == nil:
			return Resolution{Entry: *c.Theirs}, true
		case c.Theirs == nil:
			return Resolution{Entry: *c.Ours}, true
		case c.Ours.Size >= c.Theirs.Size:
			return Resolution{Entry: *c.Ours}, true
		default:
			return Resolution{Entry: *c.Theirs}, true
		}
	case StrategyManual:
		return Resolution{}, false
	}
	return Resolution{}, false
}

// sideOrDelete resolves to side's content when present; when side is nil
// but the path existed at base (a delete/modify conflict resolved toward
// the deleting half), the resolution is a deletion rather than a failure.
func sideOrDelete(side, base *FlatEntry) (Resolution, bool) {
	if side != nil {
		return Resolution{Entry: *side}, true
	}
	if base != nil {
		return Resolution{Deleted: true}, true
	}
	return Resolution{}, false
}
