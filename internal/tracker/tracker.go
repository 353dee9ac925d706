// Package tracker implements the transfer tracker from spec §4.6: given
// a declared file manifest per indication_id, it records per-file
// completion/failure, computes percentage in integer steps, and emits
// progress events exactly when the integer percentage changes, plus a
// terminal event at 100% or when completions+failures equal the
// manifest size.
//
// Grounded on master-server/internal/transfer/p2p.go's P2PCoordinator:
// a single sync.RWMutex-guarded map keyed by an id, one struct per live
// item, adapted from P2P-connection bookkeeping to file-manifest
// bookkeeping.
package tracker

import "sync"

// Originator identifies who should receive progress events for a
// manifest, per spec §3's (source_id, source_sub_id) pair.
type Originator struct {
	SourceID    string
	SourceSubID string
}

// Event is a progress notification produced by Record. Terminal is true
// exactly for the one event that removes the manifest's state.
type Event struct {
	Originator     Originator
	IndicationID   string
	Percentage     uint
	Terminal       bool
	Completed      bool
	CompletedCount int
	FailedCount    int
}

type manifest struct {
	originator     Originator
	expected       map[string]struct{}
	succeeded      map[string]struct{}
	failedCount    int
	lastPercentage uint
}

// Tracker is the single guarded state for all live transfers on a tier
// (spec §5: "the transfer tracker is a single shared structure guarded
// by one exclusive lock covering all of its map operations").
type Tracker struct {
	mu        sync.Mutex
	manifests map[string]*manifest
}

func New() *Tracker {
	return &Tracker{manifests: make(map[string]*manifest)}
}

// Register creates tracking state for indicationID. It returns false,
// with no side effects, if indicationID is already live (spec §4.6,
// boundary scenario 3).
func (t *Tracker) Register(indicationID string, originator Originator, files []string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.manifests[indicationID]; exists {
		return false
	}
	expected := make(map[string]struct{}, len(files))
	for _, f := range files {
		expected[f] = struct{}{}
	}
	t.manifests[indicationID] = &manifest{
		originator: originator,
		expected:   expected,
		succeeded:  make(map[string]struct{}),
	}
	return true
}

// Cancel explicitly removes a live manifest's state without emitting an
// event (spec §4.6: "destroyed on terminal event or on explicit
// cancel").
func (t *Tracker) Cancel(indicationID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.manifests, indicationID)
}

// Record accounts for one file's arrival. An empty filePath records an
// anonymous failure (spec §3's "pre-existing behavior for remote
// failure reports"). It returns nil if indicationID is not live, or if
// the arrival did not cross an integer-percentage boundary and is not a
// terminal condition.
func (t *Tracker) Record(indicationID, filePath string) *Event {
	t.mu.Lock()
	defer t.mu.Unlock()

	m, ok := t.manifests[indicationID]
	if !ok {
		return nil
	}

	if filePath == "" {
		m.failedCount++
	} else {
		m.succeeded[filePath] = struct{}{}
	}

	expectedCount := len(m.expected)
	var pct uint
	if expectedCount > 0 {
		pct = uint(len(m.succeeded) * 100 / expectedCount)
	}

	accounted := len(m.succeeded) + m.failedCount

	if pct != m.lastPercentage {
		m.lastPercentage = pct
		if pct < 100 {
			return &Event{
				Originator:   m.originator,
				IndicationID: indicationID,
				Percentage:   pct,
			}
		}
		// pct == 100: first 100% edge is the one and only terminal
		// event for this manifest (spec §9 Open Question resolution).
		ev := &Event{
			Originator:     m.originator,
			IndicationID:   indicationID,
			Percentage:     100,
			Terminal:       true,
			Completed:      true,
			CompletedCount: len(m.succeeded),
			FailedCount:    m.failedCount,
		}
		delete(t.manifests, indicationID)
		return ev
	}

	if accounted == expectedCount {
		// Every path is accounted for (successes plus failures) but the
		// integer percentage never newly crossed 100 this call — e.g. a
		// manifest that finishes with any failures, where pct is derived
		// from successes alone and so can plateau below 100. Per spec §9
		// this still fires the terminal event, with completed=false,
		// exactly once.
		ev := &Event{
			Originator:     m.originator,
			IndicationID:   indicationID,
			Percentage:     pct,
			Terminal:       true,
			Completed:      false,
			CompletedCount: len(m.succeeded),
			FailedCount:    m.failedCount,
		}
		delete(t.manifests, indicationID)
		return ev
	}

	return nil
}
