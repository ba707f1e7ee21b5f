package app

import (
	"sync"

	"math-race-service/internal/domain"
)

// raceFeed fans out race snapshots to live subscribers, keyed by race id.
type raceFeed struct {
	mu   sync.Mutex
	subs map[string]map[chan domain.RaceGame]struct{}
}

func newRaceFeed() *raceFeed {
	return &raceFeed{subs: make(map[string]map[chan domain.RaceGame]struct{})}
}

// subscribe registers a channel primed with initial. The cancel func closes it and drops empty keys.
func (f *raceFeed) subscribe(initial domain.RaceGame) (<-chan domain.RaceGame, func()) {
	ch := make(chan domain.RaceGame, 8)
	ch <- initial

	f.mu.Lock()
	set, ok := f.subs[initial.ID]
	if !ok {
		set = make(map[chan domain.RaceGame]struct{})
		f.subs[initial.ID] = set
	}
	set[ch] = struct{}{}
	f.mu.Unlock()

	cancel := func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		set, ok := f.subs[initial.ID]
		if !ok {
			return
		}
		if _, ok := set[ch]; ok {
			delete(set, ch)
			close(ch)
		}
		if len(set) == 0 {
			delete(f.subs, initial.ID)
		}
	}
	return ch, cancel
}

func (f *raceFeed) broadcast(game domain.RaceGame) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.subs[game.ID] {
		snapshot := game.Clone()
		select {
		case ch <- snapshot:
		default:
			// slow subscriber: drop the oldest snapshot so the latest always lands
			select {
			case <-ch:
			default:
			}
			ch <- snapshot
		}
	}
}

func (f *raceFeed) subscribers(gameID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs[gameID])
}
