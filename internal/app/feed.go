package app

import (
	"sync"

	"quiz-attempt-service/internal/domain"
)

// LeaderboardFeed fans leaderboard snapshots out to subscribers, keyed by
// quiz ID ("" subscribes to the cross-quiz standings).
type LeaderboardFeed struct {
	mu          sync.Mutex
	subscribers map[string]map[chan domain.Leaderboard]struct{}
}

func NewLeaderboardFeed() *LeaderboardFeed {
	return &LeaderboardFeed{
		subscribers: make(map[string]map[chan domain.Leaderboard]struct{}),
	}
}

// Subscribe registers a channel primed with initial. The caller must invoke
// the returned cancel function to avoid leaks.
func (f *LeaderboardFeed) Subscribe(quizID string, initial domain.Leaderboard) (<-chan domain.Leaderboard, func()) {
	ch := make(chan domain.Leaderboard, 8)
	ch <- initial

	f.mu.Lock()
	subs, ok := f.subscribers[quizID]
	if !ok {
		subs = make(map[chan domain.Leaderboard]struct{})
		f.subscribers[quizID] = subs
	}
	subs[ch] = struct{}{}
	f.mu.Unlock()

	cancel := func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		subs, ok := f.subscribers[quizID]
		if !ok {
			return
		}
		if _, ok := subs[ch]; ok {
			delete(subs, ch)
			close(ch)
		}
		if len(subs) == 0 {
			delete(f.subscribers, quizID)
		}
	}
	return ch, cancel
}

// HasSubscribers lets publishers skip building snapshots nobody reads.
func (f *LeaderboardFeed) HasSubscribers(quizID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subscribers[quizID]) > 0
}

// Publish delivers lb to every subscriber of lb.QuizID without blocking.
func (f *LeaderboardFeed) Publish(lb domain.Leaderboard) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.subscribers[lb.QuizID] {
		select {
		case ch <- lb:
		default:
			// Full buffer: drop the oldest snapshot so slow readers never block publishers.
			select {
			case <-ch:
			default:
			}
			ch <- lb
		}
	}
}
