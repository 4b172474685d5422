package monitoring

import (
	"sync"
	"time"
)

// A ProgressBar tracks how many entities of a run have arrived and left.
// Entities that balk or renege count as finished.
type ProgressBar struct {
	sync.Mutex `json:"-"`

	ID         string    `json:"id"`
	Name       string    `json:"name"`
	StartTime  time.Time `json:"start_time"`
	Total      uint64    `json:"total"`
	Finished   uint64    `json:"finished"`
	InProgress uint64    `json:"in_progress"`
}

// Arrive marks amount entities as being in the system.
func (b *ProgressBar) Arrive(amount uint64) {
	b.Lock()
	defer b.Unlock()

	b.InProgress += amount
}

// Leave moves amount entities from in progress to finished.
func (b *ProgressBar) Leave(amount uint64) {
	b.Lock()
	defer b.Unlock()

	if amount > b.InProgress {
		amount = b.InProgress
	}

	b.InProgress -= amount
	b.Finished += amount
}

// Done tells if every expected entity has left. Bars with a zero total are
// never done.
func (b *ProgressBar) Done() bool {
	b.Lock()
	defer b.Unlock()

	return b.Total > 0 && b.Finished >= b.Total
}

func (b *ProgressBar) snapshot() ProgressBar {
	b.Lock()
	defer b.Unlock()

	return ProgressBar{
		ID:         b.ID,
		Name:       b.Name,
		StartTime:  b.StartTime,
		Total:      b.Total,
		Finished:   b.Finished,
		InProgress: b.InProgress,
	}
}
