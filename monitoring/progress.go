package monitoring

import (
	"sync"
	"time"
)

// A ProgressBar tracks how many addresses of a batch have been resolved.
type ProgressBar struct {
	sync.Mutex
	ID        string
	Name      string
	StartTime time.Time
	Total     uint64
	Finished  uint64
	Failed    uint64
}

// IncrementFinished records amount resolved addresses.
func (b *ProgressBar) IncrementFinished(amount uint64) {
	b.Lock()
	defer b.Unlock()

	b.Finished += amount
}

// IncrementFailed records amount addresses that could not be resolved.
// Failed addresses also count as finished.
func (b *ProgressBar) IncrementFailed(amount uint64) {
	b.Lock()
	defer b.Unlock()

	b.Failed += amount
	b.Finished += amount
}

type progressRsp struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	StartTime time.Time `json:"start_time"`
	Total     uint64    `json:"total"`
	Finished  uint64    `json:"finished"`
	Failed    uint64    `json:"failed"`
}

func (b *ProgressBar) snapshot() progressRsp {
	b.Lock()
	defer b.Unlock()

	return progressRsp{
		ID:        b.ID,
		Name:      b.Name,
		StartTime: b.StartTime,
		Total:     b.Total,
		Finished:  b.Finished,
		Failed:    b.Failed,
	}
}
