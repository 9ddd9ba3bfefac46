package filemanager

import "github.com/efebarandurmaz/kiln/internal/compiler"

// DefaultCancelCheckInterval is how many calls of one entry point family
// pass between two samples of the cancellation predicate.
const DefaultCancelCheckInterval = 64

type callFamily int

const (
	familyInput callFamily = iota
	familyOutput
	familyExistence
	familyCount
)

// canceler samples the cancellation predicate on a fixed cadence per
// entry point family so tight loops do not pay for it on every call.
type canceler struct {
	predicate func() bool
	interval  int
	calls     [familyCount]int
	samples   int
	observed  bool
}

func newCanceler(predicate func() bool, interval int) *canceler {
	if interval <= 0 {
		interval = DefaultCancelCheckInterval
	}
	return &canceler{predicate: predicate, interval: interval}
}

// check counts a call and samples the predicate on the first call and
// every interval calls after it. Once cancellation has been observed every
// later call fails.
func (c *canceler) check(f callFamily) error {
	if c.observed {
		return &compiler.CanceledError{}
	}
	if c.predicate == nil {
		return nil
	}
	c.calls[f]++
	if (c.calls[f]-1)%c.interval != 0 {
		return nil
	}
	c.samples++
	if c.predicate() {
		c.observed = true
		return &compiler.CanceledError{}
	}
	return nil
}
