package contracts

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// IDSource mints contract ids. taken reports ids already present elsewhere (the world store).
type IDSource interface {
	Next(taken func(string) bool) string
}

// ClockIDs derives ids from the UTC wall clock at millisecond resolution. Ids issued by one
// ClockIDs are never repeated; a collision gets a numeric suffix.
type ClockIDs struct {
	mu     sync.Mutex
	now    func() time.Time
	issued map[string]struct{}
}

func NewClockIDs(now func() time.Time) *ClockIDs {
	if now == nil {
		now = time.Now
	}
	return &ClockIDs{now: now, issued: make(map[string]struct{})}
}

func (c *ClockIDs) Next(taken func(string) bool) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	stamp := strings.Replace(c.now().UTC().Format("20060102_150405.000"), ".", "_", 1)
	base := "conv_" + stamp
	id := base
	for n := 2; c.used(id, taken); n++ {
		id = fmt.Sprintf("%s_%d", base, n)
	}
	c.issued[id] = struct{}{}
	return id
}

func (c *ClockIDs) used(id string, taken func(string) bool) bool {
	if _, ok := c.issued[id]; ok {
		return true
	}
	return taken != nil && taken(id)
}
