package model

import "sync/atomic"

// Counter hands out reference ids. Ids start at 1 and are never reused.
type Counter struct {
	last atomic.Int64
}

func (c *Counter) Next() int64 {
	return c.last.Add(1)
}

// Last returns the most recently issued id, or 0 if none was issued
func (c *Counter) Last() int64 {
	return c.last.Load()
}
