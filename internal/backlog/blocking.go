package backlog

import (
	"time"
)

// WaitForAppend blocks until new frames become durable, timeout elapses or
// the backlog is closed. It returns true only if woken by a flush. A
// non-positive timeout waits until one of the other two happens.
func (b *Backlog) WaitForAppend(timeout time.Duration) bool {
	ch, live := b.set.waitCh()
	if !live {
		return false
	}
	if timeout <= 0 {
		<-ch
		return !b.set.isShut()
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-ch:
		return !b.set.isShut()
	case <-t.C:
		return false
	}
}
