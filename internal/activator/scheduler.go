package activator

import (
	"time"

	"github.com/conneroisu/hydrate/internal/dom"
)

// frameScheduler coalesces scan requests per node: at most one scan per node
// is outstanding, and a newer request replaces an older one that has not run.
//
// Entries are keyed by NodeID and evicted as soon as their frame runs or is
// cancelled, so the table never outlives a frame's worth of nodes.
type frameScheduler struct {
	loop      *dom.Loop
	scheduled map[dom.NodeID]dom.FrameHandle
	run       func(*dom.Node)
	replaced  func()
}

func newFrameScheduler(loop *dom.Loop, run func(*dom.Node), replaced func()) *frameScheduler {
	return &frameScheduler{
		loop:      loop,
		scheduled: make(map[dom.NodeID]dom.FrameHandle),
		run:       run,
		replaced:  replaced,
	}
}

// schedule requests a scan of node before the next frame, cancelling any
// not-yet-run scan for the same node.
func (s *frameScheduler) schedule(node *dom.Node) {
	id := node.ID()
	if prev, ok := s.scheduled[id]; ok {
		s.loop.CancelAnimationFrame(prev)
		delete(s.scheduled, id)
		if s.replaced != nil {
			s.replaced()
		}
	}

	var handle dom.FrameHandle
	handle = s.loop.RequestAnimationFrame(func(time.Time) {
		if s.scheduled[id] == handle {
			delete(s.scheduled, id)
		}
		s.run(node)
	})
	s.scheduled[id] = handle
}

// outstanding returns the number of nodes with a scheduled scan.
func (s *frameScheduler) outstanding() int {
	return len(s.scheduled)
}
