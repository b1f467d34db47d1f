package audio

import "sync/atomic"

// DefaultQueueDepth is the default block capacity of the hand-off queue.
const DefaultQueueDepth = 64

// Queue is the hand-off between the capture callback and the
// evaluation loop: one producer and one consumer, neither allowed to
// block. When the consumer falls behind, the newest blocks are
// dropped and counted rather than stalling the capture side.
type Queue struct {
	blocks  chan Block
	dropped atomic.Uint64
}

// NewQueue creates a queue holding at most depth blocks.
func NewQueue(depth int) *Queue {
	if depth < 1 {
		depth = DefaultQueueDepth
	}
	return &Queue{blocks: make(chan Block, depth)}
}

// Enqueue hands a block to the consumer without blocking. It reports
// whether the block was accepted; a rejected block is counted as
// dropped.
func (q *Queue) Enqueue(b Block) bool {
	select {
	case q.blocks <- b:
		return true
	default:
		q.dropped.Add(1)
		return false
	}
}

// Drain returns every block currently queued, oldest first, without
// blocking. An empty queue yields nil.
func (q *Queue) Drain() []Block {
	var out []Block
	for {
		select {
		case b := <-q.blocks:
			out = append(out, b)
		default:
			return out
		}
	}
}

// Dropped returns the total number of blocks discarded because the
// queue was full.
func (q *Queue) Dropped() uint64 {
	return q.dropped.Load()
}
