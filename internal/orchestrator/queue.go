package orchestrator

import "github.com/ignite/prospectai/internal/domain"

// lane is one of the three priority channels workers drain from, checked
// in order (Priority > Normal > Retry) so an operator's InsertPriority
// command jumps the line without starving retries entirely.
type lane int

const (
	lanePriority lane = iota
	laneNormal
	laneRetry
)

// workItem is one company moving through the pipeline, tagged with its
// current retry attempt so the pipeline can honor cfg.Worker.RetryBudget.
type workItem struct {
	company domain.Company
	attempt int
}

// priorityQueues holds the three buffered channels workers select over.
type priorityQueues struct {
	priority chan workItem
	normal   chan workItem
	retry    chan workItem
}

func newPriorityQueues(capacity int) *priorityQueues {
	return &priorityQueues{
		priority: make(chan workItem, capacity),
		normal:   make(chan workItem, capacity),
		retry:    make(chan workItem, capacity),
	}
}

func (q *priorityQueues) push(l lane, item workItem) {
	switch l {
	case lanePriority:
		q.priority <- item
	case laneRetry:
		q.retry <- item
	default:
		q.normal <- item
	}
}

// pop selects the next item, preferring priority, then normal, then
// retry, without blocking when all three are empty; the caller's own
// select handles waiting on the done channel.
func (q *priorityQueues) pop() (workItem, bool) {
	select {
	case item := <-q.priority:
		return item, true
	default:
	}
	select {
	case item := <-q.normal:
		return item, true
	default:
	}
	select {
	case item := <-q.retry:
		return item, true
	default:
	}
	return workItem{}, false
}

// empty reports whether all three lanes are currently drained. Racy by
// nature (a push can land right after), so callers pair it with an
// in-flight count rather than treating it as a barrier on its own.
func (q *priorityQueues) empty() bool {
	return len(q.priority) == 0 && len(q.normal) == 0 && len(q.retry) == 0
}

func (q *priorityQueues) closeAll() {
	close(q.priority)
	close(q.normal)
	close(q.retry)
}
