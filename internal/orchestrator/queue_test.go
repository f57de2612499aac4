package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ignite/prospectai/internal/domain"
)

func TestPriorityQueuesPopPrefersPriorityThenNormalThenRetry(t *testing.T) {
	q := newPriorityQueues(4)
	q.push(laneNormal, workItem{company: domain.Company{Name: "normal-co"}})
	q.push(laneRetry, workItem{company: domain.Company{Name: "retry-co"}})
	q.push(lanePriority, workItem{company: domain.Company{Name: "priority-co"}})

	item, ok := q.pop()
	require.True(t, ok)
	require.Equal(t, "priority-co", item.company.Name)

	item, ok = q.pop()
	require.True(t, ok)
	require.Equal(t, "normal-co", item.company.Name)

	item, ok = q.pop()
	require.True(t, ok)
	require.Equal(t, "retry-co", item.company.Name)

	_, ok = q.pop()
	require.False(t, ok)
}

func TestPriorityQueuesPopEmptyReturnsFalse(t *testing.T) {
	q := newPriorityQueues(1)
	_, ok := q.pop()
	require.False(t, ok)
}

func TestPriorityQueuesDefaultLanePushesNormal(t *testing.T) {
	q := newPriorityQueues(1)
	q.push(lane(99), workItem{company: domain.Company{Name: "unknown-lane-co"}})

	item, ok := q.pop()
	require.True(t, ok)
	require.Equal(t, "unknown-lane-co", item.company.Name)
}
