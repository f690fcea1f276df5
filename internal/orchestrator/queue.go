package orchestrator

import (
	"container/heap"

	"github.com/t77yq/mission-control/internal/model"
)

// missionQueue implements a priority queue of waiting missions. Higher
// priority pops first; equal priorities pop in submission order. Access is
// guarded by the orchestrator's lock.
type missionQueue struct {
	missions []*model.Mission
}

func newMissionQueue() *missionQueue {
	q := &missionQueue{}
	heap.Init(q)
	return q
}

func (q *missionQueue) Len() int { return len(q.missions) }

func (q *missionQueue) Less(i, j int) bool {
	if q.missions[i].Priority != q.missions[j].Priority {
		return q.missions[i].Priority > q.missions[j].Priority
	}
	return q.missions[i].CreatedAt.Before(q.missions[j].CreatedAt)
}

func (q *missionQueue) Swap(i, j int) {
	q.missions[i], q.missions[j] = q.missions[j], q.missions[i]
}

func (q *missionQueue) Push(x interface{}) {
	q.missions = append(q.missions, x.(*model.Mission))
}

func (q *missionQueue) Pop() interface{} {
	old := q.missions
	n := len(old)
	if n == 0 {
		return nil
	}
	item := old[n-1]
	old[n-1] = nil
	q.missions = old[:n-1]
	return item
}

// push adds a mission maintaining heap order.
func (q *missionQueue) push(m *model.Mission) {
	heap.Push(q, m)
}

// pop removes and returns the highest priority mission, skipping any that
// were cancelled while queued. Returns nil when empty.
func (q *missionQueue) pop() *model.Mission {
	for q.Len() > 0 {
		m := heap.Pop(q).(*model.Mission)
		if m.Status == model.MissionStatusCancelled {
			continue
		}
		return m
	}
	return nil
}

// find returns the queued mission with the given id, or nil.
func (q *missionQueue) find(id string) *model.Mission {
	for _, m := range q.missions {
		if m.ID == id {
			return m
		}
	}
	return nil
}
