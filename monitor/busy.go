package monitor

import "github.com/sarchlab/resmon/resource"

// InferBusy decides which state to record for one operation, given the state
// before and after it.
//
// If anybody was waiting on either side of the operation, the resource was
// saturated through the transition and the occupancy before is kept, even if
// a slot is momentarily empty. Otherwise the occupancy after is the genuine
// state. A release that leaves a non-zero queue unchanged has a waiter in the
// middle of being served, which is not counted as queued.
func InferBusy(
	op resource.Operation,
	before, after Snapshot,
) (occupancy, queueLength int) {
	occupancy = after.Occupancy
	if before.QueueLength > 0 || after.QueueLength > 0 {
		occupancy = before.Occupancy
	}

	queueLength = after.QueueLength
	if op == resource.OpRelease &&
		before.QueueLength == after.QueueLength &&
		after.QueueLength > 0 {
		queueLength--
	}

	return occupancy, queueLength
}
