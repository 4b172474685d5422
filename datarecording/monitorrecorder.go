package datarecording

import (
	"github.com/sarchlab/resmon/hooking"
	"github.com/sarchlab/resmon/monitor"
)

// MonitorRecorder is a hook on a monitor.Registry that writes every
// observation, sample and entity record into a DataRecorder.
type MonitorRecorder struct {
	recorder DataRecorder
}

// NewMonitorRecorder creates the tables that the MonitorRecorder writes.
func NewMonitorRecorder(recorder DataRecorder) *MonitorRecorder {
	recorder.CreateTable(TableResources, ResourceEntry{})
	recorder.CreateTable(TableObservations, ObservationEntry{})
	recorder.CreateTable(TableSamples, SampleEntry{})
	recorder.CreateTable(TableEntities, EntityEntry{})
	recorder.CreateTable(TableWindowStats, WindowStatsEntry{})

	return &MonitorRecorder{recorder: recorder}
}

// Func writes the item carried by the hook.
func (r *MonitorRecorder) Func(ctx hooking.HookCtx) {
	name, ok := ctx.Detail.(string)
	if !ok {
		return
	}

	switch ctx.Pos {
	case monitor.HookPosObservation:
		o := ctx.Item.(monitor.Observation)
		r.recorder.InsertData(TableObservations, ObservationEntry{
			Resource:    name,
			Time:        o.Time,
			Occupancy:   o.Occupancy,
			QueueLength: o.QueueLength,
			Phase:       o.Phase.String(),
			Op:          o.Op.String(),
		})
	case monitor.HookPosSample:
		s := ctx.Item.(monitor.Sample)
		r.recorder.InsertData(TableSamples, SampleEntry{
			Resource:    name,
			Time:        s.Time,
			Occupancy:   s.Occupancy,
			QueueLength: s.QueueLength,
		})
	case monitor.HookPosEntity:
		e := ctx.Item.(monitor.EntityRecord)
		r.recorder.InsertData(TableEntities, EntityEntry{
			Resource:    name,
			Entity:      e.Name,
			ArrivalTime: e.Arrival,
			StartTime:   e.Start,
			DepartTime:  e.Depart,
			Outcome:     e.Outcome.String(),
		})
	}
}

// RecordResource writes the description of a registered resource.
func (r *MonitorRecorder) RecordResource(
	name string,
	capacity int,
	strategy monitor.Strategy,
) {
	r.recorder.InsertData(TableResources, ResourceEntry{
		Name:     name,
		Capacity: capacity,
		Strategy: strategy.String(),
	})
}

// RecordStats writes the result of a window query.
func (r *MonitorRecorder) RecordStats(name string, stats monitor.Stats) {
	r.recorder.InsertData(TableWindowStats, WindowStatsEntry{
		Resource:       name,
		BeginTime:      stats.Begin,
		EndTime:        stats.End,
		Utilization:    stats.Utilization,
		AvgQueueLength: stats.AvgQueueLength,
		OccupancyTime:  stats.OccupancyTime,
		QueueTime:      stats.QueueTime,
	})
}

// Flush writes the buffered rows.
func (r *MonitorRecorder) Flush() {
	r.recorder.Flush()
}
