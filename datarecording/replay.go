package datarecording

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/sarchlab/resmon/monitor"
	"github.com/sarchlab/resmon/resource"
)

// Replay registers everything recorded in a database into registry, so that
// the recorded resources can be queried again without running the
// simulation.
func Replay(
	ctx context.Context,
	reader DataReader,
	registry *monitor.Registry,
) error {
	reader.MapTable(TableResources, ResourceEntry{})
	reader.MapTable(TableObservations, ObservationEntry{})
	reader.MapTable(TableSamples, SampleEntry{})
	reader.MapTable(TableEntities, EntityEntry{})

	rows, _, err := reader.Query(ctx, TableResources,
		QueryParams{OrderBy: "Name"})
	if err != nil {
		return err
	}

	for _, row := range rows {
		entry := row.(*ResourceEntry)

		err = replayResource(ctx, reader, registry, entry)
		if err != nil {
			return errors.Wrapf(err, "replaying %s", entry.Name)
		}
	}

	return nil
}

func replayResource(
	ctx context.Context,
	reader DataReader,
	registry *monitor.Registry,
	entry *ResourceEntry,
) error {
	strategy, err := monitor.ParseStrategy(entry.Strategy)
	if err != nil {
		return err
	}

	byResource := QueryParams{
		Where:   "Resource = ?",
		Args:    []any{entry.Name},
		OrderBy: "rowid",
	}

	switch strategy {
	case monitor.StrategyDirect:
		observations, err := readObservations(ctx, reader, byResource)
		if err != nil {
			return err
		}

		err = registry.RegisterLog(entry.Name, entry.Capacity, observations)
		if err != nil {
			return err
		}
	default:
		samples, err := readSamples(ctx, reader, byResource)
		if err != nil {
			return err
		}

		err = registry.RegisterSamples(entry.Name, entry.Capacity, samples)
		if err != nil {
			return err
		}
	}

	rows, _, err := reader.Query(ctx, TableEntities, byResource)
	if err != nil {
		return err
	}

	for _, row := range rows {
		e := row.(*EntityEntry)

		outcome, err := monitor.ParseOutcome(e.Outcome)
		if err != nil {
			return err
		}

		err = registry.RecordEntity(entry.Name, monitor.EntityRecord{
			Name:    e.Entity,
			Arrival: e.ArrivalTime,
			Start:   e.StartTime,
			Depart:  e.DepartTime,
			Outcome: outcome,
		})
		if err != nil {
			return err
		}
	}

	return nil
}

func readObservations(
	ctx context.Context,
	reader DataReader,
	params QueryParams,
) ([]monitor.Observation, error) {
	rows, _, err := reader.Query(ctx, TableObservations, params)
	if err != nil {
		return nil, err
	}

	observations := make([]monitor.Observation, 0, len(rows))

	for _, row := range rows {
		e := row.(*ObservationEntry)

		phase, err := monitor.ParsePhase(e.Phase)
		if err != nil {
			return nil, err
		}

		op, err := resource.ParseOperation(e.Op)
		if err != nil {
			return nil, err
		}

		observations = append(observations, monitor.Observation{
			Time:        e.Time,
			Occupancy:   e.Occupancy,
			QueueLength: e.QueueLength,
			Phase:       phase,
			Op:          op,
		})
	}

	return observations, nil
}

func readSamples(
	ctx context.Context,
	reader DataReader,
	params QueryParams,
) ([]monitor.Sample, error) {
	rows, _, err := reader.Query(ctx, TableSamples, params)
	if err != nil {
		return nil, err
	}

	samples := make([]monitor.Sample, 0, len(rows))

	for _, row := range rows {
		e := row.(*SampleEntry)
		samples = append(samples, monitor.Sample{
			Time:        e.Time,
			Occupancy:   e.Occupancy,
			QueueLength: e.QueueLength,
		})
	}

	return samples, nil
}
