package analysis

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"

	"github.com/cockroachdb/errors"
	"github.com/sarchlab/resmon/monitor"
	"github.com/sarchlab/resmon/timing"
)

// PeriodEntry is a single value measured over a period.
type PeriodEntry struct {
	Start timing.VTimeInSec
	End   timing.VTimeInSec
	Where string
	What  string
	Value float64
	Unit  string
}

// Backend is the interface that provides the service that can record entries.
type Backend interface {
	AddDataEntry(entry PeriodEntry)
	Flush()
}

// CSVBackend is a Backend that writes entries as CSV rows.
type CSVBackend struct {
	csvWriter *csv.Writer
}

// NewCSVBackend creates a CSVBackend and writes the header row.
func NewCSVBackend(w io.Writer) *CSVBackend {
	b := &CSVBackend{csvWriter: csv.NewWriter(w)}

	header := []string{"Start", "End", "Where", "What", "Value", "Unit"}
	err := b.csvWriter.Write(header)
	if err != nil {
		panic(err)
	}

	return b
}

// AddDataEntry writes one row.
func (b *CSVBackend) AddDataEntry(entry PeriodEntry) {
	err := b.csvWriter.Write([]string{
		fmt.Sprintf("%.10f", entry.Start),
		fmt.Sprintf("%.10f", entry.End),
		entry.Where,
		entry.What,
		fmt.Sprintf("%.10f", entry.Value),
		entry.Unit,
	})
	if err != nil {
		panic(err)
	}
}

// Flush flushes the CSV writer.
func (b *CSVBackend) Flush() {
	b.csvWriter.Flush()
}

// Querier answers window queries over named resources.
type Querier interface {
	Names() []string
	Query(name string, begin, end timing.VTimeInSec) (monitor.Stats, error)
}

// PeriodReporter reports the utilization and the average queue length of all
// the resources of a Querier, period by period.
type PeriodReporter struct {
	querier Querier
	backend Backend
	period  timing.VTimeInSec
}

// PeriodReporterBuilder can build PeriodReporters.
type PeriodReporterBuilder struct {
	querier Querier
	backend Backend
	period  timing.VTimeInSec
}

// MakePeriodReporterBuilder creates a PeriodReporterBuilder.
func MakePeriodReporterBuilder() PeriodReporterBuilder {
	return PeriodReporterBuilder{
		period: math.Inf(1),
	}
}

// WithQuerier sets where the statistics come from.
func (b PeriodReporterBuilder) WithQuerier(q Querier) PeriodReporterBuilder {
	b.querier = q
	return b
}

// WithBackend sets where the entries go.
func (b PeriodReporterBuilder) WithBackend(backend Backend) PeriodReporterBuilder {
	b.backend = backend
	return b
}

// WithPeriod sets the length of each reported window. Without a period, a
// single window is reported.
func (b PeriodReporterBuilder) WithPeriod(
	period timing.VTimeInSec,
) PeriodReporterBuilder {
	b.period = period
	return b
}

// Build creates a PeriodReporter.
func (b PeriodReporterBuilder) Build() *PeriodReporter {
	if b.querier == nil {
		panic("querier is not set")
	}

	if b.backend == nil {
		panic("backend is not set")
	}

	if !(b.period > 0) {
		panic("period must be positive")
	}

	return &PeriodReporter{
		querier: b.querier,
		backend: b.backend,
		period:  b.period,
	}
}

// Report reports every period from 0 until end. The last period is cut short
// at end.
func (r *PeriodReporter) Report(end timing.VTimeInSec) error {
	for start := 0.0; start < end; start += r.period {
		err := r.ReportWindow(start, math.Min(start+r.period, end))
		if err != nil {
			return err
		}
	}

	r.backend.Flush()

	return nil
}

// ReportWindow reports [begin, end) for every resource. Resources that have
// not recorded anything are skipped.
func (r *PeriodReporter) ReportWindow(begin, end timing.VTimeInSec) error {
	for _, name := range r.querier.Names() {
		stats, err := r.querier.Query(name, begin, end)
		if errors.Is(err, monitor.ErrInsufficientData) {
			continue
		}

		if err != nil {
			return err
		}

		r.backend.AddDataEntry(PeriodEntry{
			Start: begin,
			End:   end,
			Where: name,
			What:  "Utilization",
			Value: stats.Utilization,
		})
		r.backend.AddDataEntry(PeriodEntry{
			Start: begin,
			End:   end,
			Where: name,
			What:  "AvgQueueLength",
			Value: stats.AvgQueueLength,
			Unit:  "entities",
		})
	}

	return nil
}
