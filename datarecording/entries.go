package datarecording

// Table names used by MonitorRecorder.
const (
	TableResources    = "resources"
	TableObservations = "observations"
	TableSamples      = "samples"
	TableEntities     = "entities"
	TableWindowStats  = "window_stats"
	TableExecInfo     = "exec_info"
)

// ResourceEntry describes a registered resource.
type ResourceEntry struct {
	Name     string
	Capacity int
	Strategy string
}

// ObservationEntry is one raw observation.
type ObservationEntry struct {
	Resource    string
	Time        float64
	Occupancy   int
	QueueLength int
	Phase       string
	Op          string
}

// SampleEntry is one busy-inferred sample.
type SampleEntry struct {
	Resource    string
	Time        float64
	Occupancy   int
	QueueLength int
}

// EntityEntry is one entity visit.
type EntityEntry struct {
	Resource    string
	Entity      string
	ArrivalTime float64
	StartTime   float64
	DepartTime  float64
	Outcome     string
}

// WindowStatsEntry is the result of one window query.
type WindowStatsEntry struct {
	Resource       string
	BeginTime      float64
	EndTime        float64
	Utilization    float64
	AvgQueueLength float64
	OccupancyTime  float64
	QueueTime      float64
}

// ExecInfo is one property of the program execution.
type ExecInfo struct {
	Property string
	Value    string
}
