package datarecording

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ExecRecorder records how the program that produced a database was run.
type ExecRecorder struct {
	recorder DataRecorder
	entries  []ExecInfo
}

// NewExecRecorder creates the exec_info table.
func NewExecRecorder(recorder DataRecorder) *ExecRecorder {
	recorder.CreateTable(TableExecInfo, ExecInfo{})

	return &ExecRecorder{recorder: recorder}
}

// Start logs the current execution.
func (e *ExecRecorder) Start() {
	startTime := time.Now().Format("2006-01-02 15:04:05.000000000")
	e.entries = append(e.entries, ExecInfo{"Start Time", startTime})

	cmd := strings.Join(os.Args, " ")
	e.entries = append(e.entries, ExecInfo{"Command", cmd})

	cwd, err := os.Getwd()
	if err == nil {
		e.entries = append(e.entries,
			ExecInfo{"Working Directory", filepath.Clean(cwd)})
	}
}

// Property records one property of the run, such as the scenario or the seed.
func (e *ExecRecorder) Property(name, value string) {
	e.entries = append(e.entries, ExecInfo{name, value})
}

// End writes the properties along with the exit time.
func (e *ExecRecorder) End() {
	for _, entry := range e.entries {
		e.recorder.InsertData(TableExecInfo, entry)
	}

	endTime := time.Now().Format("2006-01-02 15:04:05.000000000")
	e.recorder.InsertData(TableExecInfo, ExecInfo{"End Time", endTime})

	e.entries = nil

	e.recorder.Flush()
}
