// Package monitoring turns a running simulation into an HTTP server so that
// the monitored resources can be inspected and the engine controlled while
// the simulation runs.
package monitoring

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"strconv"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sarchlab/resmon/intercept"
	"github.com/sarchlab/resmon/metrics"
	"github.com/sarchlab/resmon/monitor"
	"github.com/sarchlab/resmon/timing"
	"github.com/shirou/gopsutil/process"
	"github.com/sirupsen/logrus"
	"github.com/syifan/goseth"
)

// Monitor serves the state of a monitor.Registry and the engine that drives
// it.
type Monitor struct {
	engine     timing.Engine
	registry   *monitor.Registry
	promReg    *prometheus.Registry
	portNumber int
	listener   net.Listener
	server     *http.Server
	logger     logrus.FieldLogger

	streams *streamHub

	progressBarsLock sync.Mutex
	progressBars     []*ProgressBar
}

// NewMonitor creates a new Monitor.
func NewMonitor() *Monitor {
	return &Monitor{
		logger:  logrus.StandardLogger(),
		streams: newStreamHub(),
	}
}

// WithPortNumber sets the port number of the monitor. Ports below 1000 are
// replaced by a random port.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber < 1000 {
		if portNumber != 0 {
			m.logger.WithField("port", portNumber).
				Warn("port not allowed for the monitoring server, " +
					"using a random port instead")
		}

		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// WithLogger sets the logger of the monitor.
func (m *Monitor) WithLogger(logger logrus.FieldLogger) *Monitor {
	m.logger = logger
	return m
}

// RegisterEngine registers the engine that is used in the simulation.
func (m *Monitor) RegisterEngine(e timing.Engine) {
	m.engine = e
}

// RegisterRegistry sets the registry to serve. It also starts collecting the
// Prometheus metrics of the registry and forwarding its hooks to the
// websocket stream.
func (m *Monitor) RegisterRegistry(r *monitor.Registry) {
	m.registry = r
	r.AcceptHook(m.streams)

	m.promReg = prometheus.NewRegistry()
	m.promReg.MustRegister(metrics.NewCollector(r, m))
}

// Now returns the time of the engine, or 0 before an engine is registered.
func (m *Monitor) Now() timing.VTimeInSec {
	if m.engine == nil {
		return 0
	}

	return m.engine.Now()
}

// CreateProgressBar creates a new progress bar.
func (m *Monitor) CreateProgressBar(name string, total uint64) *ProgressBar {
	bar := &ProgressBar{
		ID:        timing.GenerateID(),
		Name:      name,
		StartTime: time.Now(),
		Total:     total,
	}

	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	m.progressBars = append(m.progressBars, bar)

	return bar
}

// CompleteProgressBar removes a bar from the list of bars being served.
func (m *Monitor) CompleteProgressBar(pb *ProgressBar) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	newBars := make([]*ProgressBar, 0, len(m.progressBars))
	for _, b := range m.progressBars {
		if b != pb {
			newBars = append(newBars, b)
		}
	}

	m.progressBars = newBars
}

// Router returns the handler of all the endpoints of the monitor.
func (m *Monitor) Router() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/api/now", m.now)
	r.HandleFunc("/api/pause", m.pauseEngine)
	r.HandleFunc("/api/continue", m.continueEngine)
	r.HandleFunc("/api/run", m.run)
	r.HandleFunc("/api/progress", m.listProgressBars)
	r.HandleFunc("/api/resources", m.listResources)
	r.HandleFunc("/api/resource/{name}", m.resourceDetails)
	r.HandleFunc("/api/resource/{name}/stats", m.resourceStats)
	r.HandleFunc("/api/resource/{name}/samples", m.resourceSamples)
	r.HandleFunc("/api/resource/{name}/entities", m.resourceEntities)
	r.HandleFunc("/api/process", m.processStats)
	r.HandleFunc("/api/profile", m.collectProfile)
	r.HandleFunc("/api/stream", m.stream)

	if m.promReg != nil {
		r.Handle("/metrics", promhttp.HandlerFor(m.promReg,
			promhttp.HandlerOpts{}))
	}

	return r
}

// StartServer starts serving in the background and returns the port that the
// server listens on.
func (m *Monitor) StartServer() int {
	actualPort := ":0"
	if m.portNumber > 1000 {
		actualPort = ":" + strconv.Itoa(m.portNumber)
	}

	listener, err := net.Listen("tcp", actualPort)
	dieOnErr(err)

	m.listener = listener
	m.server = &http.Server{
		Handler:           m.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	port := listener.Addr().(*net.TCPAddr).Port
	fmt.Fprintf(os.Stderr,
		"Monitoring simulation with http://localhost:%d\n", port)

	go func() {
		err := m.server.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.WithError(err).Error("monitoring server stopped")
		}
	}()

	return port
}

// Shutdown stops the server and closes all the streams.
func (m *Monitor) Shutdown() {
	m.streams.closeAll()

	if m.server != nil {
		err := m.server.Close()
		if err != nil {
			m.logger.WithError(err).Warn("closing monitoring server")
		}
	}
}

func (m *Monitor) now(w http.ResponseWriter, _ *http.Request) {
	fmt.Fprintf(w, "{\"now\":%.10f}", m.Now())
}

func (m *Monitor) pauseEngine(w http.ResponseWriter, _ *http.Request) {
	if !m.engineOr503(w) {
		return
	}

	m.engine.Pause()
	w.WriteHeader(http.StatusOK)
}

func (m *Monitor) continueEngine(w http.ResponseWriter, _ *http.Request) {
	if !m.engineOr503(w) {
		return
	}

	m.engine.Continue()
	w.WriteHeader(http.StatusOK)
}

func (m *Monitor) run(w http.ResponseWriter, _ *http.Request) {
	if !m.engineOr503(w) {
		return
	}

	go func() {
		err := m.engine.Run()
		if err != nil {
			m.logger.WithError(err).Error("engine stopped")
		}
	}()

	w.WriteHeader(http.StatusAccepted)
}

func (m *Monitor) engineOr503(w http.ResponseWriter) bool {
	if m.engine == nil {
		http.Error(w, "no engine registered", http.StatusServiceUnavailable)
		return false
	}

	return true
}

func (m *Monitor) listProgressBars(w http.ResponseWriter, _ *http.Request) {
	m.progressBarsLock.Lock()
	bars := make([]ProgressBar, 0, len(m.progressBars))
	for _, b := range m.progressBars {
		bars = append(bars, b.snapshot())
	}
	m.progressBarsLock.Unlock()

	writeJSON(w, bars)
}

type resourceInfo struct {
	Name         string                `json:"name"`
	Capacity     int                   `json:"capacity"`
	Strategy     string                `json:"strategy"`
	Records      int                   `json:"records"`
	Entities     int                   `json:"entities"`
	Occupancy    int                   `json:"occupancy"`
	QueueLength  int                   `json:"queue_length"`
	Summary      monitor.EntitySummary `json:"summary"`
	Instrumented bool                  `json:"instrumented"`
}

func infoOf(reg *monitor.Registration) resourceInfo {
	info := resourceInfo{
		Name:         reg.Name(),
		Capacity:     reg.Capacity(),
		Strategy:     reg.Strategy().String(),
		Records:      reg.NumRecords(),
		Entities:     len(reg.Entities()),
		Summary:      reg.EntitySummary(),
		Instrumented: reg.Resource() != nil,
	}

	samples := reg.Samples()
	if len(samples) > 0 {
		last := samples[len(samples)-1]
		info.Occupancy = last.Occupancy
		info.QueueLength = last.QueueLength
	}

	return info
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	if !m.registryOr503(w) {
		return
	}

	infos := []resourceInfo{}

	for _, name := range m.registry.Names() {
		reg, err := m.registry.Registration(name)
		if err != nil {
			continue
		}

		infos = append(infos, infoOf(reg))
	}

	writeJSON(w, infos)
}

func (m *Monitor) resourceDetails(w http.ResponseWriter, r *http.Request) {
	reg := m.findRegistrationOr404(w, mux.Vars(r)["name"])
	if reg == nil {
		return
	}

	if reg.Resource() == nil {
		writeJSON(w, infoOf(reg))
		return
	}

	res := reg.Resource()
	for {
		i, ok := res.(*intercept.Interceptor)
		if !ok {
			break
		}

		res = i.Unwrap()
	}

	serializer := goseth.NewSerializer()
	serializer.SetRoot(res)
	serializer.SetMaxDepth(1)
	err := serializer.Serialize(w)

	dieOnErr(err)
}

func (m *Monitor) resourceStats(w http.ResponseWriter, r *http.Request) {
	if !m.registryOr503(w) {
		return
	}

	name := mux.Vars(r)["name"]

	begin, err := floatParam(r, "begin", 0)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	end, err := floatParam(r, "end", m.Now())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	stats, err := m.registry.Query(name, begin, end)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, stats)
}

func (m *Monitor) resourceSamples(w http.ResponseWriter, r *http.Request) {
	reg := m.findRegistrationOr404(w, mux.Vars(r)["name"])
	if reg == nil {
		return
	}

	samples := reg.Samples()
	if samples == nil {
		samples = []monitor.Sample{}
	}

	writeJSON(w, samples)
}

type entitiesRsp struct {
	Summary monitor.EntitySummary  `json:"summary"`
	Records []monitor.EntityRecord `json:"records"`
}

func (m *Monitor) resourceEntities(w http.ResponseWriter, r *http.Request) {
	reg := m.findRegistrationOr404(w, mux.Vars(r)["name"])
	if reg == nil {
		return
	}

	rsp := entitiesRsp{
		Summary: reg.EntitySummary(),
		Records: reg.Entities(),
	}
	if rsp.Records == nil {
		rsp.Records = []monitor.EntityRecord{}
	}

	writeJSON(w, rsp)
}

func (m *Monitor) registryOr503(w http.ResponseWriter) bool {
	if m.registry == nil {
		http.Error(w, "no registry registered", http.StatusServiceUnavailable)
		return false
	}

	return true
}

func (m *Monitor) findRegistrationOr404(
	w http.ResponseWriter,
	name string,
) *monitor.Registration {
	if !m.registryOr503(w) {
		return nil
	}

	reg, err := m.registry.Registration(name)
	if err != nil {
		writeError(w, err)
		return nil
	}

	return reg
}

type processRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) processStats(w http.ResponseWriter, _ *http.Request) {
	pid := os.Getpid()
	process, err := process.NewProcess(int32(pid))
	dieOnErr(err)

	cpuPercent, err := process.CPUPercent()
	dieOnErr(err)

	memorySize, err := process.MemoryInfo()
	dieOnErr(err)

	writeJSON(w, processRsp{
		CPUPercent: cpuPercent,
		MemorySize: memorySize.RSS,
	})
}

func (m *Monitor) collectProfile(w http.ResponseWriter, _ *http.Request) {
	buf := bytes.NewBuffer(nil)

	err := pprof.StartCPUProfile(buf)
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	time.Sleep(time.Second)

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	dieOnErr(err)

	writeJSON(w, prof)
}

func floatParam(
	r *http.Request,
	key string,
	fallback timing.VTimeInSec,
) (timing.VTimeInSec, error) {
	str := r.URL.Query().Get(key)
	if str == "" {
		return fallback, nil
	}

	v, err := strconv.ParseFloat(str, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "parameter %s", key)
	}

	return v, nil
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, monitor.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, monitor.ErrInvalidWindow),
		errors.Is(err, monitor.ErrInvalidCapacity):
		return http.StatusBadRequest
	case errors.Is(err, monitor.ErrInsufficientData):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), statusOf(err))
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	bytes, err := json.Marshal(v)
	dieOnErr(err)

	w.Header().Set("Content-Type", "application/json")

	_, err = w.Write(bytes)
	dieOnErr(err)
}

func dieOnErr(err error) {
	if err != nil {
		log.Panic(err)
	}
}
