package server

import (
	"log"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kruton/etamoo/pkg/gamedb"
	"github.com/kruton/etamoo/pkg/task"
)

// Metrics holds Prometheus metric descriptors for the server.
type Metrics struct {
	world     *gamedb.World
	sched     *task.Scheduler
	startTime time.Time

	playersConnected prometheus.Gauge
	objectsTotal     prometheus.Gauge
	connectionsTotal prometheus.Counter
	commandsTotal    prometheus.Counter
	linesTotal       prometheus.Counter
	queuedTasks      prometheus.Gauge
	uptimeSeconds    prometheus.Gauge
	memoryHeapBytes  prometheus.Gauge
	goroutines       prometheus.Gauge
}

// NewMetrics creates and registers Prometheus metrics for the server.
func NewMetrics(w *gamedb.World, sched *task.Scheduler, startTime time.Time) *Metrics {
	m := &Metrics{
		world:     w,
		sched:     sched,
		startTime: startTime,
		playersConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "etamoo_players_connected",
			Help: "Number of currently connected authenticated players.",
		}),
		objectsTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "etamoo_objects_total",
			Help: "Highest allocated object number plus one.",
		}),
		connectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "etamoo_connections_total",
			Help: "Total connections since server start.",
		}),
		commandsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "etamoo_commands_processed_total",
			Help: "Total command lines processed since server start.",
		}),
		linesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "etamoo_lines_delivered_total",
			Help: "Total output messages emitted to players.",
		}),
		queuedTasks: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "etamoo_queued_tasks",
			Help: "Tasks currently pending, forked, suspended or reading.",
		}),
		uptimeSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "etamoo_uptime_seconds",
			Help: "Server uptime in seconds.",
		}),
		memoryHeapBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "etamoo_memory_heap_bytes",
			Help: "Go heap memory allocated in bytes.",
		}),
		goroutines: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "etamoo_goroutines",
			Help: "Number of active goroutines.",
		}),
	}

	prometheus.MustRegister(
		m.playersConnected,
		m.objectsTotal,
		m.connectionsTotal,
		m.commandsTotal,
		m.linesTotal,
		m.queuedTasks,
		m.uptimeSeconds,
		m.memoryHeapBytes,
		m.goroutines,
	)
	return m
}

// ConnectionOpened counts an accepted connection.
func (m *Metrics) ConnectionOpened() { m.connectionsTotal.Inc() }

// ConnectionClosed updates the connected gauge after a teardown.
func (m *Metrics) ConnectionClosed() { m.Update() }

// CommandProcessed counts one dispatched command line.
func (m *Metrics) CommandProcessed() { m.commandsTotal.Inc() }

// LineDelivered counts one output message emitted on the event bus, whether
// or not a connection was bound to receive it.
func (m *Metrics) LineDelivered() { m.linesTotal.Inc() }

// Update refreshes the gauge metrics from current world state.
func (m *Metrics) Update() {
	connected := 0
	m.world.Attempt(func(tx *gamedb.Tx) error {
		for who := range m.world.Connections {
			if who >= 0 {
				connected++
			}
		}
		m.objectsTotal.Set(float64(m.world.MaxObject() + 1))
		return nil
	})
	m.playersConnected.Set(float64(connected))
	m.queuedTasks.Set(float64(len(m.sched.QueuedTasks(0, true))))
	m.uptimeSeconds.Set(time.Since(m.startTime).Seconds())

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	m.memoryHeapBytes.Set(float64(mem.HeapAlloc))
	m.goroutines.Set(float64(runtime.NumGoroutine()))
}

// Serve exposes the metrics endpoint on the given port.
func (m *Metrics) Serve(port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.Update()
		promhttp.Handler().ServeHTTP(w, r)
	}))
	go func() {
		if err := http.ListenAndServe(":"+strconv.Itoa(port), mux); err != nil {
			log.Printf("WARNING: metrics endpoint: %v", err)
		}
	}()
}
