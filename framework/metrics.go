package framework

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exports task counters to Prometheus. It consumes the same event
// stream as any other Telemetry sink.
type Metrics struct {
	Tasks           *prometheus.CounterVec
	CompileExits    *prometheus.CounterVec
	RunSpawns       prometheus.Counter
	SpawnFailures   *prometheus.CounterVec
	CompileDuration prometheus.Histogram

	mu      sync.Mutex
	started map[string]time.Time
}

// NewMetrics creates the collectors and registers them with reg. A nil
// registerer leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jbuild",
			Name:      "tasks_total",
			Help:      "Compile tasks started, by mode.",
		}, []string{"mode"}),
		CompileExits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jbuild",
			Name:      "compile_exit_total",
			Help:      "Compiler exits, by result.",
		}, []string{"result"}),
		RunSpawns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "jbuild",
			Name:      "run_spawn_total",
			Help:      "Run processes spawned after a successful compile.",
		}),
		SpawnFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jbuild",
			Name:      "spawn_failures_total",
			Help:      "Processes that could not be started, by tool.",
		}, []string{"tool"}),
		CompileDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "jbuild",
			Name:      "compile_duration_seconds",
			Help:      "Time from task start to compiler exit.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		started: make(map[string]time.Time),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.Tasks, m.CompileExits, m.RunSpawns, m.SpawnFailures, m.CompileDuration} {
		if err := reg.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				continue
			}
			return nil, err
		}
	}
	return m, nil
}

// Emit updates the collectors for event.
func (m *Metrics) Emit(event Event) {
	switch event.Type {
	case EventTaskStart:
		m.Tasks.WithLabelValues(string(event.Mode)).Inc()
		m.mu.Lock()
		m.started[event.TaskID] = event.Timestamp
		m.mu.Unlock()
	case EventCompileExit:
		result := "success"
		if event.ExitCode != 0 {
			result = "failure"
		}
		m.CompileExits.WithLabelValues(result).Inc()
		m.mu.Lock()
		start, ok := m.started[event.TaskID]
		m.mu.Unlock()
		if ok {
			m.CompileDuration.Observe(event.Timestamp.Sub(start).Seconds())
		}
	case EventRunSpawn:
		m.RunSpawns.Inc()
	case EventSpawnFailed:
		m.SpawnFailures.WithLabelValues(event.Tool).Inc()
	case EventTaskFinish:
		m.mu.Lock()
		delete(m.started, event.TaskID)
		m.mu.Unlock()
	}
}
