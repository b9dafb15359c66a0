package metrics

import (
	"context"
	"errors"
	"log"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "brutesim"

var (
	// Registry is a dedicated Prometheus registry for all brutesim metrics.
	Registry = prometheus.NewRegistry()

	// AttemptDuration measures how long each authentication call took.
	AttemptDuration = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "attempt_duration_ms",
			Help:      "Duration of a single authentication attempt in milliseconds",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2000, 5000},
		},
	)

	// AttemptsTotal counts attempts by recorded outcome.
	AttemptsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attempts_total",
			Help:      "Total number of simulated login attempts",
		},
		[]string{"outcome"}, // FAILED | SUCCESS
	)

	// DelaySeconds tracks the randomized pauses between attempts.
	DelaySeconds = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "delay_seconds",
			Help:      "Randomized pause between attempts in seconds",
			Buckets:   []float64{0, 0.25, 0.5, 1, 1.5, 2, 3, 5, 10},
		},
	)

	// RunsTotal counts simulation runs by result.
	RunsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Total number of simulation runs",
		},
		[]string{"result"}, // completed | interrupted | error
	)

	// AuthLogLines counts lines observed in the watched system auth log.
	AuthLogLines = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_log_lines_total",
			Help:      "Lines appended to the watched auth log during runs",
		},
	)

	// AgentInfo exposes static information about the running simulator.
	AgentInfo = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "agent_info",
			Help:      "Static information about the simulator",
		},
		[]string{"os", "arch", "version"},
	)

	// Up is 1 while a run is in progress.
	Up = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "up",
			Help:      "1 while a simulation run is in progress",
		},
	)
)

func init() {
	Registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	Registry.MustRegister(prometheus.NewGoCollector())
}

// SetAgentInfo publishes a single info metric for the running process.
func SetAgentInfo(osName, arch, version string) {
	if osName == "" {
		osName = runtime.GOOS
	}
	if arch == "" {
		arch = runtime.GOARCH
	}
	if version == "" {
		version = "dev"
	}
	AgentInfo.WithLabelValues(osName, arch, version).Set(1)
}

// ObserveAttempt records how long the authentication call took and the
// outcome that was recorded for it.
func ObserveAttempt(elapsed time.Duration, outcome string) {
	if elapsed < 0 {
		elapsed = 0
	}
	AttemptDuration.Observe(float64(elapsed) / float64(time.Millisecond))
	AttemptsTotal.WithLabelValues(outcome).Inc()
}

// ObserveDelay records an inter-attempt pause.
func ObserveDelay(d time.Duration) {
	if d < 0 {
		return
	}
	DelaySeconds.Observe(d.Seconds())
}

// ObserveRun counts a finished run.
func ObserveRun(result string) {
	RunsTotal.WithLabelValues(result).Inc()
}

// AddAuthLogLines adds observed auth log lines.
func AddAuthLogLines(n int) {
	if n <= 0 {
		return
	}
	AuthLogLines.Add(float64(n))
}

// SetUp toggles the in-progress gauge.
func SetUp(running bool) {
	if running {
		Up.Set(1)
		return
	}
	Up.Set(0)
}

// Serve starts the /metrics HTTP endpoint on the provided address.
func Serve(ctx context.Context, addr string, logger *log.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = log.Default()
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(Registry, promhttp.HandlerOpts{EnableOpenMetrics: true}))

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	idleClosed := make(chan struct{})
	go func() {
		defer close(idleClosed)
		<-ctx.Done()
		_ = srv.Shutdown(context.Background())
	}()

	logger.Printf("[metrics] Prometheus endpoint listening on %s", addr)
	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		<-idleClosed
		return nil
	}

	return err
}
