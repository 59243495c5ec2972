package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/FenQiDian/point-set-client/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus counters
var (
	HashFramesTx = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pointset_hash_frames_sent_total",
		Help: "Total Hash frames sent to the room server.",
	})
	CommandFramesTx = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pointset_command_frames_sent_total",
		Help: "Total Command frames sent to the room server.",
	})
	CommandFramesRx = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pointset_command_frames_received_total",
		Help: "Total Command frames received from remote peers.",
	})
	ControlFramesRx = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pointset_control_frames_received_total",
		Help: "Total non-Command frames received (Accept, State, Start, Finish).",
	})
	NetChanDroppedInputs = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pointset_netchan_dropped_inputs_total",
		Help: "Total SendInput calls rejected because the channel had already finished.",
	})
	StateTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pointset_state_transitions_total",
		Help: "Worker lifecycle transitions by target state.",
	}, []string{"state"})
	FinishesByCause = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pointset_finishes_total",
		Help: "Session terminations by FinishCause.",
	}, []string{"cause"})
	RemoteConvs = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pointset_remote_convs",
		Help: "Current number of distinct remote convs with a known PlayerState.",
	})
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "Build metadata (value is always 1).",
	}, []string{"version", "commit", "date"})
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "errors_total",
		Help: "Error counters by kind.",
	}, []string{"where"})
	MalformedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pointset_malformed_frames_total",
		Help: "Total rejected malformed frames (protocol violations, invalid length, truncated).",
	})
	readinessMu sync.RWMutex
	readinessFn func() bool
)

// StartHTTP serves Prometheus metrics at /metrics, plus /ready.
func StartHTTP(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if IsReady() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready\n"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready\n"))
	})

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	go func() {
		logging.L().Info("metrics_listen", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.L().Error("metrics_http_error", "error", err)
		}
	}()
	return srv
}

// Local mirrored counters for easy logging without scraping Prometheus
// in-process.
var (
	localHashTx       uint64
	localCommandTx    uint64
	localCommandRx    uint64
	localControlRx    uint64
	localChanDropped  uint64
	localErrors       uint64
	localMalformed    uint64
	localRemoteConvs  uint64
)

// Snapshot is a cheap copy of local counters.
type Snapshot struct {
	HashTx      uint64
	CommandTx   uint64
	CommandRx   uint64
	ControlRx   uint64
	ChanDropped uint64
	Errors      uint64
	Malformed   uint64
	RemoteConvs uint64
}

func Snap() Snapshot {
	return Snapshot{
		HashTx:      atomic.LoadUint64(&localHashTx),
		CommandTx:   atomic.LoadUint64(&localCommandTx),
		CommandRx:   atomic.LoadUint64(&localCommandRx),
		ControlRx:   atomic.LoadUint64(&localControlRx),
		ChanDropped: atomic.LoadUint64(&localChanDropped),
		Errors:      atomic.LoadUint64(&localErrors),
		Malformed:   atomic.LoadUint64(&localMalformed),
		RemoteConvs: atomic.LoadUint64(&localRemoteConvs),
	}
}

func IncHashTx() {
	HashFramesTx.Inc()
	atomic.AddUint64(&localHashTx, 1)
}

func IncCommandTx() {
	CommandFramesTx.Inc()
	atomic.AddUint64(&localCommandTx, 1)
}

func IncCommandRx() {
	CommandFramesRx.Inc()
	atomic.AddUint64(&localCommandRx, 1)
}

func IncControlRx() {
	ControlFramesRx.Inc()
	atomic.AddUint64(&localControlRx, 1)
}

func IncNetChanDropped() {
	NetChanDroppedInputs.Inc()
	atomic.AddUint64(&localChanDropped, 1)
}

func IncStateTransition(state string) {
	StateTransitions.WithLabelValues(state).Inc()
}

func IncFinish(cause string) {
	FinishesByCause.WithLabelValues(cause).Inc()
}

func SetRemoteConvs(n int) {
	RemoteConvs.Set(float64(n))
	atomic.StoreUint64(&localRemoteConvs, uint64(n))
}

func IncError(label string) {
	Errors.WithLabelValues(label).Inc()
	atomic.AddUint64(&localErrors, 1)
}

func IncMalformed() {
	MalformedFrames.Inc()
	atomic.AddUint64(&localMalformed, 1)
}

// InitBuildInfo sets the build info gauge (should be called once at
// startup) and pre-registers the state and cause label series so the
// first real observation doesn't pay first-use registration latency.
func InitBuildInfo(version, commit, date string) {
	BuildInfo.WithLabelValues(version, commit, date).Set(1)
	for _, s := range []string{"Initing", "Waiting", "Running", "Stopped"} {
		StateTransitions.WithLabelValues(s).Add(0)
	}
	for _, c := range []string{"NetworkBroken", "InvalidPacket", "GameOver", "ClientError"} {
		FinishesByCause.WithLabelValues(c).Add(0)
	}
}

// SetReadinessFunc registers a function used by /ready and IsReady.
func SetReadinessFunc(fn func() bool) { readinessMu.Lock(); readinessFn = fn; readinessMu.Unlock() }

// IsReady invokes the registered readiness function if present.
func IsReady() bool {
	readinessMu.RLock()
	fn := readinessFn
	readinessMu.RUnlock()
	if fn == nil {
		return true
	}
	return fn()
}

