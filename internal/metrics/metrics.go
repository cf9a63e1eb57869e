// internal/metrics/metrics.go
package metrics

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRegistry creates a registry with the Go and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves reg in the Prometheus exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// BusMetrics are the bus and module metrics.
// A nil *BusMetrics is valid and records nothing.
type BusMetrics struct {
	FramesSent    *prometheus.CounterVec   // labels: opcode
	Responses     *prometheus.CounterVec   // labels: opcode, result
	Retries       *prometheus.CounterVec   // labels: opcode
	RoundTrip     *prometheus.HistogramVec // labels: opcode
	ModuleStale   *prometheus.GaugeVec     // labels: address, reading
	CellVoltage   *prometheus.GaugeVec     // labels: address, cell
	ModuleTemp    *prometheus.GaugeVec     // labels: address, sensor
	PollCycles    *prometheus.CounterVec   // labels: result
	ModulesPrimed prometheus.Gauge
}

// NewBusMetrics registers and returns the bus metrics.
func NewBusMetrics(reg prometheus.Registerer) *BusMetrics {
	m := &BusMetrics{
		FramesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bmbus_frames_sent_total",
			Help: "Command frames written to the bus.",
		}, []string{"opcode"}),
		Responses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bmbus_responses_total",
			Help: "Response frames by outcome.",
		}, []string{"opcode", "result"}),
		Retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bmbus_retries_total",
			Help: "Read commands retried after a failure.",
		}, []string{"opcode"}),
		RoundTrip: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bmbus_round_trip_seconds",
			Help:    "Write-to-validated-response latency.",
			Buckets: []float64{.001, .002, .005, .01, .02, .05, .1, .25, .5, 1},
		}, []string{"opcode"}),
		ModuleStale: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bmbus_module_stale",
			Help: "1 when the last read of a module failed.",
		}, []string{"address", "reading"}),
		CellVoltage: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bmbus_cell_voltage_mv",
			Help: "Last known cell voltage.",
		}, []string{"address", "cell"}),
		ModuleTemp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bmbus_module_temperature_raw",
			Help: "Last known raw 12-bit temperature.",
		}, []string{"address", "sensor"}),
		PollCycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bmbus_poll_cycles_total",
			Help: "Poll cycles by outcome.",
		}, []string{"result"}),
		ModulesPrimed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bmbus_modules_primed",
			Help: "Modules that completed the addressing handshake.",
		}),
	}
	reg.MustRegister(
		m.FramesSent, m.Responses, m.Retries, m.RoundTrip,
		m.ModuleStale, m.CellVoltage, m.ModuleTemp, m.PollCycles, m.ModulesPrimed,
	)
	return m
}

// ---- nil-safe recorders ----

func (m *BusMetrics) Sent(op fmt.Stringer) {
	if m == nil {
		return
	}
	m.FramesSent.WithLabelValues(op.String()).Inc()
}

func (m *BusMetrics) Response(op fmt.Stringer, result string, took time.Duration) {
	if m == nil {
		return
	}
	m.Responses.WithLabelValues(op.String(), result).Inc()
	if result == "ok" {
		m.RoundTrip.WithLabelValues(op.String()).Observe(took.Seconds())
	}
}

func (m *BusMetrics) Retry(op fmt.Stringer) {
	if m == nil {
		return
	}
	m.Retries.WithLabelValues(op.String()).Inc()
}

func (m *BusMetrics) Stale(addr byte, reading string, stale bool) {
	if m == nil {
		return
	}
	v := 0.0
	if stale {
		v = 1
	}
	m.ModuleStale.WithLabelValues(addrLabel(addr), reading).Set(v)
}

func (m *BusMetrics) Cells(addr byte, mv []uint16) {
	if m == nil {
		return
	}
	for i, v := range mv {
		m.CellVoltage.WithLabelValues(addrLabel(addr), strconv.Itoa(i)).Set(float64(v))
	}
}

func (m *BusMetrics) Temps(addr byte, t1, t2 uint16) {
	if m == nil {
		return
	}
	m.ModuleTemp.WithLabelValues(addrLabel(addr), "1").Set(float64(t1))
	m.ModuleTemp.WithLabelValues(addrLabel(addr), "2").Set(float64(t2))
}

func (m *BusMetrics) Cycle(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.PollCycles.WithLabelValues("ok").Inc()
		return
	}
	m.PollCycles.WithLabelValues("partial").Inc()
}

func (m *BusMetrics) Primed(n int) {
	if m == nil {
		return
	}
	m.ModulesPrimed.Set(float64(n))
}

func addrLabel(addr byte) string {
	return fmt.Sprintf("0x%02X", addr)
}
