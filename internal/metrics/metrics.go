// SPDX-License-Identifier: MPL-2.0

// Package metrics exposes Prometheus collectors for the module registry, the
// code injector and the hot-patch store. All methods are no-ops on a nil
// *Metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dynapk"

// Metrics holds the collectors, registered on their own registry.
type Metrics struct {
	registry *prometheus.Registry

	ModulesInstalled  prometheus.Gauge
	ModuleOperations  *prometheus.CounterVec
	Injections        *prometheus.CounterVec
	InjectionDuration *prometheus.HistogramVec
	PrepareDuration   prometheus.Histogram
	PatchesActive     prometheus.Gauge
	PatchInstalls     *prometheus.CounterVec
	ListenerCalls     *prometheus.CounterVec
}

// New creates the collectors on a fresh registry that also carries the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ModulesInstalled: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "modules_installed",
			Help:      "Number of modules in the registry",
		}),
		ModuleOperations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "module_operations_total",
			Help:      "Module operations by kind and outcome",
		}, []string{"op", "result"}),
		Injections: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "injections_total",
			Help:      "Code injections by adapter and outcome",
		}, []string{"adapter", "result"}),
		InjectionDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "injection_duration_seconds",
			Help:      "Time spent splicing artifacts into the search path",
			Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1},
		}, []string{"adapter"}),
		PrepareDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "prepare_all_duration_seconds",
			Help:      "Duration of a full prepare pass",
			Buckets:   []float64{.01, .05, .1, .5, 1, 2.5, 5, 10},
		}),
		PatchesActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "hotpatches_active",
			Help:      "Number of hot patches in the store",
		}),
		PatchInstalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hotpatch_installs_total",
			Help:      "Hot patch installs by outcome",
		}, []string{"result"}),
		ListenerCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "listener_calls_total",
			Help:      "Install-completion listener invocations by set",
		}, []string{"set"}),
	}
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveOperation counts a module operation.
func (m *Metrics) ObserveOperation(op string, err error) {
	if m == nil {
		return
	}
	m.ModuleOperations.WithLabelValues(op, result(err)).Inc()
}

// ObserveInjection has the shape of loader.Observer.
func (m *Metrics) ObserveInjection(adapter string, _ int, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.Injections.WithLabelValues(adapter, result(err)).Inc()
	m.InjectionDuration.WithLabelValues(adapter).Observe(elapsed.Seconds())
}

// ObservePrepare records the duration of a prepare pass.
func (m *Metrics) ObservePrepare(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.PrepareDuration.Observe(elapsed.Seconds())
}

// ObservePatchInstall counts a hot patch install.
func (m *Metrics) ObservePatchInstall(err error) {
	if m == nil {
		return
	}
	m.PatchInstalls.WithLabelValues(result(err)).Inc()
}

// ObserveListener counts a listener invocation for set ("sync" or "delayed").
func (m *Metrics) ObserveListener(set string) {
	if m == nil {
		return
	}
	m.ListenerCalls.WithLabelValues(set).Inc()
}

// SetModules sets the installed module gauge.
func (m *Metrics) SetModules(n int) {
	if m == nil {
		return
	}
	m.ModulesInstalled.Set(float64(n))
}

// SetPatches sets the active hot patch gauge.
func (m *Metrics) SetPatches(n int) {
	if m == nil {
		return
	}
	m.PatchesActive.Set(float64(n))
}
