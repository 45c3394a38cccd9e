package observability

import (
	"net/http"
	"strconv"
	"time"

	"inventory/internal/usecase"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics はアプリのPrometheusメトリクス
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	historyTotal    *prometheus.CounterVec
	importRowsTotal *prometheus.CounterVec
}

var _ usecase.StockMetrics = (*Metrics)(nil)

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_http_requests_total",
		Help: "HTTP requests by route, method and status.",
	}, []string{"route", "method", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "inventory_http_request_duration_seconds",
		Help:    "HTTP request duration by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	history := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_history_entries_total",
		Help: "Inventory history appends by result.",
	}, []string{"result"})
	importRows := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_import_rows_total",
		Help: "CSV import rows by outcome.",
	}, []string{"outcome"})

	registry.MustRegister(
		requests, duration, history, importRows,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		historyTotal:    history,
		importRowsTotal: importRows,
	}
}

// Handler は /metrics 用
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware はリクエストごとに件数と所要時間を記録する。
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if m == nil {
			return next
		}
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				} else if !c.Response().Committed {
					status = http.StatusInternalServerError
				}
			}

			route := c.Path()
			if route == "" {
				route = "unknown"
			}
			m.requestsTotal.WithLabelValues(route, c.Request().Method, strconv.Itoa(status)).Inc()
			m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

func (m *Metrics) HistoryAppended() {
	if m == nil {
		return
	}
	m.historyTotal.WithLabelValues("ok").Inc()
}

func (m *Metrics) HistoryAppendFailed() {
	if m == nil {
		return
	}
	m.historyTotal.WithLabelValues("failed").Inc()
}

func (m *Metrics) ImportRows(outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.importRowsTotal.WithLabelValues(outcome).Add(float64(n))
}
