package dispatch

import (
	"venuecore/internal/common"
	"venuecore/internal/metrics"
)

// MetricsListener feeds every dispatched event into the Prometheus
// collectors. It never returns an error: a metrics observation cannot fail
// in a way the bus needs to know about.
type MetricsListener struct {
	collector *metrics.Collector
}

// NewMetricsListener wraps a metrics.Collector as a dispatch Listener.
func NewMetricsListener(c *metrics.Collector) *MetricsListener {
	return &MetricsListener{collector: c}
}

func (m *MetricsListener) OnExecution(report common.ExecutionReport) error {
	if report.Status == common.Rejected {
		m.collector.OrdersRejected.WithLabelValues(string(report.Symbol), report.Reason.String()).Inc()
	}
	return nil
}

func (m *MetricsListener) OnFill(fill common.Fill) error {
	m.collector.FillsTotal.WithLabelValues(string(fill.Symbol)).Inc()
	m.collector.TradeVolume.WithLabelValues(string(fill.Symbol)).Add(float64(fill.Quantity))
	m.collector.TradeNotional.WithLabelValues(string(fill.Symbol)).Add(float64(fill.Price.Notional(fill.Quantity)))
	return nil
}

func (m *MetricsListener) OnError(EngineError) error {
	return nil
}
