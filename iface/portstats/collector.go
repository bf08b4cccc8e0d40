package portstats

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Source enumerates named records to be exported.
// The callback receives a port name and its record.
type Source interface {
	EachStats(cb func(port string, rec *Record))
}

// Collector implements prometheus.Collector, reading records on each scrape.
type Collector struct {
	src Source

	packetsTotal *prometheus.Desc
	dropsTotal   *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector creates a Collector.
func NewCollector(src Source) *Collector {
	return &Collector{
		src: src,
		packetsTotal: prometheus.NewDesc(
			"patchpanel_port_packets_total",
			"Total packets per port.",
			[]string{"port", "direction"}, nil,
		),
		dropsTotal: prometheus.NewDesc(
			"patchpanel_port_drops_total",
			"Total dropped packets per port.",
			[]string{"port", "direction"}, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.packetsTotal
	ch <- c.dropsTotal
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.src.EachStats(func(port string, rec *Record) {
		cnt := rec.Read()
		ch <- prometheus.MustNewConstMetric(c.packetsTotal, prometheus.CounterValue, float64(cnt.Rx), port, "rx")
		ch <- prometheus.MustNewConstMetric(c.packetsTotal, prometheus.CounterValue, float64(cnt.Tx), port, "tx")
		ch <- prometheus.MustNewConstMetric(c.dropsTotal, prometheus.CounterValue, float64(cnt.RxDrop), port, "rx")
		ch <- prometheus.MustNewConstMetric(c.dropsTotal, prometheus.CounterValue, float64(cnt.TxDrop), port, "tx")
	})
}
