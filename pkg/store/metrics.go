package store

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector exposes pebble engine gauges to prometheus.
type Collector struct {
	db *DB

	diskUsage *prometheus.Desc
	walBytes  *prometheus.Desc
	l0Files   *prometheus.Desc
	compDebt  *prometheus.Desc
	ready     *prometheus.Desc
}

// NewCollector returns a collector reading d.Metrics on every scrape.
func NewCollector(d *DB) *Collector {
	return &Collector{
		db:        d,
		diskUsage: prometheus.NewDesc("dealerchat_pebble_disk_usage_bytes", "On-disk size of the store.", nil, nil),
		walBytes:  prometheus.NewDesc("dealerchat_pebble_wal_bytes", "Live WAL size.", nil, nil),
		l0Files:   prometheus.NewDesc("dealerchat_pebble_l0_files", "Number of L0 sstables.", nil, nil),
		compDebt:  prometheus.NewDesc("dealerchat_pebble_compaction_debt_bytes", "Estimated compaction debt.", nil, nil),
		ready:     prometheus.NewDesc("dealerchat_pebble_ready", "1 when the store is open.", nil, nil),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.diskUsage
	ch <- c.walBytes
	ch <- c.l0Files
	ch <- c.compDebt
	ch <- c.ready
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if !c.db.Ready() {
		ch <- prometheus.MustNewConstMetric(c.ready, prometheus.GaugeValue, 0)
		return
	}
	ch <- prometheus.MustNewConstMetric(c.ready, prometheus.GaugeValue, 1)
	m := c.db.db.Metrics()
	if m == nil {
		return
	}
	ch <- prometheus.MustNewConstMetric(c.diskUsage, prometheus.GaugeValue, float64(m.DiskSpaceUsage()))
	ch <- prometheus.MustNewConstMetric(c.walBytes, prometheus.GaugeValue, float64(m.WAL.Size))
	ch <- prometheus.MustNewConstMetric(c.l0Files, prometheus.GaugeValue, float64(m.Levels[0].NumFiles))
	ch <- prometheus.MustNewConstMetric(c.compDebt, prometheus.GaugeValue, float64(m.Compact.EstimatedDebt))
}
