package metrics

import "github.com/prometheus/client_golang/prometheus"

// DBPoolStatFunc samples connection counts from the storage pool. Taking a
// closure keeps this package free of a pgxpool dependency and lets tests feed
// synthetic numbers.
type DBPoolStatFunc func() (total, idle, acquired int32)

// dbPoolCollector reads pool stats at scrape time instead of tracking them
// incrementally; gauges derived from a live pool would otherwise drift.
type dbPoolCollector struct {
	stat  DBPoolStatFunc
	descs [3]*prometheus.Desc
}

// NewDBPoolCollector builds a collector exposing total, idle and acquired
// connection gauges for the metering database pool.
func NewDBPoolCollector(stat DBPoolStatFunc) prometheus.Collector {
	return &dbPoolCollector{
		stat: stat,
		descs: [3]*prometheus.Desc{
			prometheus.NewDesc("jauge_db_pool_total_conns",
				"Connections currently held by the metering database pool.", nil, nil),
			prometheus.NewDesc("jauge_db_pool_idle_conns",
				"Pool connections sitting idle.", nil, nil),
			prometheus.NewDesc("jauge_db_pool_acquired_conns",
				"Pool connections checked out by queries or flushes.", nil, nil),
		},
	}
}

func (c *dbPoolCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range c.descs {
		ch <- d
	}
}

func (c *dbPoolCollector) Collect(ch chan<- prometheus.Metric) {
	total, idle, acquired := c.stat()
	for i, v := range [3]int32{total, idle, acquired} {
		ch <- prometheus.MustNewConstMetric(c.descs[i], prometheus.GaugeValue, float64(v))
	}
}
