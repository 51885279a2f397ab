package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tidekv/tidekv/lsm"
)

var (
	// CommandsTotal counts processed commands by name.
	CommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tidekv_commands_total",
			Help: "Total number of commands processed.",
		},
		[]string{"command"},
	)

	// ConnectionsOpen tracks currently open client connections.
	ConnectionsOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tidekv_connections_open",
			Help: "Number of open client connections.",
		},
	)
)

// Register installs the server collectors and an engine collector into the
// default registry. Call once at startup.
func Register(stats func() lsm.Stats) {
	prometheus.MustRegister(CommandsTotal, ConnectionsOpen, NewEngineCollector(stats))
}

// EngineCollector exports a point-in-time engine snapshot as gauges.
type EngineCollector struct {
	stats func() lsm.Stats

	memtableBytes *prometheus.Desc
	sstFiles      *prometheus.Desc
	maxLevel      *prometheus.Desc
	cachedBlocks  *prometheus.Desc
}

// NewEngineCollector builds a collector over a stats snapshot function.
func NewEngineCollector(stats func() lsm.Stats) *EngineCollector {
	return &EngineCollector{
		stats: stats,
		memtableBytes: prometheus.NewDesc(
			"tidekv_memtable_bytes",
			"Bytes buffered across all memtables.", nil, nil),
		sstFiles: prometheus.NewDesc(
			"tidekv_sst_files",
			"SST files per level.", []string{"level"}, nil),
		maxLevel: prometheus.NewDesc(
			"tidekv_max_level",
			"Deepest populated level.", nil, nil),
		cachedBlocks: prometheus.NewDesc(
			"tidekv_cached_blocks",
			"Decoded blocks held by the block cache.", nil, nil),
	}
}

func (c *EngineCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.memtableBytes
	ch <- c.sstFiles
	ch <- c.maxLevel
	ch <- c.cachedBlocks
}

func (c *EngineCollector) Collect(ch chan<- prometheus.Metric) {
	st := c.stats()
	ch <- prometheus.MustNewConstMetric(c.memtableBytes,
		prometheus.GaugeValue, float64(st.MemtableBytes))
	ch <- prometheus.MustNewConstMetric(c.maxLevel,
		prometheus.GaugeValue, float64(st.MaxLevel))
	ch <- prometheus.MustNewConstMetric(c.cachedBlocks,
		prometheus.GaugeValue, float64(st.CachedBlocks))
	for _, lvl := range st.Levels {
		ch <- prometheus.MustNewConstMetric(c.sstFiles,
			prometheus.GaugeValue, float64(lvl.Files), strconv.Itoa(lvl.Level))
	}
}
