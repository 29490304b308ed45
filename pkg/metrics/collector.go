package metrics

import (
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"avaneesh/datalink-go/pkg/channel"
	"avaneesh/datalink-go/pkg/link"
)

const namespace = "datalink"

// LinkSource is the link-layer side of a tracked connection
type LinkSource interface {
	Statistics() *link.Statistics
	State() link.LinkState
}

// ChannelSource is the transport side of a tracked connection
type ChannelSource interface {
	Statistics() channel.TransportStats
}

type tracked struct {
	link LinkSource
	ch   ChannelSource // may be nil
}

// counterDesc pairs a descriptor with the statistics getter it exports
type counterDesc struct {
	desc *prometheus.Desc
	get  func(*link.Statistics) uint64
}

// LinkCollector exports the counters of every tracked connection, labelled
// by connection name
type LinkCollector struct {
	mu    sync.RWMutex
	links map[string]tracked

	counters  []counterDesc
	stateDesc *prometheus.Desc

	bytesSentDesc     *prometheus.Desc
	bytesReceivedDesc *prometheus.Desc
	writeErrorsDesc   *prometheus.Desc
	readErrorsDesc    *prometheus.Desc
}

// NewLinkCollector creates an empty collector
func NewLinkCollector() *LinkCollector {
	labels := []string{"link"}
	counter := func(name, help string, get func(*link.Statistics) uint64) counterDesc {
		return counterDesc{
			desc: prometheus.NewDesc(prometheus.BuildFQName(namespace, "link", name), help, labels, nil),
			get:  get,
		}
	}

	return &LinkCollector{
		links: make(map[string]tracked),
		counters: []counterDesc{
			counter("frames_sent_total", "Frames written to the channel",
				(*link.Statistics).GetFramesTx),
			counter("frames_received_total", "Valid frames read from the channel",
				(*link.Statistics).GetFramesRx),
			counter("retransmissions_total", "Frames sent again after a timeout or reject",
				(*link.Statistics).GetRetransmissions),
			counter("timeouts_total", "Response waits that expired",
				(*link.Statistics).GetTimeouts),
			counter("rejects_sent_total", "REJ frames sent",
				(*link.Statistics).GetRejectsSent),
			counter("rejects_received_total", "REJ frames received",
				(*link.Statistics).GetRejectsReceived),
			counter("duplicates_total", "Duplicate information frames suppressed",
				(*link.Statistics).GetDuplicates),
			counter("checksum_errors_total", "Information frames with a bad payload checksum",
				(*link.Statistics).GetChecksumErrors),
			counter("payloads_sent_total", "Payloads acknowledged by the peer",
				(*link.Statistics).GetPayloadsSent),
			counter("payloads_received_total", "Payloads delivered to the application",
				(*link.Statistics).GetPayloadsReceived),
			counter("payload_bytes_received_total", "Payload bytes delivered to the application",
				(*link.Statistics).GetBytesDelivered),
		},
		stateDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "link", "state"),
			"Current link state (1 = active)",
			[]string{"link", "state"}, nil,
		),
		bytesSentDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "channel", "bytes_sent_total"),
			"Bytes written to the channel",
			labels, nil,
		),
		bytesReceivedDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "channel", "bytes_received_total"),
			"Bytes read from the channel",
			labels, nil,
		),
		writeErrorsDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "channel", "write_errors_total"),
			"Channel write failures",
			labels, nil,
		),
		readErrorsDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "channel", "read_errors_total"),
			"Channel read failures",
			labels, nil,
		),
	}
}

// Track starts exporting a connection under name. ch may be nil.
func (c *LinkCollector) Track(name string, l LinkSource, ch ChannelSource) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.links[name] = tracked{link: l, ch: ch}
}

// Untrack stops exporting the named connection
func (c *LinkCollector) Untrack(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.links, name)
}

// Describe implements prometheus.Collector
func (c *LinkCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, cd := range c.counters {
		ch <- cd.desc
	}
	ch <- c.stateDesc
	ch <- c.bytesSentDesc
	ch <- c.bytesReceivedDesc
	ch <- c.writeErrorsDesc
	ch <- c.readErrorsDesc
}

// Collect implements prometheus.Collector
func (c *LinkCollector) Collect(ch chan<- prometheus.Metric) {
	type entry struct {
		name string
		tracked
	}
	c.mu.RLock()
	entries := make([]entry, 0, len(c.links))
	for name, t := range c.links {
		entries = append(entries, entry{name, t})
	}
	c.mu.RUnlock()
	sort.Slice(entries, func(i, j int) bool { return entries[i].name < entries[j].name })

	for _, t := range entries {
		name := t.name
		stats := t.link.Statistics()
		for _, cd := range c.counters {
			ch <- prometheus.MustNewConstMetric(cd.desc, prometheus.CounterValue, float64(cd.get(stats)), name)
		}

		current := t.link.State()
		for _, state := range linkStates {
			val := 0.0
			if state == current {
				val = 1.0
			}
			ch <- prometheus.MustNewConstMetric(c.stateDesc, prometheus.GaugeValue, val, name, state.String())
		}

		if t.ch == nil {
			continue
		}
		ts := t.ch.Statistics()
		ch <- prometheus.MustNewConstMetric(c.bytesSentDesc, prometheus.CounterValue, float64(ts.BytesSent), name)
		ch <- prometheus.MustNewConstMetric(c.bytesReceivedDesc, prometheus.CounterValue, float64(ts.BytesReceived), name)
		ch <- prometheus.MustNewConstMetric(c.writeErrorsDesc, prometheus.CounterValue, float64(ts.WriteErrors), name)
		ch <- prometheus.MustNewConstMetric(c.readErrorsDesc, prometheus.CounterValue, float64(ts.ReadErrors), name)
	}
}

var linkStates = []link.LinkState{
	link.LinkStateClosed,
	link.LinkStateConnecting,
	link.LinkStateOpen,
	link.LinkStateDisconnecting,
	link.LinkStateDisconnected,
	link.LinkStateDead,
}
