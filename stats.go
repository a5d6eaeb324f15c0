package edgemq

import (
	"github.com/prometheus/client_golang/prometheus"
)

// ClientStats holds connection and throughput statistics.
type ClientStats struct {
	PacketsSent     uint64
	PacketsReceived uint64
	BytesSent       uint64
	BytesReceived   uint64
	ReconnectCount  uint64
	Connected       bool
	State           State

	// Pending QoS 1/2 publications and queued QoS 0 messages
	PendingPublications int
	QueuedMessages      int

	Subscriptions int
}

// GetStats returns the current client statistics.
func (c *Client) GetStats() ClientStats {
	state := c.State()
	return ClientStats{
		PacketsSent:         c.packetsSent.Load(),
		PacketsReceived:     c.packetsReceived.Load(),
		BytesSent:           c.bytesSent.Load(),
		BytesReceived:       c.bytesReceived.Load(),
		ReconnectCount:      c.reconnectCount.Load(),
		Connected:           state == StateEstablish,
		State:               state,
		PendingPublications: len(c.pending.ids()),
		QueuedMessages:      c.pending.backlogLen(),
		Subscriptions:       c.subscriptions.len(),
	}
}

// Collector exports ClientStats as Prometheus metrics.
type Collector struct {
	client *Client

	packetsSent     *prometheus.Desc
	packetsReceived *prometheus.Desc
	bytesSent       *prometheus.Desc
	bytesReceived   *prometheus.Desc
	reconnects      *prometheus.Desc
	connected       *prometheus.Desc
	state           *prometheus.Desc
	pending         *prometheus.Desc
	queued          *prometheus.Desc
	subscriptions   *prometheus.Desc
}

// NewCollector returns a prometheus.Collector reading c's statistics on
// every scrape.
//
// Example:
//
//	prometheus.MustRegister(edgemq.NewCollector(client))
func NewCollector(c *Client) *Collector {
	labels := prometheus.Labels{"client_id": c.ClientID()}
	desc := func(name, help string, variable ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName("edgemq", "", name), help, variable, labels)
	}

	return &Collector{
		client:          c,
		packetsSent:     desc("packets_sent_total", "MQTT packets written to the broker."),
		packetsReceived: desc("packets_received_total", "MQTT packets read from the broker."),
		bytesSent:       desc("bytes_sent_total", "Bytes written to the broker."),
		bytesReceived:   desc("bytes_received_total", "Bytes read from the broker."),
		reconnects:      desc("reconnects_total", "Connection attempts after a wait."),
		connected:       desc("connected", "1 while the connection is established."),
		state:           desc("state", "Current connection state, 1 for the active state.", "state"),
		pending:         desc("pending_publications", "QoS 1 and 2 publications awaiting acknowledgement."),
		queued:          desc("queued_messages", "QoS 0 messages queued while offline."),
		subscriptions:   desc("subscriptions", "Registered subscriptions."),
	}
}

// Describe implements prometheus.Collector.
func (col *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- col.packetsSent
	ch <- col.packetsReceived
	ch <- col.bytesSent
	ch <- col.bytesReceived
	ch <- col.reconnects
	ch <- col.connected
	ch <- col.state
	ch <- col.pending
	ch <- col.queued
	ch <- col.subscriptions
}

// Collect implements prometheus.Collector.
func (col *Collector) Collect(ch chan<- prometheus.Metric) {
	stats := col.client.GetStats()

	ch <- prometheus.MustNewConstMetric(col.packetsSent, prometheus.CounterValue, float64(stats.PacketsSent))
	ch <- prometheus.MustNewConstMetric(col.packetsReceived, prometheus.CounterValue, float64(stats.PacketsReceived))
	ch <- prometheus.MustNewConstMetric(col.bytesSent, prometheus.CounterValue, float64(stats.BytesSent))
	ch <- prometheus.MustNewConstMetric(col.bytesReceived, prometheus.CounterValue, float64(stats.BytesReceived))
	ch <- prometheus.MustNewConstMetric(col.reconnects, prometheus.CounterValue, float64(stats.ReconnectCount))
	ch <- prometheus.MustNewConstMetric(col.connected, prometheus.GaugeValue, boolValue(stats.Connected))
	for s := StateOpen; s <= StateWait; s++ {
		ch <- prometheus.MustNewConstMetric(col.state, prometheus.GaugeValue, boolValue(s == stats.State), s.String())
	}
	ch <- prometheus.MustNewConstMetric(col.pending, prometheus.GaugeValue, float64(stats.PendingPublications))
	ch <- prometheus.MustNewConstMetric(col.queued, prometheus.GaugeValue, float64(stats.QueuedMessages))
	ch <- prometheus.MustNewConstMetric(col.subscriptions, prometheus.GaugeValue, float64(stats.Subscriptions))
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
