// Package metrics exports ping session statistics to prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gitlab.bertha.cloud/partitio/isi/watchping"
)

// Metrics for exporting to prometheus, labelled by destination.
var (
	Transmitted = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "watchping_transmitted_packets",
			Help: "Number of echo requests sent.",
		},
		[]string{"host"},
	)
	Received = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "watchping_received_packets",
			Help: "Number of distinct valid echo replies.",
		},
		[]string{"host"},
	)
	Duplicates = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "watchping_duplicate_packets",
			Help: "Number of duplicate echo replies.",
		},
		[]string{"host"},
	)
	Corrupted = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "watchping_corrupted_packets",
			Help: "Number of echo replies with a bad checksum.",
		},
		[]string{"host"},
	)
	Errors = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "watchping_errors",
			Help: "Number of probes answered with an error.",
		},
		[]string{"host"},
	)
	Loss = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "watchping_packet_loss_percent",
			Help: "Packet loss, over the sliding window when one is configured.",
		},
		[]string{"host"},
	)
	RTT = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "watchping_rtt_seconds",
			Help: "Round trip time aggregates.",
		},
		[]string{"host", "stat"},
	)
)

// Observe publishes s under host.
func Observe(host string, s watchping.Statistics) {
	Transmitted.WithLabelValues(host).Set(float64(s.PacketsSent))
	Received.WithLabelValues(host).Set(float64(s.PacketsRecv))
	Duplicates.WithLabelValues(host).Set(float64(s.Duplicates))
	Corrupted.WithLabelValues(host).Set(float64(s.Corrupted))
	Errors.WithLabelValues(host).Set(float64(s.Errors))
	Loss.WithLabelValues(host).Set(s.PacketLoss)
	if !s.Timed {
		return
	}
	RTT.WithLabelValues(host, "min").Set(s.MinRtt.Seconds())
	RTT.WithLabelValues(host, "avg").Set(s.AvgRtt.Seconds())
	RTT.WithLabelValues(host, "max").Set(s.MaxRtt.Seconds())
	RTT.WithLabelValues(host, "mdev").Set(s.MDevRtt.Seconds())
	RTT.WithLabelValues(host, "ewma").Set(s.EWMARtt.Seconds())
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
