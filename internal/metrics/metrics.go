// Package metrics holds the Prometheus instruments of the driver. Every
// series is labelled with the device it belongs to.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "uvc"

var (
	framesCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "stream",
		Name:      "frames_total",
		Help:      "Video frames delivered to the capture callback",
	}, []string{"device"})

	framesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "stream",
		Name:      "frames_dropped_total",
		Help:      "Frames discarded because a payload carried the error bit",
	}, []string{"device"})

	packetsDiscarded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "stream",
		Name:      "packets_discarded_total",
		Help:      "Payload packets discarded for a bad header or a failed read",
	}, []string{"device"})

	payloadBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "stream",
		Name:      "payload_bytes_total",
		Help:      "Payload bytes copied into frame buffers",
	}, []string{"device"})

	streamActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "stream",
		Name:      "active",
		Help:      "1 while the transfer pipeline is running",
	}, []string{"device"})

	controlErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "control",
		Name:      "errors_total",
		Help:      "Control requests that stalled, by UVC request error code",
	}, []string{"device", "code"})
)

// FrameCompleted records one delivered frame.
func FrameCompleted(device string) {
	framesCompleted.WithLabelValues(device).Inc()
}

func FrameDropped(device string) {
	framesDropped.WithLabelValues(device).Inc()
}

func PacketDiscarded(device string) {
	packetsDiscarded.WithLabelValues(device).Inc()
}

func PayloadBytes(device string, n int) {
	payloadBytes.WithLabelValues(device).Add(float64(n))
}

// SetStreamActive flips the stream state gauge.
func SetStreamActive(device string, active bool) {
	v := 0.0
	if active {
		v = 1
	}
	streamActive.WithLabelValues(device).Set(v)
}

func ControlError(device, code string) {
	controlErrors.WithLabelValues(device, code).Inc()
}

// Delete removes every series of a device, called on disconnect.
func Delete(device string) {
	framesCompleted.DeleteLabelValues(device)
	framesDropped.DeleteLabelValues(device)
	packetsDiscarded.DeleteLabelValues(device)
	payloadBytes.DeleteLabelValues(device)
	streamActive.DeleteLabelValues(device)
	controlErrors.DeletePartialMatch(prometheus.Labels{"device": device})
}
