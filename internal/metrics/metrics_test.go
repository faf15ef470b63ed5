package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestStreamMetrics(t *testing.T) {
	device := "1-4"

	FrameCompleted(device)
	FrameCompleted(device)
	FrameDropped(device)
	PayloadBytes(device, 3068)
	SetStreamActive(device, true)
	ControlError(device, "out_of_range")

	if v := testutil.ToFloat64(framesCompleted.WithLabelValues(device)); v != 2 {
		t.Errorf("framesCompleted = %v, want 2", v)
	}
	if v := testutil.ToFloat64(framesDropped.WithLabelValues(device)); v != 1 {
		t.Errorf("framesDropped = %v, want 1", v)
	}
	if v := testutil.ToFloat64(payloadBytes.WithLabelValues(device)); v != 3068 {
		t.Errorf("payloadBytes = %v, want 3068", v)
	}
	if v := testutil.ToFloat64(streamActive.WithLabelValues(device)); v != 1 {
		t.Errorf("streamActive = %v, want 1", v)
	}

	SetStreamActive(device, false)
	if v := testutil.ToFloat64(streamActive.WithLabelValues(device)); v != 0 {
		t.Errorf("streamActive = %v, want 0", v)
	}

	Delete(device)
	if n := testutil.CollectAndCount(controlErrors); n != 0 {
		t.Errorf("controlErrors series = %d after Delete, want 0", n)
	}

	// deleting an unknown device must not panic
	Delete("unknown")
}
