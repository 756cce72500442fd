package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestIncPacketsTXIncrementsLabeledCounter(t *testing.T) {
	m := New()
	m.IncPacketsTX(1)
	m.IncPacketsTX(1)
	m.IncPacketsTX(0)

	require.Equal(t, float64(2), testutil.ToFloat64(m.gtpuPackets.WithLabelValues("core")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.gtpuPackets.WithLabelValues("access")))
}

func TestIncPacketsDroppedByReason(t *testing.T) {
	m := New()
	m.IncPacketsDropped("missing_far")
	require.Equal(t, float64(1), testutil.ToFloat64(m.gtpuPacketsDropped.WithLabelValues("missing_far")))
}

func TestAddBytesTXAccumulatesByInterface(t *testing.T) {
	m := New()
	m.AddBytesTX(1, 100)
	m.AddBytesTX(1, 50)
	require.Equal(t, float64(150), testutil.ToFloat64(m.gtpuBytes.WithLabelValues("core")))
}

func TestSetActiveSessionsGauge(t *testing.T) {
	m := New()
	m.SetActiveSessions(7)
	require.Equal(t, float64(7), testutil.ToFloat64(m.activeSessions))
}

func TestTwoInstancesDoNotConflict(t *testing.T) {
	m1 := New()
	m2 := New()
	m1.IncPFCPMessage("heartbeat_request")
	require.Equal(t, float64(1), testutil.ToFloat64(m1.pfcpMessages.WithLabelValues("heartbeat_request")))
	require.Equal(t, float64(0), testutil.ToFloat64(m2.pfcpMessages.WithLabelValues("heartbeat_request")))
}
