// Package metrics exposes this UPF's Prometheus metrics: GTP-U packet/byte/
// drop counters, PFCP message counters, and an active-session gauge.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Metrics holds this process's Prometheus collectors, registered against its
// own registry rather than the global default so a process can run more than
// one (tests construct several without a duplicate-registration panic).
type Metrics struct {
	registry *prometheus.Registry

	gtpuPackets        *prometheus.CounterVec
	gtpuBytes          *prometheus.CounterVec
	gtpuPacketsDropped *prometheus.CounterVec
	activeSessions     prometheus.Gauge
	pfcpMessages       *prometheus.CounterVec
}

// New builds and registers this UPF's metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		gtpuPackets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gtpu_packets_total",
			Help: "Total number of GTP-U packets by interface direction.",
		}, []string{"direction"}),
		gtpuBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gtpu_bytes_total",
			Help: "Total number of GTP-U payload bytes by interface direction.",
		}, []string{"direction"}),
		gtpuPacketsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gtpu_packets_dropped_total",
			Help: "Total number of dropped data-plane packets by reason.",
		}, []string{"reason"}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "active_sessions",
			Help: "Number of currently established PFCP sessions.",
		}),
		pfcpMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pfcp_messages_total",
			Help: "Total number of PFCP messages handled by message type.",
		}, []string{"type"}),
	}
	reg.MustRegister(m.gtpuPackets, m.gtpuBytes, m.gtpuPacketsDropped, m.activeSessions, m.pfcpMessages)
	return m
}

// IncPacketsTX implements dataplane.Counters: a successfully forwarded
// packet, tagged by destination interface (0=Access,1=Core,2=SGi-LAN/N9).
func (m *Metrics) IncPacketsTX(iface uint8) {
	m.gtpuPackets.WithLabelValues(interfaceLabel(iface)).Inc()
}

// IncPacketsDropped implements dataplane.Counters.
func (m *Metrics) IncPacketsDropped(reason string) {
	m.gtpuPacketsDropped.WithLabelValues(reason).Inc()
}

// AddBytesTX adds n bytes to the GTP-U byte counter for iface.
func (m *Metrics) AddBytesTX(iface uint8, n int) {
	m.gtpuBytes.WithLabelValues(interfaceLabel(iface)).Add(float64(n))
}

// SetActiveSessions sets the active-session gauge.
func (m *Metrics) SetActiveSessions(n int) {
	m.activeSessions.Set(float64(n))
}

// IncPFCPMessage records one handled PFCP message of the given type.
func (m *Metrics) IncPFCPMessage(msgType string) {
	m.pfcpMessages.WithLabelValues(msgType).Inc()
}

func interfaceLabel(iface uint8) string {
	switch iface {
	case 0:
		return "access"
	case 1:
		return "core"
	case 2:
		return "sgi_lan"
	case 3:
		return "cp_function"
	case 4:
		return "vn_internal"
	default:
		return "unknown"
	}
}

// Server serves /metrics for one Metrics instance.
type Server struct {
	port   int
	http   *http.Server
	logger *zap.Logger
}

// NewServer builds a metrics HTTP server for m, listening on port.
func NewServer(m *Metrics, port int, logger *zap.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	return &Server{
		port: port,
		http: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Start runs the metrics server until it errors or is shut down.
func (s *Server) Start() error {
	s.logger.Info("starting metrics server", zap.Int("port", s.port))
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop shuts the metrics server down.
func (s *Server) Stop(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
