// Package metrics is the optional Prometheus instrumentation the
// httpwire-probe CLI wraps the core parser/serializer in. Nothing under
// pkg/httpwire imports this package; it observes outcomes the CLI already
// computes, keeping the core allocation- and dependency-free on the hot
// path.
package metrics

import (
	"bytes"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

var (
	// ParseTotal counts parse attempts by the parse/roundtrip subcommands,
	// labeled by outcome (ok, read_error, parse_error).
	ParseTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "httpwire_probe_parse_total",
		Help: "Messages parsed by httpwire-probe, by outcome.",
	}, []string{"outcome"})

	// RoundtripByteDelta observes abs(len(rendered) - len(original)) for
	// each roundtrip run.
	RoundtripByteDelta = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "httpwire_probe_roundtrip_byte_delta",
		Help:    "abs(len(rendered) - len(original)) for each roundtrip run.",
		Buckets: prometheus.LinearBuckets(0, 4, 8),
	})

	// EchoTotal counts connections served by the serve subcommand's raw
	// TCP echo, labeled by outcome (ok, parse_error, write_error).
	EchoTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "httpwire_probe_echo_total",
		Help: "Connections served by httpwire-probe serve, by outcome.",
	}, []string{"outcome"})
)

func init() {
	prometheus.MustRegister(ParseTotal, RoundtripByteDelta, EchoTotal)
}

// WriteText gathers every registered metric family and writes it in
// Prometheus text exposition format, the same expfmt.NewEncoder call
// kata-containers' kata-monitor metrics.go uses to hand-encode a gathered
// metric family list instead of standing up an HTTP handler, appropriate
// for a one-shot CLI rather than a long-lived server.
func WriteText(w io.Writer) error {
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	enc := expfmt.NewEncoder(&buf, expfmt.FmtText)
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	_, err = w.Write(buf.Bytes())
	return err
}
