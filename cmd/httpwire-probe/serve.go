package main

import (
	"net"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/shapestone/shape-httpwire/pkg/header"
	"github.com/shapestone/shape-httpwire/pkg/httpwire"
	hwmetrics "github.com/shapestone/shape-httpwire/pkg/httpwire/metrics"
)

// serveReadChunk is how much unfilled space handleConn asks the parser's
// flat buffer for on each conn.Read; well above a typical request line and
// header block, small enough not to stall on a slow peer for long.
const serveReadChunk = 4096

func serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Listen on a raw TCP address and echo each request's method, target, and body back as a 200 response",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := net.Listen("tcp", addr)
			if err != nil {
				return err
			}
			defer l.Close()
			logger.Info("httpwire-probe serve listening", zap.String("address", addr))
			for {
				conn, err := l.Accept()
				if err != nil {
					return err
				}
				go handleConn(conn)
			}
		},
	}
	cmd.Flags().StringVar(&addr, "address", "127.0.0.1:8099", "address to listen on")
	return cmd
}

// handleConn decodes one request off conn with a Parser, driven entirely
// by conn.Read filling the parser's own buffer (no bufio.Reader, no
// intermediate copy), then renders a 200 response whose body echoes the
// request back, written out through a Serializer.
func handleConn(conn net.Conn) {
	defer conn.Close()
	corrID := uuid.NewString()
	log := logger.With(zap.String("correlationId", corrID), zap.String("remote", conn.RemoteAddr().String()))

	p := httpwire.NewRequestParser()
	var body []byte
	connClosed := false
	for {
		ev, err := p.Parse()
		if err != nil {
			hwmetrics.EchoTotal.WithLabelValues("parse_error").Inc()
			log.Error("serve parse failed", zap.Error(err))
			return
		}
		switch ev.Kind {
		case httpwire.EventNeedMore:
			if connClosed {
				hwmetrics.EchoTotal.WithLabelValues("parse_error").Inc()
				log.Error("serve connection closed mid-message")
				return
			}
			buf, err := p.Prepare(serveReadChunk)
			if err != nil {
				hwmetrics.EchoTotal.WithLabelValues("parse_error").Inc()
				log.Error("serve buffer grow failed", zap.Error(err))
				return
			}
			n, err := conn.Read(buf)
			if n > 0 {
				p.Commit(n)
			}
			if err != nil {
				connClosed = true
				p.CommitEOF()
			}
		case httpwire.EventBodyData:
			body = append(body, ev.Data...)
		case httpwire.EventComplete:
			writeEcho(conn, log, p.Header(), body, corrID)
			return
		}
	}
}

func writeEcho(conn net.Conn, log *zap.Logger, req *header.Header, body []byte, corrID string) {
	resp := header.New(header.KindResponse)
	if err := resp.SetStatusLine(1, 1, 200, "OK"); err != nil {
		hwmetrics.EchoTotal.WithLabelValues("parse_error").Inc()
		log.Error("serve build response failed", zap.Error(err))
		return
	}
	_ = resp.Append("X-Echo-Method", req.Method())
	_ = resp.Append("X-Echo-Target", req.Target())
	_ = resp.Append("X-Correlation-Id", corrID)

	s := httpwire.NewResponseSerializer()
	if err := s.StartWithBody(resp, body); err != nil {
		hwmetrics.EchoTotal.WithLabelValues("parse_error").Inc()
		log.Error("serve start response failed", zap.Error(err))
		return
	}
	for !s.IsDone() {
		segs, err := s.Prepare()
		if err != nil {
			hwmetrics.EchoTotal.WithLabelValues("write_error").Inc()
			log.Error("serve prepare response failed", zap.Error(err))
			return
		}
		n := 0
		for _, seg := range segs {
			if len(seg) == 0 {
				continue
			}
			w, err := conn.Write(seg)
			n += w
			if err != nil {
				hwmetrics.EchoTotal.WithLabelValues("write_error").Inc()
				log.Error("serve write failed", zap.Error(err))
				return
			}
		}
		s.Consume(n)
	}
	hwmetrics.EchoTotal.WithLabelValues("ok").Inc()
	log.Info("serve echoed request", zap.String("method", req.Method()), zap.String("target", req.Target()), zap.Int("bodyBytes", len(body)))
}
