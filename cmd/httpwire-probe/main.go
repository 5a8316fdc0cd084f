// Command httpwire-probe is a small diagnostic CLI over the wire parser,
// serializer, and AST bridge: parse a message from a file, print its
// header summary, or re-render it and report whether the two forms agree.
// Grounded on packetd's cobra root command + confengine/zap wiring
// (cmd/log.go, confengine/config.go, logger/logger.go), adapted from a
// packet-capture pipeline to a one-shot file-in, summary-out tool.
package main

import (
	"bytes"
	"fmt"
	"io"
	"os"

	coreast "github.com/shapestone/shape-core/pkg/ast"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	hwast "github.com/shapestone/shape-httpwire/pkg/httpwire/ast"
	hwmetrics "github.com/shapestone/shape-httpwire/pkg/httpwire/metrics"
)

var (
	cfgPath string
	mode    string
	logger  *zap.Logger
)

func main() {
	root := &cobra.Command{
		Use:   "httpwire-probe",
		Short: "Parse, roundtrip, and inspect HTTP/1.x wire messages",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if mode == "" {
				mode = cfg.Mode
			}
			l, err := newLogger(cfg.LogLevel)
			if err != nil {
				return err
			}
			logger = l
			return nil
		},
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "path to a YAML config overlay")
	root.PersistentFlags().StringVar(&mode, "mode", "", "request or response (default from config, else request)")

	root.AddCommand(parseCmd(), roundtripCmd(), metricsCmd(), serveCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return cfg.Build()
}

func readInput(args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(args[0])
}

func parseInput(data []byte) (coreast.SchemaNode, error) {
	if mode == "response" {
		return hwast.ParseResponse(data)
	}
	return hwast.Parse(data)
}

// summarize extracts the fields a human wants to see first from the
// parsed node, without dumping the full header/body payload.
func summarize(node coreast.SchemaNode) string {
	obj, ok := node.(*coreast.ObjectNode)
	if !ok {
		return fmt.Sprintf("%+v", node)
	}
	props := obj.Properties()
	lit := func(key string) string {
		if l, ok := props[key].(*coreast.LiteralNode); ok {
			return fmt.Sprintf("%v", l.Value())
		}
		return ""
	}
	headerCount := 0
	if arr, ok := props["headers"].(*coreast.ArrayDataNode); ok {
		headerCount = len(arr.Elements())
	}
	if lit("type") == "response" {
		return fmt.Sprintf("HTTP/%s.%s %s %s (%d headers)",
			lit("versionMajor"), lit("versionMinor"), lit("statusCode"), lit("reason"), headerCount)
	}
	return fmt.Sprintf("%s %s HTTP/%s.%s (%d headers)",
		lit("method"), lit("target"), lit("versionMajor"), lit("versionMinor"), headerCount)
}

func parseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "parse [file]",
		Short: "Parse a message and print its header summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			corrID := uuid.NewString()
			data, err := readInput(args)
			if err != nil {
				hwmetrics.ParseTotal.WithLabelValues("read_error").Inc()
				return err
			}
			node, err := parseInput(data)
			if err != nil {
				hwmetrics.ParseTotal.WithLabelValues("parse_error").Inc()
				logger.Error("parse failed", zap.String("correlationId", corrID), zap.Error(err))
				return err
			}
			hwmetrics.ParseTotal.WithLabelValues("ok").Inc()
			logger.Info("parsed message", zap.String("correlationId", corrID), zap.String("mode", mode))
			fmt.Println(summarize(node))
			return nil
		},
	}
}

func roundtripCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "roundtrip [file]",
		Short: "Parse a message, re-render it, and report the byte delta",
		RunE: func(cmd *cobra.Command, args []string) error {
			corrID := uuid.NewString()
			data, err := readInput(args)
			if err != nil {
				return err
			}
			node, err := parseInput(data)
			if err != nil {
				hwmetrics.ParseTotal.WithLabelValues("parse_error").Inc()
				logger.Error("roundtrip parse failed", zap.String("correlationId", corrID), zap.Error(err))
				return err
			}
			hwmetrics.ParseTotal.WithLabelValues("ok").Inc()

			rendered, err := hwast.Render(node)
			if err != nil {
				logger.Error("render failed", zap.String("correlationId", corrID), zap.Error(err))
				return err
			}

			delta := len(rendered) - len(data)
			if delta < 0 {
				delta = -delta
			}
			hwmetrics.RoundtripByteDelta.Observe(float64(delta))
			logger.Info("roundtrip complete",
				zap.String("correlationId", corrID),
				zap.Int("originalBytes", len(data)),
				zap.Int("renderedBytes", len(rendered)),
				zap.Bool("identical", bytes.Equal(data, rendered)))
			fmt.Printf("original=%d rendered=%d identical=%v\n", len(data), len(rendered), bytes.Equal(data, rendered))
			return nil
		},
	}
}

func metricsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "metrics",
		Short: "Print the current Prometheus metrics in text exposition format",
		RunE: func(cmd *cobra.Command, args []string) error {
			return hwmetrics.WriteText(os.Stdout)
		},
	}
}
