// Package observability wires OpenTelemetry tracing, metrics, and
// structured logging for replan.
package observability

import "log/slog"

// AppMode identifies how the binary was invoked.
type AppMode string

// Application modes.
const (
	ModeCLI AppMode = "cli"
	ModeMCP AppMode = "mcp"
)

const defaultShutdownTimeoutSec = 10

// Config controls provider initialization.
type Config struct {
	// ServiceName names the service in exported telemetry.
	ServiceName string
	// ServiceVersion is the binary version attached to the resource.
	ServiceVersion string
	// Environment is the deployment environment (dev, staging, prod).
	Environment string
	// Mode distinguishes CLI from MCP server invocations.
	Mode AppMode

	// OTLPEndpoint is the gRPC collector endpoint. Empty disables export
	// entirely and installs no-op providers.
	OTLPEndpoint string
	// OTLPInsecure disables transport security for the collector.
	OTLPInsecure bool
	// OTLPHeaders are extra gRPC headers, e.g. auth tokens.
	OTLPHeaders map[string]string

	// SampleRatio samples that fraction of root traces; zero means all.
	SampleRatio float64
	// ShutdownTimeoutSec bounds the final telemetry flush.
	ShutdownTimeoutSec int

	// LogLevel is the minimum level emitted by the logger.
	LogLevel slog.Level
	// LogJSON selects JSON output over text.
	LogJSON bool
}

// DefaultConfig returns a CLI configuration with export disabled.
func DefaultConfig() Config {
	return Config{
		ServiceName:        "replan",
		Mode:               ModeCLI,
		ShutdownTimeoutSec: defaultShutdownTimeoutSec,
		LogLevel:           slog.LevelInfo,
	}
}
