package observability

import (
	"os"
	"strings"

	"github.com/smallbiznis/payrecon/internal/config"
)

// Config is the slice of application config the logger, metrics and
// tracing providers need.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64
}

func LoadConfig(cfg config.Config) Config {
	serviceName := strings.TrimSpace(cfg.AppName)
	if serviceName == "" {
		serviceName = "payrecon"
	}
	environment := cfg.Environment
	if deployment := strings.TrimSpace(os.Getenv("DEPLOYMENT_ENV")); deployment != "" {
		environment = deployment
	}

	ratio := cfg.Telemetry.SamplingRatio
	if ratio < 0 || ratio > 1 {
		ratio = 1
	}

	return Config{
		ServiceName:          serviceName,
		Environment:          strings.TrimSpace(environment),
		Version:              strings.TrimSpace(cfg.AppVersion),
		LogLevel:             strings.TrimSpace(cfg.Telemetry.LogLevel),
		LogFormat:            strings.TrimSpace(cfg.Telemetry.LogFormat),
		OtelEnabled:          cfg.Telemetry.OTelEnabled,
		OtelExporterEndpoint: strings.TrimSpace(cfg.Telemetry.OTLPEndpoint),
		OtelExporterProtocol: strings.TrimSpace(cfg.Telemetry.OTLPProtocol),
		OtelSamplingRatio:    ratio,
	}
}

// Debug turns on verbose logs and stack traces: explicitly with LOG_LEVEL=debug,
// implicitly in development.
func (c Config) Debug() bool {
	if strings.EqualFold(strings.TrimSpace(c.LogLevel), "debug") {
		return true
	}
	return config.Config{Environment: c.Environment}.IsDevelopment() ||
		strings.EqualFold(strings.TrimSpace(c.Environment), "test")
}
