// Package telemetry provides opt-in, privacy-filtered error reporting to
// Sentry.
package telemetry

import (
	"fmt"
	"runtime"
	"strconv"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/klauspost/cpuid/v2"

	"github.com/tphakala/wildfire-loader/internal/errors"
	"github.com/tphakala/wildfire-loader/internal/logger"
)

// DefaultFlushTimeout bounds Flush at shutdown.
const DefaultFlushTimeout = 2 * time.Second

// Settings controls Sentry reporting. Reporting is off unless Enabled is set
// and a DSN is given.
type Settings struct {
	Enabled     bool   `mapstructure:"enabled" yaml:"enabled"`
	DSN         string `mapstructure:"dsn" yaml:"dsn"`
	Environment string `mapstructure:"environment" yaml:"environment"`
	Debug       bool   `mapstructure:"debug" yaml:"debug"`
}

// PlatformInfo is the host description attached to every event.
type PlatformInfo struct {
	OS           string `json:"os"`
	Architecture string `json:"arch"`
	NumCPU       int    `json:"num_cpu"`
	CPUBrand     string `json:"cpu_brand,omitempty"`
	GoVersion    string `json:"go_version"`
}

func collectPlatformInfo() PlatformInfo {
	info := PlatformInfo{
		OS:           runtime.GOOS,
		Architecture: runtime.GOARCH,
		NumCPU:       runtime.NumCPU(),
		GoVersion:    runtime.Version(),
	}
	if cpuid.CPU.LogicalCores > 0 {
		info.NumCPU = cpuid.CPU.LogicalCores
	}
	info.CPUBrand = cpuid.CPU.BrandName
	return info
}

// InitSentry initializes Sentry and routes enhanced errors to it. It does
// nothing when reporting is disabled.
func InitSentry(settings Settings, version string, log logger.Logger) error {
	return initSentry(settings, version, log, nil)
}

func initSentry(settings Settings, version string, log logger.Logger, transport sentry.Transport) error {
	if log == nil {
		log = logger.NewSlogLogger(nil, logger.LogLevelInfo, nil)
	}
	log = log.Module("telemetry")

	if !settings.Enabled {
		log.Debug("sentry telemetry is disabled (opt-in required)")
		errors.SetTelemetryReporter(nil)
		return nil
	}
	if settings.DSN == "" && transport == nil {
		return errors.Newf("sentry telemetry enabled without a DSN").
			Component("telemetry").
			Category(errors.CategoryConfiguration).
			Context("setting", "telemetry.dsn").
			Build()
	}

	environment := settings.Environment
	if environment == "" {
		environment = "production"
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              settings.DSN,
		Transport:        transport,
		SampleRate:       1.0,
		Debug:            settings.Debug,
		AttachStacktrace: false,
		Environment:      environment,
		ServerName:       "",
		Release:          "wildfire-loader@" + version,
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			return applyPrivacyFilters(event)
		},
	})
	if err != nil {
		return errors.New(fmt.Errorf("sentry initialization failed: %w", err)).
			Component("telemetry").
			Category(errors.CategoryConfiguration).
			Build()
	}

	configureScope(version)
	errors.SetTelemetryReporter(errors.NewSentryReporter(true))

	log.Info("sentry telemetry initialized",
		logger.String("environment", environment),
		logger.String("release", "wildfire-loader@"+version))
	return nil
}

// Flush waits up to timeout for queued events to be sent.
func Flush(timeout time.Duration) bool {
	return sentry.Flush(timeout)
}

// applyPrivacyFilters strips host identity and everything but the allowed
// extra fields from an event.
func applyPrivacyFilters(event *sentry.Event) *sentry.Event {
	event.User = sentry.User{}
	event.ServerName = ""

	for _, key := range []string{"device", "os", "runtime"} {
		delete(event.Contexts, key)
	}
	for k := range event.Extra {
		if k != "error_type" && k != "component" {
			delete(event.Extra, k)
		}
	}
	delete(event.Tags, "server_name")
	delete(event.Tags, "hostname")
	return event
}

func configureScope(version string) {
	platform := collectPlatformInfo()

	sentry.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag("os", platform.OS)
		scope.SetTag("arch", platform.Architecture)
		scope.SetTag("num_cpu", strconv.Itoa(platform.NumCPU))

		scope.SetContext("application", map[string]any{
			"name":    "wildfire-loader",
			"version": version,
		})
		scope.SetContext("platform", map[string]any{
			"os":           platform.OS,
			"architecture": platform.Architecture,
			"num_cpu":      platform.NumCPU,
			"cpu_brand":    platform.CPUBrand,
			"go_version":   platform.GoVersion,
		})
	})
}
