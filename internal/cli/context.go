// Package cli holds the state shared by the wildfire-loader commands.
package cli

import (
	"io"
	"os"

	"github.com/spf13/viper"

	"github.com/tphakala/wildfire-loader/internal/buildinfo"
	"github.com/tphakala/wildfire-loader/internal/conf"
	"github.com/tphakala/wildfire-loader/internal/errors"
	"github.com/tphakala/wildfire-loader/internal/loader"
	"github.com/tphakala/wildfire-loader/internal/logger"
	"github.com/tphakala/wildfire-loader/internal/observability"
	"github.com/tphakala/wildfire-loader/internal/telemetry"
)

// Context is created by the root command and filled in before any
// subcommand runs.
type Context struct {
	Build    *buildinfo.Context
	Viper    *viper.Viper
	Settings *conf.Settings
	Logger   logger.Logger
	Metrics  *observability.Metrics

	central *logger.CentralLogger
	logOut  io.Writer
	closed  bool
}

// NewContext returns an uninitialized context.
func NewContext(build *buildinfo.Context) *Context {
	return &Context{Build: build, logOut: os.Stderr}
}

// Initialize decodes settings from v and starts logging, telemetry and
// metrics. Log and progress output goes to logOut.
func (c *Context) Initialize(v *viper.Viper, logOut io.Writer) error {
	if logOut != nil {
		c.logOut = logOut
	}

	settings, err := conf.Load(v)
	if err != nil {
		return err
	}
	if err := conf.ValidateSettings(settings); err != nil {
		return err
	}

	central, err := logger.NewCentralLoggerWithWriter(&settings.Logging, c.logOut)
	if err != nil {
		return errors.New(err).
			Component("cli").
			Category(errors.CategoryConfiguration).
			Context("operation", "setup_logging").
			Build()
	}

	m, err := observability.NewMetrics()
	if err != nil {
		_ = central.Close()
		return errors.New(err).
			Component("cli").
			Category(errors.CategoryConfiguration).
			Context("operation", "setup_metrics").
			Build()
	}

	c.Viper = v
	c.Settings = settings
	c.central = central
	c.Logger = central.Module("wildfire")
	c.Metrics = m

	if err := telemetry.InitSentry(settings.Telemetry, c.Build.Version(), c.Logger); err != nil {
		c.Logger.Warn("telemetry disabled", logger.Error(err))
	}

	c.Logger.Debug("settings loaded",
		logger.String("config_file", v.ConfigFileUsed()),
		logger.String("source", settings.Source.Path),
		logger.Bool("debug", settings.Debug))
	return nil
}

// NewLoader validates the source settings and builds a DataLoader wired to
// the shared logger and metrics.
func (c *Context) NewLoader() (*loader.DataLoader, error) {
	if c.Settings == nil {
		return nil, errors.Newf("command context used before initialization").
			Component("cli").
			Category(errors.CategoryPrecondition).
			Build()
	}
	if err := conf.ValidateSource(c.Settings); err != nil {
		return nil, err
	}
	return loader.New(c.Settings.LoaderConfig(),
		loader.WithLogger(c.Logger),
		loader.WithMetrics(c.Metrics.Loader),
		loader.WithProgressWriter(c.logOut),
	)
}

// Close writes the metrics textfile if one is configured, flushes
// telemetry and closes the log file. Only the first call does anything.
func (c *Context) Close() error {
	if c.Settings == nil || c.closed {
		return nil
	}
	c.closed = true

	var errs []error
	if path := c.Settings.Export.MetricsFile; path != "" && c.Metrics != nil {
		if err := c.Metrics.WriteTextfile(path); err != nil {
			errs = append(errs, err)
		} else {
			c.Logger.Debug("metrics written", logger.String("path", path))
		}
	}
	if c.Settings.Telemetry.Enabled {
		telemetry.Flush(telemetry.DefaultFlushTimeout)
	}
	errs = append(errs, c.central.Close())
	return errors.Join(errs...)
}
