package conf

import (
	"github.com/spf13/viper"

	"github.com/tphakala/wildfire-loader/internal/loader"
	"github.com/tphakala/wildfire-loader/internal/logger"
	"github.com/tphakala/wildfire-loader/internal/parquetio"
)

func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("debug", false)

	v.SetDefault("source.path", "")
	v.SetDefault("source.startdate", "")
	v.SetDefault("source.enddate", "")
	v.SetDefault("source.truthfields", []string{})
	v.SetDefault("source.inputfields", []string{})

	v.SetDefault("normalize.parallel", true)
	v.SetDefault("normalize.partitions", 0)
	v.SetDefault("normalize.progress", false)

	v.SetDefault("export.dir", "")
	v.SetDefault("export.file", loader.DefaultExportFileName)
	v.SetDefault("export.compression", parquetio.DefaultCodecName)
	v.SetDefault("export.metricsfile", "")

	v.SetDefault("logging.default_level", logger.DefaultLogLevel)
	v.SetDefault("logging.timezone", logger.DefaultTimezone)
	v.SetDefault("logging.console.enabled", logger.DefaultConsoleEnabled)
	v.SetDefault("logging.console.level", logger.DefaultLogLevel)
	v.SetDefault("logging.file_output.enabled", logger.DefaultFileEnabled)
	v.SetDefault("logging.file_output.path", logger.DefaultLogPath)
	v.SetDefault("logging.file_output.level", logger.DefaultLogLevel)

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.dsn", "")
	v.SetDefault("telemetry.environment", "production")
	v.SetDefault("telemetry.debug", false)
}
