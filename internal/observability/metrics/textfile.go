package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// WriteTextfile writes everything gathered by g to path in the text
// exposition format, for node_exporter's textfile collector. The file is
// replaced atomically.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	return prometheus.WriteToTextfile(path, g)
}
