package export

import (
	"os"

	"github.com/tphakala/wildfire-loader/internal/datetime"
)

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}

func partitions(configured int) int {
	if configured > 0 {
		return configured
	}
	return datetime.DetectPartitions()
}
