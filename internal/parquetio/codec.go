// Package parquetio writes tables to Parquet files and reads them back.
package parquetio

import (
	"strings"

	"github.com/apache/arrow-go/v18/parquet/compress"

	"github.com/tphakala/wildfire-loader/internal/errors"
)

// DefaultCodecName is the codec used when none is configured.
const DefaultCodecName = "gzip"

var codecs = map[string]compress.Compression{
	"gzip":         compress.Codecs.Gzip,
	"snappy":       compress.Codecs.Snappy,
	"zstd":         compress.Codecs.Zstd,
	"brotli":       compress.Codecs.Brotli,
	"none":         compress.Codecs.Uncompressed,
	"uncompressed": compress.Codecs.Uncompressed,
}

// ParseCodec maps a codec name to its Parquet compression. Names are
// case-insensitive; an empty name selects gzip.
func ParseCodec(name string) (compress.Compression, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		key = DefaultCodecName
	}
	c, ok := codecs[key]
	if !ok {
		return compress.Codecs.Uncompressed, errors.Newf("unknown compression codec %q (supported: gzip, snappy, zstd, brotli, none)", name).
			Component("parquet").
			Category(errors.CategoryValidation).
			Context("codec", name).
			Build()
	}
	return c, nil
}
