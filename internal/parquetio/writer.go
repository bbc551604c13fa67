package parquetio

import (
	"os"
	"path/filepath"

	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	"github.com/tphakala/wildfire-loader/internal/errors"
	"github.com/tphakala/wildfire-loader/internal/table"
)

// exportFileMode matches what os.Create gives a file under the usual umask.
const exportFileMode os.FileMode = 0o644

// Write stores tbl at path with the given codec and returns the size of the
// written file. The file is written under a temporary name in the same
// directory and renamed into place, so a failed write never leaves a
// partial file at path.
func Write(tbl *table.Table, path string, codec compress.Compression) (int64, error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return 0, storageError(err, "create_export_file", path)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	props := parquet.NewWriterProperties(
		parquet.WithCompression(codec),
		parquet.WithVersion(parquet.V2_LATEST),
	)
	arrowProps := pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema())

	writer, err := pqarrow.NewFileWriter(tbl.Schema(), tmp, props, arrowProps)
	if err != nil {
		return 0, storageError(err, "create_parquet_writer", path)
	}

	at := tbl.ToArrow()
	defer at.Release()

	if err := writer.WriteTable(at, max(at.NumRows(), 1)); err != nil {
		_ = writer.Close()
		return 0, storageError(err, "write_parquet", path)
	}
	if err := writer.Close(); err != nil {
		return 0, storageError(err, "close_parquet_writer", path)
	}
	// the writer usually closes its sink already
	if err := tmp.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		return 0, storageError(err, "close_export_file", path)
	}

	// CreateTemp makes the file owner-only
	if err := os.Chmod(tmpName, exportFileMode); err != nil {
		return 0, storageError(err, "chmod_export_file", path)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return 0, storageError(err, "rename_export_file", path)
	}
	committed = true

	info, err := os.Stat(path)
	if err != nil {
		return 0, storageError(err, "stat_export_file", path)
	}
	return info.Size(), nil
}

func storageError(err error, operation, path string) error {
	return errors.StorageError(err, operation).
		Component("parquet").
		FileContext(path, 0).
		Build()
}
