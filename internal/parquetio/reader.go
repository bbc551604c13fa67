package parquetio

import (
	"context"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	"github.com/tphakala/wildfire-loader/internal/table"
)

// FileInfo summarizes a Parquet file without loading its data.
type FileInfo struct {
	Rows      int64
	Columns   int
	RowGroups int
	Codec     string
}

// Read loads the whole Parquet file at path into a table.
func Read(ctx context.Context, path string, mem memory.Allocator) (*table.Table, error) {
	if mem == nil {
		mem = memory.DefaultAllocator
	}

	rdr, err := file.OpenParquetFile(path, false)
	if err != nil {
		return nil, storageError(err, "open_parquet", path)
	}
	defer rdr.Close()

	arrowReader, err := pqarrow.NewFileReader(rdr, pqarrow.ArrowReadProperties{}, mem)
	if err != nil {
		return nil, storageError(err, "create_arrow_reader", path)
	}

	at, err := arrowReader.ReadTable(ctx)
	if err != nil {
		return nil, storageError(err, "read_parquet", path)
	}
	defer at.Release()

	return table.FromArrow(at, mem)
}

// Inspect reads the footer of the Parquet file at path.
func Inspect(path string) (FileInfo, error) {
	rdr, err := file.OpenParquetFile(path, false)
	if err != nil {
		return FileInfo{}, storageError(err, "open_parquet", path)
	}
	defer rdr.Close()

	info := FileInfo{
		Rows:      rdr.NumRows(),
		Columns:   rdr.MetaData().Schema.NumColumns(),
		RowGroups: rdr.NumRowGroups(),
		Codec:     "none",
	}
	if info.RowGroups > 0 && info.Columns > 0 {
		chunk, err := rdr.RowGroup(0).MetaData().ColumnChunk(0)
		if err == nil {
			info.Codec = chunk.Compression().String()
		}
	}
	return info, nil
}
