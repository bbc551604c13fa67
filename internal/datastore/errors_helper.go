package datastore

import (
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/tphakala/wildfire-loader/internal/errors"
)

// storageError wraps an engine or filesystem failure as a storage-access
// error. The engine's message is kept verbatim.
func storageError(err error, operation, dbPath string, elapsed time.Duration) error {
	builder := errors.StorageError(err, operation).
		Component("datastore").
		Timing(operation, elapsed).
		FileContext(dbPath, 0)

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		builder = builder.
			Context("sqlite_code", sqliteErr.Code.Error()).
			Context("sqlite_extended_code", int(sqliteErr.ExtendedCode))

		// Corrupt or foreign files will not heal on their own
		if sqliteErr.Code == sqlite3.ErrCorrupt || sqliteErr.Code == sqlite3.ErrNotADB {
			builder = builder.Priority(errors.PriorityHigh)
		}
	}

	return builder.Build()
}

// validationError creates a validation error for a bad argument.
func validationError(message, field string, value any) error {
	return errors.Newf("%s", message).
		Component("datastore").
		Category(errors.CategoryValidation).
		Context("field", field).
		Context("value", fmt.Sprintf("%v", value)).
		Build()
}
