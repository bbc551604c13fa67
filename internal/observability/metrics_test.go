package observability

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsRegistersLoaderAndRuntimeCollectors(t *testing.T) {
	m, err := NewMetrics()
	require.NoError(t, err)
	require.NotNil(t, m.Loader)

	m.Loader.AddRowsLoaded(3)

	families, err := m.Registry().Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	assert.True(t, names["wildfire_loader_rows_loaded_total"])
	assert.True(t, names["go_goroutines"])
}

func TestWriteTextfileCreatesFile(t *testing.T) {
	m, err := NewMetrics()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "wildfire.prom")
	require.NoError(t, m.WriteTextfile(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}
