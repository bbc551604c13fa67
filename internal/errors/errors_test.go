package errors

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingReporter struct {
	reported []*EnhancedError
}

func (r *recordingReporter) ReportError(ee *EnhancedError) {
	r.reported = append(r.reported, ee)
	ee.MarkReported()
}

func (r *recordingReporter) IsEnabled() bool { return true }

func TestFastPathNoTelemetry(t *testing.T) {
	SetTelemetryReporter(nil)

	ee := New(fmt.Errorf("test error")).Build()

	assert.Equal(t, "test error", ee.Error())
	assert.Equal(t, ComponentUnknown, ee.GetComponent())
	assert.Equal(t, CategoryGeneric, ee.Category)
	assert.False(t, ee.IsReported())
}

func TestEnhancedErrorKeepsMessageVerbatim(t *testing.T) {
	base := fmt.Errorf("no such table: observations")
	ee := StorageError(base, "load_table").Timing("load_table", 1500*time.Millisecond).Build()

	assert.Equal(t, "no such table: observations", ee.Error())
	assert.ErrorIs(t, ee, base)
	assert.True(t, IsStorage(ee))
	assert.False(t, IsPrecondition(ee))
	assert.Equal(t, "load_table", ee.GetContext()["operation"])
	assert.Equal(t, int64(1500), ee.GetContext()["duration_ms"])
	assert.False(t, ee.GetTimestamp().IsZero())
}

func TestCategoryHelpersSeeThroughWrapping(t *testing.T) {
	ee := New(NewStd("bad value")).Category(CategoryDataFormat).Context("column", "recorded_at").Build()
	wrapped := fmt.Errorf("normalize: %w", ee)

	assert.True(t, IsDataFormat(wrapped))
	assert.False(t, IsStorage(wrapped))

	var target *EnhancedError
	require.True(t, As(wrapped, &target))
	assert.Equal(t, "recorded_at", target.GetContext()["column"])
}

func TestIsComparesCategories(t *testing.T) {
	a := New(NewStd("a")).Category(CategoryPrecondition).Build()
	b := New(NewStd("b")).Category(CategoryPrecondition).Build()
	c := New(NewStd("c")).Category(CategoryStorage).Build()

	assert.ErrorIs(t, a, b)
	assert.NotErrorIs(t, a, c)
}

func TestGetContextReturnsCopy(t *testing.T) {
	ee := New(NewStd("x")).Context("k", "v").Build()

	ctx := ee.GetContext()
	ctx["k"] = "changed"

	assert.Equal(t, "v", ee.GetContext()["k"])
}

func TestPriorityFallsBackToMedium(t *testing.T) {
	ee := New(NewStd("x")).Priority("urgent").Build()
	assert.Equal(t, PriorityMedium, ee.GetPriority())

	ee = New(NewStd("x")).Priority(PriorityHigh).Build()
	assert.Equal(t, PriorityHigh, ee.GetPriority())
}

func TestReporterReceivesErrorsWhenEnabled(t *testing.T) {
	reporter := &recordingReporter{}
	SetTelemetryReporter(reporter)
	t.Cleanup(func() { SetTelemetryReporter(nil) })

	ee := New(NewStd("database disk image is malformed")).Build()

	require.Len(t, reporter.reported, 1)
	assert.Same(t, ee, reporter.reported[0])
	assert.True(t, ee.IsReported())
	assert.Equal(t, CategoryStorage, ee.Category, "category is detected from the message")
}

func TestDetectCategory(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		component string
		want      ErrorCategory
	}{
		{"sql message", NewStd("SQL logic error"), "", CategoryStorage},
		{"parse message", NewStd("cannot parse value"), "", CategoryDataFormat},
		{"invalid message", NewStd("invalid limit"), "", CategoryValidation},
		{"datastore component", NewStd("boom"), "datastore", CategoryStorage},
		{"unknown", NewStd("boom"), "", CategoryGeneric},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, detectCategory(tt.err, tt.component))
		})
	}
}

func TestScrubMessageForPrivacy(t *testing.T) {
	scrubbed := scrubMessageForPrivacy("unable to open /data/fires/wildfire.sqlite near 'secret'")

	assert.NotContains(t, scrubbed, "/data/fires")
	assert.NotContains(t, scrubbed, "secret")
	assert.Contains(t, scrubbed, "[PATH]")
}

func TestFileContext(t *testing.T) {
	ee := New(NewStd("x")).FileContext("/tmp/export.parquet", 2048).Build()

	ctx := ee.GetContext()
	assert.Equal(t, "absolute-path", ctx["file_type"])
	assert.Equal(t, "parquet", ctx["file_extension"])
	assert.Equal(t, "small", ctx["file_size_category"])
}
