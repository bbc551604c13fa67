package spinner

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUpdateWritesFrameAndCounter(t *testing.T) {
	buf := &bytes.Buffer{}
	s := NewSpinner(buf, "normalizing")

	s.Update(1, 4)
	s.Update(2, 4)

	out := buf.String()
	assert.Equal(t, 1, strings.Count(out, "\033[?25l"), "cursor hidden once")
	assert.Contains(t, out, "normalizing 1/4")
	assert.Contains(t, out, "normalizing 2/4")
}

func TestFramesWrapAround(t *testing.T) {
	buf := &bytes.Buffer{}
	s := NewSpinner(buf, "")

	for i := range len(s.frames) + 1 {
		s.Update(i, 100)
	}

	assert.Equal(t, len(s.frames)+1, s.index)
	assert.True(t, strings.HasSuffix(buf.String(), s.frames[0]+" 16/100"))
}

func TestCleanupRestoresCursor(t *testing.T) {
	buf := &bytes.Buffer{}
	s := NewSpinner(buf, "x")

	s.Update(1, 1)
	buf.Reset()
	s.Cleanup()

	assert.Equal(t, "\r\033[K\033[?25h", buf.String())
}
