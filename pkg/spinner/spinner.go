// Package spinner draws a braille spinner with a progress counter on a
// terminal.
package spinner

import (
	"fmt"
	"io"
	"sync"
)

// Spinner holds the spinner state. It is safe for concurrent use.
type Spinner struct {
	mu     sync.Mutex
	w      io.Writer
	label  string
	frames []string
	index  int
}

// NewSpinner creates a spinner that writes to w, prefixing each line with
// label.
func NewSpinner(w io.Writer, label string) *Spinner {
	// braille arrow
	return &Spinner{
		w:     w,
		label: label,
		frames: []string{
			"⣀⣀ ",
			"⣄⣀ ",
			"⣤⣀ ",
			"⣦⣄ ",
			"⣶⣤ ",
			"⣿⣦ ",
			"⣿⣷ ",
			"⣿⣿ ",
			"⣿⣿ ",
			"⣷⣿ ",
			"⣦⣿ ",
			"⣤⣷ ",
			"⣄⣦ ",
			"⣀⣤ ",
			"⣀⣄ ",
			"⣀⣀ ",
		},
	}
}

// Update advances the spinner to the next frame and prints done/total.
func (s *Spinner) Update(done, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.index == 0 {
		// Hide cursor
		fmt.Fprint(s.w, "\033[?25l")
	}
	fmt.Fprintf(s.w, "\r%s%s %d/%d", s.frames[s.index%len(s.frames)], s.label, done, total)
	s.index++
}

// Cleanup clears the spinner line and shows the cursor.
func (s *Spinner) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	fmt.Fprint(s.w, "\r\033[K")  // Clear the line
	fmt.Fprint(s.w, "\033[?25h") // Show cursor
}
