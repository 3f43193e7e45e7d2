package console

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"portfolioops/internal/application/port"
)

// Sink prints cycle summary lines, one per cycle, prefixed with the cycle time.
type Sink struct {
	mu  sync.Mutex
	out io.Writer
}

func NewSink() port.Sink { return NewSinkTo(os.Stdout) }

func NewSinkTo(w io.Writer) *Sink { return &Sink{out: w} }

func (s *Sink) WriteSnapshot(ts time.Time, line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprintf(s.out, "%s %s\n", ts.Local().Format("2006-01-02 15:04:05"), line)
	return err
}
