package density

import (
	"context"
	"fmt"
	"sync"
)

// Monitor reports progress and carries cooperative cancellation.
type Monitor interface {
	// CheckCanceled returns a non-nil error once the operation was canceled.
	CheckCanceled() error

	// SetProgress reports the completed fraction in [0, 1] of this monitor's
	// share of the work.
	SetProgress(fraction float64, message string)

	// SubProgress allocates the next weight share of this monitor to a child.
	// Children are laid out one after another in the order they are created.
	SubProgress(weight float64) Monitor
}

// ProgressFunc receives overall progress in [0, 1] and a message.
type ProgressFunc func(fraction float64, message string)

// NewMonitor returns a root monitor that is canceled with ctx and forwards
// progress to report, which may be nil.
func NewMonitor(ctx context.Context, report ProgressFunc) Monitor {
	if ctx == nil {
		ctx = context.Background()
	}
	return &monitor{
		root: &monitorRoot{ctx: ctx, report: report},
		span: 1,
	}
}

// NopMonitor returns a monitor that never cancels and discards progress.
func NopMonitor() Monitor {
	return NewMonitor(context.Background(), nil)
}

type monitorRoot struct {
	ctx    context.Context
	report ProgressFunc
	mu     sync.Mutex
	last   float64
}

type monitor struct {
	root      *monitorRoot
	base      float64 // absolute start of this monitor's range
	span      float64 // absolute width of this monitor's range
	allocated float64 // fraction of this range handed to children
}

func (m *monitor) CheckCanceled() error {
	if err := m.root.ctx.Err(); err != nil {
		return fmt.Errorf("density: execution canceled: %w", err)
	}
	return nil
}

func (m *monitor) SetProgress(fraction float64, message string) {
	fraction = min(max(fraction, 0), 1)
	r := m.root
	abs := m.base + fraction*m.span
	r.mu.Lock()
	defer r.mu.Unlock()
	if abs > r.last {
		r.last = abs
	}
	if r.report != nil {
		r.report(r.last, message)
	}
}

func (m *monitor) SubProgress(weight float64) Monitor {
	weight = min(max(weight, 0), 1-m.allocated)
	child := &monitor{
		root: m.root,
		base: m.base + m.allocated*m.span,
		span: weight * m.span,
	}
	m.allocated += weight
	return child
}

// stepProgress checks cancellation and reports that step of total elements
// is being processed, formatting message with (step, total).
func stepProgress(m Monitor, step, total int, template string) error {
	if err := m.CheckCanceled(); err != nil {
		return err
	}
	fraction := 1.0
	if total > 0 {
		fraction = float64(step) / float64(total)
	}
	m.SetProgress(fraction, fmt.Sprintf(template, step, total))
	return nil
}
