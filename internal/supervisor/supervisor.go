// Package supervisor restarts a single subprocess.SpawnRequest on crash,
// using a jittered exponential backoff between attempts.
package supervisor

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"
	"syscall"
	"time"

	"github.com/arclet/subprocess/internal/subprocess"
)

const (
	defaultBackoffMin    = time.Second
	defaultBackoffMax    = 30 * time.Second
	defaultBackoffFactor = 2.0
	stopGrace            = 5 * time.Second
)

// Backoff configures the delay between restart attempts. A zero value
// backfills to the defaults above.
type Backoff struct {
	Min    time.Duration
	Max    time.Duration
	Factor float64
}

func (b Backoff) normalized() Backoff {
	if b.Min <= 0 {
		b.Min = defaultBackoffMin
	}
	if b.Max <= 0 {
		b.Max = defaultBackoffMax
	}
	if b.Max < b.Min {
		b.Max = b.Min
	}
	if b.Factor <= 1 {
		b.Factor = defaultBackoffFactor
	}
	return b
}

// RestartPolicy controls whether, and how often, a crashed service is
// restarted. MaxRetries < 0 means unlimited restarts.
type RestartPolicy struct {
	MaxRetries int
	Backoff    Backoff
}

// EventType classifies a single lifecycle transition reported on the
// Supervisor's event channel.
type EventType int

const (
	EventStarting EventType = iota
	EventExited
	EventRestarting
	EventFailed
	EventStopped
)

// Event is one lifecycle transition for the supervised service.
type Event struct {
	Type   EventType
	Status subprocess.TerminationStatus
	Err    error
}

// Supervisor runs req repeatedly, restarting it according to policy
// whenever it exits unsuccessfully, until it exits cleanly, Stop is called,
// or the policy is exhausted.
type Supervisor struct {
	req     subprocess.SpawnRequest
	policy  RestartPolicy
	events  chan Event
	jitter  func(time.Duration) time.Duration
	sleep   func(context.Context, time.Duration) error

	mu      sync.Mutex
	current *subprocess.Execution

	cancel context.CancelFunc
	done   chan struct{}
}

// New constructs a Supervisor for req. The returned Events channel is
// closed once the supervised service stops for good, whether because Stop
// was called or because the restart policy was exhausted.
func New(req subprocess.SpawnRequest, policy RestartPolicy) *Supervisor {
	policy.Backoff = policy.Backoff.normalized()
	// Stop reaches the whole process group by negating the pid, so every
	// supervised child needs its own session regardless of what the caller
	// set.
	req.Credentials.CreateSession = true
	return &Supervisor{
		req:    req,
		policy: policy,
		events: make(chan Event, 8),
		jitter: fullJitter,
		sleep:  sleepCtx,
		done:   make(chan struct{}),
	}
}

func fullJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return time.Duration(rand.Float64() * float64(d))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Events returns the channel on which lifecycle transitions are reported.
func (s *Supervisor) Events() <-chan Event { return s.events }

// Run starts the supervised loop and blocks until the service stops for
// good (restart policy exhausted, ctx cancelled, or Stop called).
func (s *Supervisor) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	defer close(s.done)
	defer close(s.events)

	restarts := 0
	backoff := s.policy.Backoff.Min

	for {
		if ctx.Err() != nil {
			s.emit(Event{Type: EventStopped})
			return
		}

		s.emit(Event{Type: EventStarting})

		ex, err := subprocess.NewSpawner().Spawn(s.req)
		if err != nil {
			s.emit(Event{Type: EventExited, Err: err})
			if !s.allowRestart(restarts) {
				s.emit(Event{Type: EventFailed, Err: err})
				return
			}
			restarts++
			if err := s.backoffSleep(ctx, &backoff); err != nil {
				s.emit(Event{Type: EventStopped})
				return
			}
			continue
		}

		s.setCurrent(ex)
		status, waitErr := ex.Wait(ctx)
		_ = ex.Close()
		s.clearCurrent()

		if ctx.Err() != nil {
			s.emit(Event{Type: EventStopped, Status: status})
			return
		}

		if waitErr != nil {
			s.emit(Event{Type: EventExited, Err: waitErr})
		} else {
			s.emit(Event{Type: EventExited, Status: status})
			if status.Success() {
				return
			}
		}

		if !s.allowRestart(restarts) {
			s.emit(Event{Type: EventFailed, Status: status, Err: waitErr})
			return
		}

		restarts++
		s.emit(Event{Type: EventRestarting})
		if err := s.backoffSleep(ctx, &backoff); err != nil {
			s.emit(Event{Type: EventStopped})
			return
		}
	}
}

func (s *Supervisor) allowRestart(restarts int) bool {
	if s.policy.MaxRetries < 0 {
		return true
	}
	return restarts < s.policy.MaxRetries
}

func (s *Supervisor) backoffSleep(ctx context.Context, base *time.Duration) error {
	delay := *base
	if delay <= 0 {
		delay = s.policy.Backoff.Min
	}
	if delay > s.policy.Backoff.Max {
		delay = s.policy.Backoff.Max
	}

	jittered := s.jitter(delay)
	if jittered > s.policy.Backoff.Max {
		jittered = s.policy.Backoff.Max
	}

	if err := s.sleep(ctx, jittered); err != nil {
		return err
	}

	next := float64(delay) * s.policy.Backoff.Factor
	if math.IsInf(next, 0) || next > float64(s.policy.Backoff.Max) {
		*base = s.policy.Backoff.Max
		return nil
	}
	n := time.Duration(next)
	if n < s.policy.Backoff.Min {
		n = s.policy.Backoff.Min
	}
	*base = n
	return nil
}

func (s *Supervisor) setCurrent(ex *subprocess.Execution) {
	s.mu.Lock()
	s.current = ex
	s.mu.Unlock()
}

func (s *Supervisor) clearCurrent() {
	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()
}

func (s *Supervisor) emit(ev Event) {
	select {
	case s.events <- ev:
	default:
		// A slow consumer must not stall the supervisor loop; the channel
		// is deep enough that this only triggers under pathological
		// backpressure, in which case the newest event is dropped rather
		// than the loop wedging.
	}
}

// Stop signals the currently running instance's process group and waits
// for the supervised loop to return, or for ctx to expire. New always
// requests a new session for the child, so the child's pid doubles as its
// process group id.
func (s *Supervisor) Stop(ctx context.Context) error {
	// Read the current instance before cancelling: cancellation makes Run
	// clear it, after which there would be nothing left to signal.
	s.mu.Lock()
	ex := s.current
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	if ex != nil {
		pid := ex.PID()
		_ = syscall.Kill(-pid, syscall.SIGTERM)
		select {
		case <-s.done:
			return nil
		case <-time.After(stopGrace):
			_ = syscall.Kill(-pid, syscall.SIGKILL)
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ErrNotRunning is returned by operations that require a live instance when
// none is currently running (between restart attempts, or after Stop).
var ErrNotRunning = errors.New("supervisor: no instance currently running")

// PID reports the pid of the currently running instance, or ErrNotRunning
// if none is live right now.
func (s *Supervisor) PID() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return 0, ErrNotRunning
	}
	return s.current.PID(), nil
}
