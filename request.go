package mqttflow

import "time"

// ResultStatus is the state of a request outcome.
type ResultStatus int

const (
	// ResultPending means the exchange is still in progress.
	ResultPending ResultStatus = iota
	// ResultSuccess means the exchange completed.
	ResultSuccess
	// ResultFailure means the exchange terminated with an error.
	ResultFailure
)

// String returns the string representation of the result status.
func (s ResultStatus) String() string {
	switch s {
	case ResultPending:
		return "pending"
	case ResultSuccess:
		return "success"
	case ResultFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// Result is the answer a request gives to every call: still pending,
// completed with a value, or failed.
type Result[T any] struct {
	status ResultStatus
	value  T
	err    error
}

// Pending returns a pending result.
func Pending[T any]() Result[T] {
	return Result[T]{}
}

// Success returns a completed result.
func Success[T any](value T) Result[T] {
	return Result[T]{status: ResultSuccess, value: value}
}

// Failure returns a failed result.
func Failure[T any](err error) Result[T] {
	return Result[T]{status: ResultFailure, err: err}
}

// Status returns the result status.
func (r Result[T]) Status() ResultStatus { return r.status }

// Done returns true for success and failure.
func (r Result[T]) Done() bool { return r.status != ResultPending }

// Value returns the value of a successful result.
func (r Result[T]) Value() T { return r.value }

// Err returns the error of a failed result.
func (r Result[T]) Err() error { return r.err }

// Scheduled is a handle to a one-shot timer.
// Cancel is idempotent; a canceled callback never runs.
type Scheduled interface {
	Cancel()
}

// Scheduler arms one-shot timers whose callbacks run on the connection's
// sequencing context.
type Scheduler interface {
	Schedule(after time.Duration, fn func()) Scheduled
}

// RequestContext is what a request may do to the connection it runs on.
type RequestContext interface {
	// Write enqueues a packet for transmission.
	Write(packet OutboundPacket)

	// NextPacketID allocates a packet identifier unique among outstanding requests.
	// It is released when the request terminates.
	NextPacketID() (uint16, error)

	// ScheduleEvent delivers event back to the request's HandleEvent after the delay.
	ScheduleEvent(event any, after time.Duration) Scheduled

	// Logger returns the logger scoped to the request.
	Logger() Logger
}

// Request drives one protocol exchange to completion.
// Every method runs on the connection's sequencing context and must not block.
type Request[T any] interface {
	// Start performs the first write and returns the immediate outcome.
	Start(ctx RequestContext) Result[T]

	// Process offers an inbound packet. Packets that do not correlate
	// with the request must leave it pending and unchanged.
	Process(ctx RequestContext, packet Packet) Result[T]

	// HandleEvent delivers an event scheduled through ScheduleEvent.
	HandleEvent(ctx RequestContext, event any) Result[T]

	// Connected is called after a (re)connection completes.
	Connected(ctx RequestContext, sessionPresent bool) Result[T]

	// Disconnected is called when the connection drops. Timers must be
	// canceled but correlation state kept.
	Disconnected(ctx RequestContext) Result[T]
}

// resendTimer is the retry timer shared by all request kinds.
type resendTimer struct {
	interval time.Duration
	handle   Scheduled
}

type retryEvent struct{}

// arm schedules the next retry. A zero interval disables retries.
func (t *resendTimer) arm(ctx RequestContext) {
	t.cancel()
	if t.interval <= 0 {
		return
	}
	t.handle = ctx.ScheduleEvent(retryEvent{}, t.interval)
}

func (t *resendTimer) cancel() {
	if t.handle != nil {
		t.handle.Cancel()
		t.handle = nil
	}
}

// fired consumes a retry event. It returns false for events the timer did not arm.
func (t *resendTimer) fired(event any) bool {
	if _, ok := event.(retryEvent); !ok || t.handle == nil {
		return false
	}
	t.handle = nil
	return true
}

func (t *resendTimer) armed() bool {
	return t.handle != nil
}
