package mqttflow

import "time"

// KeepAlive schedules pings on an idle connection and reports a connection
// whose ping fails.
//
// The timer is armed when the connection is established and rearmed every
// time it fires. With rescheduling enabled, every outbound write pushes the
// next ping a full interval away. It is confined to the connection's event loop.
type KeepAlive struct {
	interval   time.Duration
	reschedule bool
	scheduler  Scheduler

	ping      func(done func(error))
	onFailure func(error)

	timer   Scheduled
	active  bool
	pinging bool
}

// NewKeepAlive creates a keep-alive stage. ping must issue one ping request
// and report its outcome; onFailure is called once the ping failed.
// A zero interval disables keep-alive.
func NewKeepAlive(interval time.Duration, reschedule bool, scheduler Scheduler,
	ping func(done func(error)), onFailure func(error)) *KeepAlive {
	return &KeepAlive{
		interval:   interval,
		reschedule: reschedule,
		scheduler:  scheduler,
		ping:       ping,
		onFailure:  onFailure,
	}
}

// Interval returns the keep-alive interval.
func (k *KeepAlive) Interval() time.Duration {
	return k.interval
}

// SetInterval changes the interval, as when the broker overrides the
// requested keep-alive. An armed timer is rearmed with the new interval.
func (k *KeepAlive) SetInterval(interval time.Duration) {
	k.interval = interval
	if !k.active {
		return
	}
	if interval <= 0 {
		k.cancel()
		return
	}
	k.arm()
}

// Connected starts pinging.
func (k *KeepAlive) Connected() {
	if k.interval <= 0 {
		return
	}
	k.active = true
	k.pinging = false
	k.arm()
}

// Disconnecting stops pinging. Calling it more than once is a no-op.
func (k *KeepAlive) Disconnecting() {
	k.active = false
	k.cancel()
}

// Remove detaches the stage from its connection.
func (k *KeepAlive) Remove() {
	k.Disconnecting()
}

// Active returns true while pings are scheduled.
func (k *KeepAlive) Active() bool {
	return k.active
}

// OnWrite observes an outbound write and postpones the pending ping.
func (k *KeepAlive) OnWrite() {
	if !k.reschedule || k.timer == nil {
		return
	}
	k.arm()
}

func (k *KeepAlive) arm() {
	k.cancel()
	k.timer = k.scheduler.Schedule(k.interval, k.fire)
}

func (k *KeepAlive) cancel() {
	if k.timer != nil {
		k.timer.Cancel()
		k.timer = nil
	}
}

func (k *KeepAlive) fire() {
	k.timer = nil
	if !k.active {
		return
	}
	k.arm()

	if k.pinging {
		return
	}
	k.pinging = true
	k.ping(func(err error) {
		k.pinging = false
		if err == nil || !k.active {
			return
		}
		k.Disconnecting()
		k.onFailure(err)
	})
}
