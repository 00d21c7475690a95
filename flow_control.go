package mqttflow

// defaultReceiveMaximum applies when the broker announces no Receive Maximum.
const defaultReceiveMaximum = 65535

// FlowController counts QoS > 0 publishes that were sent but not yet
// acknowledged and caps them at the broker's Receive Maximum.
// It is confined to the connection's event loop.
type FlowController struct {
	receiveMaximum uint16
	inFlight       uint16
}

// NewFlowController creates a flow controller. Zero selects 65535.
func NewFlowController(receiveMaximum uint16) *FlowController {
	f := &FlowController{}
	f.SetReceiveMaximum(receiveMaximum)
	return f
}

// ReceiveMaximum returns the current cap.
func (f *FlowController) ReceiveMaximum() uint16 { return f.receiveMaximum }

// InFlight returns the number of held slots.
func (f *FlowController) InFlight() uint16 { return f.inFlight }

// SetReceiveMaximum changes the cap. Zero selects 65535. Slots held above a
// lowered cap stay held until released.
func (f *FlowController) SetReceiveMaximum(maximum uint16) {
	if maximum == 0 {
		maximum = defaultReceiveMaximum
	}
	f.receiveMaximum = maximum
}

// Available returns the number of free slots.
func (f *FlowController) Available() uint16 {
	return f.receiveMaximum - min(f.inFlight, f.receiveMaximum)
}

// TryAcquire takes a slot if one is free.
func (f *FlowController) TryAcquire() bool {
	if f.Available() == 0 {
		return false
	}
	f.inFlight++
	return true
}

// Release frees a slot.
func (f *FlowController) Release() {
	if f.inFlight > 0 {
		f.inFlight--
	}
}
