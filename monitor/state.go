package monitor

// connState is one state of the connection lifecycle (spec §4.11):
// disconnected, connecting, connected, reconnecting, backoff, or
// retry-wait. The monitor's run loop is the only writer of this value.
type connState string

const (
	stateDisconnected connState = "disconnected"
	stateConnecting   connState = "connecting"
	stateConnected    connState = "connected"
	stateReconnecting connState = "reconnecting"
	stateBackoff      connState = "backoff"
	stateRetryWait    connState = "retry-wait"
)

func (m *Monitor) setState(s connState) {
	m.stateMu.Lock()
	m.state = s
	m.stateMu.Unlock()
}

// State reports the monitor's current connection state.
func (m *Monitor) State() connState {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	return m.state
}
