// internal/model/connection.go
package model

// ConnectionState represents the engine's position in the reconnect state machine.
type ConnectionState string

const (
	StateDisconnected  ConnectionState = "DISCONNECTED"
	StateConnecting    ConnectionState = "CONNECTING"
	StateInitializing  ConnectionState = "INITIALIZING"
	StateProtocolProbe ConnectionState = "PROTOCOL_PROBE"
	StateConnected     ConnectionState = "CONNECTED"
	StateDegraded      ConnectionState = "DEGRADED"
)

// IsOnline reports whether metric requests may be issued in this state.
func (s ConnectionState) IsOnline() bool {
	return s == StateConnected || s == StateDegraded
}

// validTransitions enumerates the allowed state machine edges. An explicit
// stop may force DISCONNECTED from any state, so every state carries that edge.
var validTransitions = map[ConnectionState][]ConnectionState{
	StateDisconnected:  {StateConnecting},
	StateConnecting:    {StateInitializing, StateDisconnected},
	StateInitializing:  {StateProtocolProbe, StateDisconnected},
	StateProtocolProbe: {StateConnected, StateDisconnected},
	StateConnected:     {StateDegraded, StateDisconnected},
	StateDegraded:      {StateConnected, StateDisconnected},
}

// CanTransitionTo reports whether the edge from s to target is part of the
// state machine.
func (s ConnectionState) CanTransitionTo(target ConnectionState) bool {
	for _, t := range validTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}
