package call

// State is the call lifecycle state. Exactly one State is held per
// controller; it is mutated only through the transitions the controller
// enforces under its mutex.
type State int

const (
	// StateIdle: no call. The starting and resting state.
	StateIdle State = iota

	// StateRequestingPermission: waiting for the user to grant access to the
	// input device.
	StateRequestingPermission

	// StateConnecting: devices are open; the duplex channel to the agent is
	// being established.
	StateConnecting

	// StateActive: the call is live — capture streams outbound, playback
	// renders inbound.
	StateActive

	// StateDenied: device access was refused. Terminal until the user retries
	// with StartCall, which re-enters StateRequestingPermission.
	StateDenied

	// StateError: a device or transport failure ended the call. StartCall
	// retries from here.
	StateError
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateRequestingPermission:
		return "REQUESTING_PERMISSION"
	case StateConnecting:
		return "CONNECTING"
	case StateActive:
		return "ACTIVE"
	case StateDenied:
		return "DENIED"
	case StateError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// startable reports whether StartCall is allowed from s. Idle is the normal
// entry; Denied and Error are explicit user retries.
func (s State) startable() bool {
	return s == StateIdle || s == StateDenied || s == StateError
}
