package credential

// State is a position in the credential lifecycle.
type State int

const (
	// StateAbsent means no usable credential exists; interactive
	// authorization is required.
	StateAbsent State = iota
	// StateStored means a credential was loaded from the store and has not
	// been checked yet.
	StateStored
	// StateExpired means the access token is no longer valid.
	StateExpired
	// StateValid means the access token can be used.
	StateValid
)

func (s State) String() string {
	switch s {
	case StateAbsent:
		return "absent"
	case StateStored:
		return "stored"
	case StateExpired:
		return "expired"
	case StateValid:
		return "valid"
	default:
		return "unknown"
	}
}
