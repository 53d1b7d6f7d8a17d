package webhook

/* Activation is the tri-state remote activation flag.
 * A record is Unknown until the first successful sync reports what the
 * remote side thinks.
 */
type Activation int

const (
	Unknown Activation = iota
	Active
	Inactive
)

// String returns the string representation of the activation state
func (a Activation) String() string {
	switch a {
	case Active:
		return "active"
	case Inactive:
		return "inactive"
	default:
		return "unknown"
	}
}

// NewActivation creates an Activation from a string
func NewActivation(str string) Activation {
	switch str {
	case "active":
		return Active
	case "inactive":
		return Inactive
	default:
		return Unknown
	}
}

// ActivationFromRemote maps the boolean active flag of a remote registration
func ActivationFromRemote(active bool) Activation {
	if active {
		return Active
	}
	return Inactive
}

/* Bool returns the activation as a nullable boolean: the second return is
 * false when the state is Unknown. Used by stores that persist the flag as
 * a NULL-able column.
 */
func (a Activation) Bool() (value bool, known bool) {
	switch a {
	case Active:
		return true, true
	case Inactive:
		return false, true
	default:
		return false, false
	}
}
