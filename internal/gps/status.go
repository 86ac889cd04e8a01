package gps

// Status is the location provider's availability, using the platform
// provider codes.
type Status int

const (
	StatusUnknown                Status = -1
	StatusOutOfService           Status = 0
	StatusTemporarilyUnavailable Status = 1
	StatusAvailable              Status = 2
)

// Known reports whether s is one of the defined status codes.
func (s Status) Known() bool {
	switch s {
	case StatusUnknown, StatusOutOfService, StatusTemporarilyUnavailable, StatusAvailable:
		return true
	default:
		return false
	}
}

// Text is the user-facing description of the status.
func (s Status) Text() string {
	switch s {
	case StatusAvailable:
		return "Available"
	case StatusOutOfService:
		return "Out of service"
	case StatusTemporarilyUnavailable:
		return "Temporarily unavailable"
	case StatusUnknown:
		return "Unknown"
	default:
		return ""
	}
}

func (s Status) String() string {
	if t := s.Text(); t != "" {
		return t
	}
	return "Status(invalid)"
}
