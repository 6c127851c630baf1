package model

// Status is the outcome reported by a remote collaborator. Anything other than
// StatusOK is data to be recorded, not an error to be thrown.
type Status int

const (
	StatusOK Status = iota
	StatusError
	StatusNotFound
	StatusTimeout
	StatusDisconnected
	StatusInvalidRequest
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusError:
		return "ERROR"
	case StatusNotFound:
		return "NOT_FOUND"
	case StatusTimeout:
		return "TIMEOUT"
	case StatusDisconnected:
		return "DISCONNECTED"
	case StatusInvalidRequest:
		return "INVALID_REQUEST"
	}
	return "UNKNOWN"
}

// ParseStatus maps a wire status name back to a Status.
func ParseStatus(s string) Status {
	for st := StatusOK; st <= StatusInvalidRequest; st++ {
		if st.String() == s {
			return st
		}
	}
	return StatusError
}

// ResponseType identifies the remote operation a recorded status belongs to.
type ResponseType int

const (
	GetPosition ResponseType = iota
	GetOrders
	GetTicks
	GetRates
	GetLastTick
	SendOrder
	CheckOrder
)

func (r ResponseType) String() string {
	switch r {
	case GetPosition:
		return "GetPosition"
	case GetOrders:
		return "GetOrders"
	case GetTicks:
		return "GetTicks"
	case GetRates:
		return "GetRates"
	case GetLastTick:
		return "GetLastTick"
	case SendOrder:
		return "SendOrder"
	case CheckOrder:
		return "CheckOrder"
	}
	return "Unknown"
}

// ParseResponseType maps a name produced by String back to a ResponseType.
// Unknown names map to -1.
func ParseResponseType(s string) ResponseType {
	for r := GetPosition; r <= CheckOrder; r++ {
		if r.String() == s {
			return r
		}
	}
	return -1
}
