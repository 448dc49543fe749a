package chatserver

// RecvTask is the unit of work handed from a connection's reader goroutine
// to the worker pool: an owned copy of one parsed frame's target and body,
// tagged with the client that sent it.
type RecvTask struct {
	ClientID uint64
	Raw      []byte
}

// Destination selects a SendTask's fan-out: exactly one client, or every
// client currently on the roster.
type Destination int

const (
	Unicast Destination = iota
	Broadcast
)

// SendTask is the unit of work handed to the sender goroutine: a target tag
// plus an owned body destined for one client or the whole roster.
type SendTask struct {
	Dest     Destination
	ClientID uint64 // only meaningful when Dest == Unicast
	Target   string
	Body     []byte
}
