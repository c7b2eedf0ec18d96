package enum

type ConnectionState string

const (
	ConnectionDisconnected ConnectionState = "disconnected"
	ConnectionConnecting   ConnectionState = "connecting"
	ConnectionReady        ConnectionState = "ready"
	ConnectionClosed       ConnectionState = "closed"
)

func (t ConnectionState) String() string {
	return string(t)
}

// DispatchOutcome is the settled result of one message dispatch.
type DispatchOutcome string

const (
	// DispatchProcessed means the ticketing call succeeded; the message is
	// moved to the success child.
	DispatchProcessed DispatchOutcome = "processed"
	// DispatchRejected covers processing failures and spam rejects; the
	// message is moved to the failure child.
	DispatchRejected DispatchOutcome = "rejected"
	// DispatchSkipped means the message vanished before processing; no move
	// is attempted.
	DispatchSkipped DispatchOutcome = "skipped"
)

func (t DispatchOutcome) String() string {
	return string(t)
}
