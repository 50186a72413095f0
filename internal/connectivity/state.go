package connectivity

// ConnectionState is the network association state owned by the Supervisor.
type ConnectionState int

const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
	Failed
)

func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// JoinOutcome is the expected result of JoinNetwork.
type JoinOutcome int

const (
	// JoinAlreadyAssociated means the station was up and nothing was done.
	JoinAlreadyAssociated JoinOutcome = iota
	// JoinAssociated means the station associated within the retry budget.
	JoinAssociated
	// JoinExhausted means every poll failed; JoinNetwork also returns an error.
	JoinExhausted
)

func (o JoinOutcome) String() string {
	switch o {
	case JoinAlreadyAssociated:
		return "already_associated"
	case JoinAssociated:
		return "associated"
	case JoinExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}
