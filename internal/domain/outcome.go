package domain

// OutcomeKind tags a ProbeOutcome.
type OutcomeKind int

const (
	OutcomeDown OutcomeKind = iota
	OutcomeUp
	OutcomeStartTriggered
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeUp:
		return "up"
	case OutcomeStartTriggered:
		return "start_triggered"
	default:
		return "down"
	}
}

// ProbeOutcome is the result of checking one machine in one tick.
//
// DiscoveredIP is only meaningful for Up and StartTriggered outcomes, when the
// gateway response carried an "ip" field.
type ProbeOutcome struct {
	Kind         OutcomeKind
	Detail       string
	DiscoveredIP string
}

func Up(detail string) ProbeOutcome {
	return ProbeOutcome{Kind: OutcomeUp, Detail: detail}
}

func Down(detail string) ProbeOutcome {
	return ProbeOutcome{Kind: OutcomeDown, Detail: detail}
}

func StartTriggered(detail, discoveredIP string) ProbeOutcome {
	return ProbeOutcome{Kind: OutcomeStartTriggered, Detail: detail, DiscoveredIP: discoveredIP}
}

// Succeeded reports whether the gateway answered with anything other than an error.
func (o ProbeOutcome) Succeeded() bool {
	return o.Kind != OutcomeDown
}
