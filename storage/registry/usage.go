package registry

// Usage restricts which programs accept a given backend.
//
// Backends are linked at build time: a backend package registers itself from
// init() and a binary enables it with a (usually blank) import.
type Usage uint8

const (
	// UsageCLI marks backends usable by one-shot commands such as "dagnode block rm".
	UsageCLI Usage = 1 << iota
	// UsageDaemon marks backends usable by "dagnode serve".
	UsageDaemon

	UsageAll = UsageCLI | UsageDaemon
)

func (u Usage) allows(want Usage) bool { return u&want != 0 }
