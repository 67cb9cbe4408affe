package kernel

// Link is a simulated network link with a bandwidth and a latency. Turning a
// link off fails every transfer currently crossing it.
type Link struct {
	Name      string
	Bandwidth float64 // Bytes per virtual second
	Latency   float64 // Virtual seconds

	on        bool
	transfers map[*transfer]struct{}
}

// On reports whether the link is up
func (l *Link) On() bool { return l.on }
