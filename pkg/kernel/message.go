package kernel

// Message is the unit of mailbox communication. Content carries the typed
// request or answer; Size is the simulated transmission size in bytes and
// only drives network cost, never semantics.
type Message struct {
	Content any
	Size    int64
}
