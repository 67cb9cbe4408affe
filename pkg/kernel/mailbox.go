package kernel

import (
	"github.com/cuemby/burrow/pkg/failures"
	"github.com/cuemby/burrow/pkg/metrics"
)

// Mailbox is a named rendezvous endpoint. Many actors may put; exactly one
// service reads. A put blocks until a matching get has been made and the
// simulated transfer has completed.
type Mailbox struct {
	name   string
	owner  *Host // set when a reader first receives, or via RegisterMailbox
	closed bool  // set when the owning service is killed
	puts   []*pendingPut
	gets   []*pendingGet
}

type pendingPut struct {
	actor     *Actor // nil for detached (fire-and-forget) puts
	srcHost   *Host
	msg       Message
	cancelled bool
}

type pendingGet struct {
	actor     *Actor
	timeout   *Event
	cancelled bool
}

func (mb *Mailbox) popPut() *pendingPut {
	for len(mb.puts) > 0 {
		pp := mb.puts[0]
		mb.puts = mb.puts[1:]
		if !pp.cancelled {
			return pp
		}
	}
	return nil
}

func (mb *Mailbox) popGet() *pendingGet {
	for len(mb.gets) > 0 {
		pg := mb.gets[0]
		mb.gets = mb.gets[1:]
		if !pg.cancelled {
			return pg
		}
	}
	return nil
}

// mailbox returns the mailbox with the given name, creating it on first use
func (k *Kernel) mailbox(name string) *Mailbox {
	mb, ok := k.mailboxes[name]
	if !ok {
		mb = &Mailbox{name: name}
		k.mailboxes[name] = mb
	}
	return mb
}

// RegisterMailbox pins a mailbox to an owning host and (re)opens it. Puts
// to a mailbox whose owner is off fail immediately with a network error
// instead of blocking.
func (k *Kernel) RegisterMailbox(name, host string) {
	mb := k.mailbox(name)
	mb.owner = k.hosts[host]
	mb.closed = false
}

// CloseMailbox invalidates a mailbox: every blocked put or get on it fails
// with a network error, and subsequent puts fail immediately. Used when a
// service is killed so no caller stays blocked on a dead endpoint.
func (k *Kernel) CloseMailbox(name string) {
	mb := k.mailbox(name)
	if mb.closed {
		return
	}
	mb.closed = true
	err := &failures.NetworkError{Mailbox: name, Reason: failures.ReasonInvalidMailbox}
	for _, pp := range mb.puts {
		if pp.cancelled {
			continue
		}
		pp.cancelled = true
		if pp.actor != nil && pp.actor.alive() {
			pp.actor.pput = nil
			k.wakeLater(pp.actor, resumeMsg{kind: resumeOpErr, err: err})
		}
	}
	mb.puts = nil
	for _, pg := range mb.gets {
		if pg.cancelled {
			continue
		}
		pg.cancelled = true
		if pg.timeout != nil {
			pg.timeout.Cancel()
		}
		if pg.actor.alive() {
			pg.actor.pget = nil
			k.wakeLater(pg.actor, resumeMsg{kind: resumeOpErr, err: err})
		}
	}
	mb.gets = nil
}

// transfer is one in-flight message crossing the platform
type transfer struct {
	mb       *Mailbox
	sender   *Actor // nil for detached puts
	receiver *Actor
	links    []*Link
	ev       *Event
	down     bool
}

// startTransfer begins moving a matched message. Both endpoints stay parked
// until the completion event fires or a failure tears the transfer down.
func (k *Kernel) startTransfer(mb *Mailbox, sender *Actor, srcHost *Host, receiver *Actor, msg Message) {
	links := k.route(srcHost, receiver.host)
	for _, l := range links {
		if !l.on {
			err := &failures.NetworkError{Mailbox: mb.name, Reason: failures.ReasonLinkFailure}
			if sender != nil {
				k.wakeLater(sender, resumeMsg{kind: resumeOpErr, err: err})
			}
			k.wakeLater(receiver, resumeMsg{kind: resumeOpErr, err: err})
			metrics.MessagesFailed.Inc()
			return
		}
	}
	delay := 0.0
	minBW := 0.0
	for _, l := range links {
		delay += l.Latency
		if minBW == 0 || l.Bandwidth < minBW {
			minBW = l.Bandwidth
		}
	}
	if msg.Size > 0 && minBW > 0 {
		delay += float64(msg.Size) / minBW
	}
	t := &transfer{mb: mb, sender: sender, receiver: receiver, links: links}
	if sender != nil {
		sender.xfer = t
	}
	receiver.xfer = t
	for _, l := range links {
		l.transfers[t] = struct{}{}
	}
	t.ev = k.at(k.now+delay, func() {
		k.completeTransfer(t, msg)
	})
}

// completeTransfer delivers the message to the receiver and unblocks the
// sender
func (k *Kernel) completeTransfer(t *transfer, msg Message) {
	k.teardownTransfer(t)
	metrics.MessagesDelivered.Inc()
	if t.receiver.alive() {
		k.handoff(t.receiver, resumeMsg{kind: resumeDeliver, msg: msg})
	}
	if t.sender != nil && t.sender.alive() {
		k.handoff(t.sender, resumeMsg{kind: resumeOpDone})
	}
}

// teardownTransfer unregisters the transfer from links and endpoints and
// cancels its completion event. Idempotent.
func (k *Kernel) teardownTransfer(t *transfer) {
	if t.down {
		return
	}
	t.down = true
	if t.ev != nil {
		t.ev.Cancel()
	}
	for _, l := range t.links {
		delete(l.transfers, t)
	}
	if t.sender != nil && t.sender.xfer == t {
		t.sender.xfer = nil
	}
	if t.receiver.xfer == t {
		t.receiver.xfer = nil
	}
}

// failTransfer aborts an in-flight transfer, waking both endpoints with a
// network error
func (k *Kernel) failTransfer(t *transfer, reason failures.NetworkErrorReason) {
	if t.down {
		return
	}
	k.teardownTransfer(t)
	metrics.MessagesFailed.Inc()
	err := &failures.NetworkError{Mailbox: t.mb.name, Reason: reason}
	if t.sender != nil && t.sender.alive() {
		k.wakeLater(t.sender, resumeMsg{kind: resumeOpErr, err: err})
	}
	if t.receiver.alive() {
		k.wakeLater(t.receiver, resumeMsg{kind: resumeOpErr, err: err})
	}
}
