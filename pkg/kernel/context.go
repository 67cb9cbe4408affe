package kernel

import (
	"fmt"
	"math/rand"

	"github.com/cuemby/burrow/pkg/failures"
)

// Context is the actor-side API of the kernel. Every method that can take
// virtual time is a suspension point; between two suspension points an
// actor's state is observed by nobody else.
type Context struct {
	k *Kernel
	a *Actor
}

// park yields control back to the kernel and blocks until resumed. A kill
// resume unwinds the actor via panic; the runner turns it into cleanup.
func (c *Context) park() resumeMsg {
	c.k.parkCh <- struct{}{}
	rm := <-c.a.resume
	if rm.kind == resumeKill {
		panic(killPanic{cause: c.a.killCause})
	}
	return rm
}

// Kernel returns the kernel, for zero-time queries
func (c *Context) Kernel() *Kernel { return c.k }

// Self returns the running actor
func (c *Context) Self() *Actor { return c.a }

// Host returns the host this actor is pinned to
func (c *Context) Host() *Host { return c.a.host }

// Now returns the current virtual time in seconds
func (c *Context) Now() float64 { return c.k.now }

// Rand returns the kernel's seeded random source
func (c *Context) Rand() *rand.Rand { return c.k.rng }

// Sleep suspends the actor for dt virtual seconds. If the actor's host dies
// first, the actor is killed and never returns from the call.
func (c *Context) Sleep(dt float64) error {
	if dt < 0 {
		dt = 0
	}
	a := c.a
	a.timer = c.k.at(c.k.now+dt, func() {
		if !a.alive() || a.timer == nil {
			return
		}
		a.timer = nil
		c.k.handoff(a, resumeMsg{kind: resumeTimer})
	})
	c.park()
	return nil
}

// Compute performs flops of sequential computation on the actor's host
func (c *Context) Compute(flops float64) error {
	rate := c.a.host.FlopRate
	if rate <= 0 {
		return &failures.HostError{Host: c.a.host.Name}
	}
	return c.Sleep(flops / rate)
}

// ParallelCompute performs flops of computation spread over cores
func (c *Context) ParallelCompute(flops float64, cores int) error {
	if cores < 1 {
		return &failures.InvalidArgument{Message: "parallel compute needs at least one core"}
	}
	rate := c.a.host.FlopRate
	if rate <= 0 {
		return &failures.HostError{Host: c.a.host.Name}
	}
	return c.Sleep(flops / (rate * float64(cores)))
}

// DiskRead spends the virtual time needed to read bytes from the disk
// mounted at mount on the actor's host
func (c *Context) DiskRead(mount string, bytes int64) error {
	d := c.a.host.DiskAt(mount)
	if d == nil {
		return &failures.InvalidArgument{Message: fmt.Sprintf("no disk at %s on host %s", mount, c.a.host.Name)}
	}
	if d.ReadBW <= 0 || bytes <= 0 {
		return nil
	}
	return c.Sleep(float64(bytes) / d.ReadBW)
}

// DiskWrite spends the virtual time needed to write bytes to the disk
// mounted at mount on the actor's host
func (c *Context) DiskWrite(mount string, bytes int64) error {
	d := c.a.host.DiskAt(mount)
	if d == nil {
		return &failures.InvalidArgument{Message: fmt.Sprintf("no disk at %s on host %s", mount, c.a.host.Name)}
	}
	if d.WriteBW <= 0 || bytes <= 0 {
		return nil
	}
	return c.Sleep(float64(bytes) / d.WriteBW)
}

// matchGet removes bookkeeping for a get that has just been matched
func matchGet(pg *pendingGet) {
	if pg.timeout != nil {
		pg.timeout.Cancel()
		pg.timeout = nil
	}
	pg.actor.pget = nil
}

// Put sends a message to a mailbox, blocking until a receiver has matched
// and the simulated transfer completed. Fails with a network error if the
// mailbox's owning host is off, a link on the route fails mid-transfer, or
// the receiver dies.
func (c *Context) Put(mailbox string, msg Message) error {
	mb := c.k.mailbox(mailbox)
	if mb.closed {
		return &failures.NetworkError{Mailbox: mailbox, Reason: failures.ReasonInvalidMailbox}
	}
	if mb.owner != nil && !mb.owner.on {
		return &failures.NetworkError{Mailbox: mailbox, Reason: failures.ReasonHostDown}
	}
	if pg := mb.popGet(); pg != nil {
		matchGet(pg)
		c.k.startTransfer(mb, c.a, c.a.host, pg.actor, msg)
	} else {
		pp := &pendingPut{actor: c.a, srcHost: c.a.host, msg: msg}
		mb.puts = append(mb.puts, pp)
		c.a.pput = pp
	}
	rm := c.park()
	if rm.kind == resumeOpErr {
		return rm.err
	}
	return nil
}

// PutAsync sends a message without waiting for the receiver. The message is
// dropped if the mailbox's owning host is off; delivery is best-effort and
// the sender is never notified.
func (c *Context) PutAsync(mailbox string, msg Message) {
	c.k.DetachedPut(mailbox, c.a.host.Name, msg)
}

// DetachedPut queues a message with no sending actor. Used by PutAsync and
// by setup code injecting bootstrap messages.
func (k *Kernel) DetachedPut(mailbox, srcHost string, msg Message) {
	mb := k.mailbox(mailbox)
	if mb.closed || (mb.owner != nil && !mb.owner.on) {
		return
	}
	src := k.hosts[srcHost]
	if pg := mb.popGet(); pg != nil {
		matchGet(pg)
		k.startTransfer(mb, nil, src, pg.actor, msg)
		return
	}
	mb.puts = append(mb.puts, &pendingPut{actor: nil, srcHost: src, msg: msg})
}

// Get receives the next message from a mailbox, blocking until one arrives
func (c *Context) Get(mailbox string) (Message, error) {
	return c.get(mailbox, -1)
}

// GetWithTimeout receives the next message from a mailbox, giving up with a
// Timeout error after timeout virtual seconds
func (c *Context) GetWithTimeout(mailbox string, timeout float64) (Message, error) {
	return c.get(mailbox, timeout)
}

func (c *Context) get(mailbox string, timeout float64) (Message, error) {
	mb := c.k.mailbox(mailbox)
	if mb.closed {
		return Message{}, &failures.NetworkError{Mailbox: mailbox, Reason: failures.ReasonInvalidMailbox}
	}
	if mb.owner == nil {
		mb.owner = c.a.host
	}
	if pp := mb.popPut(); pp != nil {
		if pp.actor != nil {
			pp.actor.pput = nil
		}
		c.k.startTransfer(mb, pp.actor, pp.srcHost, c.a, pp.msg)
	} else {
		pg := &pendingGet{actor: c.a}
		if timeout >= 0 {
			a := c.a
			pg.timeout = c.k.at(c.k.now+timeout, func() {
				if pg.cancelled || !a.alive() {
					return
				}
				pg.cancelled = true
				a.pget = nil
				c.k.handoff(a, resumeMsg{kind: resumeOpErr, err: &failures.Timeout{
					Mailbox: mailbox,
					Budget:  timeout,
				}})
			})
		}
		mb.gets = append(mb.gets, pg)
		c.a.pget = pg
	}
	rm := c.park()
	switch rm.kind {
	case resumeDeliver:
		return rm.msg, nil
	case resumeOpErr:
		return Message{}, rm.err
	default:
		return Message{}, &failures.NetworkError{Mailbox: mailbox, Reason: failures.ReasonInvalidMailbox}
	}
}

// Spawn starts a new actor from within the simulation
func (c *Context) Spawn(opts SpawnOptions, body Body) (*Actor, error) {
	return c.k.Spawn(opts, body)
}

// Kill terminates another actor, or the calling actor itself
func (c *Context) Kill(a *Actor) {
	if a == c.a {
		a.killed = true
		panic(killPanic{})
	}
	c.k.killActor(a, nil)
}

// Join blocks until the given actor ends, returning its exit code and
// whether it crashed
func (c *Context) Join(a *Actor) (int, bool) {
	if a.terminated {
		return a.code, a.crashed
	}
	a.joiners = append(a.joiners, c.a)
	c.park()
	return a.code, a.crashed
}

// Yield parks the actor for zero virtual time, letting same-time events run
func (c *Context) Yield() error {
	return c.Sleep(0)
}
