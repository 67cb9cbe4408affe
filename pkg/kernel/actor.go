package kernel

import (
	"github.com/cuemby/burrow/pkg/failures"
	"github.com/cuemby/burrow/pkg/metrics"
)

// CleanupFunc is invoked by the kernel when an actor ends, whether it
// returned normally or was killed. hasReturned is false for kills and
// host-induced deaths; code is the return code (-1 on a kill).
type CleanupFunc func(hasReturned bool, code int)

// Body is an actor's main function. The return value is the actor's exit
// code, reported to joiners.
type Body func(ctx *Context) int

type actorSpec struct {
	name        string
	host        string
	autorestart bool
	daemon      bool
	body        Body
	cleanup     CleanupFunc
}

type resumeKind int

const (
	resumeStart resumeKind = iota
	resumeTimer
	resumeDeliver
	resumeOpDone
	resumeOpErr
	resumeJoinDone
	resumeKill
)

type resumeMsg struct {
	kind resumeKind
	msg  Message
	err  error
}

// killPanic unwinds an actor's stack when the kernel kills it. It must never
// escape the actor runner.
type killPanic struct {
	cause error
}

// Actor is one cooperative execution context pinned to a host
type Actor struct {
	id   uint64
	spec actorSpec
	host *Host
	k    *Kernel

	resume chan resumeMsg

	started    bool
	killed     bool
	terminated bool
	crashed    bool
	killCause  error
	code       int
	joiners    []*Actor

	// waitSeq increments on every resume; deferred wakes scheduled for an
	// earlier park must not fire after the actor has moved on
	waitSeq uint64

	// Blocking bookkeeping, valid only while parked
	timer *Event
	pput  *pendingPut
	pget  *pendingGet
	xfer  *transfer
}

// Name returns the actor's name
func (a *Actor) Name() string { return a.spec.name }

// Hostname returns the name of the host the actor is pinned to
func (a *Actor) Hostname() string { return a.host.Name }

// Terminated reports whether the actor has ended
func (a *Actor) Terminated() bool { return a.terminated }

// Crashed reports whether the actor ended by being killed rather than by
// returning from its body
func (a *Actor) Crashed() bool { return a.crashed }

// Code returns the actor's exit code; -1 if it crashed
func (a *Actor) Code() int { return a.code }

func (a *Actor) alive() bool { return !a.killed && !a.terminated }

// launch starts the actor goroutine. The goroutine blocks until the kernel
// hands it control for the first time.
func (k *Kernel) launch(a *Actor) {
	go func() {
		rm := <-a.resume
		if rm.kind == resumeKill {
			a.crashed = true
			a.code = -1
			if a.spec.cleanup != nil {
				a.spec.cleanup(false, -1)
			}
		} else {
			a.runBody()
		}
		k.finish(a)
		k.parkCh <- struct{}{}
	}()
}

// runBody executes the actor body, turning kill panics into cleanup calls
func (a *Actor) runBody() {
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(killPanic); !ok {
				panic(r)
			}
			a.crashed = true
			a.code = -1
			if a.spec.cleanup != nil {
				a.spec.cleanup(false, -1)
			}
		}
	}()
	a.code = a.spec.body(&Context{k: a.k, a: a})
	if a.spec.cleanup != nil {
		a.spec.cleanup(true, a.code)
	}
}

// finish records termination, wakes joiners and arms autorestart. It runs on
// the ending actor's goroutine, which at that point is the only one running.
func (k *Kernel) finish(a *Actor) {
	a.terminated = true
	delete(a.host.actors, a)
	for _, j := range a.joiners {
		k.wakeLater(j, resumeMsg{kind: resumeJoinDone})
	}
	a.joiners = nil
	hostDeath := false
	if a.killCause != nil {
		if _, ok := a.killCause.(*failures.HostError); ok {
			hostDeath = true
		}
	}
	if a.crashed && hostDeath && a.spec.autorestart {
		a.host.restarts = append(a.host.restarts, &a.spec)
	}
	metrics.ActorsTotal.WithLabelValues("live").Dec()
	if a.crashed {
		metrics.ActorsTotal.WithLabelValues("crashed").Inc()
	} else {
		metrics.ActorsTotal.WithLabelValues("terminated").Inc()
	}
	k.logger.Debug().
		Str("actor", a.spec.name).
		Str("host", a.host.Name).
		Bool("crashed", a.crashed).
		Int("code", a.code).
		Msg("Actor ended")
}

// wakeLater schedules a resume for a parked actor at the current time. The
// wake is dropped if the actor has been resumed by anything else first.
func (k *Kernel) wakeLater(a *Actor, rm resumeMsg) {
	seq := a.waitSeq
	k.at(k.now, func() {
		if !a.alive() || a.waitSeq != seq {
			return
		}
		k.handoff(a, rm)
	})
}

// killActor marks the actor killed, tears down anything it is blocked on and
// unwinds it. The victim is necessarily parked: only one actor ever runs.
func (k *Kernel) killActor(a *Actor, cause error) {
	if !a.alive() {
		return
	}
	a.killed = true
	a.killCause = cause
	k.cancelWaits(a)
	k.handoff(a, resumeMsg{kind: resumeKill})
}

// cancelWaits tears down the victim's pending timer, mailbox operation or
// in-flight transfer, failing the transfer peer with a network error.
func (k *Kernel) cancelWaits(a *Actor) {
	if a.timer != nil {
		a.timer.Cancel()
		a.timer = nil
	}
	if a.pput != nil {
		a.pput.cancelled = true
		a.pput = nil
	}
	if a.pget != nil {
		a.pget.cancelled = true
		if a.pget.timeout != nil {
			a.pget.timeout.Cancel()
		}
		a.pget = nil
	}
	if a.xfer != nil {
		t := a.xfer
		k.teardownTransfer(t)
		var peer *Actor
		if t.sender == a {
			peer = t.receiver
		} else {
			peer = t.sender
		}
		if peer != nil && peer.alive() {
			k.wakeLater(peer, resumeMsg{kind: resumeOpErr, err: &failures.NetworkError{
				Mailbox: t.mb.name,
				Reason:  failures.ReasonPeerDied,
			}})
		}
	}
}
