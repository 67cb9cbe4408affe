/*
Package kernel implements Burrow's discrete-event simulation engine: the
virtual clock, the simulated platform (hosts, disks, links, routes), the
cooperative actor scheduler and the mailbox rendezvous layer.

Everything else in Burrow is built on this package. Services are actors,
messages are mailbox rendezvous, time only advances when the event queue
says so, and failures are injected by flipping hosts and links.

# Architecture

	┌──────────────────────── KERNEL ─────────────────────────────┐
	│                                                              │
	│  ┌───────────────────────────────────────────┐              │
	│  │              Event Queue                   │              │
	│  │  - Min-heap on (virtual time, seq)         │              │
	│  │  - Deterministic same-time ordering        │              │
	│  │  - Run() pops until quiescence             │              │
	│  └──────────────────┬────────────────────────┘              │
	│                     │ fires                                  │
	│  ┌──────────────────▼────────────────────────┐              │
	│  │            Actor Scheduler                 │              │
	│  │  - One actor runs at any moment            │              │
	│  │  - handoff: resume actor, await park       │              │
	│  │  - Kill unwinds via panic + cleanup hook   │              │
	│  └─────┬──────────────────────────┬──────────┘              │
	│        │                          │                          │
	│  ┌─────▼──────────┐      ┌────────▼─────────┐               │
	│  │    Hosts       │      │    Mailboxes      │               │
	│  │  - cores, RAM  │      │  - named endpoints│               │
	│  │  - flop rate   │      │  - put/get match  │               │
	│  │  - disks       │      │  - transfer time  │               │
	│  │  - ON/OFF      │      │  - FIFO per queue │               │
	│  └─────┬──────────┘      └────────┬─────────┘               │
	│        │                          │                          │
	│  ┌─────▼──────────────────────────▼─────────┐               │
	│  │              Links & Routes               │               │
	│  │  - bandwidth, latency, ON/OFF             │               │
	│  │  - transfer delay = Σlatency + size/minBW │               │
	│  │  - link-off fails in-flight transfers     │               │
	│  └──────────────────────────────────────────┘               │
	└──────────────────────────────────────────────────────────────┘

# Scheduling Model

Actors are cooperative: they only suspend at the blocking primitives
(Sleep, Compute, Put, Get, Join, disk I/O). Between two suspension points
an actor's private state is observed by nobody else, so no locking is
needed anywhere above the kernel.

The hand-off protocol pairs every resume with exactly one park. The kernel
(or another actor performing a zero-time control operation) sends on the
actor's resume channel and then blocks on the shared park channel; the
resumed actor eventually parks or terminates, which unblocks its resumer.
At most one goroutine is ever runnable.

# Failure Semantics

Turning a host off kills every actor pinned to it: each one unwinds via a
kill panic, its registered cleanup hook runs with hasReturned=false, and
transfer peers observe a NetworkError. Autorestart actors are re-spawned
when their host powers back on. Turning a link off fails every transfer
currently crossing it, on both ends.

Mailboxes can be pinned to an owning host (RegisterMailbox) so senders fail
fast instead of blocking forever when the owner is off, and closed
(CloseMailbox) when the owning service is killed so blocked peers get a
network error rather than a hang.

# Usage

	k := kernel.New(kernel.Config{Seed: 1, HostShutdownSimulation: true})
	k.AddHost("HostA", 4, 1e9, 16e9)
	k.AddLink("l1", 1.25e8, 1e-4)

	k.Spawn(kernel.SpawnOptions{Name: "worker", Host: "HostA"},
		func(ctx *kernel.Context) int {
			msg, err := ctx.Get("inbox")
			if err != nil {
				return 1
			}
			_ = ctx.Compute(3600)
			ctx.PutAsync("done", msg)
			return 0
		})

	k.Run() // runs until no scheduled event remains
*/
package kernel
