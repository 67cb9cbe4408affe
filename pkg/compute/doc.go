/*
Package compute implements the bare-metal compute service: a multi-host,
multi-core standard-job executor with ready-queue dispatch, per-task
placement, resource accounting, scratch management and fault-tolerant
work-unit re-execution.

# Architecture

	┌──────────────────── BARE-METAL COMPUTE ─────────────────────┐
	│                                                              │
	│  SubmitStandardJob ──► validation ──► work-unit factory      │
	│                                           │                  │
	│                 ┌─────────────────────────▼───────────────┐  │
	│                 │          ready_workunits (FIFO)          │  │
	│                 └─────────────────────────┬───────────────┘  │
	│                  dispatch after every message                │
	│                 ┌─────────────────────────▼───────────────┐  │
	│                 │            pickAllocation                │  │
	│                 │  - hosts ON, flop rate > 0               │  │
	│                 │  - idle cores ≥ required, ram ≥ required │  │
	│                 │  - worst-fit-ram skip rule               │  │
	│                 │  - min ((threads+used)/cores)/flop_rate  │  │
	│                 └─────────────────────────┬───────────────┘  │
	│                                           │ spawn            │
	│  ┌────────────────────────────────────────▼───────────────┐  │
	│  │   Work-unit executor (one per placement, transient)     │  │
	│  │   pre-copies → startup → inputs → compute → outputs     │  │
	│  │   → post-copies → cleanup → Done / Failed               │  │
	│  │   + termination detector on the service's host          │  │
	│  └────────────────────────────────────────┬───────────────┘  │
	│                                           │ events           │
	│   Done: children unblock, job-done check, scratch cleanup    │
	│   Failed: whole job fails, StandardJobFailed to controller   │
	│   Crashed: work unit requeued at the back, task reset READY  │
	└──────────────────────────────────────────────────────────────┘

# Work-Unit Factory

A standard job becomes a series-parallel graph: an optional "pre" unit
holding the pre-file-copies, one unit per task (children of the pre unit),
and an optional "post" unit holding post-copies and cleanup deletions,
child of every task unit. NumPendingParents counts down as parents
complete; a unit enters the ready queue exactly when it reaches zero.

# Placement Specs

submitStandardJob accepts per-task placement specs with the grammar

	spec := "" | cores | host | host ":" cores

An empty spec is free choice. Hosts must be granted to the service; core
counts must lie within the task's [min, max] range. A job is admissible
only if every task could run on at least one granted host; inadmissible
jobs are rejected with NotEnoughResources before any state changes.

# Failure Policy

An executor crash (its host died) retries the same work unit: the task
state resets to READY and the unit re-enters the ready queue at the back.
An executor failure (a storage or file error inside the work unit) fails
the whole job and notifies the controller with StandardJobFailed. Under
TERMINATE_WHENEVER_ALL_RESOURCES_ARE_DOWN, losing every granted host with
nothing running fails all jobs and shuts the service down with exit
code 1.
*/
package compute
