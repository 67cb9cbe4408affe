/*
Package storage implements Burrow's storage service family: the simple
storage service, the file registry, the read-through proxy, the compound
striping service, the transfer threads that move bytes, and the
client-side operation helpers.

# Architecture

	┌─────────────────────── STORAGE FAMILY ───────────────────────┐
	│                                                               │
	│   Client helpers (Lookup/Read/Write/Copy/Delete/FreeSpace)    │
	│        │ typed requests on the service inbox                  │
	│        ▼                                                      │
	│  ┌───────────────┐   ┌──────────────┐   ┌────────────────┐   │
	│  │ SimpleStorage │   │    Proxy     │   │    Compound    │   │
	│  │  - mounts     │   │  - cache     │   │  - children    │   │
	│  │  - capacity   │   │  - remote    │   │  - striping    │   │
	│  │  - BUFFER_SIZE│   │  - pending   │   │  - I/O trace   │   │
	│  └──────┬────────┘   └──────┬───────┘   └───────┬────────┘   │
	│         │ spawns            │ forwards          │ fans out    │
	│  ┌──────▼────────┐          ▼                   ▼             │
	│  │Transfer thread│     SimpleStorage       SimpleStorage…     │
	│  │ send/recv/copy│      (cache+remote)      (stripes)         │
	│  └───────────────┘                                            │
	│                                                               │
	│  ┌───────────────┐                                            │
	│  │ FileRegistry  │  file → known locations (eventual index)   │
	│  └───────────────┘                                            │
	└───────────────────────────────────────────────────────────────┘

# Protocol

All operations are request/answer pairs on the service inbox. Writes
stream content to a per-operation data mailbox and complete with a
durability acknowledgement; reads answer first, then stream content to the
caller's content mailbox. The BUFFER_SIZE property picks the transfer
shape: 0 is fluid (one bulk message), a positive value chunks the stream,
and "infinity" receives fully before forwarding.

Capacity is reserved when a write is admitted and released if the transfer
fails, so a mount point is never oversubscribed and bookkeeping is never
visible half-way.

# Proxy

The proxy fronts a remote service with a cache. Reads populate the cache
(remote→cache copy, then the queued reads replay against the cache);
writes land in the cache, acknowledge the client, and copy back to the
remote asynchronously. FIFO on the client's answer mailbox guarantees the
acknowledgement precedes any write-back effect. Deletes go to both sides
and succeed if either held the file. Pending requests per file are
fulfilled exactly once.

# Compound

The compound service stores nothing itself: a selection strategy (or the
internal round-robin policy under MAX_ALLOCATION_CHUNK_SIZE) places each
file's stripes across child services, and every file-level request fans
out to the recorded stripes in parallel. The operation succeeds only if
every stripe succeeds; failed writes roll the stripe mapping back. Each
action appends to a timestamp-monotonic I/O trace retrievable after
simulation end.

# Scratch

A compute service may own a private storage service as scratch. The
path prefix /scratch/<job> is reserved per job and cleaned when the job
completes or is terminated; task files without an explicit location
resolve to scratch.
*/
package storage
