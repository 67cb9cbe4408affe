package storage

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/cuemby/burrow/pkg/failures"
	"github.com/cuemby/burrow/pkg/kernel"
	"github.com/cuemby/burrow/pkg/service"
	"github.com/cuemby/burrow/pkg/trace"
	"github.com/cuemby/burrow/pkg/types"
)

// Property names recognised by the compound storage service
const (
	// PropMaxAllocationChunkSize bounds the size of one stripe
	PropMaxAllocationChunkSize = "MAX_ALLOCATION_CHUNK_SIZE"
	// PropInternalStriping enables the built-in round-robin striping policy
	PropInternalStriping = "INTERNAL_STRIPING"
)

// SelectionStrategy decides where a file's stripes go. It is a pure
// function of the file, the children and the current and previous
// allocations; returning no locations rejects the allocation.
type SelectionStrategy func(file types.File, children []*SimpleStorage, mapping, previous map[string][]types.FileLocation) []types.FileLocation

// compoundOpDone is posted by an operation coordinator when all stripes
// have completed
type compoundOpDone struct {
	kind   string // "write", "read", "delete", "copy"
	file   types.File
	src    types.Location
	ok     bool
	cause  error
	answer string
}

// chunkResult is one stripe's outcome, collected by a coordinator
type chunkResult struct {
	index int
	err   error
}

// Compound is a striping storage service: it owns no data itself but
// spreads each file across child storage services and forwards all
// file-level requests to the recorded stripes, which proceed in parallel.
type Compound struct {
	service.Service
	children []*SimpleStorage
	strategy SelectionStrategy
	maxChunk int64
	internal bool

	mapping  map[string][]types.FileLocation
	pending  map[string][]types.FileLocation
	previous map[string][]types.FileLocation

	traceLog *trace.Log
}

// NewCompound creates a compound storage service over child services. If
// strategy is nil, INTERNAL_STRIPING must be enabled.
func NewCompound(k *kernel.Kernel, name, host string, children []*SimpleStorage, strategy SelectionStrategy, props service.Properties, payloads service.Payloads) (*Compound, error) {
	if len(children) == 0 {
		return nil, &failures.InvalidArgument{Message: "compound storage needs at least one child"}
	}
	c := &Compound{
		children: children,
		strategy: strategy,
		mapping:  make(map[string][]types.FileLocation),
		pending:  make(map[string][]types.FileLocation),
		previous: make(map[string][]types.FileLocation),
		traceLog: trace.NewLog(),
	}
	c.Init(k, name, host, service.Properties{
		PropMaxAllocationChunkSize: "0",
		PropInternalStriping:       "false",
	}, props, service.Payloads{}, payloads)
	maxChunk, err := c.Properties().Bytes(PropMaxAllocationChunkSize, 0)
	if err != nil {
		return nil, err
	}
	c.maxChunk = maxChunk
	internal, err := c.Properties().Bool(PropInternalStriping, false)
	if err != nil {
		return nil, err
	}
	c.internal = internal
	if strategy == nil && !internal {
		return nil, &failures.InvalidArgument{Message: "compound storage needs a selection strategy or INTERNAL_STRIPING"}
	}
	return c, nil
}

// Start brings the compound service up
func (c *Compound) Start(autorestart, daemonize bool) error {
	return c.Service.Start(c.main, autorestart, daemonize)
}

// Trace returns the compound service's I/O trace log, retrievable after
// simulation end
func (c *Compound) Trace() *trace.Log {
	return c.traceLog
}

// Mapping returns the recorded stripe locations for a file, or nil
func (c *Compound) Mapping(fileID string) []types.FileLocation {
	return c.mapping[fileID]
}

// allocate picks stripe locations for a file via the strategy or the
// internal round-robin policy
func (c *Compound) allocate(file types.File) []types.FileLocation {
	if prev, ok := c.mapping[file.ID]; ok {
		// Re-allocation of a known file reuses its stripes
		return prev
	}
	if c.strategy != nil {
		return c.strategy(file, c.children, c.mapping, c.previous)
	}
	maxChunk := c.maxChunk
	if maxChunk <= 0 || maxChunk >= file.Size {
		child := c.children[0]
		return []types.FileLocation{{
			Service: child.Name(), Mount: child.Mounts()[0], Path: "/", File: file,
		}}
	}
	var locs []types.FileLocation
	remaining := file.Size
	part := 0
	for remaining > 0 {
		chunk := maxChunk
		if chunk > remaining {
			chunk = remaining
		}
		remaining -= chunk
		child := c.children[part%len(c.children)]
		locs = append(locs, types.FileLocation{
			Service: child.Name(),
			Mount:   child.Mounts()[0],
			Path:    "/",
			File:    types.File{ID: fmt.Sprintf("%s.part%d", file.ID, part), Size: chunk},
		})
		part++
	}
	return locs
}

// snapshot captures every child's disk state for a trace entry
func (c *Compound) snapshot(fileID string) []trace.DiskUsage {
	var out []trace.DiskUsage
	for _, child := range c.children {
		var free, capacity int64
		for _, m := range child.Mounts() {
			free += child.FreeAt(m)
			capacity += child.CapacityAt(m)
		}
		load := 0.0
		if capacity > 0 {
			load = 1 - float64(free)/float64(capacity)
		}
		out = append(out, trace.DiskUsage{
			ServiceID: child.Name(),
			FreeBytes: free,
			FileID:    fileID,
			Load:      load,
		})
	}
	return out
}

func (c *Compound) addTrace(ctx *kernel.Context, action trace.IOAction, fileID string, locs []types.FileLocation) {
	c.traceLog.Append(trace.Entry{
		TS:        ctx.Now(),
		Action:    action,
		DiskUsage: c.snapshot(fileID),
		Locations: locs,
	})
}

func (c *Compound) main(ctx *kernel.Context) int {
	for {
		msg, err := ctx.Get(c.Mailbox())
		if err != nil {
			continue
		}
		if handled, terminate := c.ProcessControl(ctx, msg); handled {
			if terminate {
				return 0
			}
			for _, m := range c.Drain() {
				c.handle(ctx, m)
			}
			continue
		}
		c.handle(ctx, msg)
	}
}

func (c *Compound) handle(ctx *kernel.Context, msg kernel.Message) {
	switch m := msg.Content.(type) {
	case FreeSpaceRequest:
		free := make(map[string]int64, len(c.children))
		for _, child := range c.children {
			var f int64
			for _, mount := range child.Mounts() {
				f += child.FreeAt(mount)
			}
			free[child.Name()] = f
		}
		ctx.PutAsync(m.Answer, kernel.Message{
			Content: FreeSpaceAnswer{Free: free},
			Size:    c.PayloadSize(PayloadFreeSpaceAnswer),
		})

	case FileLookupRequest:
		_, present := c.mapping[m.Loc.File.ID]
		ctx.PutAsync(m.Answer, kernel.Message{
			Content: FileLookupAnswer{Loc: m.Loc, Present: present},
			Size:    c.PayloadSize(PayloadFileLookupAnswer),
		})

	case FileReadRequest:
		c.handleRead(ctx, m)
	case FileWriteRequest:
		c.handleWrite(ctx, m)
	case FileDeleteRequest:
		c.handleDelete(ctx, m)
	case FileCopyRequest:
		c.handleCopy(ctx, m)
	case compoundOpDone:
		c.handleOpDone(ctx, m)
	default:
		c.Logger().Warn().Str("type", fmt.Sprintf("%T", msg.Content)).Msg("Unexpected message")
	}
}

func (c *Compound) handleRead(ctx *kernel.Context, m FileReadRequest) {
	chunks, ok := c.mapping[m.Loc.File.ID]
	if !ok {
		ctx.PutAsync(m.Answer, kernel.Message{
			Content: FileReadAnswer{Loc: m.Loc, Cause: &failures.FileNotFound{Location: m.Loc}},
			Size:    c.PayloadSize(PayloadFileReadAnswer),
		})
		return
	}
	c.addTrace(ctx, trace.ActionReadStart, m.Loc.File.ID, chunks)
	ctx.PutAsync(m.Answer, kernel.Message{
		Content: FileReadAnswer{Loc: m.Loc, OK: true},
		Size:    c.PayloadSize(PayloadFileReadAnswer),
	})
	c.spawnReadCoordinator(m, chunks)
}

// spawnReadCoordinator fans the stripes out in parallel: each stripe is a
// read against its child with the client's content mailbox as destination,
// so stripe content flows to the client directly
func (c *Compound) spawnReadCoordinator(req FileReadRequest, chunks []types.FileLocation) {
	name := fmt.Sprintf("%s-read-%s", c.Name(), uuid.NewString()[:8])
	inbox := c.Mailbox()
	k := c.Kernel()
	host := c.Hostname()
	_, err := k.Spawn(kernel.SpawnOptions{Name: name, Host: host, Daemon: true}, func(ctx *kernel.Context) int {
		results := name + "-results"
		for i, chunk := range chunks {
			i, chunk := i, chunk
			_, spawnErr := ctx.Spawn(kernel.SpawnOptions{
				Name: fmt.Sprintf("%s-chunk%d", name, i), Host: host, Daemon: true,
			}, func(sub *kernel.Context) int {
				answer := answerMailbox(sub, "stripe-read")
				err := sub.Put(chunk.Service, kernel.Message{
					Content: FileReadRequest{Loc: chunk, NumBytes: chunk.File.Size, Answer: answer, Content: req.Content},
					Size:    controlSize(),
				})
				if err == nil {
					var msg kernel.Message
					msg, err = sub.Get(answer)
					if err == nil {
						if ans, ok := msg.Content.(FileReadAnswer); ok && !ans.OK {
							err = ans.Cause
						}
					}
				}
				sub.PutAsync(results, kernel.Message{Content: chunkResult{index: i, err: err}})
				return 0
			})
			if spawnErr != nil {
				ctx.PutAsync(results, kernel.Message{Content: chunkResult{index: i, err: spawnErr}})
			}
		}
		var firstErr error
		for range chunks {
			msg, err := ctx.Get(results)
			if err != nil {
				continue
			}
			if r, ok := msg.Content.(chunkResult); ok && r.err != nil && firstErr == nil {
				firstErr = r.err
			}
		}
		if firstErr != nil {
			// Unblock the client, which is still waiting on content
			ctx.PutAsync(req.Content, kernel.Message{
				Content: FileContent{File: req.Loc.File, Err: firstErr, Last: true},
				Size:    controlSize(),
			})
		}
		ctx.PutAsync(inbox, kernel.Message{Content: compoundOpDone{
			kind: "read", file: req.Loc.File, ok: firstErr == nil, cause: firstErr,
		}})
		return 0
	})
	if err != nil {
		c.Logger().Error().Err(err).Msg("Failed to spawn read coordinator")
	}
}

func (c *Compound) handleWrite(ctx *kernel.Context, m FileWriteRequest) {
	key := m.Loc.File.ID
	chunks := c.allocate(m.Loc.File)
	if len(chunks) == 0 {
		ctx.PutAsync(m.Answer, kernel.Message{
			Content: FileWriteAnswer{Loc: m.Loc, Cause: &failures.NotEnoughStorageSpace{Service: c.Name()}},
			Size:    c.PayloadSize(PayloadFileWriteAnswer),
		})
		return
	}
	c.previous[key] = chunks
	c.pending[key] = chunks
	c.addTrace(ctx, trace.ActionWriteStart, key, chunks)
	data := fmt.Sprintf("%s-data-%s", c.Name(), uuid.NewString()[:8])
	c.spawnWriteCoordinator(data, m.Loc.File, chunks, m.Answer)
	ctx.PutAsync(m.Answer, kernel.Message{
		Content: FileWriteAnswer{Loc: m.Loc, OK: true, DataMailbox: data},
		Size:    c.PayloadSize(PayloadFileWriteAnswer),
	})
}

// spawnWriteCoordinator receives the client's content stream, then writes
// every stripe to its child in parallel; the operation succeeds only if
// every stripe write succeeds
func (c *Compound) spawnWriteCoordinator(data string, file types.File, chunks []types.FileLocation, clientAnswer string) {
	name := fmt.Sprintf("%s-write-%s", c.Name(), uuid.NewString()[:8])
	inbox := c.Mailbox()
	k := c.Kernel()
	host := c.Hostname()
	k.RegisterMailbox(data, host)
	_, err := k.Spawn(kernel.SpawnOptions{Name: name, Host: host, Daemon: true}, func(ctx *kernel.Context) int {
		done := compoundOpDone{kind: "write", file: file, answer: clientAnswer}
		var received int64
		for received < file.Size {
			msg, err := ctx.Get(data)
			if err != nil {
				done.cause = err
				ctx.PutAsync(inbox, kernel.Message{Content: done})
				return 1
			}
			fc, ok := msg.Content.(FileContent)
			if !ok {
				continue
			}
			received += fc.Chunk
			if fc.Last {
				break
			}
		}
		done.cause = c.fanOutStripes(ctx, name, chunks, func(sub *kernel.Context, chunk types.FileLocation) error {
			return Write(sub, chunk)
		})
		done.ok = done.cause == nil
		ctx.PutAsync(inbox, kernel.Message{Content: done})
		return 0
	})
	if err != nil {
		c.Logger().Error().Err(err).Msg("Failed to spawn write coordinator")
	}
}

// fanOutStripes runs op on every stripe in parallel, each on its own stripe
// actor's context, and returns the first failure, if any. It must be called
// from a coordinator actor.
func (c *Compound) fanOutStripes(ctx *kernel.Context, name string, chunks []types.FileLocation, op func(*kernel.Context, types.FileLocation) error) error {
	results := name + "-results"
	host := c.Hostname()
	for i, chunk := range chunks {
		i, chunk := i, chunk
		_, spawnErr := ctx.Spawn(kernel.SpawnOptions{
			Name: fmt.Sprintf("%s-chunk%d", name, i), Host: host, Daemon: true,
		}, func(sub *kernel.Context) int {
			sub.PutAsync(results, kernel.Message{Content: chunkResult{index: i, err: op(sub, chunk)}})
			return 0
		})
		if spawnErr != nil {
			ctx.PutAsync(results, kernel.Message{Content: chunkResult{index: i, err: spawnErr}})
		}
	}
	var firstErr error
	for range chunks {
		msg, err := ctx.Get(results)
		if err != nil {
			continue
		}
		if r, ok := msg.Content.(chunkResult); ok && r.err != nil && firstErr == nil {
			firstErr = r.err
		}
	}
	return firstErr
}

func (c *Compound) handleDelete(ctx *kernel.Context, m FileDeleteRequest) {
	key := m.Loc.File.ID
	chunks, ok := c.mapping[key]
	if !ok {
		ctx.PutAsync(m.Answer, kernel.Message{
			Content: FileDeleteAnswer{Loc: m.Loc, Cause: &failures.FileNotFound{Location: m.Loc}},
			Size:    c.PayloadSize(PayloadFileDeleteAnswer),
		})
		return
	}
	c.addTrace(ctx, trace.ActionDeleteStart, key, chunks)
	name := fmt.Sprintf("%s-delete-%s", c.Name(), uuid.NewString()[:8])
	inbox := c.Mailbox()
	file := m.Loc.File
	answer := m.Answer
	_, err := c.Kernel().Spawn(kernel.SpawnOptions{Name: name, Host: c.Hostname(), Daemon: true}, func(cc *kernel.Context) int {
		cause := c.fanOutStripes(cc, name, chunks, func(sub *kernel.Context, chunk types.FileLocation) error {
			return Delete(sub, chunk)
		})
		cc.PutAsync(inbox, kernel.Message{Content: compoundOpDone{
			kind: "delete", file: file, ok: cause == nil, cause: cause, answer: answer,
		}})
		return 0
	})
	if err != nil {
		c.Logger().Error().Err(err).Msg("Failed to spawn delete coordinator")
	}
}

func (c *Compound) handleCopy(ctx *kernel.Context, m FileCopyRequest) {
	key := m.Dst.File.ID
	chunks := c.allocate(m.Dst.File)
	if len(chunks) == 0 {
		ctx.PutAsync(m.Answer, kernel.Message{
			Content: FileCopyAnswer{Src: m.Src, Dst: m.Dst, Cause: &failures.NotEnoughStorageSpace{Service: c.Name()}},
			Size:    c.PayloadSize(PayloadFileCopyAnswer),
		})
		return
	}
	c.previous[key] = chunks
	c.pending[key] = chunks
	c.addTrace(ctx, trace.ActionCopyStart, key, chunks)
	name := fmt.Sprintf("%s-copy-%s", c.Name(), uuid.NewString()[:8])
	inbox := c.Mailbox()
	_, err := c.Kernel().Spawn(kernel.SpawnOptions{Name: name, Host: c.Hostname(), Daemon: true}, func(cc *kernel.Context) int {
		done := compoundOpDone{kind: "copy", file: m.Dst.File, src: m.Src, answer: m.Answer}
		if err := Read(cc, m.Src); err != nil {
			done.cause = err
		} else {
			done.cause = c.fanOutStripes(cc, name, chunks, func(sub *kernel.Context, chunk types.FileLocation) error {
				return Write(sub, chunk)
			})
		}
		done.ok = done.cause == nil
		cc.PutAsync(inbox, kernel.Message{Content: done})
		return 0
	})
	if err != nil {
		c.Logger().Error().Err(err).Msg("Failed to spawn copy coordinator")
	}
}

// handleOpDone commits or rolls back the stripe mapping and completes the
// client protocol for the finished operation
func (c *Compound) handleOpDone(ctx *kernel.Context, m compoundOpDone) {
	key := m.file.ID
	switch m.kind {
	case "read":
		c.addTrace(ctx, trace.ActionReadEnd, key, c.mapping[key])

	case "write":
		chunks := c.pending[key]
		delete(c.pending, key)
		if m.ok {
			c.mapping[key] = chunks
			c.addTrace(ctx, trace.ActionWriteEnd, key, chunks)
		} else {
			delete(c.mapping, key)
			c.addTrace(ctx, trace.ActionWriteEnd, key, nil)
		}
		ctx.PutAsync(m.answer, kernel.Message{
			Content: FileWriteAck{Loc: types.FileLocation{Service: c.Name(), File: m.file}, OK: m.ok, Cause: m.cause},
			Size:    c.PayloadSize(PayloadFileWriteAck),
		})

	case "delete":
		delete(c.mapping, key)
		c.addTrace(ctx, trace.ActionDeleteEnd, key, nil)
		ans := FileDeleteAnswer{Loc: types.FileLocation{Service: c.Name(), File: m.file}, OK: m.ok, Cause: m.cause}
		ctx.PutAsync(m.answer, kernel.Message{
			Content: ans,
			Size:    c.PayloadSize(PayloadFileDeleteAnswer),
		})

	case "copy":
		chunks := c.pending[key]
		delete(c.pending, key)
		if m.ok {
			c.mapping[key] = chunks
			c.addTrace(ctx, trace.ActionCopyEnd, key, chunks)
		} else {
			delete(c.mapping, key)
			c.addTrace(ctx, trace.ActionCopyEnd, key, nil)
		}
		ctx.PutAsync(m.answer, kernel.Message{
			Content: FileCopyAnswer{Src: m.src, Dst: types.FileLocation{Service: c.Name(), File: m.file}, OK: m.ok, Cause: m.cause},
			Size:    c.PayloadSize(PayloadFileCopyAnswer),
		})
	}
}
