package storage

import (
	"fmt"

	"github.com/cuemby/burrow/pkg/failures"
	"github.com/cuemby/burrow/pkg/kernel"
	"github.com/cuemby/burrow/pkg/service"
	"github.com/cuemby/burrow/pkg/types"
)

type lookupPending struct {
	target  types.FileLocation
	answers []string
	stage   string // "cache" then "remote"
}

type readPending struct {
	target   types.FileLocation
	requests []FileReadRequest
}

type writePending struct {
	target       types.FileLocation
	clientAnswer string
}

type deletePending struct {
	target  types.FileLocation
	answers []string
	await   int
	anyOK   bool
}

// Proxy is a read-through cache in front of a remote storage service.
// Reads populate the cache from the remote; writes land in the cache and
// are copied back asynchronously; the durability acknowledgement reaches
// the client before the write-back starts (FIFO on the client's answer
// mailbox is the ordering mechanism).
type Proxy struct {
	service.Service
	cache         *SimpleStorage
	cacheMount    string
	defaultRemote *types.FileLocation

	lookups   map[string]*lookupPending
	reads     map[string]*readPending
	writes    map[string]*writePending
	deletes   map[string]*deletePending
	copybacks map[string]types.FileLocation
}

// NewProxy creates a storage proxy over a cache service with an optional
// default remote. A cacheless proxy is rejected at construction.
func NewProxy(k *kernel.Kernel, name, host string, cache *SimpleStorage, defaultRemote *types.FileLocation, props service.Properties, payloads service.Payloads) (*Proxy, error) {
	if cache == nil {
		return nil, &failures.InvalidArgument{Message: "storage proxy requires a cache service"}
	}
	mounts := cache.Mounts()
	p := &Proxy{
		cache:         cache,
		cacheMount:    mounts[0],
		defaultRemote: defaultRemote,
		lookups:       make(map[string]*lookupPending),
		reads:         make(map[string]*readPending),
		writes:        make(map[string]*writePending),
		deletes:       make(map[string]*deletePending),
		copybacks:     make(map[string]types.FileLocation),
	}
	p.Init(k, name, host, service.Properties{}, props, service.Payloads{}, payloads)
	return p, nil
}

// Start brings the proxy up
func (p *Proxy) Start(autorestart, daemonize bool) error {
	return p.Service.Start(p.main, autorestart, daemonize)
}

// cacheLoc maps a file onto the cache service
func (p *Proxy) cacheLoc(f types.File) types.FileLocation {
	return types.FileLocation{Service: p.cache.Name(), Mount: p.cacheMount, Path: "/", File: f}
}

// remoteLoc resolves the ultimate destination of a request: an explicit
// target service wins; otherwise the default remote applies
func (p *Proxy) remoteLoc(target types.FileLocation) (types.FileLocation, error) {
	if target.Service != "" && target.Service != p.Name() {
		return target, nil
	}
	if p.defaultRemote == nil {
		return types.FileLocation{}, &failures.NoStorageServiceForFile{FileID: target.File.ID}
	}
	return types.FileLocation{
		Service: p.defaultRemote.Service,
		Mount:   p.defaultRemote.Mount,
		Path:    p.defaultRemote.Path,
		File:    target.File,
	}, nil
}

func (p *Proxy) main(ctx *kernel.Context) int {
	for {
		msg, err := ctx.Get(p.Mailbox())
		if err != nil {
			continue
		}
		if handled, terminate := p.ProcessControl(ctx, msg); handled {
			if terminate {
				return 0
			}
			for _, m := range p.Drain() {
				p.handle(ctx, m)
			}
			continue
		}
		p.handle(ctx, msg)
	}
}

func (p *Proxy) handle(ctx *kernel.Context, msg kernel.Message) {
	switch m := msg.Content.(type) {
	case FreeSpaceRequest:
		free := make(map[string]int64)
		for _, mount := range p.cache.Mounts() {
			free[mount] = p.cache.FreeAt(mount)
		}
		ctx.PutAsync(m.Answer, kernel.Message{
			Content: FreeSpaceAnswer{Free: free},
			Size:    p.PayloadSize(PayloadFreeSpaceAnswer),
		})

	case FileLookupRequest:
		p.handleLookup(ctx, m)
	case FileLookupAnswer:
		p.handleLookupAnswer(ctx, m)
	case FileReadRequest:
		p.handleRead(ctx, m)
	case FileWriteRequest:
		p.handleWrite(ctx, m)
	case FileWriteAnswer:
		p.handleWriteAnswer(ctx, m)
	case FileWriteAck:
		p.handleWriteAck(ctx, m)
	case FileDeleteRequest:
		p.handleDelete(ctx, m)
	case FileDeleteAnswer:
		p.handleDeleteAnswer(ctx, m)
	case FileCopyRequest:
		ctx.PutAsync(m.Answer, kernel.Message{
			Content: FileCopyAnswer{Src: m.Src, Dst: m.Dst, Cause: &failures.NotAllowed{
				Message: "storage proxies do not support file copies",
			}},
			Size: p.PayloadSize(PayloadFileCopyAnswer),
		})
	case FileCopyAnswer:
		p.handleCopyAnswer(ctx, m)
	default:
		p.Logger().Warn().Str("type", fmt.Sprintf("%T", msg.Content)).Msg("Unexpected message")
	}
}

func (p *Proxy) failLookup(ctx *kernel.Context, key string, lp *lookupPending) {
	for _, a := range lp.answers {
		ctx.PutAsync(a, kernel.Message{
			Content: FileLookupAnswer{Loc: lp.target, Present: false},
			Size:    p.PayloadSize(PayloadFileLookupAnswer),
		})
	}
	delete(p.lookups, key)
}

func (p *Proxy) handleLookup(ctx *kernel.Context, m FileLookupRequest) {
	key := m.Loc.File.ID
	if lp, ok := p.lookups[key]; ok {
		lp.answers = append(lp.answers, m.Answer)
		return
	}
	target, err := p.remoteLoc(m.Loc)
	if err != nil {
		ctx.PutAsync(m.Answer, kernel.Message{
			Content: FileLookupAnswer{Loc: m.Loc, Present: false},
			Size:    p.PayloadSize(PayloadFileLookupAnswer),
		})
		return
	}
	lp := &lookupPending{target: target, answers: []string{m.Answer}, stage: "cache"}
	p.lookups[key] = lp
	if err := ctx.Put(p.cache.Mailbox(), kernel.Message{
		Content: FileLookupRequest{Loc: p.cacheLoc(m.Loc.File), Answer: p.Mailbox()},
		Size:    controlSize(),
	}); err != nil {
		p.failLookup(ctx, key, lp)
	}
}

func (p *Proxy) handleLookupAnswer(ctx *kernel.Context, m FileLookupAnswer) {
	key := m.Loc.File.ID
	lp, ok := p.lookups[key]
	if !ok {
		return
	}
	if m.Present {
		for _, a := range lp.answers {
			ctx.PutAsync(a, kernel.Message{
				Content: FileLookupAnswer{Loc: lp.target, Present: true},
				Size:    p.PayloadSize(PayloadFileLookupAnswer),
			})
		}
		delete(p.lookups, key)
		return
	}
	if lp.stage == "cache" {
		lp.stage = "remote"
		if err := ctx.Put(lp.target.Service, kernel.Message{
			Content: FileLookupRequest{Loc: lp.target, Answer: p.Mailbox()},
			Size:    controlSize(),
		}); err != nil {
			p.failLookup(ctx, key, lp)
		}
		return
	}
	p.failLookup(ctx, key, lp)
}

func (p *Proxy) handleRead(ctx *kernel.Context, m FileReadRequest) {
	key := m.Loc.File.ID
	cached := p.cacheLoc(m.Loc.File)
	if p.cache.Holds(cached) {
		fwd := m
		fwd.Loc = cached
		if err := ctx.Put(p.cache.Mailbox(), kernel.Message{
			Content: fwd,
			Size:    controlSize(),
		}); err != nil {
			ctx.PutAsync(m.Answer, kernel.Message{
				Content: FileReadAnswer{Loc: m.Loc, Cause: err},
				Size:    p.PayloadSize(PayloadFileReadAnswer),
			})
		}
		return
	}
	if rp, ok := p.reads[key]; ok {
		rp.requests = append(rp.requests, m)
		return
	}
	target, err := p.remoteLoc(m.Loc)
	if err != nil {
		ctx.PutAsync(m.Answer, kernel.Message{
			Content: FileReadAnswer{Loc: m.Loc, Cause: err},
			Size:    p.PayloadSize(PayloadFileReadAnswer),
		})
		return
	}
	rp := &readPending{target: target, requests: []FileReadRequest{m}}
	p.reads[key] = rp
	if err := ctx.Put(p.cache.Mailbox(), kernel.Message{
		Content: FileCopyRequest{Src: target, Dst: cached, Answer: p.Mailbox()},
		Size:    controlSize(),
	}); err != nil {
		p.failReads(ctx, key, rp, err)
	}
}

func (p *Proxy) failReads(ctx *kernel.Context, key string, rp *readPending, cause error) {
	for _, req := range rp.requests {
		ctx.PutAsync(req.Answer, kernel.Message{
			Content: FileReadAnswer{Loc: req.Loc, Cause: cause},
			Size:    p.PayloadSize(PayloadFileReadAnswer),
		})
	}
	delete(p.reads, key)
}

// handleCopyAnswer resolves a cache-population copy (replaying the queued
// reads against the cache) or records the outcome of a write-back copy
func (p *Proxy) handleCopyAnswer(ctx *kernel.Context, m FileCopyAnswer) {
	key := m.Dst.File.ID
	if rp, ok := p.reads[key]; ok {
		if !m.OK {
			p.failReads(ctx, key, rp, m.Cause)
			return
		}
		cached := p.cacheLoc(m.Dst.File)
		for _, req := range rp.requests {
			fwd := req
			fwd.Loc = cached
			if err := ctx.Put(p.cache.Mailbox(), kernel.Message{
				Content: fwd,
				Size:    controlSize(),
			}); err != nil {
				ctx.PutAsync(req.Answer, kernel.Message{
					Content: FileReadAnswer{Loc: req.Loc, Cause: err},
					Size:    p.PayloadSize(PayloadFileReadAnswer),
				})
			}
		}
		delete(p.reads, key)
		return
	}
	if target, ok := p.copybacks[key]; ok {
		if !m.OK {
			p.Logger().Warn().Str("file", key).Str("remote", target.Service).
				Err(m.Cause).Msg("Write-back to remote failed")
		}
		delete(p.copybacks, key)
	}
}

func (p *Proxy) handleWrite(ctx *kernel.Context, m FileWriteRequest) {
	key := m.Loc.File.ID
	target, err := p.remoteLoc(m.Loc)
	if err != nil {
		ctx.PutAsync(m.Answer, kernel.Message{
			Content: FileWriteAnswer{Loc: m.Loc, Cause: err},
			Size:    p.PayloadSize(PayloadFileWriteAnswer),
		})
		return
	}
	p.writes[key] = &writePending{target: target, clientAnswer: m.Answer}
	if err := ctx.Put(p.cache.Mailbox(), kernel.Message{
		Content: FileWriteRequest{Loc: p.cacheLoc(m.Loc.File), Answer: p.Mailbox()},
		Size:    controlSize(),
	}); err != nil {
		delete(p.writes, key)
		ctx.PutAsync(m.Answer, kernel.Message{
			Content: FileWriteAnswer{Loc: m.Loc, Cause: err},
			Size:    p.PayloadSize(PayloadFileWriteAnswer),
		})
	}
}

func (p *Proxy) handleWriteAnswer(ctx *kernel.Context, m FileWriteAnswer) {
	key := m.Loc.File.ID
	wp, ok := p.writes[key]
	if !ok {
		return
	}
	fwd := m
	fwd.Loc = wp.target
	ctx.PutAsync(wp.clientAnswer, kernel.Message{
		Content: fwd,
		Size:    p.PayloadSize(PayloadFileWriteAnswer),
	})
	if !m.OK {
		delete(p.writes, key)
	}
}

// handleWriteAck forwards durability to the client, then kicks off the
// asynchronous cache-to-remote copy. The forward happens first so the
// client sees the acknowledgement before any write-back effect.
func (p *Proxy) handleWriteAck(ctx *kernel.Context, m FileWriteAck) {
	key := m.Loc.File.ID
	wp, ok := p.writes[key]
	if !ok {
		return
	}
	fwd := m
	fwd.Loc = wp.target
	ctx.PutAsync(wp.clientAnswer, kernel.Message{
		Content: fwd,
		Size:    p.PayloadSize(PayloadFileWriteAck),
	})
	delete(p.writes, key)
	if !m.OK {
		return
	}
	p.copybacks[key] = wp.target
	if err := ctx.Put(wp.target.Service, kernel.Message{
		Content: FileCopyRequest{Src: p.cacheLoc(m.Loc.File), Dst: wp.target, Answer: p.Mailbox()},
		Size:    controlSize(),
	}); err != nil {
		p.Logger().Warn().Err(err).Str("file", key).Msg("Write-back dispatch failed")
		delete(p.copybacks, key)
	}
}

func (p *Proxy) handleDelete(ctx *kernel.Context, m FileDeleteRequest) {
	key := m.Loc.File.ID
	if dp, ok := p.deletes[key]; ok {
		dp.answers = append(dp.answers, m.Answer)
		return
	}
	target, err := p.remoteLoc(m.Loc)
	if err != nil {
		ctx.PutAsync(m.Answer, kernel.Message{
			Content: FileDeleteAnswer{Loc: m.Loc, Cause: err},
			Size:    p.PayloadSize(PayloadFileDeleteAnswer),
		})
		return
	}
	dp := &deletePending{target: target, answers: []string{m.Answer}}
	p.deletes[key] = dp
	for _, req := range []FileDeleteRequest{
		{Loc: p.cacheLoc(m.Loc.File), Answer: p.Mailbox()},
		{Loc: target, Answer: p.Mailbox()},
	} {
		if err := ctx.Put(req.Loc.Service, kernel.Message{
			Content: req,
			Size:    controlSize(),
		}); err == nil {
			dp.await++
		}
	}
	if dp.await == 0 {
		p.finishDelete(ctx, key, dp)
	}
}

func (p *Proxy) handleDeleteAnswer(ctx *kernel.Context, m FileDeleteAnswer) {
	key := m.Loc.File.ID
	dp, ok := p.deletes[key]
	if !ok {
		return
	}
	dp.await--
	if m.OK {
		dp.anyOK = true
	}
	if dp.await <= 0 {
		p.finishDelete(ctx, key, dp)
	}
}

// finishDelete answers every pending delete: success if at least one of
// cache and remote held the file
func (p *Proxy) finishDelete(ctx *kernel.Context, key string, dp *deletePending) {
	ans := FileDeleteAnswer{Loc: dp.target, OK: dp.anyOK}
	if !dp.anyOK {
		ans.Cause = &failures.FileNotFound{Location: dp.target}
	}
	for _, a := range dp.answers {
		ctx.PutAsync(a, kernel.Message{
			Content: ans,
			Size:    p.PayloadSize(PayloadFileDeleteAnswer),
		})
	}
	delete(p.deletes, key)
}
