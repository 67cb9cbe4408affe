package storage

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/cuemby/burrow/pkg/kernel"
	"github.com/cuemby/burrow/pkg/types"
)

// Direction of a transfer thread
type Direction string

const (
	Sending   Direction = "sending"
	Receiving Direction = "receiving"
)

// receiveParams configures a receiving transfer thread: it accepts chunk
// messages on the data mailbox until the whole file has arrived, writing
// each chunk to the local disk, then notifies the owning service.
type receiveParams struct {
	service string // owning service inbox
	data    string // data mailbox the requester streams to
	loc     types.FileLocation
	kind    string // "write"
	answer  string // client answer mailbox, passed through the notification
}

// spawnReceiveThread starts a receiving transfer thread on the service's
// host
func spawnReceiveThread(k *kernel.Kernel, host string, p receiveParams) (*kernel.Actor, error) {
	name := fmt.Sprintf("transfer-recv-%s", uuid.NewString()[:8])
	k.RegisterMailbox(p.data, host)
	return k.Spawn(kernel.SpawnOptions{Name: name, Host: host, Daemon: true}, func(ctx *kernel.Context) int {
		start := ctx.Now()
		n := transferNotification{kind: p.kind, loc: p.loc, answer: p.answer, start: start}
		var received int64
		for received < p.loc.File.Size {
			msg, err := ctx.Get(p.data)
			if err != nil {
				n.cause = err
				ctx.PutAsync(p.service, kernel.Message{Content: n})
				return 1
			}
			c, ok := msg.Content.(FileContent)
			if !ok {
				continue
			}
			if err := ctx.DiskWrite(p.loc.Mount, c.Chunk); err != nil {
				n.cause = err
				ctx.PutAsync(p.service, kernel.Message{Content: n})
				return 1
			}
			received += c.Chunk
			if c.Last {
				break
			}
		}
		n.ok = true
		ctx.PutAsync(p.service, kernel.Message{Content: n})
		return 0
	})
}

// sendParams configures a sending transfer thread: it reads the file from
// the local disk chunk by chunk and streams it to the content mailbox.
type sendParams struct {
	service    string
	content    string
	loc        types.FileLocation
	numBytes   int64
	bufferSize int64
}

// spawnSendThread starts a sending transfer thread on the service's host
func spawnSendThread(k *kernel.Kernel, host string, p sendParams) (*kernel.Actor, error) {
	name := fmt.Sprintf("transfer-send-%s", uuid.NewString()[:8])
	return k.Spawn(kernel.SpawnOptions{Name: name, Host: host, Daemon: true}, func(ctx *kernel.Context) int {
		start := ctx.Now()
		n := transferNotification{kind: "read", loc: p.loc, start: start}
		remaining := p.numBytes
		for remaining > 0 {
			chunk := p.bufferSize
			if chunk <= 0 || chunk > remaining {
				chunk = remaining
			}
			remaining -= chunk
			if err := ctx.DiskRead(p.loc.Mount, chunk); err != nil {
				n.cause = err
				ctx.PutAsync(p.service, kernel.Message{Content: n})
				return 1
			}
			if err := ctx.Put(p.content, kernel.Message{
				Content: FileContent{File: p.loc.File, Chunk: chunk, Last: remaining == 0},
				Size:    chunk,
			}); err != nil {
				n.cause = err
				ctx.PutAsync(p.service, kernel.Message{Content: n})
				return 1
			}
		}
		n.ok = true
		ctx.PutAsync(p.service, kernel.Message{Content: n})
		return 0
	})
}

// copyParams configures a copy transaction: the destination service fetches
// the file from the source location and writes it locally as one stream.
// It fails atomically; the destination commits only on the notification.
type copyParams struct {
	service string
	src     types.Location
	dst     types.FileLocation
	answer  string
}

// spawnCopyThread starts a copy transaction on the destination service's
// host
func spawnCopyThread(k *kernel.Kernel, host string, p copyParams) (*kernel.Actor, error) {
	name := fmt.Sprintf("transfer-copy-%s", uuid.NewString()[:8])
	return k.Spawn(kernel.SpawnOptions{Name: name, Host: host, Daemon: true}, func(ctx *kernel.Context) int {
		start := ctx.Now()
		n := transferNotification{kind: "copy", loc: p.dst, src: p.src, answer: p.answer, start: start}
		if err := Read(ctx, p.src); err != nil {
			n.cause = err
			ctx.PutAsync(p.service, kernel.Message{Content: n})
			return 1
		}
		if err := ctx.DiskWrite(p.dst.Mount, p.dst.File.Size); err != nil {
			n.cause = err
			ctx.PutAsync(p.service, kernel.Message{Content: n})
			return 1
		}
		n.ok = true
		ctx.PutAsync(p.service, kernel.Message{Content: n})
		return 0
	})
}
