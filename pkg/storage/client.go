package storage

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/cuemby/burrow/pkg/failures"
	"github.com/cuemby/burrow/pkg/kernel"
	"github.com/cuemby/burrow/pkg/service"
	"github.com/cuemby/burrow/pkg/types"
)

// Client-side storage operations. Each helper runs on the calling actor,
// creates a private answer mailbox, and blocks until the operation
// completes or fails. Proxy locations are resolved so the request reaches
// the proxy while carrying the ultimate target.

func answerMailbox(ctx *kernel.Context, op string) string {
	return fmt.Sprintf("%s-%s-%s", op, ctx.Self().Name(), uuid.NewString()[:8])
}

func controlSize() int64 { return service.DefaultControlMessageSize() }

// Lookup asks whether the file at loc is present
func Lookup(ctx *kernel.Context, loc types.Location) (bool, error) {
	dest, target := loc.Resolve()
	answer := answerMailbox(ctx, "lookup")
	if err := ctx.Put(dest, kernel.Message{
		Content: FileLookupRequest{Loc: target, Answer: answer},
		Size:    controlSize(),
	}); err != nil {
		return false, err
	}
	msg, err := ctx.Get(answer)
	if err != nil {
		return false, err
	}
	ans, ok := msg.Content.(FileLookupAnswer)
	if !ok {
		return false, &failures.NetworkError{Mailbox: answer, Reason: failures.ReasonInvalidMailbox}
	}
	return ans.Present, nil
}

// Read fetches the whole file at loc, spending the simulated disk and
// network time. The content itself is discarded; only timing matters.
func Read(ctx *kernel.Context, loc types.Location) error {
	_, target := loc.Resolve()
	return ReadBytes(ctx, loc, target.File.Size)
}

// ReadBytes fetches numBytes of the file at loc
func ReadBytes(ctx *kernel.Context, loc types.Location, numBytes int64) error {
	dest, target := loc.Resolve()
	answer := answerMailbox(ctx, "read")
	content := answerMailbox(ctx, "content")
	if err := ctx.Put(dest, kernel.Message{
		Content: FileReadRequest{Loc: target, NumBytes: numBytes, Answer: answer, Content: content},
		Size:    controlSize(),
	}); err != nil {
		return err
	}
	msg, err := ctx.Get(answer)
	if err != nil {
		return err
	}
	ans, ok := msg.Content.(FileReadAnswer)
	if !ok {
		return &failures.NetworkError{Mailbox: answer, Reason: failures.ReasonInvalidMailbox}
	}
	if !ans.OK {
		return ans.Cause
	}
	var received int64
	for received < numBytes {
		m, err := ctx.Get(content)
		if err != nil {
			return err
		}
		c, ok := m.Content.(FileContent)
		if !ok {
			return &failures.NetworkError{Mailbox: content, Reason: failures.ReasonInvalidMailbox}
		}
		if c.Err != nil {
			return c.Err
		}
		received += c.Chunk
		if c.Last {
			break
		}
	}
	return nil
}

// Write stores the file at loc, streaming its simulated content to the
// service's data mailbox and waiting for the durability acknowledgement
func Write(ctx *kernel.Context, loc types.Location) error {
	dest, target := loc.Resolve()
	answer := answerMailbox(ctx, "write")
	if err := ctx.Put(dest, kernel.Message{
		Content: FileWriteRequest{Loc: target, Answer: answer},
		Size:    controlSize(),
	}); err != nil {
		return err
	}
	msg, err := ctx.Get(answer)
	if err != nil {
		return err
	}
	ans, ok := msg.Content.(FileWriteAnswer)
	if !ok {
		return &failures.NetworkError{Mailbox: answer, Reason: failures.ReasonInvalidMailbox}
	}
	if !ans.OK {
		return ans.Cause
	}
	if err := streamContent(ctx, ans.DataMailbox, target.File, ans.BufferSize); err != nil {
		return err
	}
	ackMsg, err := ctx.Get(answer)
	if err != nil {
		return err
	}
	ack, ok := ackMsg.Content.(FileWriteAck)
	if !ok {
		return &failures.NetworkError{Mailbox: answer, Reason: failures.ReasonInvalidMailbox}
	}
	if !ack.OK {
		return ack.Cause
	}
	return nil
}

// streamContent sends the file's bytes as chunk messages of bufferSize
// bytes; 0 means a single bulk message
func streamContent(ctx *kernel.Context, data string, file types.File, bufferSize int64) error {
	remaining := file.Size
	if bufferSize <= 0 || bufferSize >= file.Size {
		return ctx.Put(data, kernel.Message{
			Content: FileContent{File: file, Chunk: file.Size, Last: true},
			Size:    file.Size,
		})
	}
	for remaining > 0 {
		chunk := bufferSize
		if chunk > remaining {
			chunk = remaining
		}
		remaining -= chunk
		if err := ctx.Put(data, kernel.Message{
			Content: FileContent{File: file, Chunk: chunk, Last: remaining == 0},
			Size:    chunk,
		}); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes the file at loc
func Delete(ctx *kernel.Context, loc types.Location) error {
	dest, target := loc.Resolve()
	answer := answerMailbox(ctx, "delete")
	if err := ctx.Put(dest, kernel.Message{
		Content: FileDeleteRequest{Loc: target, Answer: answer},
		Size:    controlSize(),
	}); err != nil {
		return err
	}
	msg, err := ctx.Get(answer)
	if err != nil {
		return err
	}
	ans, ok := msg.Content.(FileDeleteAnswer)
	if !ok {
		return &failures.NetworkError{Mailbox: answer, Reason: failures.ReasonInvalidMailbox}
	}
	if !ans.OK {
		return ans.Cause
	}
	return nil
}

// Copy asks the destination service to fetch the file from src and store it
// at dst
func Copy(ctx *kernel.Context, src types.Location, dst types.Location) error {
	dest, target := dst.Resolve()
	answer := answerMailbox(ctx, "copy")
	if err := ctx.Put(dest, kernel.Message{
		Content: FileCopyRequest{Src: src, Dst: target, Answer: answer},
		Size:    controlSize(),
	}); err != nil {
		return err
	}
	msg, err := ctx.Get(answer)
	if err != nil {
		return err
	}
	ans, ok := msg.Content.(FileCopyAnswer)
	if !ok {
		return &failures.NetworkError{Mailbox: answer, Reason: failures.ReasonInvalidMailbox}
	}
	if !ans.OK {
		return ans.Cause
	}
	return nil
}

// FreeSpace queries a storage service's free bytes per mount point
func FreeSpace(ctx *kernel.Context, svc string) (map[string]int64, error) {
	answer := answerMailbox(ctx, "freespace")
	if err := ctx.Put(svc, kernel.Message{
		Content: FreeSpaceRequest{Answer: answer},
		Size:    controlSize(),
	}); err != nil {
		return nil, err
	}
	msg, err := ctx.Get(answer)
	if err != nil {
		return nil, err
	}
	ans, ok := msg.Content.(FreeSpaceAnswer)
	if !ok {
		return nil, &failures.NetworkError{Mailbox: answer, Reason: failures.ReasonInvalidMailbox}
	}
	return ans.Free, nil
}
