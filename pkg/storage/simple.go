package storage

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/cuemby/burrow/pkg/failures"
	"github.com/cuemby/burrow/pkg/kernel"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/service"
	"github.com/cuemby/burrow/pkg/types"
)

// Property names recognised by the simple storage service
const (
	// PropBufferSize controls chunking: "0" is fluid mode (one bulk
	// transfer), a positive integer is the chunk size in bytes, and
	// "infinity" means receive fully before forwarding
	PropBufferSize = "BUFFER_SIZE"
)

// Payload kinds used in the storage protocol
const (
	PayloadFreeSpaceAnswer  = "free_space_answer"
	PayloadFileLookupAnswer = "file_lookup_answer"
	PayloadFileDeleteAnswer = "file_delete_answer"
	PayloadFileWriteAnswer  = "file_write_answer"
	PayloadFileWriteAck     = "file_write_ack"
	PayloadFileReadAnswer   = "file_read_answer"
	PayloadFileCopyAnswer   = "file_copy_answer"
)

// mountState is the bookkeeping for one mount point. occupied includes
// space reserved for in-flight writes, so capacity is never oversubscribed.
type mountState struct {
	capacity int64
	occupied int64
	files    map[string]types.File // keyed by path/fileID
}

func fileKey(loc types.FileLocation) string {
	return loc.Path + "/" + loc.File.ID
}

// SimpleStorage is a storage service backed by one or more local disks.
// All mutation happens in the message handler, so bookkeeping is never
// observed half-way.
type SimpleStorage struct {
	service.Service
	mounts     map[string]*mountState
	bufferSize int64

	// live transfer threads and their data mailboxes, torn down on Kill
	threads   []*kernel.Actor
	dataBoxes []string
}

// NewSimpleStorage creates a simple storage service over the given mount
// points, which must correspond to disks attached to the host
func NewSimpleStorage(k *kernel.Kernel, name, host string, mountPoints []string, props service.Properties, payloads service.Payloads) (*SimpleStorage, error) {
	h := k.Host(host)
	if h == nil {
		return nil, &failures.InvalidArgument{Message: fmt.Sprintf("unknown host %s", host)}
	}
	if len(mountPoints) == 0 {
		return nil, &failures.InvalidArgument{Message: "storage service needs at least one mount point"}
	}
	s := &SimpleStorage{mounts: make(map[string]*mountState)}
	s.Init(k, name, host, service.Properties{PropBufferSize: "0"}, props, service.Payloads{}, payloads)
	for _, m := range mountPoints {
		d := h.DiskAt(m)
		if d == nil {
			return nil, &failures.InvalidArgument{Message: fmt.Sprintf("host %s has no disk at %s", host, m)}
		}
		s.mounts[m] = &mountState{capacity: d.Capacity, files: make(map[string]types.File)}
	}
	bufSize, err := s.Properties().Bytes(PropBufferSize, 0)
	if err != nil {
		return nil, err
	}
	s.bufferSize = bufSize
	return s, nil
}

// Start brings the service up
func (s *SimpleStorage) Start(autorestart, daemonize bool) error {
	return s.Service.Start(s.main, autorestart, daemonize)
}

// FreeAt returns the free bytes on a mount point (zero-time introspection)
func (s *SimpleStorage) FreeAt(mount string) int64 {
	ms := s.mounts[mount]
	if ms == nil {
		return 0
	}
	return ms.capacity - ms.occupied
}

// Holds reports whether the service currently stores the file at loc
// (zero-time introspection; the message protocol is authoritative)
func (s *SimpleStorage) Holds(loc types.FileLocation) bool {
	ms := s.mounts[loc.Mount]
	if ms == nil {
		return false
	}
	_, ok := ms.files[fileKey(loc)]
	return ok
}

func (s *SimpleStorage) main(ctx *kernel.Context) int {
	for {
		msg, err := ctx.Get(s.Mailbox())
		if err != nil {
			// A sender died mid-request; nothing to answer
			continue
		}
		if handled, terminate := s.ProcessControl(ctx, msg); handled {
			if terminate {
				return 0
			}
			for _, m := range s.Drain() {
				s.handle(ctx, m)
			}
			continue
		}
		s.handle(ctx, msg)
	}
}

func (s *SimpleStorage) handle(ctx *kernel.Context, msg kernel.Message) {
	switch m := msg.Content.(type) {
	case FreeSpaceRequest:
		free := make(map[string]int64, len(s.mounts))
		for mount, ms := range s.mounts {
			free[mount] = ms.capacity - ms.occupied
		}
		ctx.PutAsync(m.Answer, kernel.Message{
			Content: FreeSpaceAnswer{Free: free},
			Size:    s.PayloadSize(PayloadFreeSpaceAnswer),
		})

	case FileLookupRequest:
		ctx.PutAsync(m.Answer, kernel.Message{
			Content: FileLookupAnswer{Loc: m.Loc, Present: s.Holds(m.Loc)},
			Size:    s.PayloadSize(PayloadFileLookupAnswer),
		})

	case FileDeleteRequest:
		s.handleDelete(ctx, m)

	case FileWriteRequest:
		s.handleWrite(ctx, m)

	case FileReadRequest:
		s.handleRead(ctx, m)

	case FileCopyRequest:
		s.handleCopy(ctx, m)

	case transferNotification:
		s.handleNotification(ctx, m)

	default:
		s.Logger().Warn().Str("type", fmt.Sprintf("%T", msg.Content)).Msg("Unexpected message")
	}
}

func (s *SimpleStorage) handleDelete(ctx *kernel.Context, m FileDeleteRequest) {
	ans := FileDeleteAnswer{Loc: m.Loc}
	ms := s.mounts[m.Loc.Mount]
	if ms == nil {
		ans.Cause = &failures.FileNotFound{Location: m.Loc}
	} else if _, ok := ms.files[fileKey(m.Loc)]; !ok {
		ans.Cause = &failures.FileNotFound{Location: m.Loc}
	} else {
		delete(ms.files, fileKey(m.Loc))
		ms.occupied -= m.Loc.File.Size
		ans.OK = true
	}
	ctx.PutAsync(m.Answer, kernel.Message{
		Content: ans,
		Size:    s.PayloadSize(PayloadFileDeleteAnswer),
	})
}

func (s *SimpleStorage) handleWrite(ctx *kernel.Context, m FileWriteRequest) {
	ms := s.mounts[m.Loc.Mount]
	if ms == nil {
		ctx.PutAsync(m.Answer, kernel.Message{
			Content: FileWriteAnswer{Loc: m.Loc, Cause: &failures.InvalidArgument{
				Message: fmt.Sprintf("service %s has no mount point %s", s.Name(), m.Loc.Mount),
			}},
			Size: s.PayloadSize(PayloadFileWriteAnswer),
		})
		return
	}
	_, overwrite := ms.files[fileKey(m.Loc)]
	if !overwrite {
		if ms.capacity-ms.occupied < m.Loc.File.Size {
			ctx.PutAsync(m.Answer, kernel.Message{
				Content: FileWriteAnswer{Loc: m.Loc, Cause: &failures.NotEnoughStorageSpace{
					Service: s.Name(), Mount: m.Loc.Mount,
				}},
				Size: s.PayloadSize(PayloadFileWriteAnswer),
			})
			return
		}
		// Reserve now so a concurrent write cannot oversubscribe the disk
		ms.occupied += m.Loc.File.Size
	}
	data := fmt.Sprintf("%s-data-%s", s.Name(), uuid.NewString()[:8])
	thread, err := spawnReceiveThread(s.Kernel(), s.Hostname(), receiveParams{
		service: s.Mailbox(),
		data:    data,
		loc:     m.Loc,
		kind:    "write",
		answer:  m.Answer,
	})
	if err != nil {
		if !overwrite {
			ms.occupied -= m.Loc.File.Size
		}
		ctx.PutAsync(m.Answer, kernel.Message{
			Content: FileWriteAnswer{Loc: m.Loc, Cause: err},
			Size:    s.PayloadSize(PayloadFileWriteAnswer),
		})
		return
	}
	s.threads = append(s.threads, thread)
	s.dataBoxes = append(s.dataBoxes, data)
	ctx.PutAsync(m.Answer, kernel.Message{
		Content: FileWriteAnswer{Loc: m.Loc, OK: true, DataMailbox: data, BufferSize: s.bufferSize},
		Size:    s.PayloadSize(PayloadFileWriteAnswer),
	})
}

func (s *SimpleStorage) handleRead(ctx *kernel.Context, m FileReadRequest) {
	ms := s.mounts[m.Loc.Mount]
	if ms == nil || !s.Holds(m.Loc) {
		ctx.PutAsync(m.Answer, kernel.Message{
			Content: FileReadAnswer{Loc: m.Loc, Cause: &failures.FileNotFound{Location: m.Loc}},
			Size:    s.PayloadSize(PayloadFileReadAnswer),
		})
		return
	}
	numBytes := m.NumBytes
	if numBytes <= 0 || numBytes > m.Loc.File.Size {
		numBytes = m.Loc.File.Size
	}
	ctx.PutAsync(m.Answer, kernel.Message{
		Content: FileReadAnswer{Loc: m.Loc, OK: true},
		Size:    s.PayloadSize(PayloadFileReadAnswer),
	})
	thread, err := spawnSendThread(s.Kernel(), s.Hostname(), sendParams{
		service:    s.Mailbox(),
		content:    m.Content,
		loc:        m.Loc,
		numBytes:   numBytes,
		bufferSize: s.bufferSize,
	})
	if err != nil {
		s.Logger().Error().Err(err).Msg("Failed to spawn send thread")
		return
	}
	s.threads = append(s.threads, thread)
}

func (s *SimpleStorage) handleCopy(ctx *kernel.Context, m FileCopyRequest) {
	ms := s.mounts[m.Dst.Mount]
	if ms == nil {
		ctx.PutAsync(m.Answer, kernel.Message{
			Content: FileCopyAnswer{Src: m.Src, Dst: m.Dst, Cause: &failures.InvalidArgument{
				Message: fmt.Sprintf("service %s has no mount point %s", s.Name(), m.Dst.Mount),
			}},
			Size: s.PayloadSize(PayloadFileCopyAnswer),
		})
		return
	}
	_, overwrite := ms.files[fileKey(m.Dst)]
	if !overwrite {
		if ms.capacity-ms.occupied < m.Dst.File.Size {
			ctx.PutAsync(m.Answer, kernel.Message{
				Content: FileCopyAnswer{Src: m.Src, Dst: m.Dst, Cause: &failures.NotEnoughStorageSpace{
					Service: s.Name(), Mount: m.Dst.Mount,
				}},
				Size: s.PayloadSize(PayloadFileCopyAnswer),
			})
			return
		}
		ms.occupied += m.Dst.File.Size
	}
	thread, err := spawnCopyThread(s.Kernel(), s.Hostname(), copyParams{
		service: s.Mailbox(),
		src:     m.Src,
		dst:     m.Dst,
		answer:  m.Answer,
	})
	if err != nil {
		if !overwrite {
			ms.occupied -= m.Dst.File.Size
		}
		ctx.PutAsync(m.Answer, kernel.Message{
			Content: FileCopyAnswer{Src: m.Src, Dst: m.Dst, Cause: err},
			Size:    s.PayloadSize(PayloadFileCopyAnswer),
		})
		return
	}
	s.threads = append(s.threads, thread)
}

// handleNotification commits or rolls back a transfer when its thread
// reports completion
func (s *SimpleStorage) handleNotification(ctx *kernel.Context, n transferNotification) {
	s.pruneThreads()
	ms := s.mounts[n.loc.Mount]
	switch n.kind {
	case "write":
		if n.ok {
			ms.files[fileKey(n.loc)] = n.loc.File
			metrics.BytesWritten.WithLabelValues(s.Name()).Add(float64(n.loc.File.Size))
			ctx.PutAsync(n.answer, kernel.Message{
				Content: FileWriteAck{Loc: n.loc, OK: true},
				Size:    s.PayloadSize(PayloadFileWriteAck),
			})
			return
		}
		if _, present := ms.files[fileKey(n.loc)]; !present {
			ms.occupied -= n.loc.File.Size
		}
		ctx.PutAsync(n.answer, kernel.Message{
			Content: FileWriteAck{Loc: n.loc, Cause: n.cause},
			Size:    s.PayloadSize(PayloadFileWriteAck),
		})

	case "read":
		if n.ok {
			metrics.BytesRead.WithLabelValues(s.Name()).Add(float64(n.loc.File.Size))
		}

	case "copy":
		ans := FileCopyAnswer{Src: n.src, Dst: n.loc}
		if n.ok {
			ms.files[fileKey(n.loc)] = n.loc.File
			metrics.BytesWritten.WithLabelValues(s.Name()).Add(float64(n.loc.File.Size))
			metrics.FileCopies.WithLabelValues("success").Inc()
			ans.OK = true
		} else {
			if _, present := ms.files[fileKey(n.loc)]; !present {
				ms.occupied -= n.loc.File.Size
			}
			metrics.FileCopies.WithLabelValues("failure").Inc()
			ans.Cause = n.cause
		}
		ctx.PutAsync(n.answer, kernel.Message{
			Content: ans,
			Size:    s.PayloadSize(PayloadFileCopyAnswer),
		})
	}
}

// Mounts returns the service's mount points in sorted order
func (s *SimpleStorage) Mounts() []string {
	out := make([]string, 0, len(s.mounts))
	for m := range s.mounts {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// CapacityAt returns the capacity of a mount point in bytes
func (s *SimpleStorage) CapacityAt(mount string) int64 {
	ms := s.mounts[mount]
	if ms == nil {
		return 0
	}
	return ms.capacity
}

// pruneThreads drops bookkeeping for transfer threads that have ended
func (s *SimpleStorage) pruneThreads() {
	live := s.threads[:0]
	for _, t := range s.threads {
		if !t.Terminated() {
			live = append(live, t)
		}
	}
	s.threads = live
}

// Kill terminates the service and its transfer threads without draining
// the inbox. Callers blocked on the inbox or on a data mailbox complete
// with a network error.
func (s *SimpleStorage) Kill() {
	for _, t := range s.threads {
		if !t.Terminated() {
			s.Kernel().Kill(t)
		}
	}
	s.threads = nil
	for _, box := range s.dataBoxes {
		s.Kernel().CloseMailbox(box)
	}
	s.dataBoxes = nil
	s.Service.Kill()
	s.Kernel().CloseMailbox(s.Mailbox())
}

// Stage inserts a file into the service's bookkeeping without spending
// simulated time. Setup-time only: simulations use it to pre-place input
// files before launch.
func (s *SimpleStorage) Stage(loc types.FileLocation) error {
	ms := s.mounts[loc.Mount]
	if ms == nil {
		return &failures.InvalidArgument{Message: fmt.Sprintf("service %s has no mount point %s", s.Name(), loc.Mount)}
	}
	if _, ok := ms.files[fileKey(loc)]; ok {
		return nil
	}
	if ms.capacity-ms.occupied < loc.File.Size {
		return &failures.NotEnoughStorageSpace{Service: s.Name(), Mount: loc.Mount}
	}
	ms.occupied += loc.File.Size
	ms.files[fileKey(loc)] = loc.File
	return nil
}
