package storage

import (
	"github.com/cuemby/burrow/pkg/types"
)

// FreeSpaceRequest asks a storage service for its free bytes per mount
type FreeSpaceRequest struct {
	Answer string
}

// FreeSpaceAnswer reports free bytes per mount point
type FreeSpaceAnswer struct {
	Free map[string]int64
}

// FileLookupRequest asks whether a storage service holds a file
type FileLookupRequest struct {
	Loc    types.FileLocation
	Answer string
}

// FileLookupAnswer reports file presence
type FileLookupAnswer struct {
	Loc     types.FileLocation
	Present bool
}

// FileDeleteRequest asks a storage service to remove a file
type FileDeleteRequest struct {
	Loc    types.FileLocation
	Answer string
}

// FileDeleteAnswer reports the outcome of a deletion
type FileDeleteAnswer struct {
	Loc   types.FileLocation
	OK    bool
	Cause error
}

// FileWriteRequest asks a storage service to accept a file. The service
// answers with a data mailbox on which the requester streams the content,
// then acknowledges durability with a FileWriteAck on the same answer
// mailbox.
type FileWriteRequest struct {
	Loc    types.FileLocation
	Answer string
}

// FileWriteAnswer reports whether the write was admitted and where to
// stream the content. BufferSize tells the requester how to chunk: 0 means
// one bulk message.
type FileWriteAnswer struct {
	Loc         types.FileLocation
	OK          bool
	DataMailbox string
	BufferSize  int64
	Cause       error
}

// FileWriteAck marks durability of a previously admitted write
type FileWriteAck struct {
	Loc   types.FileLocation
	OK    bool
	Cause error
}

// FileReadRequest asks a storage service to send NumBytes of a file to the
// Content mailbox. The service first answers on Answer, then streams one or
// more FileContent messages.
type FileReadRequest struct {
	Loc      types.FileLocation
	NumBytes int64
	Answer   string
	Content  string
}

// FileReadAnswer reports whether the read was admitted
type FileReadAnswer struct {
	Loc   types.FileLocation
	OK    bool
	Cause error
}

// FileContent carries one chunk of file data. Chunk is the simulated chunk
// size in bytes; Err aborts the stream (striped reads can fail after the
// read was admitted).
type FileContent struct {
	File  types.File
	Chunk int64
	Last  bool
	Err   error
}

// FileCopyRequest asks the destination storage service to fetch a file from
// Src and store it at Dst
type FileCopyRequest struct {
	Src    types.Location
	Dst    types.FileLocation
	Answer string
}

// FileCopyAnswer reports the outcome of a copy
type FileCopyAnswer struct {
	Src   types.Location
	Dst   types.FileLocation
	OK    bool
	Cause error
}

// transferNotification is posted by a transfer thread to its owning
// service's inbox when the transfer ends
type transferNotification struct {
	kind   string // "write", "read", "copy"
	loc    types.FileLocation
	src    types.Location // for copies
	ok     bool
	cause  error
	answer string  // client answer mailbox to ack on
	start  float64 // transfer start timestamp
}
