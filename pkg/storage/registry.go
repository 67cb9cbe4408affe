package storage

import (
	"sort"

	"github.com/cuemby/burrow/pkg/failures"
	"github.com/cuemby/burrow/pkg/kernel"
	"github.com/cuemby/burrow/pkg/service"
	"github.com/cuemby/burrow/pkg/types"
)

// Property names recognised by the file registry
const (
	// PropLookupComputeCost is the flop cost charged per lookup
	PropLookupComputeCost = "LOOKUP_COMPUTE_COST"
)

// Registry payload kinds
const (
	PayloadAddEntryAnswer       = "add_entry_answer"
	PayloadRemoveEntryAnswer    = "remove_entry_answer"
	PayloadRegistryLookupAnswer = "registry_lookup_answer"
)

// AddEntryRequest records a file location in the registry
type AddEntryRequest struct {
	Loc    types.FileLocation
	Answer string
}

// AddEntryAnswer acknowledges an AddEntryRequest
type AddEntryAnswer struct {
	Loc types.FileLocation
}

// RemoveEntryRequest removes a file location from the registry
type RemoveEntryRequest struct {
	Loc    types.FileLocation
	Answer string
}

// RemoveEntryAnswer acknowledges a RemoveEntryRequest; OK is false when the
// entry was unknown
type RemoveEntryAnswer struct {
	Loc types.FileLocation
	OK  bool
}

// RegistryLookupRequest asks for all known locations of a file
type RegistryLookupRequest struct {
	File   types.File
	Answer string
}

// RegistryLookupAnswer lists the known locations of a file
type RegistryLookupAnswer struct {
	File      types.File
	Locations []types.FileLocation
}

// FileRegistry is an eventually-updated index from files to their known
// locations. Storage services stay authoritative for contents; the registry
// only tracks what it has been told.
type FileRegistry struct {
	service.Service
	entries    map[string]map[types.FileLocation]struct{}
	lookupCost float64
}

// NewFileRegistry creates a file registry service
func NewFileRegistry(k *kernel.Kernel, name, host string, props service.Properties, payloads service.Payloads) (*FileRegistry, error) {
	if k.Host(host) == nil {
		return nil, &failures.InvalidArgument{Message: "unknown host " + host}
	}
	r := &FileRegistry{entries: make(map[string]map[types.FileLocation]struct{})}
	r.Init(k, name, host, service.Properties{PropLookupComputeCost: "0"}, props, service.Payloads{}, payloads)
	cost, err := r.Properties().Float(PropLookupComputeCost, 0)
	if err != nil {
		return nil, err
	}
	r.lookupCost = cost
	return r, nil
}

// Start brings the registry up
func (r *FileRegistry) Start(autorestart, daemonize bool) error {
	return r.Service.Start(r.main, autorestart, daemonize)
}

func (r *FileRegistry) main(ctx *kernel.Context) int {
	for {
		msg, err := ctx.Get(r.Mailbox())
		if err != nil {
			continue
		}
		if handled, terminate := r.ProcessControl(ctx, msg); handled {
			if terminate {
				return 0
			}
			for _, m := range r.Drain() {
				r.handle(ctx, m)
			}
			continue
		}
		r.handle(ctx, msg)
	}
}

func (r *FileRegistry) handle(ctx *kernel.Context, msg kernel.Message) {
	switch m := msg.Content.(type) {
	case AddEntryRequest:
		set, ok := r.entries[m.Loc.File.ID]
		if !ok {
			set = make(map[types.FileLocation]struct{})
			r.entries[m.Loc.File.ID] = set
		}
		set[m.Loc] = struct{}{}
		ctx.PutAsync(m.Answer, kernel.Message{
			Content: AddEntryAnswer{Loc: m.Loc},
			Size:    r.PayloadSize(PayloadAddEntryAnswer),
		})

	case RemoveEntryRequest:
		ans := RemoveEntryAnswer{Loc: m.Loc}
		if set, ok := r.entries[m.Loc.File.ID]; ok {
			if _, present := set[m.Loc]; present {
				delete(set, m.Loc)
				if len(set) == 0 {
					delete(r.entries, m.Loc.File.ID)
				}
				ans.OK = true
			}
		}
		ctx.PutAsync(m.Answer, kernel.Message{
			Content: ans,
			Size:    r.PayloadSize(PayloadRemoveEntryAnswer),
		})

	case RegistryLookupRequest:
		if r.lookupCost > 0 {
			if err := ctx.Compute(r.lookupCost); err != nil {
				r.Logger().Warn().Err(err).Msg("Lookup compute failed")
			}
		}
		var locs []types.FileLocation
		for loc := range r.entries[m.File.ID] {
			locs = append(locs, loc)
		}
		sort.Slice(locs, func(i, j int) bool { return locs[i].String() < locs[j].String() })
		ctx.PutAsync(m.Answer, kernel.Message{
			Content: RegistryLookupAnswer{File: m.File, Locations: locs},
			Size:    r.PayloadSize(PayloadRegistryLookupAnswer),
		})
	}
}

// RegistryAdd records a location in a registry service
func RegistryAdd(ctx *kernel.Context, registry string, loc types.FileLocation) error {
	answer := answerMailbox(ctx, "registry-add")
	if err := ctx.Put(registry, kernel.Message{
		Content: AddEntryRequest{Loc: loc, Answer: answer},
		Size:    controlSize(),
	}); err != nil {
		return err
	}
	_, err := ctx.Get(answer)
	return err
}

// RegistryRemove removes a location from a registry service
func RegistryRemove(ctx *kernel.Context, registry string, loc types.FileLocation) error {
	answer := answerMailbox(ctx, "registry-remove")
	if err := ctx.Put(registry, kernel.Message{
		Content: RemoveEntryRequest{Loc: loc, Answer: answer},
		Size:    controlSize(),
	}); err != nil {
		return err
	}
	_, err := ctx.Get(answer)
	return err
}

// RegistryLookup returns all known locations of a file
func RegistryLookup(ctx *kernel.Context, registry string, file types.File) ([]types.FileLocation, error) {
	answer := answerMailbox(ctx, "registry-lookup")
	if err := ctx.Put(registry, kernel.Message{
		Content: RegistryLookupRequest{File: file, Answer: answer},
		Size:    controlSize(),
	}); err != nil {
		return nil, err
	}
	msg, err := ctx.Get(answer)
	if err != nil {
		return nil, err
	}
	ans, ok := msg.Content.(RegistryLookupAnswer)
	if !ok {
		return nil, &failures.NetworkError{Mailbox: answer, Reason: failures.ReasonInvalidMailbox}
	}
	return ans.Locations, nil
}
