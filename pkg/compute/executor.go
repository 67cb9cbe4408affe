package compute

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/cuemby/burrow/pkg/failures"
	"github.com/cuemby/burrow/pkg/kernel"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/service"
	"github.com/cuemby/burrow/pkg/storage"
	"github.com/cuemby/burrow/pkg/types"
)

// executorParams configures one work-unit executor: a transient actor that
// runs exactly one work unit on one host with a fixed (cores, ram)
// allocation
type executorParams struct {
	name     string
	host     string
	cores    int
	ram      int64
	wu       *WorkUnit
	callback string // compute service inbox
	scratch  *storage.SimpleStorage
	jobName  string

	startupOverhead float64
	simulateAsSleep bool
}

// spawnExecutor starts a work-unit executor actor. It reports exactly one
// of executorDone or executorFailed on the callback mailbox, unless it is
// killed first.
func spawnExecutor(k *kernel.Kernel, p executorParams) (*kernel.Actor, error) {
	return k.Spawn(kernel.SpawnOptions{Name: p.name, Host: p.host, Daemon: true}, func(ctx *kernel.Context) int {
		e := &executorRun{p: p}
		if err := e.run(ctx); err != nil {
			if e.p.wu.Task != nil && e.p.wu.Task.State == types.TaskStateRunning {
				e.p.wu.Task.State = types.TaskStateFailed
			}
			ctx.PutAsync(p.callback, kernel.Message{
				Content: executorFailed{
					executor:       p.name,
					wuID:           p.wu.ID,
					cause:          err,
					filesInScratch: e.scratchFiles,
				},
				Size: service.DefaultControlMessageSize(),
			})
			return 1
		}
		ctx.PutAsync(p.callback, kernel.Message{
			Content: executorDone{
				executor:       p.name,
				wuID:           p.wu.ID,
				filesInScratch: e.scratchFiles,
			},
			Size: service.DefaultControlMessageSize(),
		})
		return 0
	})
}

type executorRun struct {
	p            executorParams
	scratchFiles []types.FileLocation
}

// run executes the work unit's phases in order, stopping on the first
// failure
func (e *executorRun) run(ctx *kernel.Context) error {
	logger := log.ForComponent("workunit-executor", ctx.Kernel())
	wu := e.p.wu

	for _, pc := range wu.PreCopies {
		if err := storage.Copy(ctx, pc.Src, pc.Dst); err != nil {
			return err
		}
		e.trackScratch(pc.Dst)
	}

	if task := wu.Task; task != nil {
		if e.p.startupOverhead > 0 {
			if err := ctx.Sleep(e.p.startupOverhead * float64(e.p.cores)); err != nil {
				return err
			}
		}
		task.State = types.TaskStateRunning
		logger.Debug().Str("task", task.ID).Str("host", e.p.host).Int("cores", e.p.cores).Msg("Task started")

		for _, in := range task.Inputs {
			loc, err := e.resolve(in)
			if err != nil {
				return err
			}
			if err := storage.Read(ctx, loc); err != nil {
				return err
			}
			e.trackScratch(loc)
		}

		if e.p.simulateAsSleep {
			rate := ctx.Kernel().HostFlopRate(e.p.host)
			if rate <= 0 {
				return &failures.HostError{Host: e.p.host}
			}
			if err := ctx.Sleep(task.Flops / (float64(e.p.cores) * rate)); err != nil {
				return err
			}
		} else {
			if err := ctx.ParallelCompute(task.Flops, e.p.cores); err != nil {
				return err
			}
		}

		for _, out := range task.Outputs {
			loc, err := e.resolve(out)
			if err != nil {
				return err
			}
			if err := storage.Write(ctx, loc); err != nil {
				return err
			}
			e.trackScratch(loc)
		}
		task.State = types.TaskStateCompleted
		logger.Debug().Str("task", task.ID).Msg("Task completed")
	}

	for _, pc := range wu.PostCopies {
		if err := storage.Copy(ctx, pc.Src, pc.Dst); err != nil {
			return err
		}
	}
	for _, del := range wu.Cleanup {
		if err := storage.Delete(ctx, del.Loc); err != nil {
			return err
		}
	}
	return nil
}

// resolve finds where a task file lives: the job's file-locations mapping
// first, the job's scratch directory otherwise
func (e *executorRun) resolve(f types.File) (types.Location, error) {
	if locs := e.p.wu.Job.FileLocations[f.ID]; len(locs) > 0 {
		return locs[0], nil
	}
	if e.p.scratch != nil {
		return storage.ScratchLocation(e.p.scratch, e.p.jobName, f), nil
	}
	return nil, &failures.NoStorageServiceForFile{FileID: f.ID}
}

// trackScratch records a location if it lives on the job's scratch service
func (e *executorRun) trackScratch(loc types.Location) {
	if e.p.scratch == nil {
		return
	}
	_, target := loc.Resolve()
	if target.Service != e.p.scratch.Name() {
		return
	}
	for _, known := range e.scratchFiles {
		if known == target {
			return
		}
	}
	e.scratchFiles = append(e.scratchFiles, target)
}

// executorName produces a unique work-unit executor actor name
func executorName(wuID string) string {
	return fmt.Sprintf("wue-%s-%s", wuID, uuid.NewString()[:8])
}
