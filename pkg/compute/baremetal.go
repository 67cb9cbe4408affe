package compute

import (
	"fmt"

	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/failures"
	"github.com/cuemby/burrow/pkg/kernel"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/service"
	"github.com/cuemby/burrow/pkg/storage"
	"github.com/cuemby/burrow/pkg/types"
)

// Property names recognised by the bare-metal compute service
const (
	// PropTerminateWhenAllResourcesDown makes the service shut down with
	// exit code 1 when every resource host is off and no executor runs
	PropTerminateWhenAllResourcesDown = "TERMINATE_WHENEVER_ALL_RESOURCES_ARE_DOWN"
	// PropThreadStartupOverhead is the per-core virtual-time cost of
	// starting a task's threads
	PropThreadStartupOverhead = "THREAD_STARTUP_OVERHEAD"
	// PropSimulateComputationAsSleep replaces parallel compute with sleep
	PropSimulateComputationAsSleep = "SIMULATE_COMPUTATION_AS_SLEEP"
	// PropResourceInfoTTL is the TTL reported by resource information
	PropResourceInfoTTL = "RESOURCE_INFORMATION_TTL"
)

// hostResources tracks one granted host's quota and current usage
type hostResources struct {
	cores     int
	ram       int64
	coresUsed int
	ramUsed   int64
	threads   int
}

// jobState is the per-job bookkeeping of an admitted standard job
type jobState struct {
	job          *types.StandardJob
	units        []*WorkUnit
	completed    int
	runSpecs     map[string]RunSpec
	scratchFiles map[types.FileLocation]struct{}
}

// execState is one live work-unit executor
type execState struct {
	name  string
	jobID string
	wu    *WorkUnit
	host  string
	cores int
	ram   int64
	actor *kernel.Actor
}

// BareMetal is a multi-host, multi-core standard-job executor. It turns
// each admitted job into a work-unit graph, dispatches ready units onto its
// granted hosts, and retries units whose executors crash with their hosts.
type BareMetal struct {
	service.Service
	resources map[string]*hostResources
	hostOrder []string
	jobs      map[string]*jobState
	ready     []*WorkUnit // FIFO among ready work units
	executors map[string]*execState
	scratch   *storage.SimpleStorage

	terminateAllDown bool
	startupOverhead  float64
	simulateAsSleep  bool
	ttl              float64
	partOfPilot      bool

	shuttingDown bool
}

// NewBareMetal creates a bare-metal compute service over the granted
// resources. A resource with zero cores or ram is granted the host's full
// capacity. scratch, when non-nil, is the service's private scratch storage.
func NewBareMetal(k *kernel.Kernel, name, host string, grants []types.ComputeResource, scratch *storage.SimpleStorage, props service.Properties, payloads service.Payloads) (*BareMetal, error) {
	if len(grants) == 0 {
		return nil, &failures.InvalidArgument{Message: "compute service needs at least one host"}
	}
	b := &BareMetal{
		resources: make(map[string]*hostResources),
		jobs:      make(map[string]*jobState),
		executors: make(map[string]*execState),
		scratch:   scratch,
	}
	b.Init(k, name, host, service.Properties{
		PropTerminateWhenAllResourcesDown: "false",
		PropThreadStartupOverhead:         "0",
		PropSimulateComputationAsSleep:    "false",
		PropResourceInfoTTL:               "3600",
	}, props, service.Payloads{}, payloads)
	for _, g := range grants {
		h := k.Host(g.Host)
		if h == nil {
			return nil, &failures.InvalidArgument{Message: fmt.Sprintf("unknown host %s", g.Host)}
		}
		if _, dup := b.resources[g.Host]; dup {
			return nil, &failures.InvalidArgument{Message: fmt.Sprintf("host %s granted twice", g.Host)}
		}
		cores := g.Cores
		if cores <= 0 {
			cores = h.Cores
		}
		ram := g.RAM
		if ram <= 0 {
			ram = h.RAM
		}
		b.resources[g.Host] = &hostResources{cores: cores, ram: ram}
		b.hostOrder = append(b.hostOrder, g.Host)
	}
	var err error
	if b.terminateAllDown, err = b.Properties().Bool(PropTerminateWhenAllResourcesDown, false); err != nil {
		return nil, err
	}
	if b.startupOverhead, err = b.Properties().Float(PropThreadStartupOverhead, 0); err != nil {
		return nil, err
	}
	if b.simulateAsSleep, err = b.Properties().Bool(PropSimulateComputationAsSleep, false); err != nil {
		return nil, err
	}
	if b.ttl, err = b.Properties().Float(PropResourceInfoTTL, 3600); err != nil {
		return nil, err
	}
	return b, nil
}

// Start brings the service up and subscribes it to its hosts' power
// transitions
func (b *BareMetal) Start(autorestart, daemonize bool) error {
	for _, h := range b.hostOrder {
		b.Kernel().WatchHost(h, b.Mailbox())
	}
	return b.Service.Start(b.main, autorestart, daemonize)
}

func (b *BareMetal) main(ctx *kernel.Context) int {
	for {
		msg, err := ctx.Get(b.Mailbox())
		if err != nil {
			continue
		}
		if _, isStop := msg.Content.(service.StopDaemonMessage); isStop {
			b.failAllJobs(ctx, &failures.ServiceIsDown{Service: b.Name()})
		}
		if handled, terminate := b.ProcessControl(ctx, msg); handled {
			if terminate {
				return 0
			}
			for _, m := range b.Drain() {
				b.handle(ctx, m)
			}
		} else {
			b.handle(ctx, msg)
		}
		b.dispatch(ctx)
		if b.shuttingDown {
			return 1
		}
	}
}

func (b *BareMetal) handle(ctx *kernel.Context, msg kernel.Message) {
	switch m := msg.Content.(type) {
	case SubmitStandardJobRequest:
		b.handleSubmit(ctx, m)
	case SubmitPilotJobRequest:
		ctx.PutAsync(m.Answer, kernel.Message{
			Content: SubmitPilotJobAnswer{PilotJobID: m.PilotJobID, Cause: &failures.JobTypeNotSupported{
				Service: b.Name(), JobType: "pilot",
			}},
			Size: b.PayloadSize(PayloadSubmitAnswer),
		})
	case TerminateStandardJobRequest:
		b.handleTerminate(ctx, m)
	case ResourceInfoRequest:
		b.handleResourceInfo(ctx, m)
	case executorDone:
		b.handleExecutorDone(ctx, m)
	case executorFailed:
		b.handleExecutorFailed(ctx, m)
	case service.ServiceHasCrashedMessage:
		b.handleExecutorCrash(ctx, m.Service)
	case kernel.HostStateChange:
		if !m.On {
			b.checkAllResourcesDown(ctx)
		}
	default:
		b.Logger().Warn().Str("type", fmt.Sprintf("%T", msg.Content)).Msg("Unexpected message")
	}
}

// isGrantedHost reports whether the service owns resources on the host
func (b *BareMetal) isGrantedHost(h string) bool {
	_, ok := b.resources[h]
	return ok
}

// handleSubmit validates and admits a standard job
func (b *BareMetal) handleSubmit(ctx *kernel.Context, m SubmitStandardJobRequest) {
	answer := func(cause error) {
		ctx.PutAsync(m.Answer, kernel.Message{
			Content: SubmitStandardJobAnswer{JobID: m.Job.ID, OK: cause == nil, Cause: cause},
			Size:    b.PayloadSize(PayloadSubmitAnswer),
		})
	}
	if _, dup := b.jobs[m.Job.ID]; dup {
		answer(&failures.NotAllowed{Message: fmt.Sprintf("job %s is already submitted", m.Job.ID)})
		return
	}
	specs := make(map[string]RunSpec, len(m.ServiceArgs))
	for taskID, raw := range m.ServiceArgs {
		task := m.Job.TaskByID(taskID)
		if task == nil {
			answer(&failures.InvalidArgument{Message: fmt.Sprintf("service arg for unknown task %s", taskID)})
			return
		}
		spec, err := ParseRunSpec(raw, b.isGrantedHost)
		if err != nil {
			answer(err)
			return
		}
		if spec.Cores > 0 && (spec.Cores < task.MinCores || spec.Cores > task.MaxCores) {
			answer(&failures.InvalidArgument{Message: fmt.Sprintf(
				"task %s: %d cores outside [%d, %d]", taskID, spec.Cores, task.MinCores, task.MaxCores)})
			return
		}
		specs[taskID] = spec
	}
	// Admissibility: every task must fit on at least one granted host
	for _, task := range m.Job.Tasks {
		if !b.admissible(task, specs[task.ID]) {
			answer(&failures.NotEnoughResources{Service: b.Name(), TaskID: task.ID})
			return
		}
	}
	js := &jobState{
		job:          m.Job,
		units:        BuildWorkUnits(m.Job),
		runSpecs:     specs,
		scratchFiles: make(map[types.FileLocation]struct{}),
	}
	b.jobs[m.Job.ID] = js
	m.Job.State = types.JobStateRunning
	for _, wu := range js.units {
		if wu.Task != nil {
			if wu.NumPendingParents == 0 {
				wu.Task.State = types.TaskStateReady
			} else {
				wu.Task.State = types.TaskStateNotReady
			}
		}
		if wu.NumPendingParents == 0 {
			b.ready = append(b.ready, wu)
		}
	}
	metrics.JobsSubmitted.Inc()
	b.Logger().Info().Str("job", m.Job.Name).Int("workunits", len(js.units)).Msg("Job admitted")
	answer(nil)
}

// admissible reports whether some granted host can ever satisfy the task's
// requirements under its placement spec
func (b *BareMetal) admissible(task *types.Task, spec RunSpec) bool {
	needCores := task.MinCores
	if spec.Cores > 0 {
		needCores = spec.Cores
	}
	for _, h := range b.hostOrder {
		if spec.Host != "" && spec.Host != h {
			continue
		}
		r := b.resources[h]
		if r.cores >= needCores && r.ram >= task.RAM {
			return true
		}
	}
	return false
}

func (b *BareMetal) handleTerminate(ctx *kernel.Context, m TerminateStandardJobRequest) {
	js, ok := b.jobs[m.JobID]
	if !ok {
		ctx.PutAsync(m.Answer, kernel.Message{
			Content: TerminateStandardJobAnswer{JobID: m.JobID, Cause: &failures.NotAllowed{
				Message: fmt.Sprintf("job %s is not running on service %s", m.JobID, b.Name()),
			}},
			Size: b.PayloadSize(PayloadTerminateAnswer),
		})
		return
	}
	b.killJobExecutors(js)
	b.removeReadyUnits(m.JobID)
	for _, task := range js.job.Tasks {
		if task.State == types.TaskStateRunning || task.State == types.TaskStateFailed {
			task.State = types.TaskStateReady
		}
	}
	b.cleanScratch(ctx, js)
	js.job.State = types.JobStateTerminated
	delete(b.jobs, m.JobID)
	b.Logger().Info().Str("job", js.job.Name).Msg("Job terminated")
	ctx.PutAsync(m.Answer, kernel.Message{
		Content: TerminateStandardJobAnswer{JobID: m.JobID, OK: true},
		Size:    b.PayloadSize(PayloadTerminateAnswer),
	})
}

func (b *BareMetal) handleResourceInfo(ctx *kernel.Context, m ResourceInfoRequest) {
	info := ResourceInformation{
		NumHosts: len(b.hostOrder),
		Hosts:    make(map[string]HostInfo, len(b.hostOrder)),
		TTL:      b.ttl,
	}
	for _, h := range b.hostOrder {
		r := b.resources[h]
		info.Hosts[h] = HostInfo{
			Cores:        r.cores,
			IdleCores:    r.cores - r.coresUsed,
			FlopRate:     b.Kernel().HostFlopRate(h),
			RAMCapacity:  r.ram,
			RAMAvailable: r.ram - r.ramUsed,
		}
	}
	ctx.PutAsync(m.Answer, kernel.Message{
		Content: ResourceInfoAnswer{Info: info},
		Size:    b.PayloadSize(PayloadResourceInfoAnswer),
	})
}

// release returns an executor's allocation to its host
func (b *BareMetal) release(es *execState) {
	r := b.resources[es.host]
	r.coresUsed -= es.cores
	r.ramUsed -= es.ram
	r.threads--
}

func (b *BareMetal) handleExecutorDone(ctx *kernel.Context, m executorDone) {
	es, ok := b.executors[m.executor]
	if !ok {
		return
	}
	delete(b.executors, m.executor)
	b.release(es)
	js, ok := b.jobs[es.jobID]
	if !ok {
		return
	}
	for _, loc := range m.filesInScratch {
		js.scratchFiles[loc] = struct{}{}
	}
	js.completed++
	for _, child := range es.wu.Children {
		child.NumPendingParents--
		if child.NumPendingParents == 0 {
			if child.Task != nil {
				child.Task.State = types.TaskStateReady
			}
			b.ready = append(b.ready, child)
		}
	}
	if js.completed == len(js.units) {
		b.cleanScratch(ctx, js)
		js.job.State = types.JobStateCompleted
		delete(b.jobs, es.jobID)
		metrics.JobsCompleted.Inc()
		b.Logger().Info().Str("job", js.job.Name).Msg("Job completed")
		ctx.PutAsync(js.job.Callback, kernel.Message{
			Content: events.StandardJobDone{
				JobID:          js.job.ID,
				ComputeService: b.Name(),
			},
			Size: b.PayloadSize(PayloadStandardJobDone),
		})
	}
}

func (b *BareMetal) handleExecutorFailed(ctx *kernel.Context, m executorFailed) {
	es, ok := b.executors[m.executor]
	if !ok {
		return
	}
	delete(b.executors, m.executor)
	b.release(es)
	js, ok := b.jobs[es.jobID]
	if !ok {
		return
	}
	for _, loc := range m.filesInScratch {
		js.scratchFiles[loc] = struct{}{}
	}
	b.Logger().Warn().Str("job", js.job.Name).Err(m.cause).Msg("Work unit failed, failing job")
	b.failJob(ctx, js, m.cause)
}

// handleExecutorCrash treats a detector-reported crash as "retry the same
// work unit": the task restarts from scratch and the unit goes to the back
// of the ready queue
func (b *BareMetal) handleExecutorCrash(ctx *kernel.Context, executor string) {
	es, ok := b.executors[executor]
	if !ok {
		return
	}
	delete(b.executors, executor)
	b.release(es)
	if es.wu.Task != nil {
		es.wu.Task.State = types.TaskStateReady
	}
	b.ready = append(b.ready, es.wu)
	metrics.WorkUnitsRetried.Inc()
	b.Logger().Info().Str("workunit", es.wu.ID).Str("host", es.host).Msg("Executor crashed, work unit requeued")
	b.checkAllResourcesDown(ctx)
}

// failJob kills the job's executors, resets its tasks for a possible
// resubmission, cleans scratch and notifies the controller
func (b *BareMetal) failJob(ctx *kernel.Context, js *jobState, cause error) {
	b.killJobExecutors(js)
	b.removeReadyUnits(js.job.ID)
	for _, task := range js.job.Tasks {
		if task.State != types.TaskStateCompleted {
			task.State = types.TaskStateReady
		}
	}
	b.cleanScratch(ctx, js)
	js.job.State = types.JobStateFailed
	delete(b.jobs, js.job.ID)
	metrics.JobsFailed.Inc()
	ctx.PutAsync(js.job.Callback, kernel.Message{
		Content: events.StandardJobFailed{
			JobID:          js.job.ID,
			ComputeService: b.Name(),
			Cause:          cause,
		},
		Size: b.PayloadSize(PayloadStandardJobFailed),
	})
}

// failAllJobs fails every admitted job with the given cause
func (b *BareMetal) failAllJobs(ctx *kernel.Context, cause error) {
	for _, js := range b.jobs {
		b.failJob(ctx, js, cause)
	}
}

func (b *BareMetal) killJobExecutors(js *jobState) {
	for name, es := range b.executors {
		if es.jobID != js.job.ID {
			continue
		}
		delete(b.executors, name)
		b.release(es)
		if !es.actor.Terminated() {
			b.Kernel().Kill(es.actor)
		}
		if es.wu.Task != nil && es.wu.Task.State == types.TaskStateRunning {
			es.wu.Task.State = types.TaskStateFailed
		}
	}
}

func (b *BareMetal) removeReadyUnits(jobID string) {
	var still []*WorkUnit
	for _, wu := range b.ready {
		if wu.Job.ID != jobID {
			still = append(still, wu)
		}
	}
	b.ready = still
}

// cleanScratch deletes every file the job staged in scratch, unless the
// scratch belongs to an enclosing pilot job
func (b *BareMetal) cleanScratch(ctx *kernel.Context, js *jobState) {
	if b.scratch == nil || b.partOfPilot {
		return
	}
	for loc := range js.scratchFiles {
		if err := storage.Delete(ctx, loc); err != nil {
			b.Logger().Debug().Err(err).Str("file", loc.File.ID).Msg("Scratch cleanup failed")
		}
	}
	js.scratchFiles = make(map[types.FileLocation]struct{})
}

// checkAllResourcesDown enforces the TERMINATE_WHENEVER_ALL_RESOURCES_ARE_
// DOWN policy
func (b *BareMetal) checkAllResourcesDown(ctx *kernel.Context) {
	if !b.terminateAllDown || b.shuttingDown || len(b.executors) > 0 {
		return
	}
	for _, h := range b.hostOrder {
		if b.Kernel().IsHostOn(h) {
			return
		}
	}
	b.Logger().Warn().Msg("All resources are down, shutting down")
	b.failAllJobs(ctx, &failures.HostError{Host: b.hostOrder[0]})
	b.shuttingDown = true
}

// dispatch scans the ready queue in order and places every work unit that
// fits, spawning an executor with a termination detector per placement
func (b *BareMetal) dispatch(ctx *kernel.Context) {
	if b.shuttingDown {
		return
	}
	timer := metrics.NewTimer()
	skip := make(map[string]bool)
	var still []*WorkUnit
	for _, wu := range b.ready {
		js, ok := b.jobs[wu.Job.ID]
		if !ok {
			continue
		}
		var spec RunSpec
		if wu.Task != nil {
			spec = js.runSpecs[wu.Task.ID]
		}
		host, cores, ram, placed := b.pickAllocation(wu.Task, spec, skip)
		if !placed {
			still = append(still, wu)
			continue
		}
		if err := b.startExecutor(wu, host, cores, ram); err != nil {
			b.Logger().Error().Err(err).Str("host", host).Msg("Failed to start executor")
			still = append(still, wu)
		}
	}
	b.ready = still
	timer.ObserveDuration(metrics.SchedulingLatency)
}

// pickAllocation selects a host for a work unit. Candidates are granted
// hosts that are on, have a positive flop rate, enough idle cores and
// enough free ram, and match the placement spec. If cores suffice somewhere
// but ram nowhere, the host with the most free ram is excluded from the
// rest of this dispatch pass so small units are not starved behind one
// giant unit. Among candidates the one minimising
// ((threads + used_cores) / cores) / flop_rate wins; ties break in grant
// order.
func (b *BareMetal) pickAllocation(task *types.Task, spec RunSpec, skip map[string]bool) (string, int, int64, bool) {
	minCores, maxCores, reqRAM := 1, 1, int64(0)
	if task != nil {
		minCores, maxCores, reqRAM = task.MinCores, task.MaxCores, task.RAM
	}
	reqCores := minCores
	if spec.Cores > 0 {
		reqCores = spec.Cores
	}
	k := b.Kernel()
	var coreOK []string
	for _, h := range b.hostOrder {
		if skip[h] || !k.IsHostOn(h) || k.HostFlopRate(h) <= 0 {
			continue
		}
		if spec.Host != "" && spec.Host != h {
			continue
		}
		if r := b.resources[h]; r.cores-r.coresUsed >= reqCores {
			coreOK = append(coreOK, h)
		}
	}
	if len(coreOK) == 0 {
		return "", 0, 0, false
	}
	var candidates []string
	for _, h := range coreOK {
		if r := b.resources[h]; r.ram-r.ramUsed >= reqRAM {
			candidates = append(candidates, h)
		}
	}
	if len(candidates) == 0 {
		worst := coreOK[0]
		for _, h := range coreOK[1:] {
			if rw, rh := b.resources[worst], b.resources[h]; rh.ram-rh.ramUsed > rw.ram-rw.ramUsed {
				worst = h
			}
		}
		skip[worst] = true
		return "", 0, 0, false
	}
	best := ""
	bestLoad := 0.0
	bestCores := 0
	for _, h := range candidates {
		r := b.resources[h]
		used := reqCores
		if spec.Cores == 0 {
			used = r.cores
			if maxCores < used {
				used = maxCores
			}
			if avail := r.cores - r.coresUsed; used > avail {
				used = avail
			}
		}
		load := (float64(r.threads+used) / float64(r.cores)) / k.HostFlopRate(h)
		if best == "" || load < bestLoad {
			best, bestLoad, bestCores = h, load, used
		}
	}
	return best, bestCores, reqRAM, true
}

// startExecutor spawns a work-unit executor and its termination detector
// and charges the allocation to the host
func (b *BareMetal) startExecutor(wu *WorkUnit, host string, cores int, ram int64) error {
	name := executorName(wu.ID)
	actor, err := spawnExecutor(b.Kernel(), executorParams{
		name:            name,
		host:            host,
		cores:           cores,
		ram:             ram,
		wu:              wu,
		callback:        b.Mailbox(),
		scratch:         b.scratch,
		jobName:         wu.Job.Name,
		startupOverhead: b.startupOverhead,
		simulateAsSleep: b.simulateAsSleep,
	})
	if err != nil {
		return err
	}
	if _, err := service.StartTerminationDetector(b.Kernel(), b.Hostname(), name, actor, b.Mailbox(), true, false); err != nil {
		return err
	}
	r := b.resources[host]
	r.coresUsed += cores
	r.ramUsed += ram
	r.threads++
	b.executors[name] = &execState{
		name:  name,
		jobID: wu.Job.ID,
		wu:    wu,
		host:  host,
		cores: cores,
		ram:   ram,
		actor: actor,
	}
	metrics.WorkUnitsDispatched.Inc()
	b.Logger().Debug().Str("workunit", wu.ID).Str("host", host).Int("cores", cores).Msg("Work unit dispatched")
	return nil
}
