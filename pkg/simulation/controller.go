package simulation

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/cuemby/burrow/pkg/compute"
	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/failures"
	"github.com/cuemby/burrow/pkg/kernel"
	"github.com/cuemby/burrow/pkg/service"
	"github.com/cuemby/burrow/pkg/storage"
	"github.com/cuemby/burrow/pkg/trace"
	"github.com/cuemby/burrow/pkg/types"
)

// Controller is the user-facing execution context: it submits jobs, moves
// files and waits for events on its private callback mailbox
type Controller struct {
	ctx     *kernel.Context
	sim     *Simulation
	mailbox string
}

// Ctx exposes the underlying kernel context
func (c *Controller) Ctx() *kernel.Context { return c.ctx }

// Mailbox returns the controller's callback mailbox name
func (c *Controller) Mailbox() string { return c.mailbox }

// SubmitStandardJob submits a job to a compute service and blocks until it
// is admitted or rejected. The job's callback defaults to the controller's
// mailbox.
func (c *Controller) SubmitStandardJob(cs *compute.BareMetal, job *types.StandardJob, serviceArgs map[string]string) error {
	if !cs.IsUp() {
		return &failures.ServiceIsDown{Service: cs.Name()}
	}
	if job.Callback == "" {
		job.Callback = c.mailbox
	}
	answer := fmt.Sprintf("submit-%s-%s", job.ID, uuid.NewString()[:8])
	if err := c.ctx.Put(cs.Mailbox(), kernel.Message{
		Content: compute.SubmitStandardJobRequest{Job: job, ServiceArgs: serviceArgs, Answer: answer},
		Size:    service.DefaultControlMessageSize(),
	}); err != nil {
		return err
	}
	msg, err := c.ctx.Get(answer)
	if err != nil {
		return err
	}
	ans, ok := msg.Content.(compute.SubmitStandardJobAnswer)
	if !ok {
		return &failures.NetworkError{Mailbox: answer, Reason: failures.ReasonInvalidMailbox}
	}
	if !ans.OK {
		return ans.Cause
	}
	return nil
}

// TerminateStandardJob cancels a job on a compute service
func (c *Controller) TerminateStandardJob(cs *compute.BareMetal, jobID string) error {
	answer := fmt.Sprintf("terminate-%s-%s", jobID, uuid.NewString()[:8])
	if err := c.ctx.Put(cs.Mailbox(), kernel.Message{
		Content: compute.TerminateStandardJobRequest{JobID: jobID, Answer: answer},
		Size:    service.DefaultControlMessageSize(),
	}); err != nil {
		return err
	}
	msg, err := c.ctx.Get(answer)
	if err != nil {
		return err
	}
	ans, ok := msg.Content.(compute.TerminateStandardJobAnswer)
	if !ok {
		return &failures.NetworkError{Mailbox: answer, Reason: failures.ReasonInvalidMailbox}
	}
	if !ans.OK {
		return ans.Cause
	}
	return nil
}

// GetResourceInformation queries a compute service's topology
func (c *Controller) GetResourceInformation(cs *compute.BareMetal) (compute.ResourceInformation, error) {
	answer := fmt.Sprintf("resinfo-%s", uuid.NewString()[:8])
	if err := c.ctx.Put(cs.Mailbox(), kernel.Message{
		Content: compute.ResourceInfoRequest{Answer: answer},
		Size:    service.DefaultControlMessageSize(),
	}); err != nil {
		return compute.ResourceInformation{}, err
	}
	msg, err := c.ctx.Get(answer)
	if err != nil {
		return compute.ResourceInformation{}, err
	}
	ans, ok := msg.Content.(compute.ResourceInfoAnswer)
	if !ok {
		return compute.ResourceInformation{}, &failures.NetworkError{Mailbox: answer, Reason: failures.ReasonInvalidMailbox}
	}
	return ans.Info, nil
}

// CopyFileAsync starts a detached copy; the outcome arrives on the
// controller's mailbox as FileCopyCompleted or FileCopyFailed
func (c *Controller) CopyFileAsync(src, dst types.Location) {
	name := fmt.Sprintf("file-copier-%s", uuid.NewString()[:8])
	host := c.ctx.Host().Name
	callback := c.mailbox
	_, err := c.ctx.Spawn(kernel.SpawnOptions{Name: name, Host: host, Daemon: true}, func(ctx *kernel.Context) int {
		if err := storage.Copy(ctx, src, dst); err != nil {
			ctx.PutAsync(callback, kernel.Message{Content: events.FileCopyFailed{Src: src, Dst: dst, Cause: err}})
			return 1
		}
		ctx.PutAsync(callback, kernel.Message{Content: events.FileCopyCompleted{Src: src, Dst: dst}})
		return 0
	})
	if err != nil {
		c.ctx.PutAsync(callback, kernel.Message{Content: events.FileCopyFailed{Src: src, Dst: dst, Cause: err}})
	}
}

// WaitForNextEvent blocks until the next event arrives on the controller's
// mailbox
func (c *Controller) WaitForNextEvent() (events.Event, error) {
	return c.wait(-1)
}

// WaitForNextEventWithTimeout blocks for at most timeout virtual seconds
func (c *Controller) WaitForNextEventWithTimeout(timeout float64) (events.Event, error) {
	return c.wait(timeout)
}

func (c *Controller) wait(timeout float64) (events.Event, error) {
	var msg kernel.Message
	var err error
	if timeout < 0 {
		msg, err = c.ctx.Get(c.mailbox)
	} else {
		msg, err = c.ctx.GetWithTimeout(c.mailbox, timeout)
	}
	if err != nil {
		return events.Event{}, err
	}
	ev := events.Event{TS: c.ctx.Now(), Content: translate(msg.Content)}
	c.sim.recordEvent(ev.TS, ev.Content)
	return ev, nil
}

// translate lifts raw service messages into controller event types
func translate(content any) any {
	switch m := content.(type) {
	case service.ServiceHasCrashedMessage:
		return events.ServiceHasCrashed{Service: m.Service}
	case service.ServiceHasTerminatedMessage:
		return events.ServiceHasTerminated{Service: m.Service, ReturnCode: m.ReturnCode}
	case service.AlarmFiredMessage:
		return events.AlarmFired{Payload: m.Payload}
	default:
		return content
	}
}

// toRecord flattens an event for the archive
func toRecord(ts float64, content any) trace.EventRecord {
	rec := trace.EventRecord{TS: ts, Kind: fmt.Sprintf("%T", content)}
	switch m := content.(type) {
	case events.StandardJobDone:
		rec.Kind = "StandardJobDone"
		rec.Job = m.JobID
		rec.Service = m.ComputeService
	case events.StandardJobFailed:
		rec.Kind = "StandardJobFailed"
		rec.Job = m.JobID
		rec.Service = m.ComputeService
		if m.Cause != nil {
			rec.Detail = m.Cause.Error()
		}
	case events.FileCopyCompleted:
		rec.Kind = "FileCopyCompleted"
		rec.Detail = fmt.Sprintf("%s -> %s", m.Src, m.Dst)
	case events.FileCopyFailed:
		rec.Kind = "FileCopyFailed"
		rec.Detail = fmt.Sprintf("%s -> %s: %v", m.Src, m.Dst, m.Cause)
	case events.ServiceHasCrashed:
		rec.Kind = "ServiceHasCrashed"
		rec.Service = m.Service
	case events.ServiceHasTerminated:
		rec.Kind = "ServiceHasTerminated"
		rec.Service = m.Service
		rec.Detail = fmt.Sprintf("return code %d", m.ReturnCode)
	case events.AlarmFired:
		rec.Kind = "AlarmFired"
		rec.Detail = fmt.Sprintf("%v", m.Payload)
	case events.PilotJobExpired:
		rec.Kind = "PilotJobExpired"
		rec.Job = m.PilotJobID
		rec.Service = m.ComputeService
	}
	return rec
}
