package service

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cuemby/burrow/pkg/failures"
	"github.com/cuemby/burrow/pkg/kernel"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/types"
)

// Main is a concrete service's message loop. It receives the service's
// execution context and returns the service's exit code.
type Main func(ctx *kernel.Context) int

// Service is the daemon base embedded by every concrete service: a name, a
// host, an inbox mailbox, a property and a payload map, and the lifecycle
// state machine
//
//	DOWN --Start--> UP --Suspend--> SUSPENDED --Resume--> UP
//	 ^               |                                       |
//	 |               +--Stop (graceful, with ack)--> DOWN <--+
//	 |               +--Kill (no ack)-------------->  DOWN
//	 +-- host-down while UP --> DOWN (and if autorestart, eventual UP)
type Service struct {
	name     string
	host     string
	k        *kernel.Kernel
	props    Properties
	payloads Payloads
	state    types.ServiceState
	actor    *kernel.Actor
	deferred []kernel.Message
	logger   zerolog.Logger
}

// Init initializes the embedded base. Defaults are overlaid with the given
// overrides; concrete constructors validate the merged maps before use.
func (s *Service) Init(k *kernel.Kernel, name, host string, propDefaults Properties, props Properties, payloadDefaults Payloads, payloads Payloads) {
	s.k = k
	s.name = name
	s.host = host
	s.props = mergedProperties(propDefaults, props)
	s.payloads = mergedPayloads(payloadDefaults, payloads)
	s.state = types.ServiceStateDown
	s.logger = log.ForService(name, k)
}

// Name returns the service name
func (s *Service) Name() string { return s.name }

// Hostname returns the host the service runs on
func (s *Service) Hostname() string { return s.host }

// Mailbox returns the name of the service's inbox mailbox
func (s *Service) Mailbox() string { return s.name }

// Kernel returns the kernel the service runs on
func (s *Service) Kernel() *kernel.Kernel { return s.k }

// State returns the service's lifecycle state
func (s *Service) State() types.ServiceState { return s.state }

// IsUp reports whether the service is in UP state
func (s *Service) IsUp() bool { return s.state == types.ServiceStateUp }

// Actor returns the service's actor, or nil before the first Start
func (s *Service) Actor() *kernel.Actor { return s.actor }

// Properties returns the merged property map
func (s *Service) Properties() Properties { return s.props }

// Payloads returns the merged payload map
func (s *Service) Payloads() Payloads { return s.payloads }

// PayloadSize returns the transmission size for a message kind
func (s *Service) PayloadSize(kind string) int64 { return s.payloads.Size(kind) }

// Logger returns the service's component logger
func (s *Service) Logger() *zerolog.Logger { return &s.logger }

// Start transitions DOWN -> UP and spawns the service actor. Fails with
// HostError if the service's host is currently off, and with NotAllowed if
// the service is not DOWN.
func (s *Service) Start(main Main, autorestart, daemonize bool) error {
	if s.state != types.ServiceStateDown {
		return &failures.NotAllowed{Message: fmt.Sprintf("service %s is already started", s.name)}
	}
	if !s.k.IsHostOn(s.host) {
		return &failures.HostError{Host: s.host}
	}
	s.k.RegisterMailbox(s.name, s.host)
	actor, err := s.k.Spawn(kernel.SpawnOptions{
		Name:        s.name,
		Host:        s.host,
		AutoRestart: autorestart,
		Daemon:      daemonize,
		Cleanup: func(hasReturned bool, code int) {
			s.state = types.ServiceStateDown
			s.k.CloseMailbox(s.name)
			if !hasReturned {
				s.logger.Debug().Msg("Service died")
			}
		},
	}, func(ctx *kernel.Context) int {
		s.state = types.ServiceStateUp
		s.actor = ctx.Self()
		s.k.RegisterMailbox(s.name, s.host)
		return main(ctx)
	})
	if err != nil {
		return err
	}
	s.actor = actor
	s.state = types.ServiceStateUp
	s.logger.Info().Str("host", s.host).Msg("Service started")
	return nil
}

// Stop performs a graceful shutdown: it sends a stop message and blocks
// until the service acknowledges or the send fails. Stopping a DOWN service
// is a safe no-op.
func (s *Service) Stop(ctx *kernel.Context) error {
	if s.state == types.ServiceStateDown {
		return nil
	}
	ack := fmt.Sprintf("%s-stop-ack-%s", s.name, uuid.NewString()[:8])
	if err := ctx.Put(s.name, kernel.Message{
		Content: StopDaemonMessage{Ack: ack},
		Size:    s.payloads.Size("stop_daemon"),
	}); err != nil {
		return err
	}
	_, err := ctx.Get(ack)
	return err
}

// Kill terminates the service without draining its inbox. No further
// messages are delivered; cleanup hooks still run.
func (s *Service) Kill() {
	if s.actor == nil || s.actor.Terminated() {
		s.state = types.ServiceStateDown
		return
	}
	s.k.Kill(s.actor)
	s.state = types.ServiceStateDown
}

// Suspend asks the service to pause processing. Cooperative: the main loop
// honors it at its next control-message check.
func (s *Service) Suspend(ctx *kernel.Context) error {
	if s.state != types.ServiceStateUp {
		return &failures.NotAllowed{Message: fmt.Sprintf("service %s is not up", s.name)}
	}
	return ctx.Put(s.name, kernel.Message{
		Content: SuspendDaemonMessage{},
		Size:    s.payloads.Size("suspend_daemon"),
	})
}

// Resume asks a suspended service to continue
func (s *Service) Resume(ctx *kernel.Context) error {
	if s.state != types.ServiceStateSuspended {
		return &failures.NotAllowed{Message: fmt.Sprintf("service %s is not suspended", s.name)}
	}
	return ctx.Put(s.name, kernel.Message{
		Content: ResumeDaemonMessage{},
		Size:    s.payloads.Size("resume_daemon"),
	})
}

// ProcessControl handles the lifecycle control messages shared by all
// services. It returns handled=true if the message was a control message
// and terminate=true if the main loop must return. While suspended,
// non-control messages are deferred and replayed after resume via Drain.
func (s *Service) ProcessControl(ctx *kernel.Context, msg kernel.Message) (handled, terminate bool) {
	switch m := msg.Content.(type) {
	case StopDaemonMessage:
		ctx.PutAsync(m.Ack, kernel.Message{
			Content: DaemonStoppedMessage{Service: s.name},
			Size:    s.payloads.Size("daemon_stopped"),
		})
		s.logger.Info().Msg("Service stopping")
		return true, true
	case SuspendDaemonMessage:
		s.state = types.ServiceStateSuspended
		s.logger.Info().Msg("Service suspended")
		for {
			inner, err := ctx.Get(s.name)
			if err != nil {
				continue
			}
			switch im := inner.Content.(type) {
			case ResumeDaemonMessage:
				s.state = types.ServiceStateUp
				s.logger.Info().Msg("Service resumed")
				return true, false
			case StopDaemonMessage:
				ctx.PutAsync(im.Ack, kernel.Message{
					Content: DaemonStoppedMessage{Service: s.name},
					Size:    s.payloads.Size("daemon_stopped"),
				})
				return true, true
			default:
				s.deferred = append(s.deferred, inner)
			}
		}
	case ResumeDaemonMessage:
		// Not suspended; ignore
		return true, false
	}
	return false, false
}

// Drain returns the messages deferred during a suspension, oldest first,
// and clears the queue
func (s *Service) Drain() []kernel.Message {
	d := s.deferred
	s.deferred = nil
	return d
}
