/*
Package service provides the daemon base every Burrow service embeds: the
lifecycle state machine, the property and payload configuration maps, the
graceful-stop protocol, the termination detector and the one-shot alarm.

# Lifecycle

	DOWN ──Start──► UP ──Suspend──► SUSPENDED ──Resume──► UP
	 ▲               │                                       │
	 │               ├──Stop (graceful, with ack)──► DOWN ◄──┘
	 │               └──Kill (no ack)──────────────► DOWN
	 └── host-down while UP ──► DOWN  (autorestart: eventual UP)

Start spawns the service's actor and registers its inbox mailbox. Stop is
the graceful path: the caller blocks until the service acknowledges, so it
can safely destroy state afterwards. Kill closes the inbox so blocked
senders fail with a network error instead of hanging. Suspension is
cooperative; requests received while suspended are deferred and replayed
after resume.

# Configuration

Every service carries two maps, merged over per-service defaults at
construction and validated before the main loop starts:

  - Properties: semantic knobs as strings (sizes, booleans, policies),
    e.g. BUFFER_SIZE or TERMINATE_WHENEVER_ALL_RESOURCES_ARE_DOWN
  - Payloads: per-message-kind transmission sizes in bytes, driving only
    the simulated network cost; the default-control-message-size runtime
    flag supplies the fallback for omitted kinds

# Termination Detector

A detector is a sibling actor that joins a victim and emits exactly one of
ServiceHasCrashedMessage or ServiceHasTerminatedMessage on a report
mailbox. Compute services use it to distinguish executor crashes (retry)
from clean completions; controllers use it to avoid blocking forever on a
dead collaborator.

# Writing a Service

	type pingService struct {
		service.Service
	}

	func (s *pingService) main(ctx *kernel.Context) int {
		for {
			msg, err := ctx.Get(s.Mailbox())
			if err != nil {
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
*/
package service
