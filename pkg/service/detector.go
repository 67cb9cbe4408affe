package service

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/cuemby/burrow/pkg/kernel"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
)

// TerminationDetector watches a victim service and reports exactly one of
// ServiceHasCrashedMessage or ServiceHasTerminatedMessage on a mailbox. It
// is a sibling actor that joins the victim.
type TerminationDetector struct {
	victimName string
	victim     *kernel.Actor
	report     string
	onCrash    bool
	onTerm     bool
}

// StartTerminationDetector spawns a detector on the given host for the
// given victim actor. Reports go to the report mailbox, filtered by the
// notifyOnCrash / notifyOnTermination flags.
func StartTerminationDetector(k *kernel.Kernel, host, victimName string, victim *kernel.Actor, report string, notifyOnCrash, notifyOnTermination bool) (*kernel.Actor, error) {
	d := &TerminationDetector{
		victimName: victimName,
		victim:     victim,
		report:     report,
		onCrash:    notifyOnCrash,
		onTerm:     notifyOnTermination,
	}
	name := fmt.Sprintf("termination-detector-%s-%s", victimName, uuid.NewString()[:8])
	return k.Spawn(kernel.SpawnOptions{Name: name, Host: host, Daemon: true}, d.main)
}

func (d *TerminationDetector) main(ctx *kernel.Context) int {
	logger := log.ForComponent("termination-detector", ctx.Kernel())
	code, crashed := ctx.Join(d.victim)
	if crashed {
		metrics.ServiceCrashes.Inc()
		logger.Debug().Str("victim", d.victimName).Msg("Victim crashed")
		if d.onCrash {
			ctx.PutAsync(d.report, kernel.Message{
				Content: ServiceHasCrashedMessage{Service: d.victimName},
				Size:    defaultControlMessageSize,
			})
		}
		return 0
	}
	logger.Debug().Str("victim", d.victimName).Int("code", code).Msg("Victim terminated")
	if d.onTerm {
		ctx.PutAsync(d.report, kernel.Message{
			Content: ServiceHasTerminatedMessage{Service: d.victimName, ReturnCode: code},
			Size:    defaultControlMessageSize,
		})
	}
	return 0
}
