package fabric

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/cuemby/burrow/pkg/kernel"
	"github.com/cuemby/burrow/pkg/log"
)

// Resource selects what a switcher flips
type Resource string

const (
	ResourceHost Resource = "host"
	ResourceLink Resource = "link"
)

// StartSwitcher spawns an actor on host that turns the target resource off
// at offTime and back on at onTime (virtual seconds from now)
func StartSwitcher(k *kernel.Kernel, host string, offTime, onTime float64, kind Resource, target string) (*kernel.Actor, error) {
	if onTime < offTime {
		offTime, onTime = onTime, offTime
	}
	name := fmt.Sprintf("switcher-%s-%s", target, uuid.NewString()[:8])
	logger := log.ForComponent("switcher", k)
	return k.Spawn(kernel.SpawnOptions{Name: name, Host: host, Daemon: true}, func(ctx *kernel.Context) int {
		if err := ctx.Sleep(offTime); err != nil {
			return 1
		}
		if err := turn(k, kind, target, false); err != nil {
			logger.Warn().Err(err).Str("target", target).Msg("Switch off failed")
			return 1
		}
		if err := ctx.Sleep(onTime - offTime); err != nil {
			return 1
		}
		if err := turn(k, kind, target, true); err != nil {
			logger.Warn().Err(err).Str("target", target).Msg("Switch on failed")
			return 1
		}
		return 0
	})
}

// StartRandomRepeatSwitcher spawns an actor that repeatedly keeps the
// target up for a uniform random duration in [minOn, maxOn], turns it off
// for a uniform random duration in [minOff, maxOff], and turns it back on,
// for the given number of repeats. Randomness comes from the kernel's
// seeded source.
func StartRandomRepeatSwitcher(k *kernel.Kernel, host string, minOn, maxOn, minOff, maxOff float64, kind Resource, target string, repeats int) (*kernel.Actor, error) {
	if repeats < 1 {
		repeats = 1
	}
	name := fmt.Sprintf("random-switcher-%s-%s", target, uuid.NewString()[:8])
	logger := log.ForComponent("switcher", k)
	return k.Spawn(kernel.SpawnOptions{Name: name, Host: host, Daemon: true}, func(ctx *kernel.Context) int {
		for i := 0; i < repeats; i++ {
			up := minOn + ctx.Rand().Float64()*(maxOn-minOn)
			down := minOff + ctx.Rand().Float64()*(maxOff-minOff)
			if err := ctx.Sleep(up); err != nil {
				return 1
			}
			if err := turn(k, kind, target, false); err != nil {
				logger.Warn().Err(err).Str("target", target).Msg("Switch off failed")
				return 1
			}
			if err := ctx.Sleep(down); err != nil {
				return 1
			}
			if err := turn(k, kind, target, true); err != nil {
				logger.Warn().Err(err).Str("target", target).Msg("Switch on failed")
				return 1
			}
		}
		return 0
	})
}

func turn(k *kernel.Kernel, kind Resource, target string, on bool) error {
	switch kind {
	case ResourceLink:
		if on {
			return k.TurnOnLink(target)
		}
		return k.TurnOffLink(target)
	default:
		if on {
			return k.TurnOnHost(target)
		}
		return k.TurnOffHost(target)
	}
}
