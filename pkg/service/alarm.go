package service

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/cuemby/burrow/pkg/kernel"
)

// StartAlarm spawns a one-shot actor on a host that sleeps for delay
// virtual seconds and then posts msg on the mailbox. If the host dies
// before the delay elapses, the message is never delivered.
func StartAlarm(k *kernel.Kernel, host string, delay float64, mailbox string, msg kernel.Message) (*kernel.Actor, error) {
	name := fmt.Sprintf("alarm-%s", uuid.NewString()[:8])
	return k.Spawn(kernel.SpawnOptions{Name: name, Host: host, Daemon: true}, func(ctx *kernel.Context) int {
		if err := ctx.Sleep(delay); err != nil {
			return 1
		}
		ctx.PutAsync(mailbox, msg)
		return 0
	})
}
