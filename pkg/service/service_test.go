package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/burrow/pkg/failures"
	"github.com/cuemby/burrow/pkg/kernel"
	"github.com/cuemby/burrow/pkg/types"
)

func testKernel(t *testing.T) *kernel.Kernel {
	t.Helper()
	k := kernel.New(kernel.Config{Seed: 1, HostShutdownSimulation: true})
	k.AddHost("HostA", 4, 1000, 16e9)
	k.AddHost("HostB", 2, 1000, 8e9)
	k.AddLink("link1", 1e6, 0.001)
	require.NoError(t, k.AddRoute("HostA", "HostB", []string{"link1"}))
	return k
}

// echoService is a minimal service answering "ping" messages
type echoService struct {
	Service
	pings int
}

type pingMessage struct {
	Answer string
}

type pongMessage struct{}

func newEchoService(k *kernel.Kernel, name, host string, props Properties) *echoService {
	s := &echoService{}
	s.Init(k, name, host, Properties{"MODE": "default"}, props, Payloads{}, nil)
	return s
}

func (s *echoService) Start(autorestart, daemonize bool) error {
	return s.Service.Start(s.main, autorestart, daemonize)
}

func (s *echoService) main(ctx *kernel.Context) int {
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

func (s *echoService) handle(ctx *kernel.Context, msg kernel.Message) {
	if m, ok := msg.Content.(pingMessage); ok {
		s.pings++
		ctx.PutAsync(m.Answer, kernel.Message{Content: pongMessage{}, Size: 100})
	}
}

func TestServiceLifecycleStartStop(t *testing.T) {
	k := testKernel(t)
	svc := newEchoService(k, "echo", "HostB", nil)
	assert.Equal(t, types.ServiceStateDown, svc.State())

	require.NoError(t, svc.Start(false, true))
	assert.True(t, svc.IsUp())

	var stopErr error
	_, err := k.Spawn(kernel.SpawnOptions{Name: "client", Host: "HostA"}, func(ctx *kernel.Context) int {
		stopErr = svc.Stop(ctx)
		return 0
	})
	require.NoError(t, err)
	k.Run()
	require.NoError(t, stopErr)
	assert.Equal(t, types.ServiceStateDown, svc.State())
}

func TestServiceDoubleStartNotAllowed(t *testing.T) {
	k := testKernel(t)
	svc := newEchoService(k, "echo", "HostB", nil)
	require.NoError(t, svc.Start(false, true))
	err := svc.Start(false, true)
	var na *failures.NotAllowed
	assert.ErrorAs(t, err, &na)
}

func TestServiceStartOnOffHostFails(t *testing.T) {
	k := testKernel(t)
	require.NoError(t, k.TurnOffHost("HostB"))
	svc := newEchoService(k, "echo", "HostB", nil)
	err := svc.Start(false, true)
	var he *failures.HostError
	assert.ErrorAs(t, err, &he)
}

func TestStopOnStoppedServiceIsSafe(t *testing.T) {
	k := testKernel(t)
	svc := newEchoService(k, "echo", "HostB", nil)
	require.NoError(t, svc.Start(false, true))
	var firstErr, secondErr error
	_, err := k.Spawn(kernel.SpawnOptions{Name: "client", Host: "HostA"}, func(ctx *kernel.Context) int {
		firstErr = svc.Stop(ctx)
		secondErr = svc.Stop(ctx)
		return 0
	})
	require.NoError(t, err)
	k.Run()
	assert.NoError(t, firstErr)
	assert.NoError(t, secondErr)
}

func TestSuspendDefersAndResumeReplays(t *testing.T) {
	k := testKernel(t)
	svc := newEchoService(k, "echo", "HostB", nil)
	require.NoError(t, svc.Start(false, true))

	var pongAt float64
	_, err := k.Spawn(kernel.SpawnOptions{Name: "client", Host: "HostA"}, func(ctx *kernel.Context) int {
		require.NoError(t, svc.Suspend(ctx))
		require.NoError(t, ctx.Sleep(0.1))
		assert.Equal(t, types.ServiceStateSuspended, svc.State())

		// This request is deferred until the service resumes
		require.NoError(t, ctx.Put("echo", kernel.Message{Content: pingMessage{Answer: "client-answer"}, Size: 100}))
		require.NoError(t, ctx.Sleep(5))
		assert.Equal(t, 0, svc.pings)

		require.NoError(t, svc.Resume(ctx))
		_, err := ctx.Get("client-answer")
		require.NoError(t, err)
		pongAt = ctx.Now()
		return 0
	})
	require.NoError(t, err)
	k.Run()
	assert.Equal(t, 1, svc.pings)
	assert.Greater(t, pongAt, 5.0)
}

func TestKillClosesInbox(t *testing.T) {
	k := testKernel(t)
	svc := newEchoService(k, "echo", "HostB", nil)
	require.NoError(t, svc.Start(false, true))
	var putErr error
	_, err := k.Spawn(kernel.SpawnOptions{Name: "client", Host: "HostA"}, func(ctx *kernel.Context) int {
		require.NoError(t, ctx.Sleep(1))
		putErr = ctx.Put("echo", kernel.Message{Content: pingMessage{Answer: "x"}, Size: 100})
		return 0
	})
	require.NoError(t, err)
	_, err = k.Spawn(kernel.SpawnOptions{Name: "killer", Host: "HostA"}, func(ctx *kernel.Context) int {
		require.NoError(t, ctx.Sleep(0.5))
		svc.Kill()
		return 0
	})
	require.NoError(t, err)
	k.Run()
	assert.Equal(t, types.ServiceStateDown, svc.State())
	var ne *failures.NetworkError
	assert.ErrorAs(t, putErr, &ne)
}

func TestPropertiesMergeAndValidate(t *testing.T) {
	props := mergedProperties(Properties{"A": "1", "B": "2"}, Properties{"B": "3"})
	assert.Equal(t, "1", props.Property("A"))
	assert.Equal(t, "3", props.Property("B"))

	b, err := props.Bool("MISSING", true)
	require.NoError(t, err)
	assert.True(t, b)

	_, err = Properties{"X": "maybe"}.Bool("X", false)
	var ia *failures.InvalidArgument
	assert.ErrorAs(t, err, &ia)

	n, err := Properties{"SIZE": "infinity"}.Bytes("SIZE", 0)
	require.NoError(t, err)
	assert.Greater(t, n, int64(1e18))

	_, err = Properties{"SIZE": "-5"}.Bytes("SIZE", 0)
	assert.ErrorAs(t, err, &ia)
}

func TestPayloadFallsBackToDefaultSize(t *testing.T) {
	p := Payloads{"known": 4096}
	assert.Equal(t, int64(4096), p.Size("known"))
	assert.Equal(t, DefaultControlMessageSize(), p.Size("unknown"))
}

func TestTerminationDetectorReportsTermination(t *testing.T) {
	k := testKernel(t)
	victim, err := k.Spawn(kernel.SpawnOptions{Name: "victim", Host: "HostB"}, func(ctx *kernel.Context) int {
		_ = ctx.Sleep(2)
		return 7
	})
	require.NoError(t, err)
	_, err = StartTerminationDetector(k, "HostA", "victim", victim, "reports", true, true)
	require.NoError(t, err)

	var report any
	_, err = k.Spawn(kernel.SpawnOptions{Name: "observer", Host: "HostA"}, func(ctx *kernel.Context) int {
		msg, err := ctx.Get("reports")
		require.NoError(t, err)
		report = msg.Content
		return 0
	})
	require.NoError(t, err)
	k.Run()
	term, ok := report.(ServiceHasTerminatedMessage)
	require.True(t, ok, "expected a termination report, got %T", report)
	assert.Equal(t, "victim", term.Service)
	assert.Equal(t, 7, term.ReturnCode)
}

func TestTerminationDetectorReportsCrash(t *testing.T) {
	k := testKernel(t)
	victim, err := k.Spawn(kernel.SpawnOptions{Name: "victim", Host: "HostB"}, func(ctx *kernel.Context) int {
		_ = ctx.Sleep(1000)
		return 0
	})
	require.NoError(t, err)
	_, err = StartTerminationDetector(k, "HostA", "victim", victim, "reports", true, true)
	require.NoError(t, err)

	var report any
	_, err = k.Spawn(kernel.SpawnOptions{Name: "observer", Host: "HostA"}, func(ctx *kernel.Context) int {
		msg, err := ctx.Get("reports")
		require.NoError(t, err)
		report = msg.Content
		return 0
	})
	require.NoError(t, err)
	_, err = k.Spawn(kernel.SpawnOptions{Name: "breaker", Host: "HostA"}, func(ctx *kernel.Context) int {
		require.NoError(t, ctx.Sleep(5))
		require.NoError(t, k.TurnOffHost("HostB"))
		return 0
	})
	require.NoError(t, err)
	k.Run()
	crash, ok := report.(ServiceHasCrashedMessage)
	require.True(t, ok, "expected a crash report, got %T", report)
	assert.Equal(t, "victim", crash.Service)
}

func TestAlarmFiresAfterDelay(t *testing.T) {
	k := testKernel(t)
	_, err := StartAlarm(k, "HostB", 42, "alarm-box", kernel.Message{Content: AlarmFiredMessage{Payload: "wake"}, Size: 10})
	require.NoError(t, err)
	var firedAt float64
	var payload any
	_, err = k.Spawn(kernel.SpawnOptions{Name: "listener", Host: "HostA"}, func(ctx *kernel.Context) int {
		msg, err := ctx.Get("alarm-box")
		require.NoError(t, err)
		firedAt = ctx.Now()
		payload = msg.Content.(AlarmFiredMessage).Payload
		return 0
	})
	require.NoError(t, err)
	k.Run()
	assert.InDelta(t, 42.0, firedAt, 0.01)
	assert.Equal(t, "wake", payload)
}

func TestAlarmSuppressedByHostDeath(t *testing.T) {
	k := testKernel(t)
	_, err := StartAlarm(k, "HostB", 42, "alarm-box", kernel.Message{Content: AlarmFiredMessage{Payload: "wake"}, Size: 10})
	require.NoError(t, err)
	fired := false
	_, err = k.Spawn(kernel.SpawnOptions{Name: "listener", Host: "HostA"}, func(ctx *kernel.Context) int {
		if _, err := ctx.GetWithTimeout("alarm-box", 100); err == nil {
			fired = true
		}
		return 0
	})
	require.NoError(t, err)
	_, err = k.Spawn(kernel.SpawnOptions{Name: "breaker", Host: "HostA"}, func(ctx *kernel.Context) int {
		require.NoError(t, ctx.Sleep(10))
		require.NoError(t, k.TurnOffHost("HostB"))
		return 0
	})
	require.NoError(t, err)
	k.Run()
	assert.False(t, fired)
}
