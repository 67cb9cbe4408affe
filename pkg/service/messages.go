package service

// StopDaemonMessage asks a service to shut down gracefully. The service
// acknowledges on the Ack mailbox before its main loop returns, so the
// caller can safely destroy state afterwards.
type StopDaemonMessage struct {
	Ack string
}

// DaemonStoppedMessage acknowledges a graceful stop
type DaemonStoppedMessage struct {
	Service string
}

// SuspendDaemonMessage asks a service to pause message processing
type SuspendDaemonMessage struct{}

// ResumeDaemonMessage asks a suspended service to continue
type ResumeDaemonMessage struct{}

// ServiceHasCrashedMessage is emitted by a termination detector when its
// victim dies without returning
type ServiceHasCrashedMessage struct {
	Service string
}

// ServiceHasTerminatedMessage is emitted by a termination detector when its
// victim returns from its main loop
type ServiceHasTerminatedMessage struct {
	Service    string
	ReturnCode int
}

// AlarmFiredMessage wraps an alarm payload when no explicit message was
// given
type AlarmFiredMessage struct {
	Payload any
}
