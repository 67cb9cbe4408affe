/*
Package events defines the controller-facing event types (StandardJobDone,
StandardJobFailed, FileCopyCompleted, ServiceHasCrashed, ...) and an
in-process broker that fans them out to observers such as the run archive
and the CLI progress log. Inside the simulation, events travel as mailbox
messages; the broker is the bridge to the outside of virtual time.
*/
package events
