/*
Package failures defines the error taxonomy shared by every Burrow
component. Each cause is a typed error (HostError, NetworkError,
FileNotFound, NotEnoughResources, ...) so callers branch with errors.As
rather than string matching; causes travel verbatim inside answer
messages and controller events.
*/
package failures
