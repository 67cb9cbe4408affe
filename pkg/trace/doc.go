/*
Package trace holds simulation output: the compound storage service's
timestamp-monotonic I/O trace log, and a BoltDB-backed archive that
persists trace entries and controller events per run so they can be
inspected after the process exits.
*/
package trace
