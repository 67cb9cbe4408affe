/*
Package metrics exposes Burrow's Prometheus metrics: simulation progress
(virtual time, messages, host failures), compute activity (jobs, work
units, scheduling latency) and storage volume (bytes read/written, copy
outcomes). Handler returns the scrape endpoint; Timer measures wall-clock
durations for histogram observation.
*/
package metrics
