/*
Package platform parses and validates platform descriptions: hosts with
cores, flop rates, RAM and disks; links with bandwidth and latency; and
routes between host pairs. Descriptions are YAML with unit-suffixed
quantities ("16GB", "1Gf", "125MBps", "100us").

Hosts may carry a state trace driving scheduled power transitions:

	PERIODICITY <p>
	<t> <0|1>
	...

where 1 means ON and 0 means OFF. The schedule repeats every p virtual
seconds for a configurable number of periods (the kernel runs to
quiescence, so the replay must be finite).
*/
package platform
