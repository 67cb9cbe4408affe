/*
Package simulation wires platforms, services and controllers onto the
kernel and runs the whole arrangement to quiescence.

A Simulation owns the kernel, the event broker and the controller event
log. Controllers are user actors with a private callback mailbox; they
submit jobs, move files and block on WaitForNextEvent, which translates
raw service messages into the typed controller events (StandardJobDone,
StandardJobFailed, FileCopyCompleted, ServiceHasCrashed, ...) and feeds
the broker and the event log as a side effect.

Scenarios are the YAML face of the same machinery: a scenario file
declares files, storage and compute services, failure switchers, initial
file staging and jobs; Build brings everything up with a default
controller that submits every job and waits for the terminal events. The
burrow CLI is a thin wrapper over LoadScenario + Build + Launch.

	sim := simulation.New(simulation.Config{HostShutdownSimulation: true})
	sim.LoadPlatform("platform.yaml")
	sc, _ := simulation.LoadScenario("workload.yaml")
	sim.Build(sc)
	sim.Launch()
	for _, ev := range sim.EventLog() {
		fmt.Println(ev.Kind, ev.TS)
	}
*/
package simulation
