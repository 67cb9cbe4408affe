/*
Package log provides structured logging for Burrow using zerolog: a global
logger initialized once via Init, component and service child loggers, and
a virtual-time hook. Simulation loggers are built with ForComponent or
ForService against a Clock (the kernel satisfies it), so every line
carries both the wall-clock timestamp and a vt field with the simulated
seconds at which it was written.
*/
package log
