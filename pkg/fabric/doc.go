/*
Package fabric provides the simulated failure fabric: switcher actors
that turn hosts and links off and on at fixed times, and a random-repeat
switcher that flips a resource on seeded random intervals. Switchers
drive the kernel's shutdown simulation; everything downstream (killed
actors, failed transfers, autorestart resurrection) is the kernel's job.
*/
package fabric
