// Package registry stores per-worker identity, heartbeat, and status
// records under team/<team>/workers/<worker>/.
//
// The registry is a passive store. Liveness is derived with [IsAlive] from a
// heartbeat and a threshold; acting on a dead worker (reclaiming its tasks,
// announcing that it stopped) is the monitor's job.
package registry
