/*
Package session implements playthrough access and persistence orchestration.

A Manager wraps a ports.PlaythroughStore and serializes the load, advance and
save cycle of each playthrough. Locks are held in memory per playthrough and,
when a ports.DistributedLocker is configured, across replicas as well.
*/
package session
