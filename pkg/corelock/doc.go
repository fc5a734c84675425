/*
Package corelock serializes execution on a processing core.

A remote core runs one kernel graph at a time. Synchronous submitters and the
core's worker goroutine share one Manager, and engines in separate processes
that drive the same physical core can additionally coordinate through a
ports.DistributedLocker.
*/
package corelock
