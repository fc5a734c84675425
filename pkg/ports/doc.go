/*
Package ports defines the driven ports (interfaces) for the hetcore engine.

These interfaces decouple the engine from the platform services it relies on,
so the same translation, coherency and dispatch logic runs against simulated
cores in tests and real mapping services in production.

# Key Interfaces

  - Mapper / SharedMapper: cross-core and intermediate address mapping.
  - CacheOps: flush and invalidate on the issuing core.
  - AddressSpace: byte access to one core's view of memory.
  - Transport: carries marshaled calls to remote entry points.
  - RunStore: persists run records.
  - DistributedLocker: serializes core use across processes.
*/
package ports
