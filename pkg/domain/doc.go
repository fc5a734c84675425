/*
Package domain contains the core data model of the hetcore engine.

It defines the entities shared by every layer: cores and memory classes, image
and buffer descriptors, kernel nodes with their fixed wire layout, sections and
graphs, and the result codes and error classes the engine reports. The package
is pure and free of I/O, following Hexagonal Architecture principles.

# Key Entities

  - KernelNode: a header plus an opaque payload whose layout is chosen by the kernel id.
  - KernelSpec: the static descriptor table entry for a kernel (operands, directions, formats).
  - Image / Buffer: descriptors of memory in the issuing core's address space.
  - Section / Graph: ordered groups of nodes and their execution order.
  - Status: node and remote call result codes.
*/
package domain
