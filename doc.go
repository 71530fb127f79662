// Package genheap is a generational, moving, copying garbage collector
// meant to back the managed heap of a dynamic-language runtime: per-thread
// heaplets with a nursery, optional ageing steps, and an old generation;
// a write barrier and sequential store buffer bridging old-to-young
// references; a share operation promoting an object (and everything
// reachable from it) into a generation visible to every thread; and a
// global collection protocol for stopping every heaplet at once.
//
// genheap itself holds no opinions about object layout: callers describe
// their object shapes (recognise/encode/size/copy/scan/finalize) once, up
// front, and genheap drives allocation and collection generically in
// terms of those descriptors. See Heap, Heaplet, and ShapeTable.
package genheap
