// Package registry holds the table of registered components: their
// descriptors, live instances and registration order.
//
// Status is written only through CompareAndSetStatus, which the lifecycle
// manager uses to make each transition atomic.
package registry
