// Package allocator implements per-component resource quotas and admission
// control.
//
// Each dispatch must be admitted before a component's Execute is called and
// released exactly once afterwards. Admission checks concurrency first, then
// reported memory and cpu, and finally a per-minute token bucket, so a
// refused request never consumes throughput.
package allocator
