// Package shm provides a named shared integer buffer split into equal regions.
//
// The supervisor creates and fills the buffer, worker processes attach to it by
// name and mutate one region at a time while holding that region's lock (see
// package regionlock). The buffer itself performs no locking.
//
// This package is instrumented with OpenTelemetry metrics and tracing; both
// default to no-op providers.
//
// Platform-specific helpers are in internal/shm.
//
// Example usage:
//
//	buf, err := shm.Create(ctx, shm.Options{Name: "regionshm", Len: 100, Regions: 10})
//	if err != nil {
//	  return err
//	}
//	defer buf.Destroy()
//	buf.Fill(rand.New(rand.NewPCG(1, 2)), -50, 50)
//	values, _ := buf.Region(3)
package shm
