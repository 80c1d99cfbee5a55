// Package supervisor owns the shared buffer, the region lock set and the
// fleet of worker processes.
//
// A run goes through Setup, SpawnAll, Supervise and Teardown. Terminate may be
// called at any time from another goroutine, typically a signal handler; it
// stops every worker and releases the shared resources exactly once. Supervise
// then returns ErrTerminated.
//
//	sup, err := supervisor.New(cfg, supervisor.WithLogger(logger))
//	if err != nil {
//		return err
//	}
//	if err := sup.Setup(ctx); err != nil {
//		return err
//	}
//	if _, err := sup.SpawnAll(ctx); err != nil {
//		return err
//	}
//	if err := sup.Supervise(ctx); err != nil {
//		return err
//	}
//	return sup.Teardown()
package supervisor
