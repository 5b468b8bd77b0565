// Package watcher keeps update checks running in the background.
//
// A Scheduler asks its Checker on every tick whether a check is due and
// starts one when it is. The daemon helpers run `clickcheck watch` as a
// detached process tracked by a PID file.
//
// Example usage:
//
//	s, err := watcher.New(orch, time.Hour, log)
//	if err != nil {
//		log.Fatal(err)
//	}
//	s.Start()
//	defer s.Stop()
package watcher
