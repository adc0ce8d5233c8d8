// Package shutdown watches an application's binary-assets directory and, when
// the host does not restart itself on file changes, coalesces bursts of
// changes into a single request to recycle the host's execution domain.
//
// A Scheduler is created with New, started with Initialize and released with
// Close. Initialize detects the host's notification mode once, installs a
// recursive fsnotify watcher and, if binwatch owns restarts, arms a trailing
// debounce timer on every qualifying change. When the timer fires the host's
// Recycler is called exactly once; a failed recycle re-opens the scheduler
// for the next change.
package shutdown
