package main

import (
	"log/slog"
	"time"
)

// StageRunner executes one processing stage over all eligible work items,
// strictly sequentially and in manifest order. One item's failure is recorded
// on the item and never aborts the batch. The dominant cost of every stage is
// a shared rate limit on one external endpoint, so there is nothing to gain
// from concurrency here.
type StageRunner struct {
	Name     string
	Delay    time.Duration
	Logger   *slog.Logger
	Observer ProgressObserver

	// Sleep is swappable in tests; nil means time.Sleep.
	Sleep func(time.Duration)
}

// Run iterates items in order, processing those the eligibility predicate
// admits. The predicate combines the stage's required-input check with the
// resume check, both against disk state, never against the rolling status
// field. Every eligible item advances the observer exactly once, success or
// failure, and gets the inter-item delay regardless of outcome.
func (r *StageRunner) Run(items []*WorkItem, eligible func(*WorkItem) bool, process func(*WorkItem) error) {
	sleep := r.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}
	observer := r.Observer
	if observer == nil {
		observer = nopProgress{}
	}

	for _, item := range items {
		if !eligible(item) {
			continue
		}
		observer.OnItemStart(item.ID, item.Title)

		err := process(item)
		if err != nil {
			item.Failed(err.Error())
			if r.Logger != nil {
				r.Logger.Warn("item failed",
					"stage", r.Name,
					"video_id", item.ID,
					"reason", item.Reason)
			}
		} else {
			item.Succeeded()
		}

		observer.OnItemDone(item.ID, err)
		if r.Delay > 0 {
			sleep(r.Delay)
		}
	}
}

// CountEligible sizes the observer's total before a run.
func CountEligible(items []*WorkItem, eligible func(*WorkItem) bool) int {
	n := 0
	for _, item := range items {
		if eligible(item) {
			n++
		}
	}
	return n
}
