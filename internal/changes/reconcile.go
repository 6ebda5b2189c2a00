package changes

import "github.com/jvs-project/taskstate/pkg/model"

// ReconcileOutputs computes the output snapshot to persist for one property
// from three observations:
//
//   - afterPrevious: the snapshot recorded by the last successful execution
//   - before: the state observed right before the task ran
//   - after: the state observed right after the task ran
//
// Per path:
//
//  1. unchanged by the task and unchanged since the previous record: the
//     previously recorded fingerprint is carried forward
//  2. created or changed by the task: the after fingerprint is recorded
//  3. present before, gone after: dropped, the task deleted it
//  4. only in the previous record: dropped, it no longer exists
//  5. unchanged by the task but unknown to the previous record: the observed
//     fingerprint is recorded so later external removal is detected
//
// A previously tracked path that changed between builds and was left alone
// by the task records the observed fingerprint. Paths that are missing after
// execution are never recorded. The result keeps after's order and depends
// only on its arguments.
func ReconcileOutputs(afterPrevious, before, after model.Snapshot) model.Snapshot {
	if after.IsEmpty() {
		return model.EmptySnapshot()
	}
	result := make([]model.Fingerprint, 0, after.Len())
	for path, observed := range after.All() {
		if observed.IsMissing() {
			continue
		}
		result = append(result, reconcileEntry(path, observed, afterPrevious, before))
	}
	return model.NewSnapshot(result...)
}

func reconcileEntry(path string, observed model.Fingerprint, afterPrevious, before model.Snapshot) model.Fingerprint {
	beforeFP, existedBefore := before.Get(path)
	if !existedBefore || !beforeFP.Equal(observed) {
		// Written by the task during this execution.
		return observed
	}
	if prev, tracked := afterPrevious.Get(path); tracked && prev.Equal(observed) {
		return prev
	}
	return observed
}
