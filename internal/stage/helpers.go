package stage

import (
	"fmt"

	"murmur/internal/queue"
	"murmur/internal/services"
)

// ClipWindow extracts and validates the clip range of a task. Whole-file
// tasks return ok=false with no error. On invalid ranges it returns a
// services.ErrValidation suitable for stage Execute methods.
func ClipWindow(task *queue.Task) (start, end float64, ok bool, err error) {
	if task == nil || task.Kind != queue.KindClipRange {
		return 0, 0, false, nil
	}
	if task.ClipStart == nil || task.ClipEnd == nil {
		return 0, 0, false, services.Wrap(
			services.ErrValidation, "stage", "clip window",
			"Clip task is missing its start or end time; re-add the task", nil)
	}
	start, end = *task.ClipStart, *task.ClipEnd
	if start < 0 || end <= start {
		return 0, 0, false, services.Wrap(
			services.ErrValidation, "stage", "clip window",
			fmt.Sprintf("Clip range %.3f-%.3f is not a positive span", start, end), nil)
	}
	return start, end, true, nil
}
