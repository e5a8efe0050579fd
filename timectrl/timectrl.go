package timectrl

import "fmt"

// ReportClock relates the solver's internal hydraulic sub-step to the
// coarser reporting interval at which fragments are emitted, events are
// applied, and control modules run. All times are elapsed simulation
// seconds.
//
// The reporting interval must be a positive multiple of the hydraulic
// step; otherwise aligned boundaries could fall between sub-steps and
// event timing would depend on sub-step resolution.
type ReportClock struct {
	HydraulicStep int64
	ReportStep    int64
}

// NewReportClock validates the step relationship and constructs a clock.
func NewReportClock(hydraulicStep, reportStep int64) (ReportClock, error) {
	if hydraulicStep <= 0 {
		return ReportClock{}, fmt.Errorf("hydraulic step must be positive, got %d", hydraulicStep)
	}
	if reportStep <= 0 {
		return ReportClock{}, fmt.Errorf("reporting interval must be positive, got %d", reportStep)
	}
	if reportStep%hydraulicStep != 0 {
		return ReportClock{}, fmt.Errorf(
			"reporting interval %d is not a multiple of hydraulic step %d", reportStep, hydraulicStep)
	}
	return ReportClock{HydraulicStep: hydraulicStep, ReportStep: reportStep}, nil
}

// Aligned reports whether t falls on a reporting boundary.
func (c ReportClock) Aligned(t int64) bool {
	return c.ReportStep > 0 && t%c.ReportStep == 0
}

// Index returns the reported-step index for an aligned time t.
func (c ReportClock) Index(t int64) int {
	return int(t / c.ReportStep)
}

// ReportedSteps returns how many reported indices a run of the given
// duration produces, counting the t=0 snapshot.
func (c ReportClock) ReportedSteps(duration int64) int {
	if duration < 0 {
		return 0
	}
	return int(duration/c.ReportStep) + 1
}

// SubSteps returns how many internal sub-steps a run of the given duration
// takes, counting the t=0 snapshot.
func (c ReportClock) SubSteps(duration int64) int {
	if duration < 0 {
		return 0
	}
	return int(duration/c.HydraulicStep) + 1
}
