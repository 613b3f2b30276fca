package monitor

// Health statuses for the operational status page. LOADING is only the
// pre-fetch default before the first snapshot lands; evaluation itself
// never yields it.
const (
	HealthOperational = "OPERACIONAL"
	HealthError       = "ERROR"
	HealthLoading     = "LOADING"
)

// HealthCheck is one named operational indicator, configured statically.
// Its status is derived from the latest run of each dependency flow.
type HealthCheck struct {
	Label        string   `yaml:"label" mapstructure:"label" json:"label"`
	Dependencies []string `yaml:"dependencies" mapstructure:"dependencies" json:"dependencies"`
}

// HealthSection groups related checks on the status page.
type HealthSection struct {
	Title  string        `yaml:"title" mapstructure:"title" json:"title"`
	Checks []HealthCheck `yaml:"checks" mapstructure:"checks" json:"checks"`
}

// CheckResult is the evaluated status of one check.
type CheckResult struct {
	Label  string `json:"label"`
	Status string `json:"status"`

	// LastRun is the latest run of the last resolvable dependency,
	// so operators can jump straight to the failing record.
	LastRun *Run `json:"last_run,omitempty"`
}

// SectionResult is the evaluated status of one section of checks.
type SectionResult struct {
	Title  string        `json:"title"`
	Status string        `json:"status"`
	Checks []CheckResult `json:"checks"`
}

// HealthReport is the full status page evaluation.
type HealthReport struct {
	Status   string          `json:"status"`
	Sections []SectionResult `json:"sections"`
}

// EvaluateHealth computes the status of every configured check against the
// latest run per flow. It is pure and stateless: every change notification
// triggers a full recompute over the current snapshot.
//
// Fail-closed rule: a dependency with no run at all marks its check ERROR;
// unknown is never treated as operational.
func EvaluateHealth(
	latest map[string]Run, sections []HealthSection,
) HealthReport {
	report := HealthReport{
		Status:   HealthOperational,
		Sections: make([]SectionResult, 0, len(sections)),
	}

	for _, section := range sections {
		sr := SectionResult{
			Title:  section.Title,
			Status: HealthOperational,
			Checks: make([]CheckResult, 0, len(section.Checks)),
		}

		for _, check := range section.Checks {
			result := evaluateCheck(latest, check)

			if result.Status == HealthError {
				sr.Status = HealthError
			}

			sr.Checks = append(sr.Checks, result)
		}

		if sr.Status == HealthError {
			report.Status = HealthError
		}

		report.Sections = append(report.Sections, sr)
	}

	return report
}

// evaluateCheck derives one check's status: ERROR dominates across
// dependencies, an uncorrected failed latest run is ERROR, and a
// dependency with no run at all is ERROR.
func evaluateCheck(latest map[string]Run, check HealthCheck) CheckResult {
	result := CheckResult{
		Label:  check.Label,
		Status: HealthOperational,
	}

	// A check with nothing to observe is not healthy.
	if len(check.Dependencies) == 0 {
		result.Status = HealthError
	}

	for _, dep := range check.Dependencies {
		run, ok := latest[dep]
		if !ok {
			result.Status = HealthError

			continue
		}

		last := run
		result.LastRun = &last

		if run.Status == StatusError &&
			run.CorrectionStatus != CorrectionCorrected {
			result.Status = HealthError
		}
	}

	return result
}
