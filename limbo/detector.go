package limbo

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/fieldops/dispatch/errors"
	"github.com/fieldops/dispatch/job"
)

// Source supplies the active (non-terminal) job set for a provider.
type Source interface {
	ListActiveByProvider(ctx context.Context, providerID string) ([]*job.Job, error)
}

// Flagged is a job with at least one triggered limbo issue.
type Flagged struct {
	Job             *job.Job `json:"job"`
	Issues          []Issue  `json:"issues"`
	HighestSeverity Severity `json:"highest_severity"`
}

// Summary counts flagged jobs by severity bucket.
type Summary struct {
	Total  int `json:"total"`
	High   int `json:"high"`
	Medium int `json:"medium"`
	Low    int `json:"low"`
}

// ScanResult is the output of a provider-wide limbo scan, sorted with high
// severity jobs strictly before medium and medium strictly before low.
type ScanResult struct {
	LimboJobs []Flagged `json:"limbo_jobs"`
	Summary   Summary   `json:"summary"`
}

// Detector runs pull-model limbo scans over a provider's active jobs. It
// is read-only and safe to run concurrently across callers.
type Detector struct {
	source     Source
	thresholds Thresholds
	log        *zap.SugaredLogger
	now        func() time.Time
}

// NewDetector creates a detector over the given job source.
func NewDetector(source Source, log *zap.SugaredLogger) *Detector {
	return &Detector{
		source:     source,
		thresholds: DefaultThresholds(),
		log:        log,
		now:        time.Now,
	}
}

// WithThresholds overrides the default dwell-time limits.
func (d *Detector) WithThresholds(t Thresholds) *Detector {
	d.thresholds = t
	return d
}

// WithClock overrides the time source, for deterministic scans in tests.
func (d *Detector) WithClock(now func() time.Time) *Detector {
	d.now = now
	return d
}

// FindLimboJobs scans the provider's active jobs and returns those stuck in
// limbo, sorted by severity, plus a count-by-severity summary. A failure on
// one job is isolated and logged; the scan continues.
func (d *Detector) FindLimboJobs(ctx context.Context, providerID string) (*ScanResult, error) {
	jobs, err := d.source.ListActiveByProvider(ctx, providerID)
	if err != nil {
		return nil, errors.Wrapf(err, "limbo scan for provider %s", providerID)
	}

	now := d.now()
	result := &ScanResult{LimboJobs: []Flagged{}}

	for _, j := range jobs {
		issues := d.detectOne(j, now)
		if len(issues) == 0 {
			continue
		}

		flagged := Flagged{
			Job:             j,
			Issues:          issues,
			HighestSeverity: highestSeverity(issues),
		}
		result.LimboJobs = append(result.LimboJobs, flagged)

		result.Summary.Total++
		switch flagged.HighestSeverity {
		case SeverityHigh:
			result.Summary.High++
		case SeverityMedium:
			result.Summary.Medium++
		case SeverityLow:
			result.Summary.Low++
		}
	}

	sort.SliceStable(result.LimboJobs, func(a, b int) bool {
		return result.LimboJobs[a].HighestSeverity.Rank() > result.LimboJobs[b].HighestSeverity.Rank()
	})

	return result, nil
}

// detectOne isolates a single job's evaluation so one malformed record
// cannot abort a provider-wide scan.
func (d *Detector) detectOne(j *job.Job, now time.Time) (issues []Issue) {
	defer func() {
		if r := recover(); r != nil {
			jobID := "unknown"
			if j != nil {
				jobID = j.ID
			}
			if d.log != nil {
				d.log.Errorw("limbo rule evaluation failed, skipping job",
					"job_id", jobID,
					"panic", r)
			}
			issues = nil
		}
	}()
	return DetectWithThresholds(j, now, d.thresholds)
}

func highestSeverity(issues []Issue) Severity {
	highest := issues[0].Severity
	for _, issue := range issues[1:] {
		if issue.Severity.Rank() > highest.Rank() {
			highest = issue.Severity
		}
	}
	return highest
}
