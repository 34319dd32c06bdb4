package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// StageStatus is the result class of a pipeline stage
type StageStatus string

const (
	StageSuccess  StageStatus = "success"
	StageDegraded StageStatus = "degraded" // completed with per-asset warnings
	StageFatal    StageStatus = "fatal"    // the run cannot continue
	StageSkipped  StageStatus = "skipped"  // not run because an earlier stage was fatal
)

// Stage names
const (
	StageImport   = "import"
	StageMapping  = "mapping"
	StageBackfill = "backfill"
	StageFetch    = "fetch"
	StageReport   = "report"
)

// Warning is a non-fatal, per-asset problem recorded by a stage
type Warning struct {
	Stage      string `json:"stage"`
	Symbol     string `json:"symbol,omitempty"`
	ProviderID string `json:"provider_id,omitempty"`
	Day        Day    `json:"day,omitempty"`
	Message    string `json:"message"`
}

func (w Warning) String() string {
	subject := w.ProviderID
	if subject == "" {
		subject = w.Symbol
	}
	if w.Day != "" {
		return fmt.Sprintf("%s %s@%s: %s", w.Stage, subject, w.Day, w.Message)
	}
	return fmt.Sprintf("%s %s: %s", w.Stage, subject, w.Message)
}

// StageOutcome is what every pipeline stage reports back to the orchestrator
type StageOutcome struct {
	Stage    string
	Status   StageStatus
	Warnings []Warning
	Err      error
	Duration time.Duration
}

// Warn appends a warning and downgrades a successful outcome to degraded
func (o *StageOutcome) Warn(w Warning) {
	w.Stage = o.Stage
	o.Warnings = append(o.Warnings, w)
	if o.Status == StageSuccess || o.Status == "" {
		o.Status = StageDegraded
	}
}

// Fail marks the outcome fatal
func (o *StageOutcome) Fail(err error) {
	o.Status = StageFatal
	o.Err = err
}

// NewStageOutcome returns a successful outcome for stage
func NewStageOutcome(stage string) *StageOutcome {
	return &StageOutcome{Stage: stage, Status: StageSuccess}
}

// RunSummary is the record of one pipeline run
type RunSummary struct {
	ID         uuid.UUID
	StartedAt  time.Time
	FinishedAt time.Time
	Status     StageStatus
	Stages     []StageOutcome
	Unmapped   []string
	ReportDate Day
}

// Warnings returns every warning of the run in stage order
func (r *RunSummary) Warnings() []Warning {
	warnings := make([]Warning, 0)
	for _, stage := range r.Stages {
		warnings = append(warnings, stage.Warnings...)
	}
	return warnings
}

// FailedRequests returns the warnings raised by the price stages, sorted by asset then day
func (r *RunSummary) FailedRequests() []Warning {
	failed := make([]Warning, 0)
	for _, stage := range r.Stages {
		if stage.Stage != StageBackfill && stage.Stage != StageFetch {
			continue
		}
		failed = append(failed, stage.Warnings...)
	}
	sort.SliceStable(failed, func(i, j int) bool {
		if failed[i].ProviderID != failed[j].ProviderID {
			return failed[i].ProviderID < failed[j].ProviderID
		}
		return failed[i].Day < failed[j].Day
	})
	return failed
}

// Resolve derives the run status from its stages: fatal wins over degraded wins over success
func (r *RunSummary) Resolve() StageStatus {
	status := StageSuccess
	for _, stage := range r.Stages {
		switch stage.Status {
		case StageFatal:
			return StageFatal
		case StageDegraded:
			status = StageDegraded
		}
	}
	return status
}

type stageJSON struct {
	Stage      string    `json:"stage"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	Warnings   []Warning `json:"warnings,omitempty"`
}

type summaryJSON struct {
	ReportDate Day         `json:"report_date,omitempty"`
	Unmapped   []string    `json:"unmapped,omitempty"`
	Stages     []stageJSON `json:"stages"`
}

// MarshalSummary renders the stage details persisted alongside the run
func (r *RunSummary) MarshalSummary() ([]byte, error) {
	doc := summaryJSON{ReportDate: r.ReportDate, Unmapped: r.Unmapped}
	for _, stage := range r.Stages {
		entry := stageJSON{
			Stage:      stage.Stage,
			Status:     string(stage.Status),
			DurationMS: stage.Duration.Milliseconds(),
			Warnings:   stage.Warnings,
		}
		if stage.Err != nil {
			entry.Error = stage.Err.Error()
		}
		doc.Stages = append(doc.Stages, entry)
	}
	return json.Marshal(doc)
}
