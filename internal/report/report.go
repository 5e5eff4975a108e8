// Package report renders arbitration evidence: a fixed-schema CSV for stdout,
// an optional structured JSON run report, and a human-readable control-list
// table. All renderers are deterministic functions of their inputs.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/boshu2/skillgate/internal/arbiter"
	"github.com/boshu2/skillgate/internal/config"
	"github.com/boshu2/skillgate/internal/controls"
)

// csvHeader is the fixed evidence column order.
var csvHeader = []string{"skill", "installed", "max_rg", "persistent_nonzero", "action", "note"}

// WriteCSV writes the evidence header and one row per result, in evaluation
// order. Booleans render lowercase.
func WriteCSV(w io.Writer, results []arbiter.Result) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, res := range results {
		row := []string{
			res.Skill,
			strconv.FormatBool(res.Installed),
			strconv.Itoa(res.MaxRG),
			strconv.FormatBool(res.PersistentNonzero),
			string(res.Action),
			res.Note,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// RunReport is the write-once structured evidence for one invocation.
type RunReport struct {
	// RunID uniquely identifies this invocation.
	RunID string `json:"run_id"`

	// Tool names the producer.
	Tool string `json:"tool"`

	// StartedAt and FinishedAt bound the run.
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	// DryRun reports whether filesystem mutation was suppressed.
	DryRun bool `json:"dry_run"`

	// Dest is the destination skills root.
	Dest string `json:"dest"`

	// Effective thresholds for this run.
	Window           int  `json:"window"`
	BaselineWindow   int  `json:"baseline_window"`
	Threshold        int  `json:"threshold"`
	MaxRG            int  `json:"max_rg"`
	PromoteSafe      bool `json:"promote_safe"`
	PersonalLockdown bool `json:"personal_lockdown"`

	// Results holds one entry per candidate, in evaluation order.
	Results []arbiter.Result `json:"results"`

	// Lists is the final control-list snapshot.
	Lists controls.Snapshot `json:"control_lists"`
}

// New builds a report shell from the run configuration.
func New(cfg *config.Run, started time.Time) *RunReport {
	return &RunReport{
		RunID:            uuid.NewString(),
		Tool:             "skillgate",
		StartedAt:        started,
		DryRun:           cfg.DryRun,
		Dest:             cfg.Dest,
		Window:           cfg.Window,
		BaselineWindow:   cfg.BaselineWindow,
		Threshold:        cfg.Threshold,
		MaxRG:            cfg.MaxRG,
		PromoteSafe:      cfg.PromoteSafe,
		PersonalLockdown: cfg.PersonalLockdown,
	}
}

// Finish stamps the report with results, the final list snapshot, and the
// completion time. The report is write-once; Finish is called exactly once.
func (r *RunReport) Finish(results []arbiter.Result, lists controls.Snapshot, finished time.Time) {
	r.Results = results
	r.Lists = lists
	r.FinishedAt = finished
}

// WriteJSON writes the report to path with two-space indentation.
func (r *RunReport) WriteJSON(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal run report: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0600); err != nil {
		return fmt.Errorf("write run report: %w", err)
	}
	return nil
}

// RenderLists prints the control-list snapshot as a table.
func RenderLists(w io.Writer, snap controls.Snapshot) error {
	t := NewTable(w, "LIST", "SKILL")
	for _, name := range snap.Deny {
		t.AddRow("deny", name)
	}
	for _, name := range snap.Allow {
		t.AddRow("allow", name)
	}
	for _, name := range snap.Protected {
		t.AddRow("protected", name)
	}
	if len(snap.Deny)+len(snap.Allow)+len(snap.Protected) == 0 {
		_, err := fmt.Fprintln(w, "all control lists empty")
		return err
	}
	return t.Render()
}
