package cmd

import (
	"fmt"
	"time"

	"github.com/cheynewallace/tabby"
	"github.com/logrusorgru/aurora/v4"

	"github.com/f4biogr/rollout/internal/domain"
)

// renderReport prints an attempt report the way an operator reads it: the
// verdict up top, then one row per host and pass.
func renderReport(report domain.AttemptReport) {
	summary := tabby.New()
	summary.AddLine("Release:", string(report.ReleaseID))
	summary.AddLine("Fleet:", string(report.FleetID))
	summary.AddLine("Package:", report.Package)
	summary.AddLine("Version:", fmt.Sprintf("%s -> %s (%s)", report.PreviousVersion, report.TargetVersion, report.Direction))
	summary.AddLine("State:", attemptColor(report.State))
	if report.Canceled {
		summary.AddLine("Canceled:", aurora.Yellow("yes"))
	}
	summary.AddLine("Duration:", report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond).String())
	summary.Print()

	fmt.Println()
	fmt.Println(aurora.Green("Forward pass"))
	renderOutcomes(report.Forward)

	if len(report.Rollback) > 0 {
		fmt.Println()
		fmt.Println(aurora.Yellow("Rollback pass"))
		renderOutcomes(report.Rollback)
	}
}

func renderOutcomes(outcomes []domain.HostOutcome) {
	table := tabby.New()
	table.AddHeader("HOST", "RESULT", "VERSION", "WORKERS", "BACKUP", "DETAIL")
	for _, out := range outcomes {
		table.AddLine(
			out.Host,
			outcomeResult(out),
			out.FinalVersion,
			workerSummary(out.Probes),
			backupSummary(out.Backup),
			outcomeDetail(out),
		)
	}
	table.Print()
}

func renderReleases(releases []domain.Release) {
	table := tabby.New()
	table.AddHeader("ID", "FLEET", "PACKAGE", "VERSION", "STATE", "CREATED")
	for _, rel := range releases {
		table.AddLine(
			string(rel.ID),
			string(rel.FleetID),
			rel.Package,
			rel.Version,
			releaseColor(rel.State),
			rel.CreatedAt.Format(time.RFC3339),
		)
	}
	table.Print()
}

func attemptColor(state domain.AttemptState) aurora.Value {
	switch state {
	case domain.AttemptCommitted:
		return aurora.Green(string(state))
	case domain.AttemptRolledBack:
		return aurora.Yellow(string(state))
	default:
		return aurora.Red(string(state))
	}
}

func releaseColor(state domain.ReleaseState) aurora.Value {
	switch state {
	case domain.ReleaseStateCommitted:
		return aurora.Green(string(state))
	case domain.ReleaseStateFailed:
		return aurora.Red(string(state))
	case domain.ReleaseStateRolledBack:
		return aurora.Yellow(string(state))
	default:
		return aurora.Blue(string(state))
	}
}

func outcomeResult(out domain.HostOutcome) aurora.Value {
	switch {
	case out.Skipped:
		return aurora.Yellow("skipped")
	case out.Healthy():
		return aurora.Green("healthy")
	default:
		return aurora.Red("failed")
	}
}

func workerSummary(probes []domain.ProbeResult) string {
	if len(probes) == 0 {
		return "-"
	}
	healthy := 0
	for _, p := range probes {
		if p.Healthy() {
			healthy++
		}
	}
	return fmt.Sprintf("%d/%d healthy", healthy, len(probes))
}

func backupSummary(backup domain.BackupStatus) string {
	switch {
	case !backup.Requested:
		return "-"
	case backup.Skipped:
		return "skipped: " + backup.Reason
	default:
		return backup.Path
	}
}

func outcomeDetail(out domain.HostOutcome) string {
	if out.Failure != nil {
		return fmt.Sprintf("%s: %s", out.Failure.Step, out.Failure.Message)
	}
	for _, p := range out.Probes {
		if !p.Healthy() && p.LastError != "" {
			return fmt.Sprintf("worker %d: %s", p.WorkerIndex, p.LastError)
		}
	}
	return ""
}
