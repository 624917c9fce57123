package analysis

import (
	"testing"
	"time"

	"shellscribe/pkg/models"
)

func cmd(session string, seq int, at time.Time, text string, exit int) models.Command {
	return models.Command{
		SessionID:      session,
		SequenceNumber: seq,
		Timestamp:      at,
		Command:        text,
		ExitCode:       exit,
	}
}

func TestMinePatternsEmpty(t *testing.T) {
	report := MinePatterns(nil)
	if report.TotalCommands != 0 || report.ErrorRate != 0 {
		t.Errorf("Expected zeroed report, got %+v", report)
	}
	if len(report.TopCommands) != 0 || len(report.Sequences) != 0 {
		t.Errorf("Expected empty rankings, got %+v", report)
	}
}

func TestMinePatternsTopCommands(t *testing.T) {
	base := time.Date(2026, 8, 3, 14, 0, 0, 0, time.UTC) // a Monday
	commands := []models.Command{
		cmd("s1", 0, base, "git status", 0),
		cmd("s1", 1, base.Add(5*time.Second), "git add .", 0),
		cmd("s1", 2, base.Add(10*time.Second), "git commit -m x", 0),
		cmd("s1", 3, base.Add(15*time.Second), "ls", 0),
	}
	report := MinePatterns(commands)

	if len(report.TopCommands) == 0 || report.TopCommands[0].Label != "git" || report.TopCommands[0].Count != 3 {
		t.Errorf("Expected git x3 on top, got %+v", report.TopCommands)
	}
	if report.BusiestHour != 14 {
		t.Errorf("Expected busiest hour 14, got %d", report.BusiestHour)
	}
	if report.BusiestWeekday != "Monday" {
		t.Errorf("Expected Monday, got %s", report.BusiestWeekday)
	}
}

func TestMinePatternsSequencesRespectWindow(t *testing.T) {
	base := time.Now().UTC()
	commands := []models.Command{
		cmd("s1", 0, base, "git add .", 0),
		cmd("s1", 1, base.Add(10*time.Second), "git commit -m x", 0), // inside window
		cmd("s1", 2, base.Add(2*time.Minute), "git push", 0),        // outside window
		cmd("s2", 0, base, "make build", 0),
		cmd("s2", 1, base.Add(5*time.Second), "make test", 0), // inside window
	}
	report := MinePatterns(commands)

	found := make(map[string]int)
	for _, seq := range report.Sequences {
		found[seq.Label] = seq.Count
	}
	if found["git → git"] != 1 {
		t.Errorf("Expected one git → git sequence, got %+v", report.Sequences)
	}
	if found["make → make"] != 1 {
		t.Errorf("Expected one make → make sequence, got %+v", report.Sequences)
	}
	// The >30s gap pair and the cross-session boundary must not pair up.
	if len(report.Sequences) != 2 {
		t.Errorf("Expected exactly 2 sequences, got %+v", report.Sequences)
	}
}

func TestMinePatternsErrorRate(t *testing.T) {
	base := time.Now().UTC()
	commands := []models.Command{
		cmd("s1", 0, base, "git status", 0),
		cmd("s1", 1, base.Add(time.Second), "git push", 1),
	}
	commands[1].Output = "rejected"

	report := MinePatterns(commands)
	if report.ErrorRate != 0.5 {
		t.Errorf("Expected error rate 0.5, got %f", report.ErrorRate)
	}
	if report.ErrorsByCategory[ErrorCategoryGeneral] != 1 {
		t.Errorf("Expected one general-error, got %+v", report.ErrorsByCategory)
	}
}
