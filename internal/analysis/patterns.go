package analysis

import (
	"fmt"
	"sort"
	"time"

	"shellscribe/pkg/models"
)

// sequenceWindow is the maximum gap between two adjacent commands for them to
// count as a recurring sequence.
const sequenceWindow = 30 * time.Second

// FrequencyEntry is one ranked item of a frequency table.
type FrequencyEntry struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// PatternReport aggregates pattern mining over a command collection.
type PatternReport struct {
	TotalCommands    int              `json:"total_commands"`
	TopCommands      []FrequencyEntry `json:"top_commands"`
	Sequences        []FrequencyEntry `json:"sequences"`
	ErrorRate        float64          `json:"error_rate"`
	ErrorsByCategory map[string]int   `json:"errors_by_category"`
	HourHistogram    [24]int          `json:"hour_histogram"`
	WeekdayHistogram map[string]int   `json:"weekday_histogram"`
	BusiestHour      int              `json:"busiest_hour"`
	BusiestWeekday   string           `json:"busiest_weekday"`
}

// MinePatterns computes most-used base commands (top 10), adjacent-command
// sequences inside the 30-second window (top 5), error rate and per-category
// error counts, and hour/weekday activity histograms. An empty input yields
// zeroed aggregates.
func MinePatterns(commands []models.Command) *PatternReport {
	report := &PatternReport{
		TotalCommands:    len(commands),
		ErrorsByCategory: make(map[string]int),
		WeekdayHistogram: make(map[string]int),
	}
	if len(commands) == 0 {
		return report
	}

	// Pairing relies on observed order within each session.
	ordered := make([]models.Command, len(commands))
	copy(ordered, commands)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].SessionID != ordered[j].SessionID {
			return ordered[i].SessionID < ordered[j].SessionID
		}
		return ordered[i].SequenceNumber < ordered[j].SequenceNumber
	})

	baseCounts := make(map[string]int)
	sequenceCounts := make(map[string]int)
	failures := 0

	for i, cmd := range ordered {
		if base := BaseCommand(cmd.Command); base != "" {
			baseCounts[base]++
		}
		if cmd.ExitCode != 0 {
			failures++
			report.ErrorsByCategory[CategorizeError(cmd.Output)]++
		}
		report.HourHistogram[cmd.Timestamp.Hour()]++
		report.WeekdayHistogram[cmd.Timestamp.Weekday().String()]++

		if i == 0 || ordered[i-1].SessionID != cmd.SessionID {
			continue
		}
		prev := ordered[i-1]
		gap := cmd.Timestamp.Sub(prev.Timestamp)
		if gap >= 0 && gap < sequenceWindow {
			first, second := BaseCommand(prev.Command), BaseCommand(cmd.Command)
			if first != "" && second != "" {
				sequenceCounts[fmt.Sprintf("%s → %s", first, second)]++
			}
		}
	}

	report.TopCommands = rankedEntries(baseCounts, 10)
	report.Sequences = rankedEntries(sequenceCounts, 5)
	report.ErrorRate = float64(failures) / float64(len(ordered))

	busiest := 0
	for hour, count := range report.HourHistogram {
		if count > report.HourHistogram[busiest] {
			busiest = hour
		}
	}
	report.BusiestHour = busiest

	bestCount := -1
	for day, count := range report.WeekdayHistogram {
		if count > bestCount || (count == bestCount && day < report.BusiestWeekday) {
			report.BusiestWeekday = day
			bestCount = count
		}
	}
	return report
}

func rankedEntries(counts map[string]int, limit int) []FrequencyEntry {
	entries := make([]FrequencyEntry, 0, len(counts))
	for label, count := range counts {
		entries = append(entries, FrequencyEntry{Label: label, Count: count})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Count != entries[j].Count {
			return entries[i].Count > entries[j].Count
		}
		return entries[i].Label < entries[j].Label
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries
}
