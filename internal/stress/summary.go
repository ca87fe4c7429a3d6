package stress

import "time"

type Rate struct {
	Passed int `json:"passed"`
	Total  int `json:"total"`
}

func (r Rate) Percent() float64 {
	if r.Total == 0 {
		return 0
	}
	return float64(r.Passed) * 100 / float64(r.Total)
}

type Verdict string

const (
	VerdictExcellent Verdict = "excellent"
	VerdictGood      Verdict = "good"
	VerdictNeedsWork Verdict = "needs_work"
)

type Summary struct {
	Total        int                 `json:"total"`
	Generated    int                 `json:"generated"`
	Executed     int                 `json:"executed"`
	Succeeded    int                 `json:"succeeded"`
	ByDifficulty map[Difficulty]Rate `json:"by_difficulty"`
	Categories   map[Category]int    `json:"categories"`
	AvgExecution time.Duration       `json:"avg_execution"`
	Fastest      time.Duration       `json:"fastest"`
	Slowest      time.Duration       `json:"slowest"`
	SubSecond    int                 `json:"sub_second"`
	Verdict      Verdict             `json:"verdict"`
}

// Summarize aggregates outcomes. Timing figures only cover executions that
// returned.
func Summarize(outcomes []Outcome) Summary {
	summary := Summary{
		Total:        len(outcomes),
		ByDifficulty: make(map[Difficulty]Rate),
		Categories:   make(map[Category]int),
	}
	var (
		totalElapsed time.Duration
		timed        int
	)
	for _, outcome := range outcomes {
		rate := summary.ByDifficulty[outcome.Prompt.Difficulty]
		rate.Total++
		if outcome.Generated {
			summary.Generated++
		}
		if outcome.Executed {
			summary.Executed++
			timed++
			totalElapsed += outcome.Elapsed
			if timed == 1 || outcome.Elapsed < summary.Fastest {
				summary.Fastest = outcome.Elapsed
			}
			if outcome.Elapsed > summary.Slowest {
				summary.Slowest = outcome.Elapsed
			}
			if outcome.Elapsed < time.Second {
				summary.SubSecond++
			}
		}
		if outcome.Succeeded() {
			summary.Succeeded++
			rate.Passed++
		}
		if outcome.Category != CategoryNone {
			summary.Categories[outcome.Category]++
		}
		summary.ByDifficulty[outcome.Prompt.Difficulty] = rate
	}
	if timed > 0 {
		summary.AvgExecution = totalElapsed / time.Duration(timed)
	}
	summary.Verdict = verdict(summary.Succeeded, summary.Total)
	return summary
}

// verdict scales the 8-of-10 and 6-of-10 bars to any prompt count.
func verdict(passed, total int) Verdict {
	switch {
	case total == 0:
		return VerdictNeedsWork
	case passed*10 >= total*8:
		return VerdictExcellent
	case passed*10 >= total*6:
		return VerdictGood
	default:
		return VerdictNeedsWork
	}
}
