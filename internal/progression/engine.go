// Package progression turns metric increments into badge level-ups.
package progression

import "studyquiz_backend/internal/quiz"

// Earned maps a badge definition key to the highest level the user holds.
type Earned map[string]int

func (e Earned) Clone() Earned {
	out := make(Earned, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}

// Award is one newly reached level.
type Award struct {
	DefinitionKey string `json:"definitionKey"`
	Name          string `json:"name"`
	Icon          string `json:"icon"`
	Level         int    `json:"level"`
	Points        int    `json:"points"`
}

// Outcome is the new state after applying deltas. Inputs are never modified.
type Outcome struct {
	Stats  quiz.UserStats
	Earned Earned
	Awards []Award
	Points int
}

// ApplyStatDeltas adds each delta to its metric and then, for every definition
// tracking an updated metric, unlocks successive levels until the next level's
// threshold is out of reach. Negative deltas are ignored; counters only grow.
func ApplyStatDeltas(stats quiz.UserStats, earned Earned, defs []quiz.BadgeDefinition, deltas map[quiz.Metric]int) Outcome {
	out := Outcome{Stats: stats.Clone(), Earned: earned.Clone()}
	touched := map[quiz.Metric]bool{}
	for metric, delta := range deltas {
		if delta <= 0 {
			continue
		}
		out.Stats[metric] += delta
		touched[metric] = true
	}

	for _, def := range defs {
		if def.Key == quiz.RisingStarKey || !touched[def.Metric] {
			continue
		}
		awards := unlock(def, out.Stats[def.Metric], out.Earned)
		for _, a := range awards {
			out.Points += a.Points
		}
		out.Awards = append(out.Awards, awards...)
	}
	return out
}

// ApplyRisingStar runs the same unlock loop against a question's live upvote
// count instead of a user metric.
func ApplyRisingStar(upvotes int, earned Earned, def quiz.BadgeDefinition) Outcome {
	out := Outcome{Earned: earned.Clone()}
	out.Awards = unlock(def, upvotes, out.Earned)
	for _, a := range out.Awards {
		out.Points += a.Points
	}
	return out
}

// unlock claims the next level while its threshold is met. Levels are taken
// strictly in order, so level n is never granted before n-1.
func unlock(def quiz.BadgeDefinition, value int, earned Earned) []Award {
	var awards []Award
	for {
		next, ok := def.LevelAt(earned[def.Key] + 1)
		if !ok || value < next.Threshold {
			return awards
		}
		earned[def.Key] = next.Level
		awards = append(awards, Award{
			DefinitionKey: def.Key,
			Name:          def.Name,
			Icon:          def.Icon,
			Level:         next.Level,
			Points:        next.Points,
		})
	}
}
