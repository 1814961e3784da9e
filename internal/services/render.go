package services

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/kaa08/KTB-Hackathon-11/internal/models"
)

// FormatTime renders seconds as zero-padded mm:ss.
func FormatTime(seconds float64) string {
	if math.IsNaN(seconds) || seconds < 0 {
		seconds = 0
	}
	mins := int(math.Floor(seconds / 60))
	secs := int(math.Floor(math.Mod(seconds, 60)))
	return fmt.Sprintf("%02d:%02d", mins, secs)
}

type RecipeCard struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	TotalTime   string   `json:"total_time"`
	Servings    string   `json:"servings"`
	Difficulty  string   `json:"difficulty"`
	Ingredients []string `json:"ingredients"`
	Tips        []string `json:"tips,omitempty"`
}

type TimelineEntry struct {
	StepNumber  int      `json:"step_number"`
	Label       string   `json:"label"`
	Instruction string   `json:"instruction"`
	Details     string   `json:"details,omitempty"`
	Duration    string   `json:"duration,omitempty"`
	Tips        string   `json:"tips,omitempty"`
	Start       *float64 `json:"start,omitempty"`
	FrameURL    string   `json:"frame_url,omitempty"`
}

type RenderedRecipe struct {
	JobID    string          `json:"job_id,omitempty"`
	VideoID  string          `json:"video_id,omitempty"`
	Card     RecipeCard      `json:"card"`
	Timeline []TimelineEntry `json:"timeline"`
}

// FrameURLFunc builds a retrieval URL for a frame of a job.
type FrameURLFunc func(jobID, filename string) string

func RenderCard(r models.Recipe) RecipeCard {
	card := RecipeCard{
		Title:       r.Title,
		Description: r.Description,
		TotalTime:   orDefault(r.TotalTime, "?"),
		Servings:    orDefault(r.Servings, "1 serving"),
		Difficulty:  orDefault(r.Difficulty, "normal"),
		Ingredients: make([]string, 0, len(r.Ingredients)),
		Tips:        r.Tips,
	}
	for _, ing := range r.Ingredients {
		card.Ingredients = append(card.Ingredients, IngredientLine(ing))
	}
	return card
}

// IngredientLine renders "name amount+unit (note)", skipping empty parts.
func IngredientLine(ing models.Ingredient) string {
	var b strings.Builder
	b.WriteString(ing.Name)
	if qty := ing.Amount + ing.Unit; qty != "" {
		b.WriteString(" ")
		b.WriteString(qty)
	}
	if ing.Note != "" {
		fmt.Fprintf(&b, " (%s)", ing.Note)
	}
	return b.String()
}

// RenderTimeline lists the steps in order. Frame URLs are only built when
// a job id is known and a frame exists for the step number.
func RenderTimeline(res *models.AnalysisResult, jobID string, frameURL FrameURLFunc) []TimelineEntry {
	frames := res.FramesByStep()
	entries := make([]TimelineEntry, 0, len(res.Recipe.Steps))

	for _, s := range res.Recipe.Steps {
		e := TimelineEntry{
			StepNumber:  s.StepNumber,
			Label:       fmt.Sprintf("#%d", s.StepNumber),
			Instruction: s.Instruction,
			Details:     s.Details,
			Duration:    s.Duration,
			Tips:        s.Tips,
		}
		if s.Timestamp != nil {
			ts := *s.Timestamp
			e.Label = FormatTime(ts)
			e.Start = &ts
		}
		if f, ok := frames[s.StepNumber]; ok && jobID != "" && frameURL != nil && f.FrameFilename != "" {
			e.FrameURL = frameURL(jobID, f.FrameFilename)
		}
		entries = append(entries, e)
	}
	return entries
}

func RenderResult(res *models.AnalysisResult, jobID, videoID string, frameURL FrameURLFunc) RenderedRecipe {
	return RenderedRecipe{
		JobID:    jobID,
		VideoID:  videoID,
		Card:     RenderCard(res.Recipe),
		Timeline: RenderTimeline(res, jobID, frameURL),
	}
}

// WriteText prints a rendered recipe for terminals.
func WriteText(w io.Writer, r RenderedRecipe) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", r.Card.Title)
	if r.Card.Description != "" {
		fmt.Fprintf(&b, "%s\n", r.Card.Description)
	}
	fmt.Fprintf(&b, "time %s | %s | difficulty %s\n\n", r.Card.TotalTime, r.Card.Servings, r.Card.Difficulty)

	b.WriteString("Ingredients\n")
	for _, line := range r.Card.Ingredients {
		fmt.Fprintf(&b, "  - %s\n", line)
	}

	b.WriteString("\nSteps\n")
	for _, e := range r.Timeline {
		fmt.Fprintf(&b, "  %d. [%s] %s\n", e.StepNumber, e.Label, e.Instruction)
		if e.Tips != "" {
			fmt.Fprintf(&b, "     tip: %s\n", e.Tips)
		}
	}

	if len(r.Card.Tips) > 0 {
		b.WriteString("\nTips\n")
		for _, tip := range r.Card.Tips {
			fmt.Fprintf(&b, "  * %s\n", tip)
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
