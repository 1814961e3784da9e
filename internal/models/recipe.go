package models

import "encoding/json"

type Ingredient struct {
	Name   string `json:"name"`
	Amount string `json:"amount"`
	Unit   string `json:"unit"`
	Note   string `json:"note,omitempty"`
}

type Step struct {
	StepNumber  int      `json:"step_number"` // 1-based, unique within a recipe
	Instruction string   `json:"instruction"`
	Timestamp   *float64 `json:"timestamp,omitempty"` // seconds into the source video
	Duration    string   `json:"duration,omitempty"`
	Details     string   `json:"details,omitempty"`
	Tips        string   `json:"tips,omitempty"`
}

// StartSeconds returns the step timestamp, or 0 when the step has none.
func (s Step) StartSeconds() float64 {
	if s.Timestamp == nil {
		return 0
	}
	return *s.Timestamp
}

type Recipe struct {
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	Servings    string       `json:"servings,omitempty"`
	TotalTime   string       `json:"total_time,omitempty"`
	Difficulty  string       `json:"difficulty,omitempty"`
	Ingredients []Ingredient `json:"ingredients"`
	Steps       []Step       `json:"steps"`
	Tips        []string     `json:"tips,omitempty"`
}

// StepByNumber looks a step up by its step_number.
func (r Recipe) StepByNumber(n int) (Step, bool) {
	for _, s := range r.Steps {
		if s.StepNumber == n {
			return s, true
		}
	}
	return Step{}, false
}

type Frame struct {
	StepNumber    int     `json:"step_number"`
	Timestamp     float64 `json:"timestamp"`
	FramePath     string  `json:"frame_path,omitempty"`
	FrameFilename string  `json:"frame_filename"`
}

type VideoInfo struct {
	VideoID  string  `json:"video_id"`
	Title    string  `json:"title"`
	Duration float64 `json:"duration"`
	URL      string  `json:"url"`
}

type TranscriptSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

type Transcript struct {
	FullText string              `json:"full_text"`
	Segments []TranscriptSegment `json:"segments"`
}

// AnalysisResult is the final output of the extraction pipeline for one job.
// It is never mutated after it has been received.
type AnalysisResult struct {
	Recipe     Recipe          `json:"recipe"`
	Frames     []Frame         `json:"frames"`
	VideoInfo  VideoInfo       `json:"video_info"`
	Transcript Transcript      `json:"transcript"`
	Timing     json.RawMessage `json:"timing,omitempty"`
}

// FramesByStep maps step numbers to frames. Frames and steps are not 1:1;
// when several frames share a step number the last one wins.
func (r *AnalysisResult) FramesByStep() map[int]Frame {
	m := make(map[int]Frame, len(r.Frames))
	for _, f := range r.Frames {
		m[f.StepNumber] = f
	}
	return m
}

// CachedAnalysis is the session-scoped snapshot written after a successful
// analysis so a reload can restore the last view without re-running it.
type CachedAnalysis struct {
	URL     string         `json:"url"`
	VideoID string         `json:"videoId"`
	JobID   string         `json:"jobId"`
	Result  AnalysisResult `json:"result"`
	SavedAt int64          `json:"savedAt"` // unix millis
}

// SavedRecipe is one entry of the persisted recipe list.
type SavedRecipe struct {
	RecipeID   int64  `json:"recipeId"`
	Title      string `json:"title"`
	Difficulty string `json:"difficulty,omitempty"`
	TotalTime  string `json:"totalTime,omitempty"`
	CreatedAt  string `json:"createdAt,omitempty"`
}

type SaveRecipeResponse struct {
	Message  string `json:"message"`
	RecipeID int64  `json:"recipeId,omitempty"`
}
