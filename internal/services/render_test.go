package services

import (
	"bytes"
	"strings"
	"testing"

	"github.com/kaa08/KTB-Hackathon-11/internal/models"
)

func f64(v float64) *float64 { return &v }

func TestFormatTime(t *testing.T) {
	tests := map[float64]string{
		0:      "00:00",
		5.9:    "00:05",
		65:     "01:05",
		600.2:  "10:00",
		3599.9: "59:59",
		-3:     "00:00",
	}
	for in, want := range tests {
		if got := FormatTime(in); got != want {
			t.Errorf("FormatTime(%v): Expected %q, got %q", in, want, got)
		}
	}
}

func TestRenderCard_Defaults(t *testing.T) {
	card := RenderCard(models.Recipe{
		Title: "Kimchi fried rice",
		Ingredients: []models.Ingredient{
			{Name: "rice", Amount: "1", Unit: "bowl"},
			{Name: "kimchi", Amount: "100", Unit: "g", Note: "well fermented"},
			{Name: "salt"},
		},
	})

	if card.TotalTime != "?" || card.Servings != "1 serving" || card.Difficulty != "normal" {
		t.Errorf("Expected defaults, got %+v", card)
	}

	want := []string{"rice 1bowl", "kimchi 100g (well fermented)", "salt"}
	for i, line := range want {
		if card.Ingredients[i] != line {
			t.Errorf("Ingredient %d: Expected %q, got %q", i, line, card.Ingredients[i])
		}
	}
}

func TestRenderTimeline(t *testing.T) {
	res := &models.AnalysisResult{
		Recipe: models.Recipe{Steps: []models.Step{
			{StepNumber: 1, Instruction: "Chop", Timestamp: f64(12.7)},
			{StepNumber: 2, Instruction: "Fry"},
			{StepNumber: 3, Instruction: "Serve", Timestamp: f64(75)},
		}},
		Frames: []models.Frame{
			{StepNumber: 1, FrameFilename: "a.jpg"},
			{StepNumber: 1, FrameFilename: "b.jpg"},
			{StepNumber: 3, FrameFilename: "c.jpg"},
		},
	}
	frameURL := func(job, name string) string { return "/frames/" + job + "/" + name }

	entries := RenderTimeline(res, "job-1", frameURL)
	if len(entries) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(entries))
	}

	if entries[0].Label != "00:12" || entries[0].FrameURL != "/frames/job-1/b.jpg" || *entries[0].Start != 12.7 {
		t.Errorf("Unexpected first entry %+v", entries[0])
	}
	if entries[1].Label != "#2" || entries[1].Start != nil || entries[1].FrameURL != "" {
		t.Errorf("Unexpected second entry %+v", entries[1])
	}
	if entries[2].Label != "01:15" || entries[2].FrameURL != "/frames/job-1/c.jpg" {
		t.Errorf("Unexpected third entry %+v", entries[2])
	}

	for _, e := range RenderTimeline(res, "", frameURL) {
		if e.FrameURL != "" {
			t.Errorf("Expected no frame URLs without a job id, got %q", e.FrameURL)
		}
	}
}

func TestWriteText(t *testing.T) {
	res := &models.AnalysisResult{Recipe: models.Recipe{
		Title:       "Ramyeon",
		Ingredients: []models.Ingredient{{Name: "noodles", Amount: "1", Unit: "pack"}},
		Steps:       []models.Step{{StepNumber: 1, Instruction: "Boil water", Timestamp: f64(3), Tips: "550ml"}},
		Tips:        []string{"Add an egg"},
	}}

	var buf bytes.Buffer
	if err := WriteText(&buf, RenderResult(res, "j", "v", nil)); err != nil {
		t.Fatal(err)
	}

	out := buf.String()
	for _, want := range []string{"Ramyeon", "noodles 1pack", "1. [00:03] Boil water", "tip: 550ml", "* Add an egg"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected output to contain %q:\n%s", want, out)
		}
	}
}
