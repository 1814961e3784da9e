package services

import (
	"fmt"
	"testing"

	"github.com/kaa08/KTB-Hackathon-11/internal/models"
)

func numberedMessages(n int) []models.ChatMessage {
	msgs := make([]models.ChatMessage, n)
	for i := range msgs {
		msgs[i] = models.ChatMessage{ID: fmt.Sprintf("m%d", i), Content: fmt.Sprint(i)}
	}
	return msgs
}

func TestHistoryWindow_ShowsNewestPage(t *testing.T) {
	w := NewHistoryWindow(5)

	view := w.View(numberedMessages(12))
	if view.Visible != 5 || view.Total != 12 || !view.HasOlder || view.Messages[0].ID != "m7" {
		t.Errorf("Unexpected view %+v", view)
	}

	short := w.View(numberedMessages(3))
	if short.Visible != 3 || short.HasOlder {
		t.Errorf("Expected all 3 messages without older ones, got %+v", short)
	}
}

func TestHistoryWindow_GrowBackwardAnchorsPreviousTop(t *testing.T) {
	w := NewHistoryWindow(5)
	msgs := numberedMessages(12)

	view := w.GrowBackward(msgs, 24)
	if view.Visible != 10 || view.Prepended != 5 || view.Messages[0].ID != "m2" {
		t.Errorf("Unexpected grown view %+v", view)
	}
	if view.Anchor == nil || view.Anchor.MessageID != "m7" || view.Anchor.Offset != 24 {
		t.Errorf("Expected anchor on m7 at offset 24, got %+v", view.Anchor)
	}

	view = w.GrowBackward(msgs, 0)
	if view.Visible != 12 || view.Prepended != 2 || view.HasOlder {
		t.Errorf("Expected window capped at log length, got %+v", view)
	}

	view = w.GrowBackward(msgs, 0)
	if view.Prepended != 0 || view.Anchor.MessageID != "m0" {
		t.Errorf("Expected nothing more to prepend, got %+v", view)
	}
}

func TestHistoryWindow_NewMessagesKeepWindowSize(t *testing.T) {
	w := NewHistoryWindow(5)
	w.GrowBackward(numberedMessages(12), 0)

	view := w.View(numberedMessages(13))
	if view.Visible != 10 || view.Messages[9].ID != "m12" {
		t.Errorf("Expected newest 10 messages, got %+v", view)
	}

	w.Reset()
	if got := w.View(numberedMessages(13)).Visible; got != 5 {
		t.Errorf("Expected reset to one page, got %d", got)
	}
}
