package services

import (
	"slices"

	"github.com/kaa08/KTB-Hackathon-11/internal/models"
)

// ScrollAnchor tells a renderer how to keep the viewport still after older
// messages were prepended: put MessageID back at Offset from the top.
type ScrollAnchor struct {
	MessageID string `json:"message_id"`
	Offset    int    `json:"offset"`
}

type HistoryView struct {
	Messages  []models.ChatMessage `json:"messages"`
	Visible   int                  `json:"visible"`
	Total     int                  `json:"total"`
	HasOlder  bool                 `json:"has_older"`
	Prepended int                  `json:"prepended,omitempty"`
	Anchor    *ScrollAnchor        `json:"anchor,omitempty"`
}

// HistoryWindow shows only the newest messages and grows backward one page
// at a time. It is not safe for concurrent use.
type HistoryWindow struct {
	pageSize int
	visible  int
}

func NewHistoryWindow(pageSize int) *HistoryWindow {
	if pageSize <= 0 {
		pageSize = 5
	}
	return &HistoryWindow{pageSize: pageSize, visible: pageSize}
}

func (w *HistoryWindow) Reset() { w.visible = w.pageSize }

// Resize sets the window to n messages. It never drops below one.
func (w *HistoryWindow) Resize(n int) { w.visible = max(n, 1) }

func (w *HistoryWindow) View(msgs []models.ChatMessage) HistoryView {
	n := min(w.visible, len(msgs))
	start := len(msgs) - n
	return HistoryView{
		Messages: slices.Clone(msgs[start:]),
		Visible:  n,
		Total:    len(msgs),
		HasOlder: start > 0,
	}
}

// GrowBackward widens the window by a page, capped at the log length. The
// anchor is the message that was on top before growing.
func (w *HistoryWindow) GrowBackward(msgs []models.ChatMessage, offset int) HistoryView {
	before := w.View(msgs)
	w.visible = min(len(msgs), max(w.visible, before.Visible)+w.pageSize)
	if w.visible < w.pageSize {
		w.visible = w.pageSize
	}

	view := w.View(msgs)
	view.Prepended = view.Visible - before.Visible
	if len(before.Messages) > 0 {
		view.Anchor = &ScrollAnchor{MessageID: before.Messages[0].ID, Offset: offset}
	}
	return view
}
