package services

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"math"
	"net/http"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/kaa08/KTB-Hackathon-11/internal/models"
)

type ChatStatus string

const (
	ChatIdle     ChatStatus = "idle"
	ChatCooking  ChatStatus = "cooking"
	ChatFinished ChatStatus = "finished"
)

const (
	defaultPhotoPrompt = "Take a look at this photo"
	chatErrorReply     = "Oops, something went wrong. Could you try again?"
	maxImageBytes      = 10 << 20
)

type ChatBackend interface {
	ChatStart(ctx context.Context, recipe models.Recipe) (*models.ChatStartResponse, error)
	ChatMessage(ctx context.Context, req models.ChatMessageRequest) (*models.ChatMessageResponse, error)
	ChatCompleteStep(ctx context.Context, sessionID string, step int) (*models.CompleteStepResponse, error)
}

type ChatSnapshot struct {
	SessionID      string     `json:"session_id,omitempty"`
	Status         ChatStatus `json:"status"`
	RecipeTitle    string     `json:"recipe_title,omitempty"`
	CurrentStep    int        `json:"current_step"`
	TotalSteps     int        `json:"total_steps"`
	CompletedSteps []int      `json:"completed_steps"`
	Progress       int        `json:"progress"`
	MessageCount   int        `json:"message_count"`
	PendingImage   bool       `json:"pending_image"`
}

type imageAttachment struct {
	base64  string
	preview string
}

// ChatSession is the cooking conversation for one recipe. The full message
// log is kept in memory; HistoryWindow decides how much of it is shown.
type ChatSession struct {
	backend  ChatBackend
	onUpdate func(ChatSnapshot)
	window   *HistoryWindow

	mu        sync.Mutex
	gen       uint64
	recipe    models.Recipe
	sessionID string
	status    ChatStatus
	current   int
	completed []int
	messages  []models.ChatMessage
	image     *imageAttachment
}

func NewChatSession(backend ChatBackend, pageSize int, onUpdate func(ChatSnapshot)) *ChatSession {
	return &ChatSession{
		backend:  backend,
		onUpdate: onUpdate,
		window:   NewHistoryWindow(pageSize),
		status:   ChatIdle,
	}
}

// StartSession posts the recipe and seeds the log with a welcome message.
// Any previous conversation is replaced.
func (c *ChatSession) StartSession(ctx context.Context, recipe models.Recipe) error {
	resp, err := c.backend.ChatStart(ctx, recipe)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.gen++
	c.recipe = recipe
	c.sessionID = resp.SessionID
	c.status = ChatCooking
	c.current = 1
	if len(recipe.Steps) > 0 {
		c.current = recipe.Steps[0].StepNumber
	}
	c.completed = nil
	c.image = nil
	c.messages = []models.ChatMessage{assistantMessage(welcomeText(recipe), 0)}
	c.window.Reset()
	snap := c.snapshotLocked()
	c.mu.Unlock()

	log.Printf("Chat: session %s started for %q", resp.SessionID, recipe.Title)
	c.publish(snap)
	return nil
}

// AttachImage stages a photo for the next message. The preview is a data
// URL suitable for an <img> tag.
func (c *ChatSession) AttachImage(data []byte, contentType string) error {
	if len(data) == 0 {
		return &ValidationError{Fields: map[string]string{"image": "image is empty"}}
	}
	if len(data) > maxImageBytes {
		return &ValidationError{Fields: map[string]string{"image": "image is larger than 10MB"}}
	}
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}
	if !strings.HasPrefix(contentType, "image/") {
		return &ValidationError{Fields: map[string]string{"image": "file is not an image"}}
	}

	encoded := base64.StdEncoding.EncodeToString(data)
	c.mu.Lock()
	c.image = &imageAttachment{
		base64:  encoded,
		preview: "data:" + contentType + ";base64," + encoded,
	}
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.publish(snap)
	return nil
}

// AttachImageBase64 accepts either raw base64 or a data URL.
func (c *ChatSession) AttachImageBase64(encoded string) error {
	contentType := ""
	if rest, ok := strings.CutPrefix(encoded, "data:"); ok {
		meta, payload, found := strings.Cut(rest, ",")
		if !found {
			return &ValidationError{Fields: map[string]string{"image": "malformed data URL"}}
		}
		contentType = strings.TrimSuffix(meta, ";base64")
		encoded = payload
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return &ValidationError{Fields: map[string]string{"image": "image is not valid base64"}}
	}
	return c.AttachImage(data, contentType)
}

func (c *ChatSession) ClearImage() {
	c.mu.Lock()
	c.image = nil
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.publish(snap)
}

// SendMessage appends the user message before the round trip, then the
// reply or a fallback message. The staged image is cleared either way
// unless the session was replaced meanwhile.
func (c *ChatSession) SendMessage(ctx context.Context, text string) (*models.ChatMessage, error) {
	c.mu.Lock()
	if c.sessionID == "" {
		c.mu.Unlock()
		return nil, ErrNoSession
	}
	img := c.image
	if strings.TrimSpace(text) == "" && img == nil {
		c.mu.Unlock()
		return nil, &ValidationError{Fields: map[string]string{"message": "type a message or attach a photo"}}
	}

	gen := c.gen
	step := c.current
	user := models.ChatMessage{
		ID:         uuid.NewString(),
		Role:       models.RoleUser,
		Content:    text,
		StepNumber: step,
	}
	req := models.ChatMessageRequest{
		SessionID:  c.sessionID,
		StepNumber: step,
		Message:    text,
	}
	if img != nil {
		user.ImageURL = img.preview
		req.ImageBase64 = &img.base64
	}
	if strings.TrimSpace(req.Message) == "" {
		req.Message = defaultPhotoPrompt
	}
	c.messages = append(c.messages, user)
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.publish(snap)

	resp, err := c.backend.ChatMessage(ctx, req)

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return nil, fmt.Errorf("chat session was replaced")
	}
	c.image = nil

	var reply models.ChatMessage
	if err != nil {
		log.Printf("Chat: message in session %s failed: %v", req.SessionID, err)
		reply = assistantMessage(chatErrorReply, 0)
	} else {
		reply = assistantMessage(resp.Reply, step)
		if resp.SessionStatus != nil {
			c.completed = normalizeSteps(resp.SessionStatus.CompletedSteps)
		}
	}
	c.messages = append(c.messages, reply)
	snap = c.snapshotLocked()
	c.mu.Unlock()
	c.publish(snap)
	return &reply, err
}

// CompleteStep marks the current step done. The backend either finishes the
// session or names the next step.
func (c *ChatSession) CompleteStep(ctx context.Context) (*models.CompleteStepResponse, error) {
	c.mu.Lock()
	if c.sessionID == "" {
		c.mu.Unlock()
		return nil, ErrNoSession
	}
	if c.status == ChatFinished {
		c.mu.Unlock()
		return nil, ErrSessionFinished
	}
	gen, sessionID, step := c.gen, c.sessionID, c.current
	c.mu.Unlock()

	resp, err := c.backend.ChatCompleteStep(ctx, sessionID, step)
	if err != nil {
		log.Printf("Chat: completing step %d in session %s failed: %v", step, sessionID, err)
		return nil, err
	}

	c.mu.Lock()
	if gen != c.gen || c.status == ChatFinished {
		c.mu.Unlock()
		return resp, nil
	}
	c.completed = normalizeSteps(append(c.completed, step))

	if resp.IsFinished {
		c.status = ChatFinished
		c.messages = append(c.messages, assistantMessage(
			fmt.Sprintf("🎉 **Congratulations! %s is done!**\n\nGreat job, enjoy your meal 🍽️\n\nHow did it go today?", c.recipe.Title), 0))
	} else {
		next := resp.NextStep
		if next == 0 {
			next = step + 1
		}
		c.current = next
		info, _ := c.recipe.StepByNumber(next)
		c.messages = append(c.messages, assistantMessage(
			fmt.Sprintf("✅ **Step %d done!**\n\nNext up is **Step %d**:\n%s\n\nStart whenever you're ready!", step, next, stepBlurb(info)), next))
	}
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.publish(snap)
	return resp, nil
}

// SelectStep jumps to step n without completing anything.
func (c *ChatSession) SelectStep(n int) error {
	c.mu.Lock()
	if c.sessionID == "" {
		c.mu.Unlock()
		return ErrNoSession
	}
	if c.status == ChatFinished {
		c.mu.Unlock()
		return ErrSessionFinished
	}
	info, ok := c.recipe.StepByNumber(n)
	if !ok {
		c.mu.Unlock()
		return &ValidationError{Fields: map[string]string{"step": fmt.Sprintf("step %d does not exist", n)}}
	}

	c.current = n
	c.messages = append(c.messages, assistantMessage(
		fmt.Sprintf("📍 Moved to **Step %d**!\n\n%s\n\nLet me know if you have questions!", n, stepBlurb(info)), n))
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.publish(snap)
	return nil
}

func (c *ChatSession) Snapshot() ChatSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *ChatSession) Messages() []models.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.messages)
}

// History returns the visible tail of the log.
func (c *ChatSession) History() HistoryView {
	return c.HistoryAt(0, "", 0)
}

// HistoryAt resizes the window to visible messages when visible > 0. An
// anchor that is still inside the returned window is echoed back with offset
// so the renderer can put it back where it was.
func (c *ChatSession) HistoryAt(visible int, anchor string, offset int) HistoryView {
	c.mu.Lock()
	defer c.mu.Unlock()
	if visible > 0 {
		c.window.Resize(visible)
	}
	view := c.window.View(c.messages)
	if anchor != "" && slices.ContainsFunc(view.Messages, func(m models.ChatMessage) bool { return m.ID == anchor }) {
		view.Anchor = &ScrollAnchor{MessageID: anchor, Offset: offset}
	}
	return view
}

// LoadOlder grows the visible window backward by one page. offset is the
// distance of the first visible message from the top of the viewport and is
// echoed back in the anchor.
func (c *ChatSession) LoadOlder(offset int) HistoryView {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.window.GrowBackward(c.messages, offset)
}

func (c *ChatSession) snapshotLocked() ChatSnapshot {
	return ChatSnapshot{
		SessionID:      c.sessionID,
		Status:         c.status,
		RecipeTitle:    c.recipe.Title,
		CurrentStep:    c.current,
		TotalSteps:     len(c.recipe.Steps),
		CompletedSteps: slices.Clone(c.completed),
		Progress:       StepProgress(len(c.completed), len(c.recipe.Steps)),
		MessageCount:   len(c.messages),
		PendingImage:   c.image != nil,
	}
}

func (c *ChatSession) publish(s ChatSnapshot) {
	if c.onUpdate != nil {
		c.onUpdate(s)
	}
}

// StepProgress is round(completed/total*100), 0 for an empty recipe.
func StepProgress(completed, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(completed) / float64(total) * 100))
}

func normalizeSteps(steps []int) []int {
	out := slices.Clone(steps)
	slices.Sort(out)
	return slices.Compact(out)
}

func assistantMessage(content string, step int) models.ChatMessage {
	return models.ChatMessage{
		ID:         uuid.NewString(),
		Role:       models.RoleAssistant,
		Content:    content,
		StepNumber: step,
	}
}

func welcomeText(r models.Recipe) string {
	return fmt.Sprintf("Hi! Today we're making **%s** 🍳\n\nThere are %d steps in total. Start with **Step 1** when you're ready!\n\nAsk me anything along the way, or send a photo and I'll give you feedback 📸",
		r.Title, len(r.Steps))
}

func stepBlurb(s models.Step) string {
	var b strings.Builder
	b.WriteString("> ")
	b.WriteString(s.Instruction)
	if s.Tips != "" {
		b.WriteString("\n\n💡 Tip: ")
		b.WriteString(s.Tips)
	}
	return b.String()
}
