package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/kaa08/KTB-Hackathon-11/internal/models"
)

// maxErrorBody caps how much of a failed response is kept in an UpstreamError.
const maxErrorBody = 2048

// IdentitySource supplies the identity hint attached to every backend call.
// An empty email or token is simply not sent.
type IdentitySource interface {
	Identity() (email, token string)
}

// BackendClient talks to the single configured API base. It covers the
// analysis pipeline, frames and exports, auth, recipe persistence and the
// cooking assistant.
type BackendClient struct {
	baseURL    string
	httpClient *http.Client

	mu       sync.RWMutex
	identity IdentitySource
}

func NewBackendClient(baseURL string, timeout time.Duration) *BackendClient {
	return &BackendClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *BackendClient) BaseURL() string { return c.baseURL }

func (c *BackendClient) SetIdentity(src IdentitySource) {
	c.mu.Lock()
	c.identity = src
	c.mu.Unlock()
}

// DecorateHeaders adds the email hint and bearer token to h. It is also
// handed to the push channel client so subscriptions carry the same identity.
func (c *BackendClient) DecorateHeaders(h http.Header) {
	c.mu.RLock()
	src := c.identity
	c.mu.RUnlock()
	if src == nil {
		return
	}

	email, token := src.Identity()
	if email != "" {
		h.Set("email", email)
	}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
}

// Analysis pipeline

func (c *BackendClient) Analyze(ctx context.Context, videoURL string) (*models.AnalyzeResponse, error) {
	var resp models.AnalyzeResponse
	if err := c.doJSON(ctx, "analyze", http.MethodPost, "/recipes/analyze", models.AnalyzeRequest{URL: videoURL}, &resp); err != nil {
		return nil, err
	}
	if resp.JobID == "" {
		return nil, fmt.Errorf("analyze: response carried no job id")
	}
	return &resp, nil
}

func (c *BackendClient) GetStatus(ctx context.Context, jobID string) (*models.JobStatusResponse, error) {
	var resp models.JobStatusResponse
	if err := c.doJSON(ctx, "job status", http.MethodGet, "/recipes/status/"+url.PathEscape(jobID), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *BackendClient) GetResult(ctx context.Context, jobID string) (*models.AnalysisResult, error) {
	var resp models.AnalysisResult
	if err := c.doJSON(ctx, "job result", http.MethodGet, "/recipes/result/"+url.PathEscape(jobID), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *BackendClient) FrameURL(jobID, filename string) string {
	return c.baseURL + "/frames/" + url.PathEscape(jobID) + "/" + url.PathEscape(filename)
}

func (c *BackendClient) FetchFrame(ctx context.Context, jobID, filename string) ([]byte, string, error) {
	return c.doBytes(ctx, "frame", "/frames/"+url.PathEscape(jobID)+"/"+url.PathEscape(filename))
}

// Export downloads the rendered recipe as "markdown" or "pdf".
func (c *BackendClient) Export(ctx context.Context, jobID, format string) ([]byte, string, error) {
	q := url.Values{"format": {format}}
	return c.doBytes(ctx, "export", "/export/"+url.PathEscape(jobID)+"?"+q.Encode())
}

// Auth

func (c *BackendClient) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	var resp models.LoginResponse
	if err := c.doJSON(ctx, "login", http.MethodPost, "/auth/login", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *BackendClient) Signup(ctx context.Context, req models.SignupRequest) (*models.SignupResponse, error) {
	var resp models.SignupResponse
	if err := c.doJSON(ctx, "signup", http.MethodPost, "/user/signup", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *BackendClient) Me(ctx context.Context) (*models.User, error) {
	var resp models.User
	if err := c.doJSON(ctx, "me", http.MethodGet, "/auth/me", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *BackendClient) Logout(ctx context.Context) error {
	return c.doJSON(ctx, "logout", http.MethodPost, "/auth/logout", nil, nil)
}

// Recipe persistence

func (c *BackendClient) SaveRecipe(ctx context.Context, recipe models.Recipe) (*models.SaveRecipeResponse, error) {
	var resp models.SaveRecipeResponse
	if err := c.doJSON(ctx, "save recipe", http.MethodPost, "/recipe", recipe, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListRecipes accepts either a bare array or an object wrapping it in
// "recipes" or "recipe".
func (c *BackendClient) ListRecipes(ctx context.Context) ([]models.SavedRecipe, error) {
	var raw json.RawMessage
	if err := c.doJSON(ctx, "list recipes", http.MethodGet, "/recipes", nil, &raw); err != nil {
		return nil, err
	}
	return decodeRecipeList(raw)
}

func decodeRecipeList(raw json.RawMessage) ([]models.SavedRecipe, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return []models.SavedRecipe{}, nil
	}

	var list []models.SavedRecipe
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, fmt.Errorf("list recipes: decode: %w", err)
		}
		return list, nil
	}

	var wrapped struct {
		Recipes []models.SavedRecipe `json:"recipes"`
		Recipe  []models.SavedRecipe `json:"recipe"`
	}
	if err := json.Unmarshal(trimmed, &wrapped); err != nil {
		return nil, fmt.Errorf("list recipes: decode: %w", err)
	}
	if wrapped.Recipes != nil {
		return wrapped.Recipes, nil
	}
	if wrapped.Recipe != nil {
		return wrapped.Recipe, nil
	}
	return []models.SavedRecipe{}, nil
}

// Cooking assistant

func (c *BackendClient) ChatStart(ctx context.Context, recipe models.Recipe) (*models.ChatStartResponse, error) {
	var resp models.ChatStartResponse
	if err := c.doJSON(ctx, "chat start", http.MethodPost, "/chat/start", models.ChatStartRequest{Recipe: recipe}, &resp); err != nil {
		return nil, err
	}
	if resp.SessionID == "" {
		return nil, fmt.Errorf("chat start: response carried no session id")
	}
	return &resp, nil
}

func (c *BackendClient) ChatMessage(ctx context.Context, req models.ChatMessageRequest) (*models.ChatMessageResponse, error) {
	var resp models.ChatMessageResponse
	if err := c.doJSON(ctx, "chat message", http.MethodPost, "/chat/message", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *BackendClient) ChatCompleteStep(ctx context.Context, sessionID string, step int) (*models.CompleteStepResponse, error) {
	path := fmt.Sprintf("/chat/session/%s/complete-step/%d", url.PathEscape(sessionID), step)
	var resp models.CompleteStepResponse
	if err := c.doJSON(ctx, "complete step", http.MethodPost, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *BackendClient) doJSON(ctx context.Context, op, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: marshal request: %w", op, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%s: create request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.DecorateHeaders(req.Header)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: send request: %w", op, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: read response: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return upstreamError(op, resp.StatusCode, respBody)
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%s: unmarshal response: %w", op, err)
	}
	return nil
}

func (c *BackendClient) doBytes(ctx context.Context, op, path string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, "", fmt.Errorf("%s: create request: %w", op, err)
	}
	c.DecorateHeaders(req.Header)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("%s: send request: %w", op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("%s: read response: %w", op, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, "", upstreamError(op, resp.StatusCode, data)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

func upstreamError(op string, status int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	if len(msg) > maxErrorBody {
		msg = msg[:maxErrorBody]
	}
	switch status {
	case http.StatusUnauthorized:
		return &UnauthorizedError{Message: "Login is required"}
	case http.StatusConflict:
		if msg == "" {
			msg = "The request conflicts with existing data"
		}
		return &ConflictError{Message: msg}
	}
	return &UpstreamError{Op: op, Status: status, Body: msg}
}
