package topic_http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"topic-orchestrator/internal/domain"
	"topic-orchestrator/internal/usecase"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const (
	defaultListLimit = 10
	maxListLimit     = 50
)

// Handler exposes the topic, research-status and feed endpoints.
type Handler struct {
	lifecycle usecase.LifecycleUsecase
	suggest   usecase.SuggestUsecase
	feed      usecase.FeedUsecase
	notifier  *usecase.StatusNotifier
	topicRepo domain.TopicRepository
	taskRepo  domain.TaskRepository
}

func NewHandler(
	lifecycle usecase.LifecycleUsecase,
	suggest usecase.SuggestUsecase,
	feed usecase.FeedUsecase,
	notifier *usecase.StatusNotifier,
	topicRepo domain.TopicRepository,
	taskRepo domain.TaskRepository,
) *Handler {
	return &Handler{
		lifecycle: lifecycle,
		suggest:   suggest,
		feed:      feed,
		notifier:  notifier,
		topicRepo: topicRepo,
		taskRepo:  taskRepo,
	}
}

// Register wires all routes onto the echo instance. The status poll
// limiter applies only to the polling endpoint; the SSE stream carries a
// single long-lived request.
func (h *Handler) Register(e *echo.Echo, pollLimiter *PollRateLimiter) {
	e.GET("/topics/suggestions", h.ListSuggestions)
	e.POST("/topics/suggestions/generate", h.GenerateSuggestions)
	e.POST("/topics/suggestions/:id/accept", h.AcceptSuggestion)
	e.POST("/topics/suggestions/:id/reject", h.RejectSuggestion)
	e.GET("/topics/preferences", h.GetPreferences)
	e.PUT("/topics/preferences", h.UpdatePreferences)
	e.GET("/topics/:id/feed", h.TopicFeed)
	e.GET("/research/status/:task_id", h.ResearchStatus, pollLimiter.Middleware())
	e.GET("/research/status/:task_id/stream", h.ResearchStatusStream)
	e.GET("/feed", h.Feed)
}

type topicResponse struct {
	ID            string  `json:"id"`
	Topic         string  `json:"topic"`
	Context       string  `json:"context"`
	PriorityScore float64 `json:"priority_score"`
	Status        string  `json:"status"`
	SourceType    string  `json:"source_type"`
	SourceRef     string  `json:"source_ref,omitempty"`
	NotebookID    *string `json:"notebook_id,omitempty"`
	CreatedAt     string  `json:"created_at"`
}

func toTopicResponse(t *domain.SuggestedTopic) topicResponse {
	resp := topicResponse{
		ID:            t.ID.String(),
		Topic:         t.Topic,
		Context:       t.Context,
		PriorityScore: t.PriorityScore,
		Status:        string(t.Status),
		SourceType:    t.SourceType,
		SourceRef:     t.SourceRef,
		CreatedAt:     t.CreatedAt.Format(time.RFC3339),
	}
	if t.NotebookID != nil {
		id := t.NotebookID.String()
		resp.NotebookID = &id
	}
	return resp
}

// List pending topic suggestions for a user
// (GET /topics/suggestions)
func (h *Handler) ListSuggestions(c echo.Context) error {
	userID := c.QueryParam("user_id")
	if userID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "user_id is required"})
	}

	status := domain.TopicStatus(c.QueryParam("status"))
	if status == "" {
		status = domain.TopicPending
	}
	if !status.Valid() {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid status"})
	}

	limit := defaultListLimit
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > maxListLimit {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "limit must be between 1 and 50"})
		}
		limit = parsed
	}

	notebookID, err := optionalUUID(c.QueryParam("notebook_id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid notebook_id"})
	}

	topics, err := h.suggest.ListSuggestions(c.Request().Context(), userID, notebookID, status, limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	out := make([]topicResponse, 0, len(topics))
	for _, t := range topics {
		out = append(out, toTopicResponse(t))
	}
	return c.JSON(http.StatusOK, out)
}

type generateRequest struct {
	UserID     string `json:"user_id"`
	NotebookID string `json:"notebook_id"`
	Content    string `json:"content"`
	SourceType string `json:"source_type"`
	SourceRef  string `json:"source_ref"`
}

// Generate suggestions from one ingested content unit
// (POST /topics/suggestions/generate)
func (h *Handler) GenerateSuggestions(c echo.Context) error {
	var req generateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}
	if req.UserID == "" || req.Content == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "user_id and content are required"})
	}

	notebookID, err := optionalUUID(req.NotebookID)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid notebook_id"})
	}

	content := domain.ContentUnit{
		Content:    req.Content,
		SourceType: req.SourceType,
		SourceRef:  req.SourceRef,
	}
	topics, err := h.suggest.Generate(c.Request().Context(), req.UserID, notebookID, content)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	out := make([]topicResponse, 0, len(topics))
	for _, t := range topics {
		out = append(out, toTopicResponse(t))
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{"topics": out})
}

// Accept a suggestion and start research
// (POST /topics/suggestions/:id/accept)
func (h *Handler) AcceptSuggestion(c echo.Context) error {
	topicID, userID, ok := h.topicParams(c)
	if !ok {
		return nil
	}

	out, err := h.lifecycle.Accept(c.Request().Context(), topicID, userID)
	if errors.Is(err, domain.ErrTopicNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "topic not found"})
	}
	if errors.Is(err, domain.ErrAlreadyProcessed) {
		return c.JSON(http.StatusConflict, map[string]string{"error": "AlreadyProcessed"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusAccepted, map[string]string{
		"status":  string(out.TopicStatus),
		"task_id": out.TaskID.String(),
	})
}

// Reject a suggestion
// (POST /topics/suggestions/:id/reject)
func (h *Handler) RejectSuggestion(c echo.Context) error {
	topicID, userID, ok := h.topicParams(c)
	if !ok {
		return nil
	}

	err := h.lifecycle.Reject(c.Request().Context(), topicID, userID)
	if errors.Is(err, domain.ErrTopicNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "topic not found"})
	}
	if errors.Is(err, domain.ErrAlreadyProcessed) {
		return c.JSON(http.StatusConflict, map[string]string{"error": "AlreadyProcessed"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, map[string]string{"status": string(domain.TopicRejected)})
}

type statusResponse struct {
	TaskID          string  `json:"task_id"`
	Topic           string  `json:"topic"`
	Status          string  `json:"status"`
	TopicStatus     string  `json:"topic_status"`
	ProgressMessage string  `json:"progress_message"`
	FailureReason   string  `json:"failure_reason,omitempty"`
	CompletedAt     *string `json:"completed_at,omitempty"`
}

func toStatusResponse(s *usecase.StatusOutput) statusResponse {
	resp := statusResponse{
		TaskID:          s.TaskID.String(),
		Topic:           s.Topic,
		Status:          string(s.TaskStatus),
		TopicStatus:     string(s.TopicStatus),
		ProgressMessage: s.ProgressMessage,
		FailureReason:   s.FailureReason,
	}
	if s.CompletedAt != nil {
		ts := s.CompletedAt.Format(time.RFC3339)
		resp.CompletedAt = &ts
	}
	return resp
}

// Poll research task status. Terminal payloads are stable forever.
// (GET /research/status/:task_id)
func (h *Handler) ResearchStatus(c echo.Context) error {
	taskID, err := uuid.Parse(c.Param("task_id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid task_id"})
	}

	status, err := h.lifecycle.Status(c.Request().Context(), taskID)
	if errors.Is(err, domain.ErrTaskNotFound) || errors.Is(err, domain.ErrTopicNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "task not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, toStatusResponse(status))
}

// Push research task status over SSE: one event per transition, closing
// after the terminal event.
// (GET /research/status/:task_id/stream)
func (h *Handler) ResearchStatusStream(c echo.Context) error {
	taskID, err := uuid.Parse(c.Param("task_id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid task_id"})
	}

	// Subscribe before the initial read so no transition is lost between
	// the two.
	updates, cancel := h.notifier.Subscribe(taskID)
	defer cancel()

	status, err := h.lifecycle.Status(c.Request().Context(), taskID)
	if errors.Is(err, domain.ErrTaskNotFound) || errors.Is(err, domain.ErrTopicNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "task not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set("Cache-Control", "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)

	if err := writeSSE(c, toStatusResponse(status)); err != nil {
		return err
	}
	if status.TaskStatus.Terminal() {
		return nil
	}

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			payload := statusResponse{
				TaskID:          update.TaskID.String(),
				Topic:           status.Topic,
				Status:          string(update.TaskStatus),
				TopicStatus:     string(update.TopicStatus),
				ProgressMessage: update.ProgressMessage,
			}
			if update.CompletedAt != nil {
				ts := update.CompletedAt.Format(time.RFC3339)
				payload.CompletedAt = &ts
			}
			if err := writeSSE(c, payload); err != nil {
				return err
			}
			if update.TaskStatus.Terminal() {
				return nil
			}
		}
	}
}

func writeSSE(c echo.Context, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(c.Response(), "data: %s\n\n", data); err != nil {
		return err
	}
	c.Response().Flush()
	return nil
}

type feedEntryResponse struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	RefID     string `json:"ref_id"`
	CreatedAt string `json:"created_at"`
}

func toFeedEntryResponse(e *domain.FeedEntry) feedEntryResponse {
	return feedEntryResponse{
		ID:        e.ID.String(),
		Kind:      string(e.Kind),
		RefID:     e.RefID.String(),
		CreatedAt: e.CreatedAt.Format(time.RFC3339),
	}
}

// Cursor-paginated feed read path
// (GET /feed)
func (h *Handler) Feed(c echo.Context) error {
	userID := c.QueryParam("user_id")
	if userID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "user_id is required"})
	}

	limit := defaultListLimit
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > maxListLimit {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "limit must be between 1 and 50"})
		}
		limit = parsed
	}

	cursor, err := optionalUUID(c.QueryParam("cursor"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid cursor"})
	}

	entries, err := h.feed.List(c.Request().Context(), userID, cursor, limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	out := make([]feedEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toFeedEntryResponse(e))
	}
	resp := map[string]interface{}{"entries": out}
	if len(entries) == limit {
		resp["next_cursor"] = entries[len(entries)-1].ID.String()
	}
	return c.JSON(http.StatusOK, resp)
}

// Feed entries produced for one topic's research
// (GET /topics/:id/feed)
func (h *Handler) TopicFeed(c echo.Context) error {
	topicID, userID, ok := h.topicParams(c)
	if !ok {
		return nil
	}

	ctx := c.Request().Context()
	topic, err := h.topicRepo.GetByID(ctx, topicID, userID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if topic == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "topic not found"})
	}

	var entries []*domain.FeedEntry
	task, err := h.taskRepo.FindLatestByTopic(ctx, topicID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if task != nil {
		entries, err = h.feed.ListForTask(ctx, task.ID)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
		}
	}

	out := make([]feedEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toFeedEntryResponse(e))
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"topic": toTopicResponse(topic),
		"items": out,
		"total": len(out),
	})
}

type preferencesResponse struct {
	AutoSuggest      bool     `json:"auto_suggest_enabled"`
	SuggestionCount  int      `json:"suggestion_count"`
	MinPriorityScore float64  `json:"min_priority_score"`
	PreferredDomains []string `json:"preferred_domains"`
}

func toPreferencesResponse(p *domain.SuggestionPreference) preferencesResponse {
	return preferencesResponse{
		AutoSuggest:      p.AutoSuggest,
		SuggestionCount:  p.SuggestionCount,
		MinPriorityScore: p.MinPriorityScore,
		PreferredDomains: p.PreferredDomains,
	}
}

// (GET /topics/preferences)
func (h *Handler) GetPreferences(c echo.Context) error {
	userID := c.QueryParam("user_id")
	if userID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "user_id is required"})
	}

	pref, err := h.suggest.GetPreferences(c.Request().Context(), userID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, toPreferencesResponse(pref))
}

type preferencesUpdateRequest struct {
	AutoSuggest      *bool     `json:"auto_suggest_enabled"`
	SuggestionCount  *int      `json:"suggestion_count"`
	MinPriorityScore *float64  `json:"min_priority_score"`
	PreferredDomains *[]string `json:"preferred_domains"`
}

// (PUT /topics/preferences)
func (h *Handler) UpdatePreferences(c echo.Context) error {
	userID := c.QueryParam("user_id")
	if userID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "user_id is required"})
	}

	var req preferencesUpdateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}
	if req.AutoSuggest == nil && req.SuggestionCount == nil && req.MinPriorityScore == nil && req.PreferredDomains == nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "no valid preferences provided"})
	}

	pref, err := h.suggest.UpdatePreferences(c.Request().Context(), userID, usecase.PreferenceUpdate{
		AutoSuggest:      req.AutoSuggest,
		SuggestionCount:  req.SuggestionCount,
		MinPriorityScore: req.MinPriorityScore,
		PreferredDomains: req.PreferredDomains,
	})
	if errors.Is(err, usecase.ErrInvalidPreference) {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, toPreferencesResponse(pref))
}

// topicParams parses the topic id and user_id. On failure it writes the
// 400 response and reports ok=false.
func (h *Handler) topicParams(c echo.Context) (uuid.UUID, string, bool) {
	topicID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		_ = c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid topic id"})
		return uuid.Nil, "", false
	}
	userID := c.QueryParam("user_id")
	if userID == "" {
		_ = c.JSON(http.StatusBadRequest, map[string]string{"error": "user_id is required"})
		return uuid.Nil, "", false
	}
	return topicID, userID, true
}

func optionalUUID(raw string) (*uuid.UUID, error) {
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, err
	}
	return &id, nil
}
