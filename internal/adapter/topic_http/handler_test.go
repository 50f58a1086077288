package topic_http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"topic-orchestrator/internal/domain"
	"topic-orchestrator/internal/usecase"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

type stubLifecycle struct {
	acceptFn func(ctx context.Context, topicID uuid.UUID, userID string) (*usecase.AcceptOutput, error)
	rejectFn func(ctx context.Context, topicID uuid.UUID, userID string) error
	statusFn func(ctx context.Context, taskID uuid.UUID) (*usecase.StatusOutput, error)
}

func (s *stubLifecycle) Accept(ctx context.Context, topicID uuid.UUID, userID string) (*usecase.AcceptOutput, error) {
	return s.acceptFn(ctx, topicID, userID)
}

func (s *stubLifecycle) Reject(ctx context.Context, topicID uuid.UUID, userID string) error {
	return s.rejectFn(ctx, topicID, userID)
}

func (s *stubLifecycle) Status(ctx context.Context, taskID uuid.UUID) (*usecase.StatusOutput, error) {
	return s.statusFn(ctx, taskID)
}

func (s *stubLifecycle) OnTaskStarted(ctx context.Context, taskID uuid.UUID) {}
func (s *stubLifecycle) OnTaskCompleted(ctx context.Context, taskID uuid.UUID, result *domain.ResearchResult) error {
	return nil
}
func (s *stubLifecycle) OnTaskFailed(ctx context.Context, taskID uuid.UUID, reason string) error {
	return nil
}

type stubSuggest struct {
	generateFn func(ctx context.Context, userID string, notebookID *uuid.UUID, content domain.ContentUnit) ([]*domain.SuggestedTopic, error)
	listFn     func(ctx context.Context, userID string, notebookID *uuid.UUID, status domain.TopicStatus, limit int) ([]*domain.SuggestedTopic, error)
	getPrefFn  func(ctx context.Context, userID string) (*domain.SuggestionPreference, error)
	updPrefFn  func(ctx context.Context, userID string, update usecase.PreferenceUpdate) (*domain.SuggestionPreference, error)
}

func (s *stubSuggest) Generate(ctx context.Context, userID string, notebookID *uuid.UUID, content domain.ContentUnit) ([]*domain.SuggestedTopic, error) {
	return s.generateFn(ctx, userID, notebookID, content)
}

func (s *stubSuggest) ListSuggestions(ctx context.Context, userID string, notebookID *uuid.UUID, status domain.TopicStatus, limit int) ([]*domain.SuggestedTopic, error) {
	return s.listFn(ctx, userID, notebookID, status, limit)
}

func (s *stubSuggest) GetPreferences(ctx context.Context, userID string) (*domain.SuggestionPreference, error) {
	return s.getPrefFn(ctx, userID)
}

func (s *stubSuggest) UpdatePreferences(ctx context.Context, userID string, update usecase.PreferenceUpdate) (*domain.SuggestionPreference, error) {
	return s.updPrefFn(ctx, userID, update)
}

type stubFeed struct {
	listFn    func(ctx context.Context, userID string, cursor *uuid.UUID, limit int) ([]*domain.FeedEntry, error)
	forTaskFn func(ctx context.Context, taskID uuid.UUID) ([]*domain.FeedEntry, error)
}

func (s *stubFeed) Populate(ctx context.Context, task *domain.ResearchTask, topic *domain.SuggestedTopic, result *domain.ResearchResult) error {
	return nil
}

func (s *stubFeed) List(ctx context.Context, userID string, cursor *uuid.UUID, limit int) ([]*domain.FeedEntry, error) {
	return s.listFn(ctx, userID, cursor, limit)
}

func (s *stubFeed) ListForTask(ctx context.Context, taskID uuid.UUID) ([]*domain.FeedEntry, error) {
	return s.forTaskFn(ctx, taskID)
}

type stubTopicRepo struct {
	getByIDFn func(ctx context.Context, id uuid.UUID, userID string) (*domain.SuggestedTopic, error)
}

func (s *stubTopicRepo) Create(ctx context.Context, topic *domain.SuggestedTopic) error { return nil }
func (s *stubTopicRepo) GetByID(ctx context.Context, id uuid.UUID, userID string) (*domain.SuggestedTopic, error) {
	return s.getByIDFn(ctx, id, userID)
}
func (s *stubTopicRepo) ListByStatus(ctx context.Context, userID string, notebookID *uuid.UUID, status domain.TopicStatus, limit int) ([]*domain.SuggestedTopic, error) {
	return nil, nil
}
func (s *stubTopicRepo) TransitionStatus(ctx context.Context, id uuid.UUID, userID string, from, to domain.TopicStatus) (bool, error) {
	return false, nil
}
func (s *stubTopicRepo) SetStatus(ctx context.Context, id uuid.UUID, status domain.TopicStatus) error {
	return nil
}

type stubTaskRepo struct {
	findLatestFn func(ctx context.Context, topicID uuid.UUID) (*domain.ResearchTask, error)
}

func (s *stubTaskRepo) Create(ctx context.Context, task *domain.ResearchTask) error { return nil }
func (s *stubTaskRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.ResearchTask, error) {
	return nil, nil
}
func (s *stubTaskRepo) FindActiveByTopic(ctx context.Context, topicID uuid.UUID) (*domain.ResearchTask, error) {
	return nil, nil
}
func (s *stubTaskRepo) FindLatestByTopic(ctx context.Context, topicID uuid.UUID) (*domain.ResearchTask, error) {
	return s.findLatestFn(ctx, topicID)
}
func (s *stubTaskRepo) UpdateProgress(ctx context.Context, id uuid.UUID, status domain.TaskStatus, message string) error {
	return nil
}
func (s *stubTaskRepo) Complete(ctx context.Context, id uuid.UUID, status domain.TaskStatus, result *domain.ResearchResult, failureReason string, completedAt time.Time) (bool, error) {
	return false, nil
}

type handlerStubs struct {
	lifecycle *stubLifecycle
	suggest   *stubSuggest
	feed      *stubFeed
	topics    *stubTopicRepo
	tasks     *stubTaskRepo
}

func newTestServer(t *testing.T, stubs handlerStubs) *echo.Echo {
	t.Helper()
	e := echo.New()
	h := NewHandler(stubs.lifecycle, stubs.suggest, stubs.feed, usecase.NewStatusNotifier(), stubs.topics, stubs.tasks)
	h.Register(e, NewPollRateLimiter(rate.Limit(1000), 1000))
	return e
}

func doRequest(e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestAcceptSuggestion_Accepted(t *testing.T) {
	taskID := uuid.New()
	e := newTestServer(t, handlerStubs{lifecycle: &stubLifecycle{
		acceptFn: func(ctx context.Context, topicID uuid.UUID, userID string) (*usecase.AcceptOutput, error) {
			assert.Equal(t, "user-1", userID)
			return &usecase.AcceptOutput{TaskID: taskID, TopicStatus: domain.TopicResearching}, nil
		},
	}})

	rec := doRequest(e, http.MethodPost, "/topics/suggestions/"+uuid.NewString()+"/accept?user_id=user-1", "")
	require.Equal(t, http.StatusAccepted, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "researching", body["status"])
	assert.Equal(t, taskID.String(), body["task_id"])
}

func TestAcceptSuggestion_Conflict(t *testing.T) {
	e := newTestServer(t, handlerStubs{lifecycle: &stubLifecycle{
		acceptFn: func(ctx context.Context, topicID uuid.UUID, userID string) (*usecase.AcceptOutput, error) {
			return nil, domain.ErrAlreadyProcessed
		},
	}})

	rec := doRequest(e, http.MethodPost, "/topics/suggestions/"+uuid.NewString()+"/accept?user_id=user-1", "")
	require.Equal(t, http.StatusConflict, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "AlreadyProcessed", body["error"])
}

func TestAcceptSuggestion_NotFound(t *testing.T) {
	e := newTestServer(t, handlerStubs{lifecycle: &stubLifecycle{
		acceptFn: func(ctx context.Context, topicID uuid.UUID, userID string) (*usecase.AcceptOutput, error) {
			return nil, domain.ErrTopicNotFound
		},
	}})

	rec := doRequest(e, http.MethodPost, "/topics/suggestions/"+uuid.NewString()+"/accept?user_id=user-1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAcceptSuggestion_BadRequests(t *testing.T) {
	e := newTestServer(t, handlerStubs{lifecycle: &stubLifecycle{}})

	rec := doRequest(e, http.MethodPost, "/topics/suggestions/not-a-uuid/accept?user_id=user-1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(e, http.MethodPost, "/topics/suggestions/"+uuid.NewString()+"/accept", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRejectSuggestion_OK(t *testing.T) {
	e := newTestServer(t, handlerStubs{lifecycle: &stubLifecycle{
		rejectFn: func(ctx context.Context, topicID uuid.UUID, userID string) error {
			return nil
		},
	}})

	rec := doRequest(e, http.MethodPost, "/topics/suggestions/"+uuid.NewString()+"/reject?user_id=user-1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "rejected", body["status"])
}

func TestResearchStatus_OK(t *testing.T) {
	taskID := uuid.New()
	completed := time.Now()
	e := newTestServer(t, handlerStubs{lifecycle: &stubLifecycle{
		statusFn: func(ctx context.Context, id uuid.UUID) (*usecase.StatusOutput, error) {
			assert.Equal(t, taskID, id)
			return &usecase.StatusOutput{
				TaskID:          taskID,
				Topic:           "Tidal locking",
				TopicStatus:     domain.TopicCompleted,
				TaskStatus:      domain.TaskCompleted,
				ProgressMessage: "Research completed",
				CompletedAt:     &completed,
			}, nil
		},
	}})

	rec := doRequest(e, http.MethodGet, "/research/status/"+taskID.String(), "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, taskID.String(), body.TaskID)
	assert.Equal(t, "completed", body.Status)
	assert.Equal(t, "completed", body.TopicStatus)
	require.NotNil(t, body.CompletedAt)
}

func TestResearchStatus_NotFound(t *testing.T) {
	e := newTestServer(t, handlerStubs{lifecycle: &stubLifecycle{
		statusFn: func(ctx context.Context, id uuid.UUID) (*usecase.StatusOutput, error) {
			return nil, domain.ErrTaskNotFound
		},
	}})

	rec := doRequest(e, http.MethodGet, "/research/status/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestResearchStatus_RateLimited(t *testing.T) {
	taskID := uuid.New()
	e := echo.New()
	h := NewHandler(&stubLifecycle{
		statusFn: func(ctx context.Context, id uuid.UUID) (*usecase.StatusOutput, error) {
			return &usecase.StatusOutput{TaskID: id, TaskStatus: domain.TaskProcessing}, nil
		},
	}, nil, nil, usecase.NewStatusNotifier(), nil, nil)
	h.Register(e, NewPollRateLimiter(rate.Limit(1), 2))

	target := "/research/status/" + taskID.String()
	assert.Equal(t, http.StatusOK, doRequest(e, http.MethodGet, target, "").Code)
	assert.Equal(t, http.StatusOK, doRequest(e, http.MethodGet, target, "").Code)
	assert.Equal(t, http.StatusTooManyRequests, doRequest(e, http.MethodGet, target, "").Code)
}

func TestFeed_PaginatesWithCursor(t *testing.T) {
	entries := []*domain.FeedEntry{
		{ID: uuid.New(), UserID: "user-1", Kind: domain.FeedKindResearch, RefID: uuid.New(), CreatedAt: time.Now()},
		{ID: uuid.New(), UserID: "user-1", Kind: domain.FeedKindResearch, RefID: uuid.New(), CreatedAt: time.Now()},
	}
	e := newTestServer(t, handlerStubs{feed: &stubFeed{
		listFn: func(ctx context.Context, userID string, cursor *uuid.UUID, limit int) ([]*domain.FeedEntry, error) {
			assert.Equal(t, 2, limit)
			return entries, nil
		},
	}})

	rec := doRequest(e, http.MethodGet, "/feed?user_id=user-1&limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Entries    []feedEntryResponse `json:"entries"`
		NextCursor string              `json:"next_cursor"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Entries, 2)
	// A full page carries a cursor for the next one.
	assert.Equal(t, entries[1].ID.String(), body.NextCursor)
}

func TestFeed_LastPageOmitsCursor(t *testing.T) {
	e := newTestServer(t, handlerStubs{feed: &stubFeed{
		listFn: func(ctx context.Context, userID string, cursor *uuid.UUID, limit int) ([]*domain.FeedEntry, error) {
			return []*domain.FeedEntry{
				{ID: uuid.New(), UserID: "user-1", Kind: domain.FeedKindResearch, RefID: uuid.New(), CreatedAt: time.Now()},
			}, nil
		},
	}})

	rec := doRequest(e, http.MethodGet, "/feed?user_id=user-1&limit=10", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	_, has := body["next_cursor"]
	assert.False(t, has)
}

func TestFeed_LimitValidation(t *testing.T) {
	e := newTestServer(t, handlerStubs{feed: &stubFeed{}})

	rec := doRequest(e, http.MethodGet, "/feed?user_id=user-1&limit=51", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(e, http.MethodGet, "/feed?user_id=user-1&limit=0", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(e, http.MethodGet, "/feed", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFeed_LimitRejectsTrailingGarbage(t *testing.T) {
	e := newTestServer(t, handlerStubs{feed: &stubFeed{}})

	rec := doRequest(e, http.MethodGet, "/feed?user_id=user-1&limit=10abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(e, http.MethodGet, "/feed?user_id=user-1&limit=+zz", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListSuggestions_LimitRejectsTrailingGarbage(t *testing.T) {
	e := newTestServer(t, handlerStubs{suggest: &stubSuggest{}})

	rec := doRequest(e, http.MethodGet, "/topics/suggestions?user_id=user-1&limit=5x", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGenerateSuggestions_Created(t *testing.T) {
	e := newTestServer(t, handlerStubs{suggest: &stubSuggest{
		generateFn: func(ctx context.Context, userID string, notebookID *uuid.UUID, content domain.ContentUnit) ([]*domain.SuggestedTopic, error) {
			assert.Equal(t, "notes about tides", content.Content)
			now := time.Now()
			return []*domain.SuggestedTopic{{
				ID:            uuid.New(),
				UserID:        userID,
				Topic:         "Tidal locking",
				PriorityScore: 0.9,
				Status:        domain.TopicPending,
				CreatedAt:     now,
				UpdatedAt:     now,
			}}, nil
		},
	}})

	rec := doRequest(e, http.MethodPost, "/topics/suggestions/generate",
		`{"user_id":"user-1","content":"notes about tides","source_type":"text"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var body struct {
		Topics []topicResponse `json:"topics"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Topics, 1)
	assert.Equal(t, "Tidal locking", body.Topics[0].Topic)
	assert.Equal(t, "pending", body.Topics[0].Status)
}

func TestGenerateSuggestions_RequiresContent(t *testing.T) {
	e := newTestServer(t, handlerStubs{suggest: &stubSuggest{}})

	rec := doRequest(e, http.MethodPost, "/topics/suggestions/generate", `{"user_id":"user-1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTopicFeed_ReturnsTopicAndItems(t *testing.T) {
	topicID := uuid.New()
	taskID := uuid.New()
	now := time.Now()
	e := newTestServer(t, handlerStubs{
		topics: &stubTopicRepo{
			getByIDFn: func(ctx context.Context, id uuid.UUID, userID string) (*domain.SuggestedTopic, error) {
				return &domain.SuggestedTopic{ID: id, UserID: userID, Topic: "Tidal locking", Status: domain.TopicCompleted, CreatedAt: now, UpdatedAt: now}, nil
			},
		},
		tasks: &stubTaskRepo{
			findLatestFn: func(ctx context.Context, id uuid.UUID) (*domain.ResearchTask, error) {
				return &domain.ResearchTask{ID: taskID, TopicID: id, Status: domain.TaskCompleted, StartedAt: now}, nil
			},
		},
		feed: &stubFeed{
			forTaskFn: func(ctx context.Context, id uuid.UUID) ([]*domain.FeedEntry, error) {
				assert.Equal(t, taskID, id)
				return []*domain.FeedEntry{
					{ID: uuid.New(), UserID: "user-1", Kind: domain.FeedKindResearch, RefID: uuid.New(), TaskID: &taskID, CreatedAt: now},
				}, nil
			},
		},
	})

	rec := doRequest(e, http.MethodGet, "/topics/"+topicID.String()+"/feed?user_id=user-1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Topic topicResponse       `json:"topic"`
		Items []feedEntryResponse `json:"items"`
		Total int                 `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Tidal locking", body.Topic.Topic)
	assert.Equal(t, 1, body.Total)
	require.Len(t, body.Items, 1)
	assert.Equal(t, "research", body.Items[0].Kind)
}

func TestTopicFeed_NoTaskYet(t *testing.T) {
	now := time.Now()
	e := newTestServer(t, handlerStubs{
		topics: &stubTopicRepo{
			getByIDFn: func(ctx context.Context, id uuid.UUID, userID string) (*domain.SuggestedTopic, error) {
				return &domain.SuggestedTopic{ID: id, UserID: userID, Topic: "t", Status: domain.TopicPending, CreatedAt: now, UpdatedAt: now}, nil
			},
		},
		tasks: &stubTaskRepo{
			findLatestFn: func(ctx context.Context, id uuid.UUID) (*domain.ResearchTask, error) {
				return nil, nil
			},
		},
		feed: &stubFeed{},
	})

	rec := doRequest(e, http.MethodGet, "/topics/"+uuid.NewString()+"/feed?user_id=user-1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Total int `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 0, body.Total)
}

func TestUpdatePreferences_OK(t *testing.T) {
	e := newTestServer(t, handlerStubs{suggest: &stubSuggest{
		updPrefFn: func(ctx context.Context, userID string, update usecase.PreferenceUpdate) (*domain.SuggestionPreference, error) {
			require.NotNil(t, update.SuggestionCount)
			assert.Equal(t, 5, *update.SuggestionCount)
			pref := domain.DefaultPreference(userID)
			pref.SuggestionCount = *update.SuggestionCount
			return pref, nil
		},
	}})

	rec := doRequest(e, http.MethodPut, "/topics/preferences?user_id=user-1", `{"suggestion_count":5}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var body preferencesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 5, body.SuggestionCount)
}

func TestUpdatePreferences_EmptyBody(t *testing.T) {
	e := newTestServer(t, handlerStubs{suggest: &stubSuggest{}})

	rec := doRequest(e, http.MethodPut, "/topics/preferences?user_id=user-1", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdatePreferences_InvalidValue(t *testing.T) {
	e := newTestServer(t, handlerStubs{suggest: &stubSuggest{
		updPrefFn: func(ctx context.Context, userID string, update usecase.PreferenceUpdate) (*domain.SuggestionPreference, error) {
			return nil, usecase.ErrInvalidPreference
		},
	}})

	rec := doRequest(e, http.MethodPut, "/topics/preferences?user_id=user-1", `{"suggestion_count":9}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResearchStatusStream_TerminalClosesAfterOneEvent(t *testing.T) {
	taskID := uuid.New()
	e := newTestServer(t, handlerStubs{lifecycle: &stubLifecycle{
		statusFn: func(ctx context.Context, id uuid.UUID) (*usecase.StatusOutput, error) {
			return &usecase.StatusOutput{
				TaskID:          id,
				Topic:           "t",
				TopicStatus:     domain.TopicCompleted,
				TaskStatus:      domain.TaskCompleted,
				ProgressMessage: "Research completed",
			}, nil
		},
	}})

	rec := doRequest(e, http.MethodGet, "/research/status/"+taskID.String()+"/stream", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get(echo.HeaderContentType))

	body := rec.Body.String()
	require.True(t, strings.HasPrefix(body, "data: "))
	assert.Equal(t, 1, strings.Count(body, "data: "))

	var event statusResponse
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(strings.TrimPrefix(body, "data: "))), &event))
	assert.Equal(t, "completed", event.Status)
}

func TestListSuggestions_DefaultsToPending(t *testing.T) {
	e := newTestServer(t, handlerStubs{suggest: &stubSuggest{
		listFn: func(ctx context.Context, userID string, notebookID *uuid.UUID, status domain.TopicStatus, limit int) ([]*domain.SuggestedTopic, error) {
			assert.Equal(t, domain.TopicPending, status)
			assert.Equal(t, defaultListLimit, limit)
			return nil, nil
		},
	}})

	rec := doRequest(e, http.MethodGet, "/topics/suggestions?user_id=user-1", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListSuggestions_RejectsUnknownStatus(t *testing.T) {
	e := newTestServer(t, handlerStubs{suggest: &stubSuggest{}})

	rec := doRequest(e, http.MethodGet, "/topics/suggestions?user_id=user-1&status=bogus", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
