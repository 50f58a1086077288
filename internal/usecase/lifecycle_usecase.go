package usecase

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"topic-orchestrator/internal/domain"

	"github.com/google/uuid"
)

// Progress messages written at each task phase transition.
const (
	progressQueued     = "Research queued"
	progressProcessing = "Research in progress"
	progressCompleted  = "Research completed"
)

// AcceptOutput is the handle returned by Accept. Status is always
// "researching": accepted-and-not-yet-terminal, regardless of whether the
// worker has started executing.
type AcceptOutput struct {
	TaskID      uuid.UUID
	TopicStatus domain.TopicStatus
}

// StatusOutput is the current state of a topic and its task as reported to
// callers. Terminal payloads are stable across repeated queries.
type StatusOutput struct {
	TaskID          uuid.UUID
	Topic           string
	TopicStatus     domain.TopicStatus
	TaskStatus      domain.TaskStatus
	ProgressMessage string
	FailureReason   string
	CompletedAt     *time.Time
}

// TaskDispatcher submits an accepted task for asynchronous execution.
// Dispatch must not block on the research work itself.
type TaskDispatcher interface {
	Dispatch(task *domain.ResearchTask, question string)
}

// FeedPopulator writes the feed-visible record for a completed task.
type FeedPopulator interface {
	Populate(ctx context.Context, task *domain.ResearchTask, topic *domain.SuggestedTopic, result *domain.ResearchResult) error
}

// LifecycleUsecase governs topic transitions and the 1:1 relationship
// between an accepted topic and its research task.
type LifecycleUsecase interface {
	Accept(ctx context.Context, topicID uuid.UUID, userID string) (*AcceptOutput, error)
	Reject(ctx context.Context, topicID uuid.UUID, userID string) error
	Status(ctx context.Context, taskID uuid.UUID) (*StatusOutput, error)

	// Worker-side callbacks. Calling these on an already-terminal task is
	// a no-op so duplicate or retried callbacks cannot corrupt state.
	OnTaskStarted(ctx context.Context, taskID uuid.UUID)
	OnTaskCompleted(ctx context.Context, taskID uuid.UUID, result *domain.ResearchResult) error
	OnTaskFailed(ctx context.Context, taskID uuid.UUID, reason string) error
}

type lifecycleUsecase struct {
	topicRepo  domain.TopicRepository
	taskRepo   domain.TaskRepository
	populator  FeedPopulator
	notifier   *StatusNotifier
	tx         domain.TransactionManager
	logger     *slog.Logger
	dispatcher TaskDispatcher

	// topicLocks serializes Accept calls racing with themselves and with
	// completion callbacks on the same topic.
	topicLocks [64]sync.Mutex
}

// NewLifecycleUsecase wires the state machine over its stores. The
// dispatcher is attached separately because the worker needs a reference
// back to this usecase for its completion callbacks.
func NewLifecycleUsecase(
	topicRepo domain.TopicRepository,
	taskRepo domain.TaskRepository,
	populator FeedPopulator,
	notifier *StatusNotifier,
	tx domain.TransactionManager,
	logger *slog.Logger,
) *lifecycleUsecase {
	return &lifecycleUsecase{
		topicRepo: topicRepo,
		taskRepo:  taskRepo,
		populator: populator,
		notifier:  notifier,
		tx:        tx,
		logger:    logger,
	}
}

// AttachDispatcher completes the lifecycle/worker cycle after both sides
// are constructed.
func (u *lifecycleUsecase) AttachDispatcher(d TaskDispatcher) {
	u.dispatcher = d
}

func (u *lifecycleUsecase) lockTopic(id uuid.UUID) *sync.Mutex {
	h := fnv.New32a()
	h.Write(id[:])
	m := &u.topicLocks[h.Sum32()%uint32(len(u.topicLocks))]
	m.Lock()
	return m
}

func (u *lifecycleUsecase) Accept(ctx context.Context, topicID uuid.UUID, userID string) (*AcceptOutput, error) {
	mu := u.lockTopic(topicID)
	defer mu.Unlock()

	topic, err := u.topicRepo.GetByID(ctx, topicID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load topic: %w", err)
	}
	if topic == nil {
		return nil, domain.ErrTopicNotFound
	}

	if topic.Status != domain.TopicPending {
		// A duplicate accept inside the research window returns the live
		// task handle instead of creating a second task.
		if topic.Status == domain.TopicResearching || topic.Status == domain.TopicAccepted {
			active, err := u.taskRepo.FindActiveByTopic(ctx, topicID)
			if err != nil {
				return nil, fmt.Errorf("failed to look up active task: %w", err)
			}
			if active != nil {
				return &AcceptOutput{TaskID: active.ID, TopicStatus: domain.TopicResearching}, nil
			}
		}
		return nil, domain.ErrAlreadyProcessed
	}

	// The transition and the task insert commit or roll back together so a
	// failed insert cannot strand the topic in researching with no task.
	var task *domain.ResearchTask
	err = u.tx.RunInTx(ctx, func(ctx context.Context) error {
		ok, err := u.topicRepo.TransitionStatus(ctx, topicID, userID, domain.TopicPending, domain.TopicResearching)
		if err != nil {
			return fmt.Errorf("failed to transition topic: %w", err)
		}
		if !ok {
			return domain.ErrAlreadyProcessed
		}

		task = &domain.ResearchTask{
			ID:              uuid.New(),
			TopicID:         topicID,
			UserID:          userID,
			Status:          domain.TaskQueued,
			ProgressMessage: progressQueued,
			StartedAt:       time.Now(),
		}
		if err := u.taskRepo.Create(ctx, task); err != nil {
			return fmt.Errorf("failed to create research task: %w", err)
		}
		return nil
	})
	if errors.Is(err, domain.ErrAlreadyProcessed) {
		return nil, domain.ErrAlreadyProcessed
	}
	if err != nil {
		return nil, err
	}

	u.logger.Info("topic accepted", "topic_id", topicID, "task_id", task.ID, "user_id", userID)
	u.notifier.Publish(StatusUpdate{
		TaskID:          task.ID,
		TopicStatus:     domain.TopicResearching,
		TaskStatus:      domain.TaskQueued,
		ProgressMessage: progressQueued,
	})

	u.dispatcher.Dispatch(task, topic.Topic)

	return &AcceptOutput{TaskID: task.ID, TopicStatus: domain.TopicResearching}, nil
}

func (u *lifecycleUsecase) Reject(ctx context.Context, topicID uuid.UUID, userID string) error {
	mu := u.lockTopic(topicID)
	defer mu.Unlock()

	topic, err := u.topicRepo.GetByID(ctx, topicID, userID)
	if err != nil {
		return fmt.Errorf("failed to load topic: %w", err)
	}
	if topic == nil {
		return domain.ErrTopicNotFound
	}

	ok, err := u.topicRepo.TransitionStatus(ctx, topicID, userID, domain.TopicPending, domain.TopicRejected)
	if err != nil {
		return fmt.Errorf("failed to transition topic: %w", err)
	}
	if !ok {
		return domain.ErrAlreadyProcessed
	}

	u.logger.Info("topic rejected", "topic_id", topicID, "user_id", userID)
	return nil
}

func (u *lifecycleUsecase) Status(ctx context.Context, taskID uuid.UUID) (*StatusOutput, error) {
	task, err := u.taskRepo.GetByID(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to load task: %w", err)
	}
	if task == nil {
		return nil, domain.ErrTaskNotFound
	}

	topic, err := u.topicRepo.GetByID(ctx, task.TopicID, task.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load topic: %w", err)
	}
	if topic == nil {
		return nil, domain.ErrTopicNotFound
	}

	return &StatusOutput{
		TaskID:          task.ID,
		Topic:           topic.Topic,
		TopicStatus:     topic.Status,
		TaskStatus:      task.Status,
		ProgressMessage: task.ProgressMessage,
		FailureReason:   task.FailureReason,
		CompletedAt:     task.CompletedAt,
	}, nil
}

// OnTaskStarted marks the task as actively executing. Invoked by the
// dispatch worker once a concurrency slot is acquired.
func (u *lifecycleUsecase) OnTaskStarted(ctx context.Context, taskID uuid.UUID) {
	if err := u.taskRepo.UpdateProgress(ctx, taskID, domain.TaskProcessing, progressProcessing); err != nil {
		u.logger.Error("failed to mark task processing", "task_id", taskID, "error", err)
		return
	}
	u.notifier.Publish(StatusUpdate{
		TaskID:          taskID,
		TopicStatus:     domain.TopicResearching,
		TaskStatus:      domain.TaskProcessing,
		ProgressMessage: progressProcessing,
	})
}

func (u *lifecycleUsecase) OnTaskCompleted(ctx context.Context, taskID uuid.UUID, result *domain.ResearchResult) error {
	now := time.Now()

	// Terminal flip, topic status and feed population commit atomically. A
	// failure anywhere rolls all three back, leaving the task non-terminal
	// so a retried callback can complete it instead of hitting the terminal
	// guard with the work half done.
	var topicID uuid.UUID
	completed := false
	err := u.tx.RunInTx(ctx, func(ctx context.Context) error {
		ok, err := u.taskRepo.Complete(ctx, taskID, domain.TaskCompleted, result, "", now)
		if err != nil {
			return fmt.Errorf("failed to complete task: %w", err)
		}
		if !ok {
			// Already terminal; a retried callback must not alter state.
			return nil
		}
		completed = true

		task, err := u.taskRepo.GetByID(ctx, taskID)
		if err != nil || task == nil {
			return fmt.Errorf("failed to reload completed task %s: %w", taskID, err)
		}
		topicID = task.TopicID

		mu := u.lockTopic(task.TopicID)
		if err := u.topicRepo.SetStatus(ctx, task.TopicID, domain.TopicCompleted); err != nil {
			mu.Unlock()
			return fmt.Errorf("failed to mark topic completed: %w", err)
		}
		mu.Unlock()

		topic, err := u.topicRepo.GetByID(ctx, task.TopicID, task.UserID)
		if err != nil || topic == nil {
			return fmt.Errorf("failed to reload topic %s: %w", task.TopicID, err)
		}

		if err := u.populator.Populate(ctx, task, topic, result); err != nil {
			return fmt.Errorf("failed to populate feed: %w", err)
		}
		return nil
	})
	if err != nil {
		u.logger.Error("task completion rolled back", "task_id", taskID, "error", err)
		return err
	}
	if !completed {
		return nil
	}

	u.logger.Info("task completed", "task_id", taskID, "topic_id", topicID)
	u.notifier.Publish(StatusUpdate{
		TaskID:          taskID,
		TopicStatus:     domain.TopicCompleted,
		TaskStatus:      domain.TaskCompleted,
		ProgressMessage: progressCompleted,
		CompletedAt:     &now,
	})
	u.notifier.CloseTask(taskID)
	return nil
}

func (u *lifecycleUsecase) OnTaskFailed(ctx context.Context, taskID uuid.UUID, reason string) error {
	now := time.Now()
	message := "Research failed: " + reason

	var topicID uuid.UUID
	failed := false
	err := u.tx.RunInTx(ctx, func(ctx context.Context) error {
		ok, err := u.taskRepo.Complete(ctx, taskID, domain.TaskFailed, nil, reason, now)
		if err != nil {
			return fmt.Errorf("failed to fail task: %w", err)
		}
		if !ok {
			return nil
		}
		failed = true

		task, err := u.taskRepo.GetByID(ctx, taskID)
		if err != nil || task == nil {
			return fmt.Errorf("failed to reload failed task %s: %w", taskID, err)
		}
		topicID = task.TopicID

		mu := u.lockTopic(task.TopicID)
		if err := u.topicRepo.SetStatus(ctx, task.TopicID, domain.TopicFailed); err != nil {
			mu.Unlock()
			return fmt.Errorf("failed to mark topic failed: %w", err)
		}
		mu.Unlock()
		return nil
	})
	if err != nil {
		u.logger.Error("task failure rolled back", "task_id", taskID, "error", err)
		return err
	}
	if !failed {
		return nil
	}

	u.logger.Warn("task failed", "task_id", taskID, "topic_id", topicID, "reason", reason)
	u.notifier.Publish(StatusUpdate{
		TaskID:          taskID,
		TopicStatus:     domain.TopicFailed,
		TaskStatus:      domain.TaskFailed,
		ProgressMessage: message,
		CompletedAt:     &now,
	})
	u.notifier.CloseTask(taskID)
	return nil
}
