package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"

	"scribe/src/core/ingest"
	"scribe/src/infrastructure/log"
)

// JobsTopic is the queue topic job messages are published to.
const JobsTopic = "jobs"

// Service owns the job lifecycle: it creates the durable record, hands the
// job to the worker through the message queue, and guarantees every consumed
// job resolves to exactly one terminal transition.
type Service struct {
	publisher message.Publisher
	repo      Repository
	task      *ProcessingTask
}

// Message is the queue payload linking a published message to its job.
type Message struct {
	JobID string `json:"job_id"`
}

func NewService(publisher message.Publisher, repo Repository, task *ProcessingTask) *Service {
	return &Service{
		publisher: publisher,
		repo:      repo,
		task:      task,
	}
}

// Repo exposes the underlying repository for read-side callers.
func (s *Service) Repo() Repository {
	return s.repo
}

// Create records a fresh queued job for the descriptor and publishes it for
// processing. The returned ID is the handle polling clients use.
//
// If publishing fails after the record is written, the job is failed in
// place rather than left queued forever with no consumer.
func (s *Service) Create(ctx context.Context, d ingest.Descriptor) (string, error) {
	j := &Job{
		ID:            uuid.New().String(),
		Status:        StatusQueued,
		Progress:      0,
		StatusMessage: "queued",
		Descriptor:    d,
	}

	if err := s.repo.Create(ctx, j); err != nil {
		return "", fmt.Errorf("failed to create job: %w", err)
	}

	payload, err := json.Marshal(Message{JobID: j.ID})
	if err != nil {
		return "", fmt.Errorf("failed to marshal job message: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := s.publisher.Publish(JobsTopic, msg); err != nil {
		if failErr := s.repo.Fail(ctx, j.ID, "failed to enqueue job for processing"); failErr != nil {
			log.Error(failErr, "could not fail unpublishable job", "job_id", j.ID)
		}
		return "", fmt.Errorf("failed to publish job message: %w", err)
	}

	return j.ID, nil
}

// Get returns the current snapshot of a job.
func (s *Service) Get(ctx context.Context, id string) (*Job, error) {
	return s.repo.Get(ctx, id)
}

// ProcessMessage consumes one job message from the queue. It transitions the
// job to running, executes the processing pipeline, and records the outcome.
//
// A non-nil return requeues the message, so errors are only propagated while
// it is still safe to retry: before the job has left queued. Once running,
// every outcome is absorbed into a terminal transition here.
func (s *Service) ProcessMessage(msg *message.Message) error {
	var jm Message
	if err := json.Unmarshal(msg.Payload, &jm); err != nil {
		log.Error(err, "dropping malformed job message", "message_uuid", msg.UUID)
		return nil
	}

	ctx := context.Background()

	if err := s.repo.Begin(ctx, jm.JobID); err != nil {
		switch {
		case errors.Is(err, ErrInvalidTransition):
			// Redelivery of a job another consumer already started or
			// finished. Nothing to do.
			log.Debug("skipping job not in queued state", "job_id", jm.JobID)
			return nil
		case errors.Is(err, ErrNotFound):
			log.Debug("dropping message for unknown job", "job_id", jm.JobID)
			return nil
		default:
			return fmt.Errorf("failed to start job %s: %w", jm.JobID, err)
		}
	}

	j, err := s.repo.Get(ctx, jm.JobID)
	if err != nil {
		s.failJob(ctx, jm.JobID, "job record unreadable after start")
		return nil
	}

	resultText, resultFiles, err := s.task.Execute(ctx, j)
	if err != nil {
		log.Error(err, "job processing failed", "job_id", j.ID)
		s.failJob(ctx, j.ID, err.Error())
		return nil
	}

	if err := s.repo.Complete(ctx, j.ID, resultText, resultFiles); err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			log.Info("job already terminal, completion discarded", "job_id", j.ID)
			return nil
		}
		log.Error(err, "failed to record job completion", "job_id", j.ID)
		s.failJob(ctx, j.ID, "failed to record completion")
	}
	return nil
}

func (s *Service) failJob(ctx context.Context, id, reason string) {
	if err := s.repo.Fail(ctx, id, reason); err != nil && !errors.Is(err, ErrInvalidTransition) {
		log.Error(err, "failed to record job failure", "job_id", id)
	}
}
