package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// QueueVideoImports is the Redis list key for video re-hosting jobs.
	QueueVideoImports = "worker:video_imports"
	// QueueEmails is the Redis list key for email jobs.
	QueueEmails = "worker:emails"
	// QueueDLQ is the dead-letter queue for failed jobs after retries.
	QueueDLQ = "worker:dlq"
	// MaxRetries is the number of times to retry a job before moving to DLQ.
	MaxRetries = 3
	// RetryBackoff is the delay between retries.
	RetryBackoff = 10 * time.Second

	defaultBlockTimeout = 5 * time.Second
)

// JobType identifies the job kind.
type JobType string

const (
	JobTypeVideoImport        JobType = "video_import"
	JobTypePasswordResetEmail JobType = "password_reset_email"
)

// VideoImportPayload asks the worker to copy an externally hosted campaign video into S3.
type VideoImportPayload struct {
	CampaignID   uuid.UUID `json:"campaign_id"`
	AdvertiserID uuid.UUID `json:"advertiser_id"`
	SourceURL    string    `json:"source_url"`
}

// PasswordResetEmailPayload is the payload for password reset mails.
type PasswordResetEmailPayload struct {
	AdvertiserID   uuid.UUID `json:"advertiser_id"`
	Handle         string    `json:"handle"`
	RecipientEmail string    `json:"recipient_email"`
	Token          string    `json:"token"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// Job is a generic job envelope.
type Job struct {
	ID        string          `json:"id"`
	Type      JobType         `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Attempt   int             `json:"attempt"`
	CreatedAt time.Time       `json:"created_at"`
}

// ListFor returns the Redis list a job type is queued on.
func ListFor(t JobType) (string, error) {
	switch t {
	case JobTypeVideoImport:
		return QueueVideoImports, nil
	case JobTypePasswordResetEmail:
		return QueueEmails, nil
	}
	return "", fmt.Errorf("unknown job type: %s", t)
}

// Queue enqueues and dequeues jobs via Redis.
type Queue struct {
	client       *redis.Client
	logger       *zap.Logger
	blockTimeout time.Duration
}

// NewQueue creates a new Redis-backed job queue.
func NewQueue(client *redis.Client, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{client: client, logger: logger, blockTimeout: defaultBlockTimeout}
}

// WithBlockTimeout sets how long Dequeue waits for a job before returning empty-handed.
func (q *Queue) WithBlockTimeout(d time.Duration) *Queue {
	q.blockTimeout = d
	return q
}

// EnqueueVideoImport enqueues a video import job.
func (q *Queue) EnqueueVideoImport(ctx context.Context, payload VideoImportPayload) error {
	job, err := q.enqueue(ctx, JobTypeVideoImport, payload)
	if err != nil {
		return err
	}
	q.logger.Debug("enqueued video import job", zap.String("job_id", job.ID), zap.String("campaign_id", payload.CampaignID.String()))
	return nil
}

// EnqueuePasswordResetEmail enqueues a password reset mail.
func (q *Queue) EnqueuePasswordResetEmail(ctx context.Context, payload PasswordResetEmailPayload) error {
	job, err := q.enqueue(ctx, JobTypePasswordResetEmail, payload)
	if err != nil {
		return err
	}
	q.logger.Debug("enqueued password reset email job", zap.String("job_id", job.ID), zap.String("handle", payload.Handle))
	return nil
}

func (q *Queue) enqueue(ctx context.Context, t JobType, payload any) (*Job, error) {
	list, err := ListFor(t)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	job := &Job{
		ID:        uuid.New().String(),
		Type:      t,
		Payload:   body,
		Attempt:   0,
		CreatedAt: time.Now(),
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.RPush(ctx, list, raw).Err(); err != nil {
		return nil, fmt.Errorf("rpush: %w", err)
	}
	return job, nil
}

// Dequeue blocks until a job is available on any list, the block timeout passes, or ctx is done.
// Returns job and key (queue name); a nil job means nothing arrived.
func (q *Queue) Dequeue(ctx context.Context) (*Job, string, error) {
	result, err := q.client.BLPop(ctx, q.blockTimeout, QueueVideoImports, QueueEmails).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, "", nil
		}
		return nil, "", err
	}
	if len(result) < 2 {
		return nil, "", nil
	}
	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		q.logger.Warn("invalid job payload", zap.String("raw", result[1]), zap.Error(err))
		return nil, "", nil
	}
	return &job, result[0], nil
}

// Retry re-enqueues a job on its own list with incremented attempt. If attempt >= MaxRetries, pushes to DLQ instead.
func (q *Queue) Retry(ctx context.Context, job *Job) error {
	job.Attempt++
	raw, err := json.Marshal(job)
	if err != nil {
		return err
	}
	list, listErr := ListFor(job.Type)
	if job.Attempt >= MaxRetries || listErr != nil {
		if err := q.client.RPush(ctx, QueueDLQ, raw).Err(); err != nil {
			q.logger.Error("dlq push failed", zap.Error(err), zap.String("job_id", job.ID))
			return err
		}
		q.logger.Warn("job moved to DLQ", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
		return nil
	}
	if err := q.client.RPush(ctx, list, raw).Err(); err != nil {
		return err
	}
	q.logger.Info("job retried", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
	return nil
}

// DeadLetters returns up to n jobs from the DLQ without removing them.
func (q *Queue) DeadLetters(ctx context.Context, n int64) ([]Job, error) {
	raws, err := q.client.LRange(ctx, QueueDLQ, 0, n-1).Result()
	if err != nil {
		return nil, fmt.Errorf("lrange dlq: %w", err)
	}
	jobs := make([]Job, 0, len(raws))
	for _, raw := range raws {
		var job Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}
