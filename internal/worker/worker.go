package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gloads/portal/internal/campaigns"
	"github.com/gloads/portal/internal/events"
	"github.com/gloads/portal/internal/mailer"
	"github.com/gloads/portal/internal/metrics"
	"github.com/gloads/portal/internal/models"
	"github.com/gloads/portal/pkg/queue"
	"github.com/gloads/portal/pkg/storage"
)

// ErrPermanent marks failures that retrying cannot fix. Such jobs are dropped.
var ErrPermanent = errors.New("permanent job failure")

// Jobs is the queue the processor drains.
type Jobs interface {
	Dequeue(ctx context.Context) (*queue.Job, string, error)
	Retry(ctx context.Context, job *queue.Job) error
}

// CampaignStore is the campaign persistence video imports need.
type CampaignStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Campaign, error)
	SetVideo(ctx context.Context, id uuid.UUID, videoURL, videoKey string) (*models.Campaign, error)
}

// VideoUploader stores imported videos.
type VideoUploader interface {
	UploadVideo(ctx context.Context, key, contentType string, body io.Reader, contentLength int64) (string, error)
}

// Sender delivers mail.
type Sender interface {
	Send(ctx context.Context, msg mailer.Message) error
}

// Options configures a Processor. Videos and Mail may be nil when S3 or SMTP is not configured.
// A nil HTTPClient means NewSourceClient, which refuses non-public source addresses.
type Options struct {
	Campaigns     CampaignStore
	Videos        VideoUploader
	Mail          Sender
	ResetURLBase  string
	MaxVideoBytes int64
	HTTPClient    *http.Client
	Events        events.Notifier
	Metrics       *metrics.Metrics
	Backoff       time.Duration
}

// Processor runs background jobs: video imports into S3 and password reset mails.
type Processor struct {
	opts   Options
	queue  Jobs
	logger *zap.Logger
}

// NewProcessor creates a job processor.
func NewProcessor(q Jobs, opts Options, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = NewSourceClient(10 * time.Minute)
	}
	if opts.Events == nil {
		opts.Events = events.Nop{}
	}
	if opts.Backoff <= 0 {
		opts.Backoff = queue.RetryBackoff
	}
	return &Processor{opts: opts, queue: q, logger: logger}
}

// Process executes one job.
func (p *Processor) Process(ctx context.Context, job *queue.Job) error {
	switch job.Type {
	case queue.JobTypeVideoImport:
		var payload queue.VideoImportPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("%w: unmarshal payload: %v", ErrPermanent, err)
		}
		return p.importVideo(ctx, payload)
	case queue.JobTypePasswordResetEmail:
		var payload queue.PasswordResetEmailPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("%w: unmarshal payload: %v", ErrPermanent, err)
		}
		return p.sendReset(ctx, payload)
	}
	return fmt.Errorf("%w: unknown job type: %s", ErrPermanent, job.Type)
}

func (p *Processor) importVideo(ctx context.Context, payload queue.VideoImportPayload) error {
	if p.opts.Videos == nil {
		return fmt.Errorf("%w: video storage is not configured", ErrPermanent)
	}
	campaign, err := p.opts.Campaigns.GetByID(ctx, payload.CampaignID)
	if err != nil {
		if errors.Is(err, campaigns.ErrNotFound) {
			return fmt.Errorf("%w: campaign %s not found", ErrPermanent, payload.CampaignID)
		}
		return fmt.Errorf("load campaign: %w", err)
	}
	if campaign.VideoKey != "" {
		p.logger.Info("campaign video already hosted", zap.String("campaign_id", campaign.ID.String()))
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, payload.SourceURL, nil)
	if err != nil {
		return fmt.Errorf("%w: create request: %v", ErrPermanent, err)
	}
	resp, err := p.opts.HTTPClient.Do(req)
	if err != nil {
		if errors.Is(err, errBlockedAddress) || errors.Is(err, ErrPermanent) {
			return fmt.Errorf("%w: download: %v", ErrPermanent, err)
		}
		return fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode >= 500:
		return fmt.Errorf("download status: %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("%w: download status: %d", ErrPermanent, resp.StatusCode)
	}
	if p.opts.MaxVideoBytes > 0 && resp.ContentLength > p.opts.MaxVideoBytes {
		return fmt.Errorf("%w: video is %d bytes, limit %d", ErrPermanent, resp.ContentLength, p.opts.MaxVideoBytes)
	}

	contentType, ok := storage.VideoContentType(resp.Header.Get("Content-Type"))
	if !ok {
		return fmt.Errorf("%w: unsupported video type %q", ErrPermanent, resp.Header.Get("Content-Type"))
	}
	key := storage.VideoKey(payload.AdvertiserID.String(), contentType)

	var body io.Reader = resp.Body
	var limited *limitedReader
	if p.opts.MaxVideoBytes > 0 {
		limited = &limitedReader{r: resp.Body, limit: p.opts.MaxVideoBytes}
		body = limited
	}
	videoURL, err := p.opts.Videos.UploadVideo(ctx, key, contentType, body, resp.ContentLength)
	if limited != nil && limited.exceeded {
		return fmt.Errorf("%w: video is larger than %d bytes", ErrPermanent, p.opts.MaxVideoBytes)
	}
	if err != nil {
		return fmt.Errorf("s3 upload: %w", err)
	}

	updated, err := p.opts.Campaigns.SetVideo(ctx, payload.CampaignID, videoURL, key)
	if err != nil {
		p.logger.Error("update campaign video failed", zap.Error(err), zap.String("campaign_id", payload.CampaignID.String()))
		return fmt.Errorf("update db: %w", err)
	}

	p.logger.Info("campaign video imported", zap.String("campaign_id", updated.ID.String()), zap.String("s3_key", key))
	p.opts.Events.Notify(ctx, events.CampaignUpdated, updated, events.Advertiser(updated.AdvertiserID), events.Admin)
	return nil
}

func (p *Processor) sendReset(ctx context.Context, payload queue.PasswordResetEmailPayload) error {
	if p.opts.Mail == nil {
		p.logger.Warn("smtp not configured, reset mail dropped", zap.String("handle", payload.Handle))
		return nil
	}
	if payload.RecipientEmail == "" {
		return fmt.Errorf("%w: no recipient for @%s", ErrPermanent, payload.Handle)
	}
	if !payload.ExpiresAt.IsZero() && time.Now().After(payload.ExpiresAt) {
		p.logger.Info("reset token expired before delivery", zap.String("handle", payload.Handle))
		return nil
	}
	if err := p.opts.Mail.Send(ctx, mailer.PasswordReset(payload, p.opts.ResetURLBase)); err != nil {
		return err
	}
	p.logger.Info("password reset mail sent", zap.String("handle", payload.Handle))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *Processor) Run(ctx context.Context) {
	p.logger.Info("worker started")
	for {
		if ctx.Err() != nil {
			p.logger.Info("worker stopping")
			return
		}

		job, _, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			p.sleep(ctx)
			continue
		}
		if job == nil {
			continue
		}
		p.handle(ctx, job)
	}
}

func (p *Processor) handle(ctx context.Context, job *queue.Job) {
	p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
	err := p.Process(ctx, job)
	switch {
	case err == nil:
		p.opts.Metrics.Job(string(job.Type), "done")
	case errors.Is(err, ErrPermanent):
		p.opts.Metrics.Job(string(job.Type), "dropped")
		p.logger.Error("job dropped", zap.String("job_id", job.ID), zap.Error(err))
	default:
		p.opts.Metrics.Job(string(job.Type), "retried")
		p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt), zap.Error(err))
		if reErr := p.queue.Retry(ctx, job); reErr != nil {
			p.logger.Error("retry enqueue failed", zap.Error(reErr))
		}
		p.sleep(ctx)
	}
}

func (p *Processor) sleep(ctx context.Context) {
	t := time.NewTimer(p.opts.Backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
