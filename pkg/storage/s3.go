package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// FolderVideos is the S3 prefix for ad video objects.
const FolderVideos = "videos"

// ErrObjectNotFound is returned by HeadObject when the key does not exist.
var ErrObjectNotFound = errors.New("object not found")

// Allowed video MIME types and extensions.
var (
	AllowedVideoTypes = map[string]string{
		"video/mp4":       ".mp4",
		"video/quicktime": ".mov",
		"video/webm":      ".webm",
	}
	AllowedVideoExtensions = map[string]string{
		".mp4":  "video/mp4",
		".m4v":  "video/mp4",
		".mov":  "video/quicktime",
		".webm": "video/webm",
	}
)

// S3Config holds S3 client configuration.
type S3Config struct {
	Region               string
	AccessKeyID          string
	SecretAccessKey      string
	VideosBucket         string
	PresignExpireMinutes int
	PublicBaseURL        string
}

// S3 provides S3 operations with validation and pre-signed URLs.
type S3 struct {
	client   *s3.Client
	uploader *manager.Uploader
	cfg      S3Config
	logger   *zap.Logger
}

// NewS3 creates an S3 client using credentials from config or .env (AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY).
func NewS3(ctx context.Context, cfg S3Config, logger *zap.Logger) (*S3, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	accessKey := cfg.AccessKeyID
	secretKey := cfg.SecretAccessKey
	if accessKey == "" || secretKey == "" {
		accessKey = os.Getenv("AWS_ACCESS_KEY_ID")
		secretKey = os.Getenv("AWS_SECRET_ACCESS_KEY")
	}
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if accessKey != "" && secretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			accessKey, secretKey, "",
		)))
		logger.Info("S3 client using static credentials", zap.String("region", cfg.Region), zap.String("videos_bucket", cfg.VideosBucket))
	} else {
		logger.Warn("S3 client using default credential chain (AWS_ACCESS_KEY_ID/AWS_SECRET_ACCESS_KEY not set)")
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg)
	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = 8 * 1024 * 1024
	})
	return &S3{
		client:   client,
		uploader: uploader,
		cfg:      cfg,
		logger:   logger,
	}, nil
}

// ValidateVideoFileType returns true if the content type or extension is an accepted video format.
func ValidateVideoFileType(contentType, filename string) bool {
	if contentType != "" {
		if _, ok := AllowedVideoTypes[normalizeContentType(contentType)]; ok {
			return true
		}
	}
	ext := strings.ToLower(path.Ext(filename))
	_, ok := AllowedVideoExtensions[ext]
	return ok
}

// VideoContentType returns the normalised type when contentType itself is an accepted video format.
// Remote sources are judged by this alone; a video-looking URL extension does not count.
func VideoContentType(contentType string) (string, bool) {
	ct := normalizeContentType(contentType)
	_, ok := AllowedVideoTypes[ct]
	return ct, ok
}

// ResolveVideoContentType picks the declared content type when allowed, else derives it from the filename.
func ResolveVideoContentType(contentType, filename string) string {
	if ct := normalizeContentType(contentType); ct != "" {
		if _, ok := AllowedVideoTypes[ct]; ok {
			return ct
		}
	}
	if ct, ok := AllowedVideoExtensions[strings.ToLower(path.Ext(filename))]; ok {
		return ct
	}
	return "application/octet-stream"
}

// VideoKey returns a fresh object key: videos/{advertiser_id}/{uuid}{ext}.
func VideoKey(advertiserID, contentType string) string {
	ext := AllowedVideoTypes[contentType]
	if ext == "" {
		ext = ".mp4"
	}
	return path.Join(FolderVideos, advertiserID, uuid.NewString()+ext)
}

// OwnsVideoKey reports whether key lives under the advertiser's prefix.
func OwnsVideoKey(advertiserID, key string) bool {
	prefix := path.Join(FolderVideos, advertiserID) + "/"
	return strings.HasPrefix(key, prefix) && !strings.Contains(key, "..")
}

func normalizeContentType(ct string) string {
	ct = strings.ToLower(strings.TrimSpace(ct))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	return ct
}

// GeneratePresignedUploadURL returns a pre-signed PUT URL for direct upload into the videos bucket.
// The signature covers size, so the client must PUT exactly size bytes.
func (s *S3) GeneratePresignedUploadURL(ctx context.Context, key, contentType string, size int64) (string, error) {
	presignClient := s3.NewPresignClient(s.client)
	req, err := presignClient.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.cfg.VideosBucket),
		Key:           aws.String(key),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(size),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = s.PresignExpire()
	})
	if err != nil {
		return "", fmt.Errorf("presign put: %w", err)
	}
	return req.URL, nil
}

// PresignExpire returns the configured presign duration.
func (s *S3) PresignExpire() time.Duration {
	if s.cfg.PresignExpireMinutes <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(s.cfg.PresignExpireMinutes) * time.Minute
}

// PublicObjectURL returns the playable URL for a video key.
func (s *S3) PublicObjectURL(key string) string {
	if s.cfg.PublicBaseURL != "" {
		return strings.TrimRight(s.cfg.PublicBaseURL, "/") + "/" + key
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.cfg.VideosBucket, s.cfg.Region, key)
}

// UploadVideo streams body into the videos bucket as a publicly readable object and returns its URL.
func (s *S3) UploadVideo(ctx context.Context, key, contentType string, body io.Reader, contentLength int64) (string, error) {
	var contentLengthPtr *int64
	if contentLength > 0 {
		contentLengthPtr = &contentLength
	}
	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.cfg.VideosBucket),
		Key:           aws.String(key),
		Body:          body,
		ContentType:   aws.String(contentType),
		ContentLength: contentLengthPtr,
		ACL:           types.ObjectCannedACLPublicRead,
	}
	if _, err := s.uploader.Upload(ctx, input); err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}
	s.logger.Debug("video uploaded", zap.String("key", key), zap.Int64("size", contentLength))
	return s.PublicObjectURL(key), nil
}

// VideoExists checks that a presigned upload actually landed.
func (s *S3) VideoExists(ctx context.Context, key string) error {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.cfg.VideosBucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nf *types.NotFound
		if errors.As(err, &nf) {
			return ErrObjectNotFound
		}
		return fmt.Errorf("head object: %w", err)
	}
	return nil
}
