// Package archive stores raw detail page HTML in MinIO object storage.
package archive

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/jonesrussell/nmls-crawler/internal/config/minio"
	"github.com/jonesrussell/nmls-crawler/internal/logger"
)

// Archiver uploads crawled pages to a MinIO bucket.
type Archiver struct {
	client *miniogo.Client
	config *minio.Config
	logger logger.Logger
	now    func() time.Time
}

// NewArchiver creates an archiver. A disabled config yields an archiver
// whose Archive is a no-op.
func NewArchiver(cfg *minio.Config, log logger.Logger) (*Archiver, error) {
	if cfg == nil {
		return nil, errors.New("minio config is nil")
	}
	if log == nil {
		log = logger.NewNop()
	}

	a := &Archiver{
		config: cfg,
		logger: log.With(logger.Component("archive")),
		now:    time.Now,
	}

	if !cfg.Enabled {
		a.logger.Info("MinIO archiving disabled")
		return a, nil
	}

	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		if cfg.FailSilently {
			a.logger.Warn("Failed to create MinIO client, continuing without archiving", logger.Err(err))
			return a, nil
		}
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}
	a.client = client

	a.logger.Info("MinIO archiver initialized",
		logger.String("endpoint", cfg.Endpoint),
		logger.String("bucket", cfg.Bucket),
	)
	return a, nil
}

// Archive uploads body under a key derived from pageURL and the current
// time. With FailSilently set, upload errors are logged and swallowed.
func (a *Archiver) Archive(ctx context.Context, pageURL string, statusCode int, body []byte) error {
	if !a.config.Enabled || a.client == nil {
		return nil
	}

	if a.config.UploadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.config.UploadTimeout)
		defer cancel()
	}

	crawledAt := a.now().UTC()
	key := objectKey(pageURL, crawledAt)

	_, err := a.client.PutObject(
		ctx,
		a.config.Bucket,
		key,
		bytes.NewReader(body),
		int64(len(body)),
		miniogo.PutObjectOptions{
			ContentType: "text/html; charset=utf-8",
			UserMetadata: map[string]string{
				"url":         pageURL,
				"crawled-at":  crawledAt.Format(time.RFC3339),
				"status-code": strconv.Itoa(statusCode),
			},
		},
	)
	if err != nil {
		if a.config.FailSilently {
			a.logger.Warn("Failed to archive page", logger.URL(pageURL), logger.Err(err))
			return nil
		}
		return fmt.Errorf("failed to upload HTML: %w", err)
	}

	a.logger.Debug("Archived page",
		logger.String("object_key", key),
		logger.Int("size", len(body)),
		logger.URL(pageURL),
	)
	return nil
}

// objectKey lays pages out as pages/{host}/{yyyy}/{mm}/{dd}/{hash}_{ts}.html.
func objectKey(pageURL string, at time.Time) string {
	host := ""
	if u, err := url.Parse(pageURL); err == nil {
		host = u.Hostname()
	}
	return fmt.Sprintf("pages/%s/%s/%s_%s.html",
		sanitizeKeySegment(host),
		at.Format("2006/01/02"),
		hashURL(pageURL),
		at.Format("20060102150405"),
	)
}

// hashURL returns the first 16 hex characters of the SHA-256 of u.
func hashURL(u string) string {
	h := sha256.Sum256([]byte(u))
	return hex.EncodeToString(h[:])[:16]
}

var (
	invalidObjectNameChars = regexp.MustCompile(`[\\?*|<>:"\x00-\x1F]`)
	consecutiveUnderscores = regexp.MustCompile(`_{2,}`)
)

// sanitizeKeySegment lowercases s and replaces characters that are awkward
// in S3 object names with underscores.
func sanitizeKeySegment(s string) string {
	normalized := strings.ToLower(s)
	normalized = invalidObjectNameChars.ReplaceAllString(normalized, "_")
	normalized = strings.NewReplacer(".", "_", " ", "_", "/", "_").Replace(normalized)
	normalized = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return '_'
		}
		return r
	}, normalized)
	normalized = consecutiveUnderscores.ReplaceAllString(normalized, "_")
	normalized = strings.Trim(normalized, "_")

	if normalized == "" {
		return "unknown"
	}
	return normalized
}

// HealthCheck verifies the bucket is reachable.
func (a *Archiver) HealthCheck(ctx context.Context) error {
	if !a.config.Enabled || a.client == nil {
		return nil
	}

	exists, err := a.client.BucketExists(ctx, a.config.Bucket)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if !exists {
		return fmt.Errorf("bucket %s does not exist", a.config.Bucket)
	}
	return nil
}
