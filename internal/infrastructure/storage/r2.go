package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

// maxLogoBytes caps the size of a downloaded institution logo.
const maxLogoBytes = 2 << 20

var (
	ErrNotConfigured = errors.New("logo store is not configured")
	ErrLogoTooLarge  = errors.New("logo exceeds size limit")
)

// Config holds the S3-compatible bucket settings.
type Config struct {
	Bucket          string
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	PublicBaseURL   string
}

// Enabled reports whether enough settings are present to upload.
func (c Config) Enabled() bool {
	return c.Bucket != "" && c.AccessKeyID != "" && c.SecretAccessKey != ""
}

type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// LogoStore copies institution logos into an object bucket so the ledger
// never hotlinks the aggregator's CDN.
type LogoStore struct {
	client  objectPutter
	http    *http.Client
	bucket  string
	baseURL string
	logger  *zap.Logger
}

// NewLogoStore builds an S3 client for cfg. R2 and other S3-compatible
// endpoints are addressed path-style.
func NewLogoStore(ctx context.Context, cfg Config, logger *zap.Logger) (*LogoStore, error) {
	if !cfg.Enabled() {
		return nil, ErrNotConfigured
	}

	region := cfg.Region
	if region == "" {
		region = "auto"
	}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.SecretAccessKey, "",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load object store config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	baseURL := cfg.PublicBaseURL
	if baseURL == "" {
		baseURL = strings.TrimRight(cfg.Endpoint, "/") + "/" + cfg.Bucket
	}

	return newLogoStore(client, &http.Client{
		Timeout:   10 * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}, cfg.Bucket, baseURL, logger), nil
}

func newLogoStore(client objectPutter, httpClient *http.Client, bucket, baseURL string, logger *zap.Logger) *LogoStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogoStore{
		client:  client,
		http:    httpClient,
		bucket:  bucket,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger.Named("logo_store"),
	}
}

// StoreLogo downloads sourceURL and uploads it under the institution's key,
// returning the public URL of the stored copy.
func (s *LogoStore) StoreLogo(ctx context.Context, institutionID, sourceURL string) (string, error) {
	body, contentType, err := s.download(ctx, sourceURL)
	if err != nil {
		return "", err
	}

	key := "institutions/" + institutionID + "/logo" + extensionFor(contentType)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(s.bucket),
		Key:          aws.String(key),
		Body:         bytes.NewReader(body),
		ContentType:  aws.String(contentType),
		CacheControl: aws.String("public, max-age=86400"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload logo: %w", err)
	}

	s.logger.Debug("Stored institution logo",
		zap.String("institution_id", institutionID),
		zap.String("key", key),
		zap.Int("bytes", len(body)),
	)
	return s.baseURL + "/" + key, nil
}

func (s *LogoStore) download(ctx context.Context, sourceURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create logo request: %w", err)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to download logo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("failed to download logo: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxLogoBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read logo: %w", err)
	}
	if len(body) > maxLogoBytes {
		return nil, "", ErrLogoTooLarge
	}

	contentType := resp.Header.Get("Content-Type")
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		contentType = mediaType
	} else {
		contentType = http.DetectContentType(body)
	}
	return body, contentType, nil
}

func extensionFor(contentType string) string {
	switch contentType {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/svg+xml":
		return ".svg"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "image/x-icon", "image/vnd.microsoft.icon":
		return ".ico"
	}
	return ""
}
