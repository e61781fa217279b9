package report

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/voicepage/kwsbench/internal/config"
)

// uploadTimeout bounds a single report upload.
const uploadTimeout = 30 * time.Second

// S3Config holds the settings for report export.
type S3Config struct {
	Endpoint        string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	Prefix          string
}

// S3ConfigFromSnapshot extracts the report export settings.
//
//nolint:gocritic // hugeParam: copy is acceptable for infrequent report exports
func S3ConfigFromSnapshot(cfg config.Snapshot) *S3Config {
	return &S3Config{
		Endpoint:        cfg.S3Endpoint,
		Bucket:          cfg.S3Bucket,
		AccessKeyID:     cfg.S3AccessKeyID,
		SecretAccessKey: cfg.S3SecretAccessKey,
		Prefix:          cfg.S3Prefix,
	}
}

// IsConfigured reports whether the minimum S3 settings are present.
func (c *S3Config) IsConfigured() bool {
	return c.Bucket != "" && c.AccessKeyID != "" && c.SecretAccessKey != ""
}

// createS3Client creates an S3 client with the given configuration.
func createS3Client(cfg *S3Config) *s3.Client {
	creds := credentials.NewStaticCredentialsProvider(
		cfg.AccessKeyID,
		cfg.SecretAccessKey,
		"",
	)

	options := []func(*s3.Options){
		func(o *s3.Options) {
			o.Credentials = creds
			o.Region = "auto"
		},
	}

	if cfg.Endpoint != "" {
		options = append(options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	return s3.New(s3.Options{}, options...)
}

// ObjectKey returns the S3 key for a report, applying the configured prefix.
func (c *S3Config) ObjectKey(filename string) string {
	if c.Prefix == "" {
		return filename
	}
	return path.Join(c.Prefix, filename)
}

// Upload writes a report to the configured bucket and returns its key.
func Upload(ctx context.Context, cfg *S3Config, rep *Report) (string, error) {
	if !cfg.IsConfigured() {
		return "", fmt.Errorf("S3 is not configured")
	}

	data, err := rep.JSON()
	if err != nil {
		return "", err
	}

	client := createS3Client(cfg)
	key := cfg.ObjectKey(rep.Filename())

	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(cfg.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("upload report: %w", err)
	}

	slog.Info("Report uploaded", "bucket", cfg.Bucket, "key", key)
	return key, nil
}

// TestS3Connection tests connectivity to an S3 bucket by uploading and deleting a test file.
func TestS3Connection(cfg *S3Config) error {
	if !cfg.IsConfigured() {
		return fmt.Errorf("S3 is not configured")
	}

	client := createS3Client(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), uploadTimeout)
	defer cancel()

	testKey := cfg.ObjectKey(fmt.Sprintf("test-connection-%d.txt", time.Now().UnixNano()))
	testContent := []byte("kwsbench connection test")

	_, err := client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(cfg.Bucket),
		Key:           aws.String(testKey),
		Body:          bytes.NewReader(testContent),
		ContentLength: aws.Int64(int64(len(testContent))),
	})
	if err != nil {
		return fmt.Errorf("upload test file: %w", err)
	}

	_, err = client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(cfg.Bucket),
		Key:    aws.String(testKey),
	})
	if err != nil {
		slog.Warn("failed to delete test file", "key", testKey, "error", err)
	}

	return nil
}
