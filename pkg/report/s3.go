package report

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/ethpandaops/monitoroor/pkg/config"
	"github.com/sirupsen/logrus"
)

// Archiver persists generated reports to long-term storage.
type Archiver interface {
	// Preflight verifies storage connectivity and credentials.
	Preflight(ctx context.Context) error

	// Archive stores one report object under the configured prefix.
	Archive(ctx context.Context, name string, data []byte) error
}

// s3Archiver implements Archiver for S3-compatible storage.
type s3Archiver struct {
	log    logrus.FieldLogger
	cfg    *config.ArchiveConfig
	client *s3.Client
}

// Ensure interface compliance.
var _ Archiver = (*s3Archiver)(nil)

// NewS3Archiver creates an archiver from the given configuration.
func NewS3Archiver(
	log logrus.FieldLogger,
	cfg *config.ArchiveConfig,
) (Archiver, error) {
	opts := []func(*s3.Options){
		func(o *s3.Options) {
			if cfg.Region != "" {
				o.Region = cfg.Region
			} else {
				o.Region = "us-east-1"
			}

			if cfg.EndpointURL != "" {
				o.BaseEndpoint = aws.String(cfg.EndpointURL)
			}

			if cfg.ForcePathStyle {
				o.UsePathStyle = true
			}

			if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
				o.Credentials = credentials.NewStaticCredentialsProvider(
					cfg.AccessKeyID, cfg.SecretAccessKey, "",
				)
			}
		},
	}

	client := s3.New(s3.Options{}, opts...)

	return &s3Archiver{
		log:    log.WithField("component", "report-archiver"),
		cfg:    cfg,
		client: client,
	}, nil
}

// Preflight verifies connectivity by writing a small test object.
func (a *s3Archiver) Preflight(ctx context.Context) error {
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.cfg.Bucket),
		Key:         aws.String(".monitoroor-write-test"),
		Body:        strings.NewReader("monitoroor write test"),
		ContentType: aws.String("text/plain"),
	})
	if err != nil {
		return fmt.Errorf(
			"writing test object to s3://%s: %w", a.cfg.Bucket, err,
		)
	}

	return nil
}

// Archive uploads one report under the configured prefix.
func (a *s3Archiver) Archive(
	ctx context.Context, name string, data []byte,
) error {
	key := a.resolveKey(name)

	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("text/csv; charset=utf-8"),
	})
	if err != nil {
		return fmt.Errorf("archiving report %s: %w", name, err)
	}

	a.log.WithFields(logrus.Fields{
		"key":    key,
		"bucket": a.cfg.Bucket,
		"bytes":  len(data),
	}).Info("Report archived")

	return nil
}

func (a *s3Archiver) resolveKey(name string) string {
	prefix := a.cfg.Prefix
	if prefix == "" {
		prefix = "reports/daily"
	}

	return strings.TrimRight(prefix, "/") + "/" + name
}
