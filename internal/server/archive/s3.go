// Package archive exports revoked organization keys to an S3-compatible
// bucket for long-term audit retention. Uploads are best-effort: a failed
// export never fails the revocation that triggered it.
package archive

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/teamvault/escrow/internal/server/models"
)

// Indirections for tests.
var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	putObject = func(c *s3.Client, ctx context.Context, in *s3.PutObjectInput) (*s3.PutObjectOutput, error) {
		return c.PutObject(ctx, in)
	}
)

// KeyArchiver stores a copy of a revoked organization key.
type KeyArchiver interface {
	ArchiveRevokedKey(ctx context.Context, key *models.OrganizationPublicKey) error
}

// S3Options configures the S3-compatible backend.
type S3Options struct {
	RootUser     string
	RootPassword string
	Bucket       string
	Region       string
	BaseEndpoint string
}

// S3Archiver uploads revoked key armor under revoked-keys/<fingerprint>/<id>.asc.
type S3Archiver struct {
	opts S3Options
}

// NewS3Archiver constructs an archiver with the given backend options.
func NewS3Archiver(opts S3Options) *S3Archiver {
	return &S3Archiver{opts: opts}
}

func (a *S3Archiver) getClient(ctx context.Context) (*s3.Client, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(a.opts.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			a.opts.RootUser,
			a.opts.RootPassword,
			"",
		)))
	if err != nil {
		return nil, err
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(a.opts.BaseEndpoint)
		o.UsePathStyle = true
	})

	return client, nil
}

// ArchiveRevokedKey uploads the revoked armor, keyed by fingerprint and row
// id so repeated rotations never overwrite each other.
func (a *S3Archiver) ArchiveRevokedKey(ctx context.Context, key *models.OrganizationPublicKey) error {
	client, err := a.getClient(ctx)
	if err != nil {
		return fmt.Errorf("archive client init: %w", err)
	}

	objectKey := fmt.Sprintf("revoked-keys/%s/%s.asc", key.Fingerprint, key.ID)

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err = putObject(client, ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.opts.Bucket),
		Key:         aws.String(objectKey),
		Body:        strings.NewReader(key.ArmoredKey),
		ContentType: aws.String("application/pgp-keys"),
	})
	if err != nil {
		return fmt.Errorf("archive upload: %w", err)
	}
	return nil
}

var _ KeyArchiver = (*S3Archiver)(nil)
