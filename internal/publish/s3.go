// Package publish uploads written output files to S3-compatible object storage.
package publish

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"tlcetl/internal/metrics"
)

// Options configures an S3 publisher. Empty credentials fall back to the
// AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY and AWS_SESSION_TOKEN variables.
type Options struct {
	// URL is the destination, s3://bucket[/prefix].
	URL       string
	Region    string
	Endpoint  string
	PathStyle bool

	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string

	HTTPClient *http.Client
}

// S3 uploads files under one bucket prefix.
type S3 struct {
	client *s3.Client
	bucket string
	prefix string
}

// ParseS3URL splits "s3://bucket/some/prefix" into bucket and prefix. The
// prefix may be empty.
func ParseS3URL(s string) (bucket, prefix string, err error) {
	u, err := url.Parse(s)
	if err != nil {
		return "", "", fmt.Errorf("parse S3 url %q: %w", s, err)
	}
	if u.Scheme != "s3" {
		return "", "", fmt.Errorf("expected s3:// scheme, got %q in %q", u.Scheme, s)
	}
	if u.Host == "" {
		return "", "", fmt.Errorf("empty bucket in S3 url %q", s)
	}
	return u.Host, strings.Trim(u.Path, "/"), nil
}

func NewS3(opts Options) (*S3, error) {
	bucket, prefix, err := ParseS3URL(opts.URL)
	if err != nil {
		return nil, err
	}
	if opts.AccessKeyID == "" {
		opts.AccessKeyID = os.Getenv("AWS_ACCESS_KEY_ID")
		opts.SecretAccessKey = os.Getenv("AWS_SECRET_ACCESS_KEY")
		opts.SessionToken = os.Getenv("AWS_SESSION_TOKEN")
	}
	region := opts.Region
	if region == "" {
		region = "us-east-1"
	}

	s3opts := s3.Options{
		Region: region,
		Credentials: credentials.NewStaticCredentialsProvider(
			opts.AccessKeyID, opts.SecretAccessKey, opts.SessionToken,
		),
		UsePathStyle:               opts.PathStyle,
		RequestChecksumCalculation: aws.RequestChecksumCalculationWhenRequired,
	}
	if opts.Endpoint != "" {
		s3opts.BaseEndpoint = aws.String(opts.Endpoint)
	}
	if opts.HTTPClient != nil {
		s3opts.HTTPClient = opts.HTTPClient
	}
	return &S3{client: s3.New(s3opts), bucket: bucket, prefix: prefix}, nil
}

// Key is the object key a local file is uploaded to.
func (p *S3) Key(localPath string) string {
	return path.Join(p.prefix, filepath.Base(localPath))
}

// Upload puts the file at localPath under the prefix and returns its s3:// URL.
func (p *S3) Upload(ctx context.Context, localPath string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return "", err
	}

	key := p.Key(localPath)
	ct := mime.TypeByExtension(filepath.Ext(localPath))
	if ct == "" {
		ct = "application/octet-stream"
	}

	start := time.Now()
	_, err = p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(p.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String(ct),
	})
	metrics.RecordStep("publish_object", err, time.Since(start))
	if err != nil {
		return "", fmt.Errorf("put s3://%s/%s: %w", p.bucket, key, err)
	}
	return "s3://" + p.bucket + "/" + key, nil
}
