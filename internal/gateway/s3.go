package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/codefionn/wellspace/internal/logger"
)

// S3Config holds explicit construction parameters.
type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string // optional; e.g. MinIO
	PathStyle bool
	Prefix    string
}

// S3 stores one JSON object per snapshot in a single bucket:
// <prefix><session>/<name>.json
type S3 struct {
	client *s3.Client
	bucket string
	prefix string
}

var (
	_ Gateway     = (*S3)(nil)
	_ ActiveStore = (*S3)(nil)
)

// OpenS3 builds the client from the default AWS credential chain.
func OpenS3(ctx context.Context, cfg S3Config) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return NewS3(client, cfg.Bucket, cfg.Prefix), nil
}

// NewS3 wraps an existing client.
func NewS3(client *s3.Client, bucket, prefix string) *S3 {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &S3{client: client, bucket: bucket, prefix: prefix}
}

func (s *S3) sessionPrefix(scopeRef string) string {
	return s.prefix + SessionID(scopeRef) + "/"
}

func (s *S3) key(scopeRef, name string) string {
	return s.sessionPrefix(scopeRef) + url.PathEscape(LayoutName(name)) + layoutExt
}

func (s *S3) Save(ctx context.Context, snap Snapshot) error {
	snap, err := prepare(snap)
	if err != nil {
		return err
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode layout: %w", err)
	}
	key := s.key(snap.ScopeRef, snap.LayoutName)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &s.bucket,
		Key:         &key,
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to put %s: %w", key, err)
	}
	return nil
}

func (s *S3) Load(ctx context.Context, scopeRef, name string) (Snapshot, error) {
	key := s.key(scopeRef, name)
	data, err := s.get(ctx, key)
	if err != nil {
		return Snapshot{}, err
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return snap, nil
}

func (s *S3) get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &s.bucket, Key: &key})
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get %s: %w", key, err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return data, nil
}

func (s *S3) Delete(ctx context.Context, scopeRef, name string) error {
	key := s.key(scopeRef, name)
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: &s.bucket, Key: &key})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

func (s *S3) List(ctx context.Context, scopeRef string) ([]Summary, error) {
	prefix := s.sessionPrefix(scopeRef)
	out := []Summary{}
	var token *string
	for {
		page, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            &s.bucket,
			Prefix:            &prefix,
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list layouts: %w", err)
		}
		for _, obj := range page.Contents {
			name, ok := layoutNameFromFile(strings.TrimPrefix(aws.ToString(obj.Key), prefix))
			if !ok || strings.Contains(name, "/") {
				continue
			}
			out = append(out, Summary{LayoutName: name, SavedAt: aws.ToTime(obj.LastModified).UTC()})
		}
		if aws.ToBool(page.IsTruncated) && page.NextContinuationToken != nil {
			token = page.NextContinuationToken
			continue
		}
		break
	}
	return sortSummaries(out), nil
}

func (s *S3) SetActive(ctx context.Context, scopeRef, name string) error {
	key := s.sessionPrefix(scopeRef) + activeFile
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &s.bucket,
		Key:         &key,
		Body:        strings.NewReader(LayoutName(name)),
		ContentType: aws.String("text/plain"),
	})
	if err != nil {
		return fmt.Errorf("failed to put %s: %w", key, err)
	}
	return nil
}

func (s *S3) Active(ctx context.Context, scopeRef string) (string, error) {
	data, err := s.get(ctx, s.sessionPrefix(scopeRef)+activeFile)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func (s *S3) Close() error { return nil }

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	var nf *types.NotFound
	if errors.As(err, &nsk) || errors.As(err, &nf) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	var statusErr interface{ HTTPStatusCode() int }
	if errors.As(err, &statusErr) && statusErr.HTTPStatusCode() == http.StatusNotFound {
		logger.Debug("treating s3 status 404 as missing object: %v", err)
		return true
	}
	return false
}
