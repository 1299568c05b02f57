package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"plancheck-backend/internal/shared/storage/object"
	"plancheck-backend/internal/shared/util"
)

// Options configures the S3-backed store.
type Options struct {
	Region   string
	Bucket   string
	Prefix   string
	KMSKeyID string
	// PublicBaseURL, when set, is used for object URLs instead of the bucket endpoint (e.g. a CDN).
	PublicBaseURL string
}

// Store implements ObjectStore and Presigner using Amazon S3.
type Store struct {
	client  *s3.Client
	presign *s3.PresignClient
	opts    Options
}

// New creates a new S3-backed object store using the default credential chain.
func New(ctx context.Context, opts Options) (*Store, error) {
	if strings.TrimSpace(opts.Bucket) == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{}
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	if opts.Region == "" {
		opts.Region = cfg.Region
	}
	return NewFromConfig(cfg, opts), nil
}

// NewFromConfig builds a store from an existing aws.Config.
func NewFromConfig(cfg aws.Config, opts Options) *Store {
	client := s3.NewFromConfig(cfg)
	opts.Prefix = normalizePrefix(opts.Prefix)
	opts.KMSKeyID = strings.TrimSpace(opts.KMSKeyID)
	opts.PublicBaseURL = strings.TrimRight(strings.TrimSpace(opts.PublicBaseURL), "/")
	return &Store{
		client:  client,
		presign: s3.NewPresignClient(client),
		opts:    opts,
	}
}

// Save uploads the reader contents to S3 under the user's namespace.
func (s *Store) Save(ctx context.Context, userID string, fileName string, r io.Reader) (object.Object, error) {
	storageKey, err := newStorageKey(userID, fileName)
	if err != nil {
		return object.Object{}, err
	}
	if err := ctx.Err(); err != nil {
		return object.Object{}, err
	}
	objectKey := applyPrefix(s.opts.Prefix, storageKey)

	var sniff [512]byte
	n, readErr := io.ReadFull(r, sniff[:])
	if readErr != nil && readErr != io.EOF && readErr != io.ErrUnexpectedEOF {
		return object.Object{}, fmt.Errorf("read sniff: %w", readErr)
	}
	mimeType := http.DetectContentType(sniff[:n])
	counter := &countingReader{r: io.MultiReader(bytes.NewReader(sniff[:n]), r)}

	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.opts.Bucket),
		Key:         aws.String(objectKey),
		Body:        counter,
		ContentType: aws.String(mimeType),
	}
	s.applyEncryption(input)

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return object.Object{}, fmt.Errorf("s3 put object bucket=%s key=%s: %w", s.opts.Bucket, objectKey, err)
	}
	return object.Object{Key: storageKey, SizeBytes: counter.n, MimeType: mimeType}, nil
}

// Open downloads a stored object for reading.
func (s *Store) Open(ctx context.Context, storageKey string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	objectKey := applyPrefix(s.opts.Prefix, storageKey)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.opts.Bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		return nil, fmt.Errorf("s3 get object bucket=%s key=%s: %w", s.opts.Bucket, objectKey, err)
	}
	return out.Body, nil
}

// URL returns the public address of the object.
func (s *Store) URL(storageKey string) string {
	objectKey := escapeKey(applyPrefix(s.opts.Prefix, storageKey))
	if s.opts.PublicBaseURL != "" {
		return s.opts.PublicBaseURL + "/" + objectKey
	}
	region := s.opts.Region
	if region == "" {
		region = "us-east-1"
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.opts.Bucket, region, objectKey)
}

// PresignPut returns a presigned PUT URL the browser can upload a plan to directly.
func (s *Store) PresignPut(ctx context.Context, userID, fileName, contentType string, expires time.Duration) (object.PresignedUpload, error) {
	storageKey, err := newStorageKey(userID, fileName)
	if err != nil {
		return object.PresignedUpload{}, err
	}
	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.opts.Bucket),
		Key:         aws.String(applyPrefix(s.opts.Prefix, storageKey)),
		ContentType: aws.String(contentType),
	}
	out, err := s.presign.PresignPutObject(ctx, input, func(o *s3.PresignOptions) {
		o.Expires = expires
	})
	if err != nil {
		return object.PresignedUpload{}, fmt.Errorf("presign put: %w", err)
	}
	return object.PresignedUpload{
		UploadURL: out.URL,
		Key:       storageKey,
		FileURL:   s.URL(storageKey),
		ExpiresIn: expires,
	}, nil
}

func (s *Store) applyEncryption(input *s3.PutObjectInput) {
	if s.opts.KMSKeyID != "" {
		input.ServerSideEncryption = s3types.ServerSideEncryptionAwsKms
		input.SSEKMSKeyId = aws.String(s.opts.KMSKeyID)
		return
	}
	input.ServerSideEncryption = s3types.ServerSideEncryptionAes256
}

func newStorageKey(userID, fileName string) (string, error) {
	sanitizedName, err := util.SanitizeFileName(fileName)
	if err != nil {
		return "", fmt.Errorf("sanitize file name: %w", err)
	}
	return path.Join(util.HashUserKey(userID), util.RandomID()+"_"+sanitizedName), nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func normalizePrefix(prefix string) string {
	return strings.Trim(strings.TrimSpace(prefix), "/")
}

func applyPrefix(prefix, key string) string {
	cleanPrefix := strings.Trim(prefix, "/")
	cleanKey := strings.TrimLeft(key, "/")
	if cleanPrefix == "" {
		return cleanKey
	}
	if cleanKey == "" {
		return cleanPrefix
	}
	return cleanPrefix + "/" + cleanKey
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

var (
	_ object.ObjectStore = (*Store)(nil)
	_ object.Presigner   = (*Store)(nil)
)
