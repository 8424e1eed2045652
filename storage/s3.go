package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/tailored-agentic-units/datashelf/dataset"
)

// headerRange bounds the bytes fetched to read a header line.
const headerRange = "bytes=0-65535"

// S3API is the subset of the S3 client used by the S3 store.
type S3API interface {
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

type s3Store struct {
	client S3API
	bucket string
	prefix string
}

// NewS3Store creates a Store over CSV objects in bucket under prefix, using
// an existing client.
func NewS3Store(client S3API, bucket, prefix string) Store {
	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return &s3Store{client: client, bucket: bucket, prefix: prefix}
}

// NewS3Client builds an S3 client from cfg. Static credentials are used when
// both keys are set; otherwise the default AWS credential chain applies.
func NewS3Client(ctx context.Context, cfg *Config) (*s3.Client, error) {
	opts := []func(*config.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

func (s *s3Store) List(ctx context.Context) ([]string, error) {
	seen := make(map[string]bool)

	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: list s3://%s/%s: %v", ErrReadFailed, s.bucket, s.prefix, err)
		}
		for _, obj := range page.Contents {
			rel := strings.TrimPrefix(aws.ToString(obj.Key), s.prefix)
			if hidden(rel) {
				continue
			}
			if id, ok := TrimExtension(rel); ok {
				seen[id] = true
			}
		}
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *s3Store) Stat(ctx context.Context, id string) (Info, error) {
	key, head, err := s.locate(ctx, id)
	if err != nil {
		return Info{}, err
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Range:  aws.String(headerRange),
	})
	if err != nil {
		return Info{}, fmt.Errorf("%w: %s: %v", ErrReadFailed, id, err)
	}
	defer out.Body.Close()

	header, err := readHeader(key, out.Body)
	if err != nil {
		return Info{}, fmt.Errorf("%w: %s: %v", ErrReadFailed, id, err)
	}

	return Info{ID: id, Columns: header, Bytes: aws.ToInt64(head.ContentLength)}, nil
}

func (s *s3Store) Read(ctx context.Context, id string, q dataset.Query) (*dataset.Table, error) {
	key, _, err := s.locate(ctx, id)
	if err != nil {
		return nil, err
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrReadFailed, id, err)
	}
	defer out.Body.Close()

	table, err := decodeTable(id, key, out.Body, q)
	if err != nil {
		if errors.Is(err, dataset.ErrInvalidQuery) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrReadFailed, id, err)
	}
	return table, nil
}

func (s *s3Store) locate(ctx context.Context, id string) (string, *s3.HeadObjectOutput, error) {
	for _, ext := range Extensions {
		key := s.prefix + id + ext
		head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		if err == nil {
			return key, head, nil
		}
		if !isS3NotFound(err) {
			return "", nil, fmt.Errorf("%w: %s: %v", ErrReadFailed, id, err)
		}
	}
	return "", nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

func isS3NotFound(err error) bool {
	var nf *types.NotFound
	var nsk *types.NoSuchKey
	return errors.As(err, &nf) || errors.As(err, &nsk)
}

func hidden(rel string) bool {
	for _, seg := range strings.Split(rel, "/") {
		if strings.HasPrefix(seg, ".") {
			return true
		}
	}
	return false
}
