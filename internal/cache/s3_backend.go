package cache

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Backend is an optional persistent-tier backend, selected when
// cache.persistent_backend=s3: one object per key-hash under a shared
// prefix, each carrying the original key for pattern invalidation.
type S3Backend struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Backend loads the default AWS config for region and returns a
// backend writing under bucket/prefix.
func NewS3Backend(ctx context.Context, bucket, prefix, region string) (*S3Backend, error) {
	if bucket == "" {
		return nil, errors.New("cache: s3 bucket is required")
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return &S3Backend{
		client: s3.NewFromConfig(cfg),
		bucket: bucket,
		prefix: prefix,
	}, nil
}

func (b *S3Backend) objectKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return b.prefix + hex.EncodeToString(sum[:]) + ".json"
}

func (b *S3Backend) Get(ctx context.Context, key string) (entry, bool, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.objectKey(key)),
	})
	if err != nil {
		var nske *types.NoSuchKey
		if errors.As(err, &nske) {
			return entry{}, false, nil
		}
		return entry{}, false, err
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return entry{}, false, err
	}
	var fe fileEntry
	if err := json.Unmarshal(data, &fe); err != nil {
		return entry{}, false, err
	}
	return fe.Entry, true, nil
}

func (b *S3Backend) Set(ctx context.Context, key string, e entry) error {
	fe := fileEntry{Key: key, Entry: e}
	data, err := json.Marshal(fe)
	if err != nil {
		return err
	}
	_, err = b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.objectKey(key)),
		Body:   bytes.NewReader(data),
	})
	return err
}

func (b *S3Backend) Delete(ctx context.Context, key string) error {
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.objectKey(key)),
	})
	return err
}

func (b *S3Backend) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	paginator := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.bucket),
		Prefix: aws.String(b.prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Contents {
			out, err := b.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(b.bucket), Key: obj.Key})
			if err != nil {
				continue
			}
			data, err := io.ReadAll(out.Body)
			out.Body.Close()
			if err != nil {
				continue
			}
			var fe fileEntry
			if err := json.Unmarshal(data, &fe); err != nil {
				continue
			}
			keys = append(keys, fe.Key)
		}
	}
	return keys, nil
}
