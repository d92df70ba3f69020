package minio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"

	"github.com/fiapx/fiapx-frame-ingest/internal/domain/entity"
	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// Storage reads uploaded media from one bucket and writes finished result
// collections to another.
type Storage struct {
	client       *miniogo.Client
	uploadBucket string
	resultBucket string
	maxUpload    int64
	logger       *zap.Logger
}

type StorageConfig struct {
	Endpoint     string
	AccessKey    string
	SecretKey    string
	UseSSL       bool
	UploadBucket string
	ResultBucket string
	// MaxUploadSize rejects larger objects. Zero disables the check.
	MaxUploadSize int64
}

func NewStorage(cfg StorageConfig, logger *zap.Logger) (*Storage, error) {
	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &Storage{
		client:       client,
		uploadBucket: cfg.UploadBucket,
		resultBucket: cfg.ResultBucket,
		maxUpload:    cfg.MaxUploadSize,
		logger:       logger,
	}, nil
}

func (s *Storage) EnsureBuckets(ctx context.Context) error {
	for _, bucket := range []string{s.uploadBucket, s.resultBucket} {
		exists, err := s.client.BucketExists(ctx, bucket)
		if err != nil {
			return fmt.Errorf("check bucket %s: %w", bucket, err)
		}
		if !exists {
			if err := s.client.MakeBucket(ctx, bucket, miniogo.MakeBucketOptions{}); err != nil {
				return fmt.Errorf("create bucket %s: %w", bucket, err)
			}
		}
	}
	return nil
}

// FetchUpload downloads an uploaded object. The declared content type of the
// message wins over the object metadata.
func (s *Storage) FetchUpload(ctx context.Context, obj entity.UploadedObject) (entity.UploadedFile, error) {
	o, err := s.client.GetObject(ctx, s.uploadBucket, obj.Key, miniogo.GetObjectOptions{})
	if err != nil {
		return entity.UploadedFile{}, fmt.Errorf("get object %s: %w", obj.Key, err)
	}
	defer o.Close()

	info, err := o.Stat()
	if err != nil {
		return entity.UploadedFile{}, fmt.Errorf("stat object %s: %w", obj.Key, err)
	}
	if s.maxUpload > 0 && info.Size > s.maxUpload {
		return entity.UploadedFile{}, fmt.Errorf("object %s is %d bytes, limit %d", obj.Key, info.Size, s.maxUpload)
	}

	data, err := io.ReadAll(o)
	if err != nil {
		return entity.UploadedFile{}, fmt.Errorf("read object %s: %w", obj.Key, err)
	}

	name := obj.Name
	if name == "" {
		name = path.Base(obj.Key)
	}
	contentType := obj.ContentType
	if contentType == "" {
		contentType = info.ContentType
	}

	return entity.UploadedFile{
		Key:         obj.Key,
		Name:        name,
		ContentType: contentType,
		Data:        data,
	}, nil
}

// ResultKey names the i-th image of a cycle's result collection. The zero
// padded position makes lexical key order equal collection order for up to
// 10^8 images.
func ResultKey(cycleID string, i int, name string) string {
	return fmt.Sprintf("%s/%08d-%s", cycleID, i, path.Base(name))
}

// Register stores the collection. On failure the objects already written for
// this cycle are removed so a failed cycle leaves no partial result behind.
func (s *Storage) Register(ctx context.Context, cycleID string, images []entity.Image) error {
	written := make([]string, 0, len(images))
	for i, img := range images {
		key := ResultKey(cycleID, i, img.Name)
		_, err := s.client.PutObject(ctx, s.resultBucket, key, bytes.NewReader(img.Data), int64(len(img.Data)), miniogo.PutObjectOptions{
			ContentType: img.ContentType,
		})
		if err != nil {
			s.rollback(context.WithoutCancel(ctx), written)
			return fmt.Errorf("upload result %s: %w", key, err)
		}
		written = append(written, key)
	}

	s.logger.Info("result collection stored",
		zap.String("cycle_id", cycleID),
		zap.String("bucket", s.resultBucket),
		zap.Int("images", len(images)),
	)
	return nil
}

func (s *Storage) rollback(ctx context.Context, keys []string) {
	for _, key := range keys {
		if err := s.client.RemoveObject(ctx, s.resultBucket, key, miniogo.RemoveObjectOptions{}); err != nil {
			s.logger.Warn("failed to remove partial result", zap.String("key", key), zap.Error(err))
		}
	}
}
