package storage

import (
	"context"
	"fmt"
	"time"

	"robosim/backend/common/config"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// BagStore rosbag包对象存储
type BagStore interface {
	Exists(ctx context.Context, objectPath string) (bool, error)
	PresignGet(ctx context.Context, objectPath string, ttl time.Duration) (string, error)
	Delete(ctx context.Context, objectPath string) error
}

// MinioBagStore BagStore 的MinIO实现
type MinioBagStore struct {
	client *minio.Client
	bucket string
}

// NewMinioBagStore 创建MinIO存储客户端并确保bucket存在
func NewMinioBagStore(ctx context.Context, cfg *config.ObjectStoreConfig) (*MinioBagStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("创建MinIO客户端失败: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("检查bucket失败: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("创建bucket失败: %w", err)
		}
	}

	return &MinioBagStore{client: client, bucket: cfg.Bucket}, nil
}

// Exists 判断rosbag对象是否存在
func (s *MinioBagStore) Exists(ctx context.Context, objectPath string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.bucket, objectPath, minio.StatObjectOptions{})
	if err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket" {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// PresignGet 生成下载用的预签名地址，供代理Pod拉取rosbag包
func (s *MinioBagStore) PresignGet(ctx context.Context, objectPath string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	u, err := s.client.PresignedGetObject(ctx, s.bucket, objectPath, ttl, nil)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

// Delete 删除rosbag对象
func (s *MinioBagStore) Delete(ctx context.Context, objectPath string) error {
	return s.client.RemoveObject(ctx, s.bucket, objectPath, minio.RemoveObjectOptions{})
}
