package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"
	"time"

	"OnAirFM/config"
	"OnAirFM/logger"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ErrObjectNotFound 对象不存在
var ErrObjectNotFound = errors.New("object not found")

// 对象前缀
const (
	PrefixTracks  = "tracks"
	PrefixArtwork = "artwork"
	MediaRoute    = "/media/"
)

// Object 读取到的媒体对象
type Object struct {
	Body        io.ReadSeekCloser
	Size        int64
	ContentType string
	ModTime     time.Time
}

// ObjectInfo 对象列表项
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
	ContentType  string
}

// BucketStats 存储桶统计
type BucketStats struct {
	TotalObjects int
	TotalSize    int64
	LastModified time.Time
}

// MediaStore 基于 MinIO 的媒体与封面存储
type MediaStore struct {
	client *minio.Client
	bucket string
	region string
}

// NewMediaStore creates the MinIO client. It does not touch the network.
func NewMediaStore(cfg *config.Config) (*MediaStore, error) {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
		Region: cfg.MinioRegion,
	})
	if err != nil {
		return nil, fmt.Errorf("创建 MinIO 客户端失败: %w", err)
	}
	return &MediaStore{client: client, bucket: cfg.MinioBucket, region: cfg.MinioRegion}, nil
}

// Bucket returns the bucket name.
func (s *MediaStore) Bucket() string {
	return s.bucket
}

// EnsureBucket 检查存储桶，不存在时创建
func (s *MediaStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("检查存储桶失败: %w", err)
	}
	if exists {
		logger.Info("bucket ready", logger.String("bucket", s.bucket))
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
		return fmt.Errorf("创建存储桶失败: %w", err)
	}
	logger.Info("bucket created", logger.String("bucket", s.bucket))
	return nil
}

// Put uploads an object and returns the media URL it is served under.
func (s *MediaStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
	if contentType == "" {
		contentType = ContentTypeFor(key)
	}
	_, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("上传对象 %s 失败: %w", key, err)
	}
	return MediaURL(key), nil
}

// Open 读取对象，对象不存在时返回 ErrObjectNotFound
func (s *MediaStore) Open(ctx context.Context, key string) (*Object, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, translateError(key, err)
	}
	info, err := obj.Stat()
	if err != nil {
		obj.Close()
		return nil, translateError(key, err)
	}
	return &Object{Body: obj, Size: info.Size, ContentType: info.ContentType, ModTime: info.LastModified}, nil
}

// Delete removes an object.
func (s *MediaStore) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return translateError(key, err)
	}
	return nil
}

// List 列出前缀下的对象并统计
func (s *MediaStore) List(ctx context.Context, prefix string) ([]ObjectInfo, *BucketStats, error) {
	stats := &BucketStats{}
	var objects []ObjectInfo
	for object := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if object.Err != nil {
			return nil, nil, fmt.Errorf("列出对象时出错: %w", object.Err)
		}
		stats.TotalObjects++
		stats.TotalSize += object.Size
		if object.LastModified.After(stats.LastModified) {
			stats.LastModified = object.LastModified
		}
		objects = append(objects, ObjectInfo{
			Key:          object.Key,
			Size:         object.Size,
			LastModified: object.LastModified,
			ContentType:  object.ContentType,
		})
	}
	return objects, stats, nil
}

func translateError(key string, err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return fmt.Errorf("%w: %s", ErrObjectNotFound, key)
	}
	return fmt.Errorf("读取对象 %s 失败: %w", key, err)
}

// ObjectKey 为上传文件生成唯一的对象名，保留扩展名
func ObjectKey(prefix, filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	return path.Join(prefix, uuid.New().String()+ext)
}

// MediaURL 对象在 /media 路由下的访问地址
func MediaURL(key string) string {
	return MediaRoute + strings.TrimPrefix(key, "/")
}

// KeyFromURL 从 /media 地址还原对象名，非本地媒体地址返回 false
func KeyFromURL(url string) (string, bool) {
	if !strings.HasPrefix(url, MediaRoute) {
		return "", false
	}
	key := path.Clean("/" + strings.TrimPrefix(url, MediaRoute))
	key = strings.TrimPrefix(key, "/")
	if key == "" || key == "." {
		return "", false
	}
	return key, true
}

// ContentTypeFor 从文件名推断内容类型
func ContentTypeFor(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".mp3":
		return "audio/mpeg"
	case ".m4a", ".aac":
		return "audio/mp4"
	case ".flac":
		return "audio/flac"
	case ".ogg", ".oga":
		return "audio/ogg"
	case ".wav":
		return "audio/wav"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".gif":
		return "image/gif"
	default:
		return "application/octet-stream"
	}
}

// FormatSize 格式化文件大小
func FormatSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}
