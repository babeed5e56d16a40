package storage

import (
	"context"
	"io"
	"iter"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"fitsstore-go/internal/config"
	"fitsstore-go/pkg/errkind"
	"fitsstore-go/pkg/log"
)

// S3Store 是基于 minio-go 的 S3 兼容对象存储后端。
type S3Store struct {
	client *minio.Client
	bucket string
}

// NewMinioClient 根据配置创建 MinIO 客户端。
func NewMinioClient(cfg config.MinIOConfig) (*minio.Client, error) {
	return minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
}

// NewS3Store 创建远端后端并确保存储桶存在。
func NewS3Store(ctx context.Context, client *minio.Client, bucket string) (*S3Store, error) {
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, errkind.Transient.Wrap(err)
	}
	if !exists {
		log.Infof("存储桶 '%s' 不存在，正在创建...", bucket)
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, errkind.Transient.Wrap(err)
		}
		log.Infof("存储桶 '%s' 创建成功", bucket)
	}
	return &S3Store{client: client, bucket: bucket}, nil
}

// s3Err 把 minio 错误归类。
func s3Err(name string, err error) error {
	resp := minio.ToErrorResponse(err)
	switch {
	case resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound:
		return errkind.NotFound.New("%s", name)
	case resp.StatusCode == http.StatusForbidden:
		return errkind.PermissionDenied.Wrap(err)
	}
	return errkind.Transient.Wrap(err)
}

// etagMD5 返回单段上传的 ETag（即内容 md5）。
func etagMD5(etag string) string {
	etag = strings.Trim(etag, `"`)
	if len(etag) != 32 || strings.Contains(etag, "-") {
		return ""
	}
	return etag
}

func (s *S3Store) Stat(ctx context.Context, name string) (ObjectInfo, error) {
	return errkind.Retry(ctx, func() (ObjectInfo, error) {
		oi, err := s.client.StatObject(ctx, s.bucket, name, minio.StatObjectOptions{})
		if err != nil {
			return ObjectInfo{}, s3Err(name, err)
		}
		return ObjectInfo{Name: name, Size: oi.Size, LastMod: oi.LastModified.UTC(), ETagMD5: etagMD5(oi.ETag)}, nil
	})
}

func (s *S3Store) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	return errkind.Retry(ctx, func() (io.ReadCloser, error) {
		obj, err := s.client.GetObject(ctx, s.bucket, name, minio.GetObjectOptions{})
		if err != nil {
			return nil, s3Err(name, err)
		}
		// GetObject 是惰性的，Stat 触发真正的请求以便尽早发现不存在的对象。
		if _, err := obj.Stat(); err != nil {
			_ = obj.Close()
			return nil, s3Err(name, err)
		}
		return obj, nil
	})
}

// Put 不做重试：r 只能读一次。
func (s *S3Store) Put(ctx context.Context, name string, r io.Reader, size int64) error {
	_, err := s.client.PutObject(ctx, s.bucket, name, r, size, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return s3Err(name, err)
	}
	return nil
}

func (s *S3Store) Delete(ctx context.Context, name string) error {
	return errkind.RetryDo(ctx, func() error {
		if err := s.client.RemoveObject(ctx, s.bucket, name, minio.RemoveObjectOptions{}); err != nil {
			return s3Err(name, err)
		}
		return nil
	})
}

func (s *S3Store) List(ctx context.Context, prefix string) iter.Seq2[ObjectInfo, error] {
	return func(yield func(ObjectInfo, error) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
			if obj.Err != nil {
				yield(ObjectInfo{}, s3Err(prefix, obj.Err))
				return
			}
			info := ObjectInfo{Name: obj.Key, Size: obj.Size, LastMod: obj.LastModified.UTC(), ETagMD5: etagMD5(obj.ETag)}
			if !yield(info, nil) {
				return
			}
		}
	}
}

// FetchToLocal 下载对象到 dir 下的唯一文件名，文件名保留原后缀以便识别 gzip。
func (s *S3Store) FetchToLocal(ctx context.Context, name, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	dst := filepath.Join(dir, uuid.NewString()+"_"+filepath.Base(name))
	err := errkind.RetryDo(ctx, func() error {
		if err := s.client.FGetObject(ctx, s.bucket, name, dst, minio.GetObjectOptions{}); err != nil {
			return s3Err(name, err)
		}
		return nil
	})
	if err != nil {
		_ = os.Remove(dst)
		return "", err
	}
	return dst, nil
}

func (s *S3Store) Remote() bool { return true }
