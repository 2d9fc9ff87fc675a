package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"chunkvault/pkg/cachestore"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// Adapter 实现了 cachestore.Store 接口 (S3 / MinIO 后端)
// Key 布局与磁盘后端一致: <id[:2]>/<id[2:]>/<encoding>/<size>/00000000.chunk
// S3 的 PutObject 本身就是原子的 (对象要么完整可见要么不存在)，不需要临时文件技巧
type Adapter struct {
	client *s3.Client
	bucket string
}

// Config 用于初始化 Adapter
type Config struct {
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
}

const (
	chunkSuffix  = ".chunk"
	manifestName = "manifest.cbor"
)

// NewAdapter 初始化 S3 客户端
func NewAdapter(ctx context.Context, cfg Config) (*Adapter, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.SecretAccessKey, "",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		// MinIO 必须用 Path Style: http://host:9000/bucket/key
		o.UsePathStyle = true
	})

	// 确保 Bucket 存在 (MVP 级别；生产环境建议手动管理 Bucket)
	_, err = client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: &cfg.Bucket})
	if err != nil {
		if _, err := client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: &cfg.Bucket}); err != nil {
			fmt.Printf("Warning: failed to ensure bucket exists: %v\n", err)
		}
	}

	return &Adapter{client: client, bucket: cfg.Bucket}, nil
}

// filePrefix 某个文件全部缓存对象的公共前缀
func filePrefix(fileID string) string {
	if len(fileID) < 2 {
		return fileID + "/"
	}
	return fileID[:2] + "/" + fileID[2:] + "/"
}

func areaPrefix(key cachestore.Key) string {
	return filePrefix(key.FileID) + key.Encoding + "/" + strconv.FormatInt(key.ChunkSize, 10) + "/"
}

func chunkKey(key cachestore.Key, index int64) string {
	return areaPrefix(key) + fmt.Sprintf("%08d%s", index, chunkSuffix)
}

func (s *Adapter) Exists(ctx context.Context, key cachestore.Key, index int64) (bool, error) {
	return s.head(ctx, chunkKey(key, index))
}

func (s *Adapter) head(ctx context.Context, objectKey string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	})
	if err == nil {
		return true, nil
	}

	var notFound *s3types.NotFound
	var noKey *s3types.NoSuchKey
	if errors.As(err, &notFound) || errors.As(err, &noKey) {
		return false, nil
	}
	// 兼容性：某些 S3 实现返回 generic 404 error string
	if strings.Contains(err.Error(), "404") {
		return false, nil
	}
	return false, err
}

func (s *Adapter) Get(ctx context.Context, key cachestore.Key, index int64) ([]byte, error) {
	return s.getObject(ctx, chunkKey(key, index))
}

func (s *Adapter) getObject(ctx context.Context, objectKey string) ([]byte, error) {
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		var noKey *s3types.NoSuchKey
		if errors.As(err, &noKey) || strings.Contains(err.Error(), "404") {
			return nil, cachestore.ErrNotFound
		}
		return nil, fmt.Errorf("s3 get failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("s3 get read failed: %w", err)
	}
	return data, nil
}

func (s *Adapter) Put(ctx context.Context, key cachestore.Key, index int64, data []byte) error {
	return s.putObject(ctx, chunkKey(key, index), data)
}

func (s *Adapter) putObject(ctx context.Context, objectKey string, data []byte) error {
	// 幂等性：已存在就跳过 (Head 比 Put 便宜)
	exists, err := s.head(ctx, objectKey)
	if err != nil {
		return fmt.Errorf("%w: existence check: %v", cachestore.ErrWriteFailed, err)
	}
	if exists {
		return nil
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(objectKey),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
	})
	if err != nil {
		return fmt.Errorf("%w: %v", cachestore.ErrWriteFailed, err)
	}
	return nil
}

func (s *Adapter) Stats(ctx context.Context, key cachestore.Key) (cachestore.Stats, error) {
	var st cachestore.Stats
	prefix := areaPrefix(key)

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return cachestore.Stats{}, fmt.Errorf("s3 list failed: %w", err)
		}
		for _, obj := range page.Contents {
			if !strings.HasSuffix(*obj.Key, chunkSuffix) {
				continue // manifest 不计入
			}
			st.Count++
			st.Bytes += aws.ToInt64(obj.Size)
		}
	}
	return st, nil
}

func (s *Adapter) GetManifest(ctx context.Context, key cachestore.Key) (cachestore.Manifest, error) {
	data, err := s.getObject(ctx, areaPrefix(key)+manifestName)
	if err != nil {
		return cachestore.Manifest{}, err
	}
	return cachestore.DecodeManifest(data)
}

func (s *Adapter) PutManifest(ctx context.Context, key cachestore.Key, m cachestore.Manifest) error {
	data, err := cachestore.EncodeManifest(m)
	if err != nil {
		return err
	}
	return s.putObject(ctx, areaPrefix(key)+manifestName, data)
}

func (s *Adapter) ClearFile(ctx context.Context, fileID string) error {
	return s.deletePrefix(ctx, filePrefix(fileID))
}

func (s *Adapter) ClearEncoding(ctx context.Context, fileID, encoding string) error {
	return s.deletePrefix(ctx, filePrefix(fileID)+encoding+"/")
}

// deletePrefix 批量删除某个前缀下的所有对象 (DeleteObjects 每批最多 1000 个)
func (s *Adapter) deletePrefix(ctx context.Context, prefix string) error {
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("s3 list for delete failed: %w", err)
		}
		if len(page.Contents) == 0 {
			continue
		}

		objects := make([]s3types.ObjectIdentifier, 0, len(page.Contents))
		for _, obj := range page.Contents {
			objects = append(objects, s3types.ObjectIdentifier{Key: obj.Key})
		}
		_, err = s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &s3types.Delete{Objects: objects, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return fmt.Errorf("s3 batch delete failed: %w", err)
		}
	}
	return nil
}
