package s3

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"sightline/internal/config"
	"sightline/internal/ingest"
	"sightline/internal/model"
)

// Bucket is the slice of object storage the frame source and archive need.
type Bucket interface {
	List(ctx context.Context, prefix string) ([]string, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

type Client struct {
	client *minio.Client
	bucket string
}

func NewMinioClient(cfg config.S3Config, bucket string) (*Client, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}
	return &Client{client: client, bucket: bucket}, nil
}

// EnsureBucket creates the bucket when it does not exist yet.
func (c *Client) EnsureBucket(ctx context.Context) error {
	ok, err := c.client.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", c.bucket, err)
	}
	if ok {
		return nil
	}
	if err := c.client.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", c.bucket, err)
	}
	return nil
}

func (c *Client) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	objectCh := c.client.ListObjects(ctx, c.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})
	for object := range objectCh {
		if object.Err != nil {
			return nil, fmt.Errorf("error listing objects: %w", object.Err)
		}
		if strings.HasSuffix(object.Key, "/") {
			continue
		}
		keys = append(keys, object.Key)
	}
	return keys, nil
}

func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := c.client.GetObject(ctx, c.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()
	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, obj); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *Client) Put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := c.client.PutObject(ctx, c.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	return err
}

var frameExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true}

// Source replays image objects under a prefix in key order. The listing is
// refreshed each time the source wraps around.
type Source struct {
	bucket   Bucket
	prefix   string
	cameraID string
	loop     bool
	keys     []string
	pos      int
	listed   bool
	now      func() time.Time
}

func NewSource(bucket Bucket, prefix, cameraID string, loop bool) *Source {
	return &Source{bucket: bucket, prefix: prefix, cameraID: cameraID, loop: loop, now: time.Now}
}

func (s *Source) Next(ctx context.Context) (model.Frame, error) {
	if !s.listed || (s.pos >= len(s.keys) && s.loop) {
		if err := s.refresh(ctx); err != nil {
			return model.Frame{}, err
		}
	}
	if s.pos >= len(s.keys) {
		return model.Frame{}, io.EOF
	}
	key := s.keys[s.pos]
	s.pos++
	data, err := s.bucket.Get(ctx, key)
	if err != nil {
		return model.Frame{}, fmt.Errorf("get %s: %w", key, err)
	}
	id := strings.TrimSuffix(path.Base(key), path.Ext(key))
	frame := ingest.NewImageFrame(s.cameraID, id, data, s.now().UTC())
	frame.Source = "s3"
	return frame, nil
}

func (s *Source) refresh(ctx context.Context) error {
	keys, err := s.bucket.List(ctx, s.prefix)
	if err != nil {
		return err
	}
	s.keys = s.keys[:0]
	for _, k := range keys {
		if frameExts[strings.ToLower(path.Ext(k))] {
			s.keys = append(s.keys, k)
		}
	}
	sort.Strings(s.keys)
	s.pos = 0
	s.listed = true
	if len(s.keys) == 0 {
		return io.EOF
	}
	return nil
}

// Archiver stores snapshots of frames that raised critical alerts together
// with the detections that caused them.
type Archiver struct {
	bucket Bucket
	logger *slog.Logger
}

func NewArchiver(bucket Bucket, logger *slog.Logger) *Archiver {
	return &Archiver{bucket: bucket, logger: logger}
}

type snapshot struct {
	FrameID    string            `json:"frame_id"`
	CameraID   string            `json:"camera_id"`
	Timestamp  time.Time         `json:"timestamp"`
	Detections []model.Detection `json:"detections"`
}

func (a *Archiver) Archive(ctx context.Context, frame model.Frame, dets []model.Detection) error {
	base := ObjectKey(frame)
	if err := a.bucket.Put(ctx, base+".jpg", frame.Image, "image/jpeg"); err != nil {
		return fmt.Errorf("failed to save frame to S3: %w", err)
	}
	meta, err := json.Marshal(snapshot{
		FrameID:    frame.ID,
		CameraID:   frame.CameraID,
		Timestamp:  frame.Timestamp.UTC(),
		Detections: dets,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal detections: %w", err)
	}
	if err := a.bucket.Put(ctx, base+".json", meta, "application/json"); err != nil {
		return fmt.Errorf("failed to save detections to S3: %w", err)
	}
	if a.logger != nil {
		a.logger.Debug("frame archived", "key", base)
	}
	return nil
}

// ObjectKey is {camera}/{timestamp}-{frame} without extension.
func ObjectKey(frame model.Frame) string {
	return fmt.Sprintf("%s/%s-%s", frame.CameraID, frame.Timestamp.UTC().Format("20060102T150405.000Z"), frame.ID)
}
