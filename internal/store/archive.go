package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"ideaforge/internal/types"
)

// ArchiveConfig configures the S3-compatible archive of finished sessions.
type ArchiveConfig struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// ArchiveStore writes finished workflow sessions to object storage as
// JSON exports, one object per session.
type ArchiveStore struct {
	client   *minio.Client
	bucket   string
	region   string
	initOnce sync.Once
	initErr  error
}

func NewArchiveStore(cfg ArchiveConfig) (*ArchiveStore, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("archive endpoint is required")
	}
	access := strings.TrimSpace(cfg.AccessKey)
	secret := strings.TrimSpace(cfg.SecretKey)
	if access == "" || secret == "" {
		return nil, fmt.Errorf("archive access key and secret key are required")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("archive bucket is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(access, secret, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("init archive client: %w", err)
	}
	return &ArchiveStore{client: client, bucket: bucket, region: region}, nil
}

func (a *ArchiveStore) ensureBucket(ctx context.Context) error {
	a.initOnce.Do(func() {
		exists, err := a.client.BucketExists(ctx, a.bucket)
		if err != nil {
			a.initErr = err
			return
		}
		if exists {
			return
		}
		a.initErr = a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{Region: a.region})
	})
	return a.initErr
}

func archiveKey(sessionID string) string {
	return "sessions/" + sessionID + ".json"
}

// Archive stores the session export. Call only for terminal sessions.
func (a *ArchiveStore) Archive(ctx context.Context, sess *types.WorkflowSession) error {
	if a == nil {
		return nil
	}
	if strings.TrimSpace(sess.ID) == "" {
		return fmt.Errorf("archive: session id is required")
	}
	if err := a.ensureBucket(ctx); err != nil {
		return fmt.Errorf("ensure bucket: %w", err)
	}
	content, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("archive: encode session %s: %w", sess.ID, err)
	}
	_, err = a.client.PutObject(ctx, a.bucket, archiveKey(sess.ID),
		bytes.NewReader(content), int64(len(content)), minio.PutObjectOptions{
			ContentType: "application/json",
		})
	return err
}

// Fetch loads an archived session export.
func (a *ArchiveStore) Fetch(ctx context.Context, sessionID string) (*types.WorkflowSession, error) {
	if err := a.ensureBucket(ctx); err != nil {
		return nil, fmt.Errorf("ensure bucket: %w", err)
	}
	obj, err := a.client.GetObject(ctx, a.bucket, archiveKey(sessionID), minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()
	b, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("%w: archived session %s", types.ErrNotFound, sessionID)
	}
	var sess types.WorkflowSession
	if err := json.Unmarshal(b, &sess); err != nil {
		return nil, fmt.Errorf("archive: decode session %s: %w", sessionID, err)
	}
	return &sess, nil
}
