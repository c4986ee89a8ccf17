// Package objectstore keeps audio artifacts in a NATS JetStream object store bucket.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"podcaster/internal/domain"
)

type NatsObjectStore struct {
	jetstreamContext nats.JetStreamContext
	bucket           string
	store            nats.ObjectStore
}

// New creates the bucket, or binds to it when it already exists.
func New(jetstreamContext nats.JetStreamContext, bucketName string) (*NatsObjectStore, error) {
	store, err := jetstreamContext.CreateObjectStore(&nats.ObjectStoreConfig{
		Bucket:      bucketName,
		Description: fmt.Sprintf("Podcast audio for the %s bucket.", bucketName),
		Storage:     nats.FileStorage,
		Replicas:    1,
	})
	if err != nil {
		if !errors.Is(err, jetstream.ErrBucketExists) {
			return nil, fmt.Errorf("failed to create object store bucket '%s': %w", bucketName, err)
		}
		store, err = jetstreamContext.ObjectStore(bucketName)
		if err != nil {
			return nil, fmt.Errorf("failed to bind to existing object store bucket '%s': %w", bucketName, err)
		}
	}

	return &NatsObjectStore{
		jetstreamContext: jetstreamContext,
		bucket:           bucketName,
		store:            store,
	}, nil
}

func (n *NatsObjectStore) Bucket() string {
	return n.bucket
}

// Put stores data under key with its content type and metadata.
func (n *NatsObjectStore) Put(_ context.Context, key, contentType string, data []byte, metadata map[string]string) (domain.ArtifactInfo, error) {
	headers := nats.Header{}
	if contentType != "" {
		headers.Set("Content-Type", contentType)
	}

	info, err := n.store.Put(&nats.ObjectMeta{
		Name:     key,
		Headers:  headers,
		Metadata: metadata,
	}, bytes.NewReader(data))
	if err != nil {
		return domain.ArtifactInfo{}, fmt.Errorf("failed to put object '%s' to bucket '%s': %w", key, n.bucket, err)
	}

	return toArtifact(info), nil
}

// Download streams the object stored under key into w.
func (n *NatsObjectStore) Download(_ context.Context, key string, w io.Writer) (int64, error) {
	obj, err := n.store.Get(key)
	if err != nil {
		if errors.Is(err, nats.ErrObjectNotFound) {
			return 0, fmt.Errorf("%w: %s", domain.ErrArtifactNotFound, key)
		}
		return 0, fmt.Errorf("failed to get object '%s' from bucket '%s': %w", key, n.bucket, err)
	}

	written, copyErr := io.Copy(w, obj)
	closeErr := obj.Close()

	if copyErr != nil {
		return written, fmt.Errorf("failed to read object '%s': %w", key, copyErr)
	}
	if closeErr != nil {
		return written, fmt.Errorf("failed to close object '%s': %w", key, closeErr)
	}

	return written, nil
}

// List returns live objects under prefix, newest first.
func (n *NatsObjectStore) List(_ context.Context, prefix string) ([]domain.ArtifactInfo, error) {
	infos, err := n.store.List()
	if err != nil {
		if errors.Is(err, nats.ErrNoObjectsFound) {
			return []domain.ArtifactInfo{}, nil
		}
		return nil, fmt.Errorf("failed to list bucket '%s': %w", n.bucket, err)
	}

	out := make([]domain.ArtifactInfo, 0, len(infos))
	for _, info := range infos {
		if info == nil || info.Deleted || !strings.HasPrefix(info.Name, prefix) {
			continue
		}
		out = append(out, toArtifact(info))
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].LastModified.Equal(out[j].LastModified) {
			return out[i].Key > out[j].Key
		}
		return out[i].LastModified.After(out[j].LastModified)
	})

	return out, nil
}

func (n *NatsObjectStore) Delete(_ context.Context, key string) error {
	if err := n.store.Delete(key); err != nil {
		return fmt.Errorf("failed to delete object '%s' from bucket '%s': %w", key, n.bucket, err)
	}
	return nil
}

// Ping checks that the bucket is reachable.
func (n *NatsObjectStore) Ping(_ context.Context) error {
	if _, err := n.store.Status(); err != nil {
		return fmt.Errorf("failed to reach bucket '%s': %w", n.bucket, err)
	}
	return nil
}

func toArtifact(info *nats.ObjectInfo) domain.ArtifactInfo {
	return domain.ArtifactInfo{
		Key:          info.Name,
		Size:         int64(info.Size),
		LastModified: info.ModTime,
	}
}
