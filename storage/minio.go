package storage

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"echoheritage/config"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Object path prefixes within the bucket.
const (
	AudioPrefix  = "audio-tracks/"
	ArtPrefix    = "album-art/"
	FusedPrefix  = "fused-results/"
	ModernPrefix = "modern-tracks/"
)

var minioClient *minio.Client

// InitMinio initializes the MinIO client and ensures the bucket exists.
func InitMinio(cfg *config.Config) error {
	log.Printf("Connecting to MinIO at %s (bucket %s)...", cfg.MinioEndpoint, cfg.MinioBucket)

	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
		Region: cfg.MinioRegion,
	})
	if err != nil {
		return fmt.Errorf("failed to create MinIO client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.MinioBucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", cfg.MinioBucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.MinioBucket, minio.MakeBucketOptions{Region: cfg.MinioRegion}); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", cfg.MinioBucket, err)
		}
		log.Printf("Created bucket: %s", cfg.MinioBucket)
	}

	minioClient = client
	log.Println("MinIO client initialized.")
	return nil
}

// GetMinioClient returns the MinIO client instance.
func GetMinioClient() *minio.Client {
	return minioClient
}

// MinioStore is the blob store used by the handlers. Objects are served back
// through the /static/ route, so the public URL of an object is simply
// "/static/" + its path.
type MinioStore struct {
	Bucket string
}

// NewMinioStore returns a store bound to the configured bucket.
func NewMinioStore(bucket string) *MinioStore {
	return &MinioStore{Bucket: bucket}
}

// Upload writes an object to the bucket.
func (s *MinioStore) Upload(ctx context.Context, objectPath string, r io.Reader, size int64, contentType string) error {
	client := GetMinioClient()
	if client == nil {
		return fmt.Errorf("MinIO client not initialized")
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	opts := minio.PutObjectOptions{
		ContentType:      contentType,
		DisableMultipart: true,
	}
	if _, err := client.PutObject(ctx, s.Bucket, objectPath, r, size, opts); err != nil {
		return fmt.Errorf("failed to upload %s to MinIO: %w", objectPath, err)
	}
	return nil
}

// Remove deletes an object from the bucket. Missing objects are not an error.
func (s *MinioStore) Remove(ctx context.Context, objectPath string) error {
	client := GetMinioClient()
	if client == nil {
		return fmt.Errorf("MinIO client not initialized")
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := client.RemoveObject(ctx, s.Bucket, objectPath, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to remove %s from MinIO: %w", objectPath, err)
	}
	return nil
}

// Fetch reads an object's full contents.
func (s *MinioStore) Fetch(ctx context.Context, objectPath string) ([]byte, error) {
	client := GetMinioClient()
	if client == nil {
		return nil, fmt.Errorf("MinIO client not initialized")
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	object, err := client.GetObject(ctx, s.Bucket, objectPath, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s from MinIO: %w", objectPath, err)
	}
	defer object.Close()

	data, err := io.ReadAll(object)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s from MinIO: %w", objectPath, err)
	}
	return data, nil
}

// PublicURL returns the serve path for an object.
func (s *MinioStore) PublicURL(objectPath string) string {
	return "/static/" + objectPath
}

// ObjectPathFromURL reverses PublicURL. Returns "" for URLs that do not point
// into the static route.
func ObjectPathFromURL(url string) string {
	if strings.HasPrefix(url, "/static/") {
		return strings.TrimPrefix(url, "/static/")
	}
	return ""
}
