package storage

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog/log"
)

// MinIOStorage archives uploaded tag photos in a bucket
type MinIOStorage struct {
	client         *minio.Client
	bucketName     string
	endpoint       string
	publicEndpoint string
}

// NewMinIOStorage creates a new MinIO storage client
func NewMinIOStorage(endpoint, publicEndpoint, accessKey, secretKey, bucketName string, useSSL bool) (*MinIOStorage, error) {
	minioClient, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	if publicEndpoint == "" {
		publicEndpoint = endpoint
	}
	publicEndpoint = strings.TrimSuffix(strings.Trim(strings.TrimSpace(publicEndpoint), `"'=`), "/")

	storage := &MinIOStorage{
		client:         minioClient,
		bucketName:     bucketName,
		endpoint:       endpoint,
		publicEndpoint: publicEndpoint,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exists, err := minioClient.BucketExists(ctx, bucketName)
	if err != nil {
		log.Warn().Err(err).Msgf("Failed to check bucket existence for %s (will continue)", bucketName)
	} else if !exists {
		if err := minioClient.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{}); err != nil {
			log.Error().Err(err).Msgf("Failed to create bucket %s", bucketName)
		} else {
			log.Info().Msgf("Bucket %s created successfully", bucketName)
		}
	}

	log.Info().
		Str("endpoint", endpoint).
		Str("public_endpoint", publicEndpoint).
		Str("bucket", bucketName).
		Msg("MinIO storage initialized")

	return storage, nil
}

// UploadImage stores a tag photo and returns its object key and public URL
func (s *MinIOStorage) UploadImage(ctx context.Context, reader io.Reader, filename string, contentType string, size int64) (string, string, error) {
	key := ObjectKey(filename, time.Now())

	_, err := s.client.PutObject(
		ctx,
		s.bucketName,
		key,
		reader,
		size,
		minio.PutObjectOptions{
			ContentType: contentType,
		},
	)
	if err != nil {
		return "", "", fmt.Errorf("failed to upload image: %w", err)
	}

	publicURL := s.GetImageURL(key)

	log.Info().
		Str("filename", filename).
		Str("key", key).
		Str("url", publicURL).
		Msg("Tag image uploaded")

	return key, publicURL, nil
}

// DeleteImage removes an archived tag photo by object key
func (s *MinIOStorage) DeleteImage(ctx context.Context, key string) error {
	if key == "" {
		return fmt.Errorf("empty object key")
	}

	if err := s.client.RemoveObject(ctx, s.bucketName, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete image: %w", err)
	}

	log.Info().Str("key", key).Msg("Tag image deleted")
	return nil
}

// GetImageURL returns the public URL for an object key
func (s *MinIOStorage) GetImageURL(key string) string {
	return PublicObjectURL(s.publicEndpoint, s.bucketName, key)
}

// HealthCheck verifies the MinIO connection
func (s *MinIOStorage) HealthCheck(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucketName)
	if err != nil {
		return fmt.Errorf("MinIO health check failed: %w", err)
	}
	if !exists {
		return fmt.Errorf("bucket '%s' does not exist", s.bucketName)
	}
	return nil
}

// ObjectKey builds a unique, date-partitioned key for an uploaded tag photo
func ObjectKey(filename string, now time.Time) string {
	ext := strings.ToLower(filepath.Ext(filename))
	return fmt.Sprintf("tags/%s/%s%s", now.Format("2006-01-02"), uuid.New().String(), ext)
}

// PublicObjectURL joins endpoint, bucket and key. Endpoints without a scheme get https.
func PublicObjectURL(endpoint, bucket, key string) string {
	endpoint = strings.Trim(endpoint, "\"'= ")
	if strings.Contains(endpoint, "://") {
		return fmt.Sprintf("%s/%s/%s", endpoint, bucket, key)
	}
	return fmt.Sprintf("https://%s/%s/%s", endpoint, bucket, key)
}
