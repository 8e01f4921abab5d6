package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gstrecon/internal/models"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ReportArchiveService stores the full JSON report of each reconciliation run
// in object storage. The database keeps only the summary projection; the
// archived report is the complete record handed to auditors.
type ReportArchiveService interface {
	ArchiveRun(ctx context.Context, result *models.ReconciliationProcessResult, survey *models.MismatchSurveyResult) (string, error)
	GetReportURL(userID uuid.UUID, period string, runID uuid.UUID, expiry time.Duration) (string, error)
	EnsureBucketExists(ctx context.Context) error
	Ping(ctx context.Context) error
}

type archivedReport struct {
	Result *models.ReconciliationProcessResult `json:"result"`
	Survey *models.MismatchSurveyResult        `json:"survey,omitempty"`
}

type reportArchive struct {
	client *minio.Client
	bucket string
}

func NewReportArchiveService(endpoint, accessKey, secretKey, bucket string, useSSL bool) (ReportArchiveService, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, err
	}
	return &reportArchive{client: client, bucket: bucket}, nil
}

func reportObjectName(userID uuid.UUID, period string, runID uuid.UUID) string {
	return fmt.Sprintf("recon/%s/%s/%s.json", userID, period, runID)
}

func (s *reportArchive) ArchiveRun(ctx context.Context, result *models.ReconciliationProcessResult, survey *models.MismatchSurveyResult) (string, error) {
	payload, err := json.Marshal(archivedReport{Result: result, Survey: survey})
	if err != nil {
		return "", fmt.Errorf("failed to encode run report: %w", err)
	}

	objectName := reportObjectName(result.UserID, result.Period, result.RunID)
	_, err = s.client.PutObject(ctx, s.bucket, objectName, bytes.NewReader(payload), int64(len(payload)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return "", fmt.Errorf("failed to archive run report: %w", err)
	}
	return objectName, nil
}

func (s *reportArchive) GetReportURL(userID uuid.UUID, period string, runID uuid.UUID, expiry time.Duration) (string, error) {
	url, err := s.client.PresignedGetObject(context.Background(), s.bucket, reportObjectName(userID, period, runID), expiry, nil)
	if err != nil {
		return "", err
	}
	return url.String(), nil
}

func (s *reportArchive) EnsureBucketExists(ctx context.Context) error {
	found, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return err
	}
	if !found {
		return s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{})
	}
	return nil
}

func (s *reportArchive) Ping(ctx context.Context) error {
	_, err := s.client.BucketExists(ctx, s.bucket)
	return err
}
