package job

import (
	"context"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/ragdesk/ragdesk/internal/model"
	"github.com/ragdesk/ragdesk/internal/pkg/errors"
	"github.com/ragdesk/ragdesk/internal/repo"
	"github.com/ragdesk/ragdesk/internal/service"
)

const ingestRetryBatch = 10

// IngestRetryJob picks up files that never made it out of PENDING, e.g.
// because the process restarted between upload and ingestion.
type IngestRetryJob struct {
	files     *repo.FileRepo
	ingestion *service.FileService
}

func NewIngestRetryJob(files *repo.FileRepo, ingestion *service.FileService) *IngestRetryJob {
	return &IngestRetryJob{files: files, ingestion: ingestion}
}

func (j *IngestRetryJob) Name() string {
	return "ingest_retry"
}

func (j *IngestRetryJob) Run(ctx context.Context) error {
	pending, err := j.files.ListByStatus(ctx, model.IngestStatusPending, ingestRetryBatch)
	if err != nil {
		return err
	}
	for _, file := range pending {
		if err := j.ingestion.Process(ctx, file.ID); err != nil {
			if errors.IsConflict(err) {
				// Already being ingested elsewhere, leave it alone.
				continue
			}
			logutil.GetLogger(ctx).Error("retry ingest failed",
				zap.String("file_id", file.ID), zap.Error(err))
		}
	}
	return nil
}
