package publisher

import (
	"context"

	"github.com/sirupsen/logrus"

	"content-scheduler/internal/logging"
	"content-scheduler/internal/models"
)

// DryRun logs every item and reports success without contacting a channel.
type DryRun struct {
	log *logrus.Entry
}

func NewDryRun(log *logrus.Entry) *DryRun {
	if log == nil {
		log = logging.Component("publisher")
	}
	return &DryRun{log: log}
}

func (d *DryRun) Publish(_ context.Context, item models.ContentItem) (models.PublishResult, error) {
	d.log.WithFields(logrus.Fields{"content_id": item.ID, "category": item.Category}).Info("[PUBLISH] dry run")
	return models.PublishResult{Success: true, ExternalRef: "dryrun:" + item.ID}, nil
}
