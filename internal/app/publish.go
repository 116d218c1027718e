package app

import (
	"context"
	"fmt"

	"github.com/okian/histsync/internal/adapters/archive"
	"github.com/okian/histsync/internal/report"
	"github.com/okian/histsync/pkg/logger"
)

const archiveStampLayout = "20060102T150405Z"

// ArchiveName is the object name a report is archived under, before the
// compression suffix.
func ArchiveName(rep *report.Report) string {
	return fmt.Sprintf("%s-%s-%s.json", rep.Command, rep.StartedAt.UTC().Format(archiveStampLayout), rep.RunID)
}

// publish archives the JSON report and mails the HTML body with the local
// archive attached. Failures are logged; they never change the run outcome.
func (e *Engine) publish(ctx context.Context, rep *report.Report) {
	e.setPhase(phasePublish)

	var attachments []string
	if e.archiver != nil {
		data, err := report.JSON(rep)
		if err != nil {
			e.log.Warn(ctx, "report not archived", logger.Error(err))
		} else {
			entries, err := e.archiver.Archive(ctx, ArchiveName(rep), data)
			if err != nil {
				e.log.Warn(ctx, "report archive incomplete", logger.Error(err))
			}
			for _, en := range entries {
				if en.Backend == archive.LocalName {
					attachments = append(attachments, en.Location)
				}
			}
		}
	}

	if e.notifier == nil {
		return
	}
	body, err := report.HTML(rep)
	if err != nil {
		e.log.Warn(ctx, "report not mailed", logger.Error(err))
		return
	}
	if err := e.notifier.Notify(ctx, rep.Subject(), body, attachments); err != nil {
		e.log.Warn(ctx, "report notification failed", logger.Error(err))
	}
}
