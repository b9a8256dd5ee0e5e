package app

import (
	"gorm.io/gorm"

	chatrepo "github.com/getnvoi/aven-sub001/internal/data/repos/chat"
	docrepo "github.com/getnvoi/aven-sub001/internal/data/repos/documents"
	jobrepo "github.com/getnvoi/aven-sub001/internal/data/repos/jobs"
	toolrepo "github.com/getnvoi/aven-sub001/internal/data/repos/tools"
	"github.com/getnvoi/aven-sub001/internal/pkg/logger"
)

type Repos struct {
	Thread   chatrepo.ThreadRepo
	Message  chatrepo.MessageRepo
	Tool     toolrepo.ToolRepo
	Document docrepo.DocumentRepo
	JobRun   jobrepo.JobRunRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Thread:   chatrepo.NewThreadRepo(db, log),
		Message:  chatrepo.NewMessageRepo(db, log),
		Tool:     toolrepo.NewToolRepo(db, log),
		Document: docrepo.NewDocumentRepo(db, log),
		JobRun:   jobrepo.NewJobRunRepo(db, log),
	}
}
