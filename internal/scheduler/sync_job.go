package scheduler

import (
	"context"

	"github.com/robfig/cron/v3"

	"github.com/Jikuna-xyz/jiku-swap-sub000/internal/service"
	"github.com/Jikuna-xyz/jiku-swap-sub000/pkg/logger"
)

const defaultSyncCron = "0 0 */6 * * *"

type SyncScheduler struct {
	cron     *cron.Cron
	orch     *service.Orchestrator
	cronExpr string
}

func NewSyncScheduler(orch *service.Orchestrator, cronExpr string) *SyncScheduler {
	if cronExpr == "" {
		cronExpr = defaultSyncCron
	}
	return &SyncScheduler{
		cron:     cron.New(cron.WithSeconds()),
		orch:     orch,
		cronExpr: cronExpr,
	}
}

func (s *SyncScheduler) Start() error {
	_, err := s.cron.AddFunc(s.cronExpr, s.runSync)
	if err != nil {
		return err
	}

	s.cron.Start()
	logger.WithFields(map[string]interface{}{
		"cron": s.cronExpr,
	}).Info("Sync scheduler started")
	return nil
}

func (s *SyncScheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	logger.Info("Sync scheduler stopped")
}

func (s *SyncScheduler) runSync() {
	// 编排器自带重入保护，重叠触发会被直接拒绝
	result := s.orch.RunFullSync(context.Background())
	if result.Error != "" {
		logger.WithFields(map[string]interface{}{
			"error": result.Error,
		}).Error("Scheduled sync failed")
	}
}
