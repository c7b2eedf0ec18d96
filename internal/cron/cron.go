package cron

import (
	"context"
	"sync"

	"github.com/caarlos0/env/v6"
	cronv3 "github.com/robfig/cron/v3"

	"github.com/zetadesk/mailgate/interfaces"
	cron_config "github.com/zetadesk/mailgate/internal/cron/config"
	"github.com/zetadesk/mailgate/internal/logger"
	"github.com/zetadesk/mailgate/internal/tracing"
)

// GroupIngest is the group for mailbox ingestion related jobs
const GroupIngest = "ingest"

// LOCK MANAGEMENT
var jobLocks = struct {
	sync.Mutex
	locks map[string]*sync.Mutex
}{
	locks: map[string]*sync.Mutex{
		GroupIngest: new(sync.Mutex),
	},
}

type CronManager struct {
	log    logger.Logger
	cron   *cronv3.Cron
	jobIDs map[string]cronv3.EntryID
	ingest interfaces.IngestService
}

func NewCronManager(log logger.Logger, ingest interfaces.IngestService) *CronManager {
	return &CronManager{
		log:    log,
		jobIDs: make(map[string]cronv3.EntryID),
		ingest: ingest,
	}
}

// Stop gracefully stops the cron manager
func (cm *CronManager) Stop() {
	if cm.cron != nil {
		cm.log.Info("Stopping cron manager")
		ctx := cm.cron.Stop()
		// Wait for jobs to finish
		<-ctx.Done()
	}
}

// registerJobs adds all cron jobs to the scheduler
func (cm *CronManager) registerJobs(c *cronv3.Cron) {
	// Load cron config from environment variables
	var cronConfig cron_config.Config
	if err := env.Parse(&cronConfig); err != nil {
		cm.log.Fatalf("Failed to parse cron config from environment: %v", err)
	}

	// Register heartbeat job
	if cronConfig.CronScheduleHeartbeat != "" {
		id, err := c.AddFunc(cronConfig.CronScheduleHeartbeat, func() {
			defer tracing.RecoverAndLogToJaeger(cm.log)
			cm.heartbeat()
		})
		if err != nil {
			cm.log.Fatalf("Could not add heartbeat cron job: %v", err)
		}
		cm.jobIDs["heartbeat"] = id
		cm.log.Infof("Registered heartbeat job with schedule: %s", cronConfig.CronScheduleHeartbeat)
	}

	// Register mailbox tree audit job
	if cronConfig.CronScheduleMailboxAudit != "" {
		id, err := c.AddFunc(cronConfig.CronScheduleMailboxAudit, func() {
			defer tracing.RecoverAndLogToJaeger(cm.log)
			jobLocks.locks[GroupIngest].Lock()
			defer jobLocks.locks[GroupIngest].Unlock()
			cm.auditMailboxes()
		})
		if err != nil {
			cm.log.Fatalf("Could not add mailbox audit cron job: %v", err)
		}
		cm.jobIDs["mailbox_audit"] = id
		cm.log.Infof("Registered mailbox audit job with schedule: %s", cronConfig.CronScheduleMailboxAudit)
	}
}

// StartCron initializes and starts the cron scheduler
func (cm *CronManager) StartCron() {
	cm.log.Info("Starting cron manager")
	// Create a new cron with seconds field enabled and panic recovery
	cronOptions := []cronv3.Option{
		cronv3.WithSeconds(),
		cronv3.WithChain(
			cronv3.SkipIfStillRunning(cronv3.DefaultLogger), // Skip if still running
			cronv3.Recover(cronv3.DefaultLogger),            // Default recovery as backup
		),
	}
	c := cronv3.New(cronOptions...)
	cm.registerJobs(c)
	c.Start()
	cm.cron = c
}

func (cm *CronManager) heartbeat() {
	for host, status := range cm.ingest.Status() {
		cm.log.Infof("Cron heartbeat: %s state=%s lastPoll=%s", host, status.State, status.LastPoll.Format("15:04:05"))
	}
}

func (cm *CronManager) auditMailboxes() {
	cm.log.Info("Running mailbox tree audit")

	// Create a background context for the operation
	ctx := context.Background()

	span, ctx := tracing.StartTracerSpan(ctx, "CronManager.auditMailboxes")
	defer span.Finish()
	tracing.TagComponentCronJob(span)

	cm.ingest.AuditMailboxes(ctx)

	cm.log.Info("Successfully completed mailbox tree audit")
}
