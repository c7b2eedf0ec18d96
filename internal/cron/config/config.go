package cron_config

type Config struct {
	// Heartbeat check, every minute
	CronScheduleHeartbeat string `env:"CRON_SCHEDULE_HEARTBEAT" envDefault:"0 * * * * *"`
	// Mailbox structure audit, hourly
	CronScheduleMailboxAudit string `env:"CRON_SCHEDULE_MAILBOX_AUDIT" envDefault:"0 0 * * * *"`
}
