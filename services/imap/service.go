package imap

import (
	"context"
	"strings"
	"time"

	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"

	"github.com/zetadesk/mailgate/interfaces"
	"github.com/zetadesk/mailgate/internal/logger"
	"github.com/zetadesk/mailgate/internal/models"
	"github.com/zetadesk/mailgate/internal/tracing"
	"github.com/zetadesk/mailgate/internal/utils"
)

const (
	// ReconnectInterval is the fixed cadence of reconnect attempts after
	// an unclean close.
	ReconnectInterval = 10 * time.Second
	// StopPollInterval is how often Stop re-checks that all connections
	// have drained.
	StopPollInterval = 500 * time.Millisecond
)

// IngestService owns one supervisor per configured server. Connections
// run independently; within a connection all mailbox work is serial.
type IngestService struct {
	cfg         *models.ServiceConfig
	log         logger.Logger
	processor   interfaces.MessageProcessor
	supervisors []*Supervisor
	ctx         context.Context
	cancel      context.CancelFunc
}

func NewIngestService(cfg *models.ServiceConfig, processor interfaces.MessageProcessor, log logger.Logger) *IngestService {
	s := &IngestService{
		cfg:       cfg,
		log:       log,
		processor: processor,
	}
	for i := range cfg.Servers {
		s.supervisors = append(s.supervisors, NewSupervisor(&cfg.Servers[i], &cfg.Runtime, processor, log))
	}
	return s
}

// Start launches every supervisor. It returns immediately; supervisors
// connect and poll in their own goroutines.
func (s *IngestService) Start(ctx context.Context) error {
	span, ctx := tracing.StartTracerSpan(ctx, "IngestService.Start")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.LogFields(tracingLog.Int("server_count", len(s.supervisors)))

	s.ctx, s.cancel = context.WithCancel(ctx)

	for _, sup := range s.supervisors {
		s.log.Infof("starting connection supervisor for %s", sup.Host())
		go sup.Run(s.ctx)
	}

	return nil
}

// Stop requests a graceful disconnect on every connection and waits,
// re-checking every 500ms, until none is connected or mid-poll. There is
// no hard deadline; the operator may kill the process.
func (s *IngestService) Stop() error {
	s.log.Info("stopping ingest service...")

	if s.cancel != nil {
		s.cancel()
	}
	for _, sup := range s.supervisors {
		sup.Disconnect()
	}

	for {
		if s.allDrained() {
			break
		}
		time.Sleep(StopPollInterval)
	}

	s.log.Info("ingest service stopped")
	return nil
}

func (s *IngestService) allDrained() bool {
	for _, sup := range s.supervisors {
		if !sup.Drained() {
			return false
		}
	}
	return true
}

// Status snapshots every connection for the ops endpoint.
func (s *IngestService) Status() map[string]interfaces.ConnectionStatus {
	result := make(map[string]interfaces.ConnectionStatus, len(s.supervisors))
	for _, sup := range s.supervisors {
		result[sup.Host()] = sup.Status()
	}
	return result
}

// AuditMailboxes re-verifies the mailbox tree of every ready connection
// and logs drift. Connections that are mid-poll are skipped.
func (s *IngestService) AuditMailboxes(ctx context.Context) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "IngestService.AuditMailboxes")
	defer span.Finish()
	tracing.TagComponentCronJob(span)

	for _, sup := range s.supervisors {
		failed := sup.Audit(ctx)
		if len(failed) > 0 {
			names := make([]string, 0, len(failed))
			for _, route := range failed {
				names = append(names, route.Name)
			}
			s.log.Errorf("%s: mailbox audit failed for: %s", sup.Host(), utils.SliceToString(names))
		}
	}
}

// isConnectionError classifies errors that should tear the session down
// and arm the reconnect loop.
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}

	errorMsg := err.Error()
	return strings.Contains(errorMsg, "connection closed") ||
		strings.Contains(errorMsg, "i/o timeout") ||
		strings.Contains(errorMsg, "EOF") ||
		strings.Contains(errorMsg, "connection reset") ||
		strings.Contains(errorMsg, "broken pipe") ||
		strings.Contains(errorMsg, "use of closed network connection")
}
