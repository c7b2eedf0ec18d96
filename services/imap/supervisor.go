package imap

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/emersion/go-imap/client"
	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"
	"github.com/pkg/errors"

	"github.com/zetadesk/mailgate/interfaces"
	"github.com/zetadesk/mailgate/internal/enum"
	"github.com/zetadesk/mailgate/internal/logger"
	"github.com/zetadesk/mailgate/internal/models"
	"github.com/zetadesk/mailgate/internal/tracing"
)

// Supervisor owns one IMAP session: lifecycle, mailbox verification and
// the periodic poll. All mailbox processing on the connection is serial;
// a poll tick arriving while one is in flight is dropped.
type Supervisor struct {
	cfg       *models.ServerConfig
	runtime   *models.RuntimeConfig
	processor interfaces.MessageProcessor
	log       logger.Logger

	mu        sync.Mutex
	client    *client.Client
	state     enum.ConnectionState
	delimiter string
	isRunning bool
	lastError string
	lastPoll  time.Time
	stats     map[string]*interfaces.MailboxStats
	stopped   bool
}

func NewSupervisor(cfg *models.ServerConfig, runtime *models.RuntimeConfig, processor interfaces.MessageProcessor, log logger.Logger) *Supervisor {
	return &Supervisor{
		cfg:       cfg,
		runtime:   runtime,
		processor: processor,
		log:       log,
		state:     enum.ConnectionDisconnected,
		stats:     make(map[string]*interfaces.MailboxStats),
	}
}

func (s *Supervisor) Host() string {
	return s.cfg.Host
}

// Run drives the connection until the context is cancelled. Each pass
// connects, polls on the configured interval and returns on close; an
// unclean close retries on the fixed reconnect cadence.
func (s *Supervisor) Run(ctx context.Context) {
	for {
		err := s.connectAndServe(ctx)
		if ctx.Err() != nil || s.isStopped() {
			return
		}
		if err != nil {
			s.log.Errorf("[%s] connection closed: %v, reconnecting in %s", s.cfg.Host, err, ReconnectInterval)
		}

		select {
		case <-time.After(ReconnectInterval):
		case <-ctx.Done():
			return
		}
	}
}

// connectAndServe runs one connection lifetime: dial, authenticate,
// discover the hierarchy delimiter, poll immediately and then on every
// interval tick until the session dies or the context is cancelled.
func (s *Supervisor) connectAndServe(ctx context.Context) error {
	span, ctx := tracing.StartTracerSpan(ctx, "Supervisor.connectAndServe")
	defer span.Finish()
	tracing.TagComponentImap(span)
	tracing.TagServerHost(span, s.cfg.Host)

	s.setState(enum.ConnectionConnecting)

	c, err := s.dial()
	if err != nil {
		tracing.TraceErr(span, err)
		s.setError(err)
		s.setState(enum.ConnectionDisconnected)
		return err
	}

	s.mu.Lock()
	s.client = c
	s.mu.Unlock()

	// Ready: discover the delimiter before the first poll
	delimiter, _, err := s.listMailboxes(c)
	if err != nil {
		tracing.TraceErr(span, err)
		s.setError(err)
		s.teardown(c)
		return err
	}

	s.mu.Lock()
	s.delimiter = delimiter
	s.state = enum.ConnectionReady
	s.lastError = ""
	s.mu.Unlock()

	s.log.Infof("[%s] connected, hierarchy delimiter %q", s.cfg.Host, delimiter)
	span.LogFields(tracingLog.String("delimiter", delimiter))

	if err := s.tick(ctx); isConnectionError(err) {
		s.teardown(c)
		return err
	}

	ticker := time.NewTicker(s.runtime.QueryIntervalDuration())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logout(c)
			s.setState(enum.ConnectionClosed)
			return nil

		case <-c.LoggedOut():
			if s.isStopped() {
				s.setState(enum.ConnectionClosed)
				return nil
			}
			err := errors.New("imap: connection closed")
			s.setError(err)
			s.setState(enum.ConnectionDisconnected)
			return err

		case <-ticker.C:
			if err := s.tick(ctx); isConnectionError(err) {
				s.teardown(c)
				return err
			}
		}
	}
}

// tick runs one poll cycle unless the session is not ready or a previous
// cycle is still in flight; coalesced ticks return immediately without
// issuing any IMAP command.
func (s *Supervisor) tick(ctx context.Context) error {
	s.mu.Lock()
	if s.state != enum.ConnectionReady || s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	c := s.client
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.isRunning = false
		s.lastPoll = time.Now()
		s.mu.Unlock()
	}()

	err := s.poll(ctx, c)
	if err != nil && !isConnectionError(err) {
		// Non-connectivity errors fail this cycle only
		s.log.Errorf("[%s] poll cycle failed: %v", s.cfg.Host, err)
		return nil
	}
	return err
}

func (s *Supervisor) dial() (*client.Client, error) {
	serverAddr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	var c *client.Client
	var err error

	if s.cfg.TLS {
		tlsConfig := &tls.Config{
			ServerName:         s.cfg.Host,
			InsecureSkipVerify: s.cfg.TLSInsecure,
		}
		c, err = client.DialWithDialerTLS(dialer, serverAddr, tlsConfig)
	} else {
		c, err = client.DialWithDialer(dialer, serverAddr)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "[%s] connection error", s.cfg.Host)
	}

	c.Timeout = 30 * time.Second
	if err := c.Login(s.cfg.Username, s.cfg.Password); err != nil {
		c.Logout()
		return nil, errors.Wrapf(err, "[%s] login error", s.cfg.Host)
	}
	c.Timeout = 0

	return c, nil
}

// Disconnect requests a clean logoff; the reconnect loop will not rearm.
func (s *Supervisor) Disconnect() {
	s.mu.Lock()
	s.stopped = true
	c := s.client
	s.mu.Unlock()

	if c != nil {
		s.logout(c)
	}
}

func (s *Supervisor) logout(c *client.Client) {
	c.Timeout = 5 * time.Second
	_ = c.Logout()
}

func (s *Supervisor) teardown(c *client.Client) {
	s.logout(c)
	s.setState(enum.ConnectionDisconnected)
}

// Drained reports whether the connection is fully settled: not connected
// and no poll in flight. Stop waits on this.
func (s *Supervisor) Drained() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return false
	}
	return s.state == enum.ConnectionDisconnected || s.state == enum.ConnectionClosed
}

func (s *Supervisor) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

func (s *Supervisor) setState(state enum.ConnectionState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Supervisor) setError(err error) {
	s.mu.Lock()
	s.lastError = err.Error()
	s.mu.Unlock()
}

// Status snapshots the supervisor for the ops endpoint.
func (s *Supervisor) Status() interfaces.ConnectionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	mailboxes := make(map[string]interfaces.MailboxStats, len(s.stats))
	for name, stats := range s.stats {
		mailboxes[name] = *stats
	}

	return interfaces.ConnectionStatus{
		Host:      s.cfg.Host,
		State:     s.state.String(),
		LastError: s.lastError,
		LastPoll:  s.lastPoll,
		Mailboxes: mailboxes,
	}
}

// Audit re-runs the mailbox structure check outside the poll schedule.
// Returns the failed routes; skips silently when the connection is busy
// or down, an audit never overlaps a poll.
func (s *Supervisor) Audit(ctx context.Context) []models.MailboxRoute {
	span, _ := opentracing.StartSpanFromContext(ctx, "Supervisor.Audit")
	defer span.Finish()
	tracing.TagServerHost(span, s.cfg.Host)

	s.mu.Lock()
	if s.state != enum.ConnectionReady || s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	c := s.client
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()
	}()

	delimiter, names, err := s.listMailboxes(c)
	if err != nil {
		tracing.TraceErr(span, err)
		s.log.Errorf("[%s] mailbox audit list failed: %v", s.cfg.Host, err)
		return nil
	}

	_, failed := CheckMailboxTree(s.cfg.Mailboxes, names, delimiter)
	span.LogFields(tracingLog.Int("failed", len(failed)))
	return failed
}
