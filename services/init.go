package services

import (
	"github.com/zetadesk/mailgate/interfaces"
	"github.com/zetadesk/mailgate/internal/logger"
	"github.com/zetadesk/mailgate/internal/models"
	"github.com/zetadesk/mailgate/services/imap"
	"github.com/zetadesk/mailgate/services/processor"
	"github.com/zetadesk/mailgate/services/ticketing"
)

type Services struct {
	TicketingService interfaces.TicketingService
	Processor        *processor.Processor
	IngestService    interfaces.IngestService
}

func InitServices(cfg *models.ServiceConfig, log logger.Logger) *Services {
	ticketingService := ticketing.NewTicketingService(&cfg.Rest, log)
	proc := processor.NewProcessor(&cfg.Runtime, ticketingService, log)

	return &Services{
		TicketingService: ticketingService,
		Processor:        proc,
		IngestService:    imap.NewIngestService(cfg, proc, log),
	}
}
