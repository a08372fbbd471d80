package relay

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"sos-beacon/internal/logging"
)

// Alert is one processed device alert as kept in the recent list and sent
// on the live feed.
type Alert struct {
	ID         string    `json:"alert_id"`
	ReceivedAt time.Time `json:"received_at"`
	Source     string    `json:"source"`
	Payload    Payload   `json:"payload"`
	Message    string    `json:"message"`
	SIDs       []string  `json:"sids"`
	Failed     []string  `json:"failed,omitempty"`
}

type ServiceConfig struct {
	Notifier        Notifier
	Recipients      []string
	EmergencyNumber string
	Recent          int
	// Location formats message timestamps; nil means the server's local zone.
	Location *time.Location
	Now      func() time.Time
}

// Service composes and dispatches alerts. It is shared by the HTTP handler
// and the broker ingest paths.
type Service struct {
	cfg    ServiceConfig
	recent *recentAlerts
	hub    *hub
	log    zerolog.Logger
}

func NewService(cfg ServiceConfig) *Service {
	if cfg.Notifier == nil {
		cfg.Notifier = NewLogNotifier()
	}
	if cfg.Recent <= 0 {
		cfg.Recent = 50
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		cfg:    cfg,
		recent: newRecentAlerts(cfg.Recent),
		hub:    newHub(),
		log:    logging.Module("relay"),
	}
}

// Dispatch notifies every recipient and then the emergency number. A failed
// recipient is logged and skipped.
func (s *Service) Dispatch(ctx context.Context, source string, p Payload) Alert {
	now := s.cfg.Now()
	a := Alert{
		ID:         uuid.NewString(),
		ReceivedAt: now.UTC(),
		Source:     source,
		Payload:    p,
		Message:    Compose(p, p.Time(now), s.cfg.Location),
		SIDs:       []string{},
	}
	log := s.log.With().Str("alert_id", a.ID).Str("device_id", p.DeviceID).Str("source", source).Logger()
	log.Info().Bool("location", p.HasLocation()).Msg("alert received")

	send := func(to, body string) {
		sid, err := s.cfg.Notifier.Notify(ctx, to, body)
		if err != nil {
			log.Warn().Err(err).Str("to", to).Msg("notify failed")
			a.Failed = append(a.Failed, to)
			return
		}
		log.Info().Str("to", to).Str("sid", sid).Msg("notified")
		a.SIDs = append(a.SIDs, sid)
	}
	for _, to := range s.cfg.Recipients {
		send(to, a.Message)
	}
	if s.cfg.EmergencyNumber != "" {
		send(s.cfg.EmergencyNumber, a.Message+emergencySuffix)
	}

	s.recent.add(a)
	s.hub.publish(a)
	return a
}

// Recent returns the newest alerts, oldest first.
func (s *Service) Recent() []Alert {
	return s.recent.snapshot()
}
