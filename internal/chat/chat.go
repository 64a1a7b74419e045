package chat

import (
	"log/slog"
	"sync"
	"time"

	"github.com/example/uniride/internal/models"
	"github.com/example/uniride/internal/observability"
	"github.com/example/uniride/internal/storage"
)

// Deliverer pushes a message to a connected user; the websocket registry
// implements it. Delivery is best-effort.
type Deliverer interface {
	SendJSON(userID string, v any) error
}

// Service implements the hub-and-spoke ride chat: every ride room has a lead
// (the ride owner, or the ad-hoc lead of an aggregation) and messages flow
// spoke→lead or lead→spoke, never spoke→spoke. History is persisted through
// storage with a bounded in-memory tail per room for cheap reads.
type Service struct {
	Store        storage.Store
	OTP          *OTPManager
	Deliver      Deliverer
	RequireOTP   bool
	HistoryLimit int
	Logger       *slog.Logger

	mu    sync.RWMutex
	leads map[int64]string
	tails map[int64][]models.Message
}

func NewService(store storage.Store, logger *slog.Logger) *Service {
	return &Service{
		Store:        store,
		OTP:          NewOTPManager(),
		HistoryLimit: 100,
		Logger:       logger,
		leads:        make(map[int64]string),
		tails:        make(map[int64][]models.Message),
	}
}

// SetLead registers the hub for a ride room; ride creation calls it.
func (s *Service) SetLead(rideID int64, userID string) {
	s.mu.Lock()
	s.leads[rideID] = userID
	s.mu.Unlock()
}

// Lead returns the hub for a ride room, or "". The in-memory map is only a
// cache: on a miss (fresh process, ride created before a restart) the lead is
// recovered from storage as the ride owner, or the first seated participant
// for leaderless aggregations.
func (s *Service) Lead(rideID int64) string {
	s.mu.RLock()
	lead, ok := s.leads[rideID]
	s.mu.RUnlock()
	if ok {
		return lead
	}
	r, err := s.Store.LoadRide(rideID)
	if err != nil {
		return ""
	}
	lead = r.OwnerID
	if lead == "" && len(r.Participants) > 0 {
		lead = r.Participants[0]
	}
	if lead != "" {
		s.SetLead(rideID, lead)
	}
	return lead
}

// Send validates routing and (optionally) the OTP unlock, persists the
// message and pushes it live to the recipient.
func (s *Service) Send(rideID int64, sender, recipient, text string) (models.Message, error) {
	if sender == "" || text == "" {
		return models.Message{}, models.Validationf(models.ReasonBadRoute, "sender and text are required")
	}
	lead := s.Lead(rideID)
	if lead == "" {
		return models.Message{}, models.NotFoundf(models.ReasonRideNotFound, "no chat room for ride %d", rideID)
	}
	// hub-and-spoke: one end of every message is the lead
	if recipient != "" && sender != lead && recipient != lead {
		return models.Message{}, models.Conflictf(models.ReasonChatLocked, "messages must route through the ride lead")
	}
	if s.RequireOTP && recipient != "" && !s.OTP.Unlocked(sender, recipient) {
		return models.Message{}, models.Conflictf(models.ReasonChatLocked, "chat between %s and %s is not unlocked", sender, recipient)
	}

	m := models.Message{RideID: rideID, Sender: sender, Recipient: recipient, Text: text, SentAt: time.Now()}
	if err := s.Store.SaveMessage(m); err != nil {
		return models.Message{}, models.StorageErr("save message", err)
	}
	s.appendTail(m)
	observability.ChatMessagesTotal.Inc()
	if s.Deliver != nil && recipient != "" {
		if err := s.Deliver.SendJSON(recipient, m); err != nil {
			s.Logger.Debug("chat delivery skipped", "ride", rideID, "recipient", recipient, "error", err)
		}
	}
	return m, nil
}

// History returns the persisted messages for a ride room.
func (s *Service) History(rideID int64) ([]models.Message, error) {
	msgs, err := s.Store.MessagesForRide(rideID)
	if err != nil {
		return nil, models.StorageErr("load messages", err)
	}
	return msgs, nil
}

// Tail returns the bounded in-memory tail without touching storage.
func (s *Service) Tail(rideID int64) []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Message(nil), s.tails[rideID]...)
}

func (s *Service) appendTail(m models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tail := append(s.tails[m.RideID], m)
	if s.HistoryLimit > 0 && len(tail) > s.HistoryLimit {
		tail = tail[len(tail)-s.HistoryLimit:]
	}
	s.tails[m.RideID] = tail
}
