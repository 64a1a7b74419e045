// Package httpapi exposes the ride-sharing core over a JSON HTTP API plus a
// websocket endpoint for live notifications and chat delivery.
package httpapi

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/uniride/internal/auth"
	"github.com/example/uniride/internal/board"
	"github.com/example/uniride/internal/chat"
	"github.com/example/uniride/internal/config"
	"github.com/example/uniride/internal/ingest"
	"github.com/example/uniride/internal/matcher"
	"github.com/example/uniride/internal/models"
	"github.com/example/uniride/internal/notify"
	"github.com/example/uniride/internal/payments"
	"github.com/example/uniride/internal/proximity"
	"github.com/example/uniride/internal/storage"
	"github.com/example/uniride/internal/workflow"
)

type Server struct {
	Auth     *auth.Service
	Matcher  *matcher.Service
	Workflow *workflow.Service
	Chat     *chat.Service
	Board    *board.RedisBoard
	Store    storage.Store
	WSReg    *notify.WSRegistry

	mux    *mux.Router
	logger *slog.Logger
}

// NewServer wires the full service graph from configuration. Optional
// integrations (Kafka, Redis, Stripe, push) stay nil when unconfigured and
// every caller treats them as best-effort.
func NewServer(cfg config.ServerConfig, store storage.Store, logger *slog.Logger) *Server {
	graph := proximity.NewGraph()
	if edges, err := store.LocationEdges(); err != nil {
		logger.Warn("location edges unavailable, proximity check disabled", "error", err)
	} else {
		graph.Load(edges)
		logger.Info("proximity graph loaded", "locations", graph.Locations(), "edges", len(edges))
	}

	wsreg := notify.NewWSRegistry(logger)
	notifiers := notify.Multi{wsreg}
	if cfg.PushEndpoint != "" {
		notifiers = append(notifiers, notify.NewPushNotifier(cfg.PushEndpoint, cfg.PushKey))
	}

	wf := workflow.NewService(store, logger)
	wf.Notify = notifiers
	if len(cfg.KafkaBrokers) > 0 {
		wf.Events = ingest.NewRideEventProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
	}
	if cfg.StripeEnabled {
		wf.Fares = payments.NewFareSplitter(payments.NewStripeGateway(), cfg.StripeCurrency, logger)
	}

	cs := chat.NewService(store, logger)
	cs.Deliver = wsreg
	cs.RequireOTP = cfg.RequireChatOTP
	if cfg.ChatHistoryLimit > 0 {
		cs.HistoryLimit = cfg.ChatHistoryLimit
	}

	var rb *board.RedisBoard
	if cfg.RedisAddr != "" {
		rb = board.NewRedisBoard(cfg.RedisAddr, cfg.RedisPassword, cfg.BoardKey)
	}

	s := &Server{
		Auth:     auth.NewService(store, cfg.EmailDomain, logger),
		Matcher:  &matcher.Service{Store: store, Graph: graph},
		Workflow: wf,
		Chat:     cs,
		Board:    rb,
		Store:    store,
		WSReg:    wsreg,
		mux:      mux.NewRouter(),
		logger:   logger,
	}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	api := s.mux.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/register", s.handleRegister).Methods("POST")
	api.HandleFunc("/login", s.handleLogin).Methods("POST")
	api.HandleFunc("/users/{user_id}/preferences", s.handleGetPreferences).Methods("GET")
	api.HandleFunc("/users/{user_id}/preferences", s.handleSetPreferences).Methods("PUT")

	api.HandleFunc("/rides", s.handleListRides).Methods("GET")
	api.HandleFunc("/rides/offer", s.handleOfferRide).Methods("POST")
	api.HandleFunc("/rides/search", s.handleSearch).Methods("POST")
	api.HandleFunc("/rides/board", s.handleBoard).Methods("GET")
	api.HandleFunc("/rides/{ride_id}", s.handleGetRide).Methods("GET")
	api.HandleFunc("/rides/{ride_id}/join", s.handleJoin).Methods("POST")
	api.HandleFunc("/rides/{ride_id}/respond", s.handleRespond).Methods("POST")
	api.HandleFunc("/rides/{ride_id}/requests", s.handlePendingRequests).Methods("GET")
	api.HandleFunc("/rides/{ride_id}/start", s.handleStart).Methods("POST")
	api.HandleFunc("/rides/{ride_id}/complete", s.handleComplete).Methods("POST")

	api.HandleFunc("/rides/{ride_id}/chat", s.handleChatSend).Methods("POST")
	api.HandleFunc("/rides/{ride_id}/chat", s.handleChatHistory).Methods("GET")
	api.HandleFunc("/chat/otp/initiate", s.handleOTPInitiate).Methods("POST")
	api.HandleFunc("/chat/otp/verify", s.handleOTPVerify).Methods("POST")
	api.HandleFunc("/chat/otp/confirm", s.handleOTPConfirm).Methods("POST")

	s.mux.HandleFunc("/ws/{user_id}", s.handleWS)
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

// --- users ---

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var u models.User
	if !decode(w, r, &u) {
		return
	}
	saved, err := s.Auth.Register(u)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if !decode(w, r, &req) {
		return
	}
	u, err := s.Auth.Login(req.Email)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) handleGetPreferences(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["user_id"]
	gender, vehicle, err := s.Auth.Preferences(userID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"gender_preference":  gender,
		"vehicle_preference": vehicle,
	})
}

func (s *Server) handleSetPreferences(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["user_id"]
	var req struct {
		GenderPref  string `json:"gender_preference"`
		VehiclePref string `json:"vehicle_preference"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := s.Auth.UpdatePreferences(userID, req.GenderPref, req.VehiclePref); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- rides ---

func (s *Server) handleListRides(w http.ResponseWriter, r *http.Request) {
	rides, err := s.Store.LoadAllRides()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rides)
}

func (s *Server) handleGetRide(w http.ResponseWriter, r *http.Request) {
	id, ok := rideID(w, r)
	if !ok {
		return
	}
	ride, err := s.Store.LoadRide(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ride)
}

type offerRequest struct {
	OwnerID     string `json:"owner_id"`
	From        string `json:"from"`
	To          string `json:"to"`
	Departure   string `json:"time"`
	Mode        string `json:"mode"`
	RideType    string `json:"ride_type"`
	FemalesOnly bool   `json:"females_only"`
	GenderPref  string `json:"gender_preference"`
}

func (s *Server) handleOfferRide(w http.ResponseWriter, r *http.Request) {
	var req offerRequest
	if !decode(w, r, &req) {
		return
	}
	t, err := models.ParseRideType(req.RideType)
	if err != nil {
		s.writeError(w, models.Validationf(models.ReasonBadRideType, "%v", err))
		return
	}
	ride, err := s.Workflow.OfferRide(req.OwnerID, req.From, req.To, req.Departure, req.Mode, t, req.FemalesOnly, req.GenderPref)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.Chat.SetLead(ride.ID, ride.OwnerID)
	writeJSON(w, http.StatusCreated, ride)
}

type searchRequest struct {
	UserID           string `json:"user_id"`
	From             string `json:"from"`
	To               string `json:"to"`
	RideType         string `json:"ride_type"`
	WantsFemalesOnly bool   `json:"wants_females_only"`
	LeadIfNone       bool   `json:"lead_if_none"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if !decode(w, r, &req) {
		return
	}
	t, err := models.ParseRideType(req.RideType)
	if err != nil {
		s.writeError(w, models.Validationf(models.ReasonBadRideType, "%v", err))
		return
	}
	matches, err := s.Matcher.FindMatches(matcher.Query{
		From:             req.From,
		To:               req.To,
		Type:             t,
		RequesterID:      req.UserID,
		WantsFemalesOnly: req.WantsFemalesOnly,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	if len(matches) == 0 && req.LeadIfNone {
		ride, err := s.Workflow.LeadNewRide(req.UserID, req.From, req.To, t)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.Chat.SetLead(ride.ID, req.UserID)
		writeJSON(w, http.StatusCreated, map[string]any{"matches": []any{}, "created": ride})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"matches": matches})
}

func (s *Server) handleBoard(w http.ResponseWriter, r *http.Request) {
	if s.Board == nil {
		s.writeError(w, models.NotFoundf(models.ReasonRideNotFound, "route board is not configured"))
		return
	}
	entries, err := s.Board.List(r.Context(), r.URL.Query().Get("from"), r.URL.Query().Get("to"))
	if err != nil {
		s.writeError(w, models.StorageErr("board list", err))
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// --- join workflow ---

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	id, ok := rideID(w, r)
	if !ok {
		return
	}
	var req struct {
		UserID string `json:"user_id"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := s.Workflow.SubmitJoinRequest(id, req.UserID); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": string(models.RequestPending)})
}

func (s *Server) handleRespond(w http.ResponseWriter, r *http.Request) {
	id, ok := rideID(w, r)
	if !ok {
		return
	}
	var req struct {
		UserID string `json:"user_id"`
		Accept bool   `json:"accept"`
	}
	if !decode(w, r, &req) {
		return
	}
	ride, err := s.Workflow.Respond(id, req.UserID, req.Accept)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ride)
}

func (s *Server) handlePendingRequests(w http.ResponseWriter, r *http.Request) {
	id, ok := rideID(w, r)
	if !ok {
		return
	}
	reqs, err := s.Store.PendingRequests(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reqs)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	s.handleTransition(w, r, s.Workflow.StartRide)
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	s.handleTransition(w, r, s.Workflow.CompleteRide)
}

func (s *Server) handleTransition(w http.ResponseWriter, r *http.Request, step func(int64, string) (*models.Ride, error)) {
	id, ok := rideID(w, r)
	if !ok {
		return
	}
	var req struct {
		UserID string `json:"user_id"`
	}
	if !decode(w, r, &req) {
		return
	}
	ride, err := step(id, req.UserID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ride)
}

// --- chat ---

func (s *Server) handleChatSend(w http.ResponseWriter, r *http.Request) {
	id, ok := rideID(w, r)
	if !ok {
		return
	}
	var req struct {
		Sender    string `json:"sender"`
		Recipient string `json:"recipient"`
		Text      string `json:"text"`
	}
	if !decode(w, r, &req) {
		return
	}
	msg, err := s.Chat.Send(id, req.Sender, req.Recipient, req.Text)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := rideID(w, r)
	if !ok {
		return
	}
	if r.URL.Query().Get("tail") == "true" {
		writeJSON(w, http.StatusOK, s.Chat.Tail(id))
		return
	}
	msgs, err := s.Chat.History(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (s *Server) handleOTPInitiate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID    string `json:"user_id"`
		PartnerID string `json:"partner_id"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.UserID == "" || req.PartnerID == "" {
		s.writeError(w, models.Validationf(models.ReasonBadRoute, "user_id and partner_id are required"))
		return
	}
	code := s.Chat.OTP.Initiate(req.UserID, req.PartnerID)
	// in production the code goes out of band; returning it here serves the
	// in-person exchange flow where riders read codes to each other
	writeJSON(w, http.StatusOK, map[string]string{"otp": code})
}

func (s *Server) handleOTPVerify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID    string `json:"user_id"`
		PartnerID string `json:"partner_id"`
		Code      string `json:"code"`
	}
	if !decode(w, r, &req) {
		return
	}
	ok := s.Chat.OTP.Verify(req.UserID, req.PartnerID, req.Code)
	if !ok {
		s.writeError(w, models.Conflictf(models.ReasonChatLocked, "verification failed"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{
		"verified": true,
		"unlocked": s.Chat.OTP.Unlocked(req.UserID, req.PartnerID),
	})
}

func (s *Server) handleOTPConfirm(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID    string `json:"user_id"`
		PartnerID string `json:"partner_id"`
		UserOK    bool   `json:"user_confirms"`
		PartnerOK bool   `json:"partner_confirms"`
	}
	if !decode(w, r, &req) {
		return
	}
	s.Chat.OTP.ConfirmIdentity(req.UserID, req.PartnerID, req.UserOK, req.PartnerOK)
	writeJSON(w, http.StatusOK, map[string]bool{
		"fully_verified": s.Chat.OTP.FullyVerified(req.UserID, req.PartnerID),
	})
}

// --- websocket ---

var upgrader = websocket.Upgrader{
	// same-origin policy is enforced upstream; clients are native apps
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["user_id"]
	if userID == "" {
		http.Error(w, "user_id required", http.StatusBadRequest)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade failed", "user", userID, "error", err)
		return
	}
	s.WSReg.Add(userID, conn)
}

// --- helpers ---

func rideID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := mux.Vars(r)["ride_id"]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":  "invalid ride id",
			"reason": models.ReasonRideNotFound,
		})
		return 0, false
	}
	return id, true
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the domain error taxonomy onto HTTP statuses and emits the
// machine-checkable reason alongside the message.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var status int
	switch models.KindOf(err) {
	case models.KindValidation:
		status = http.StatusBadRequest
	case models.KindNotFound:
		status = http.StatusNotFound
	case models.KindConflict:
		status = http.StatusConflict
	case models.KindStorage:
		status = http.StatusInternalServerError
	default:
		status = http.StatusInternalServerError
	}
	if status >= 500 {
		s.logger.Error("request failed", "error", err)
	}
	body := map[string]string{"error": err.Error()}
	if reason := models.ReasonOf(err); reason != "" {
		body["reason"] = reason
	}
	writeJSON(w, status, body)
}

func newID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
