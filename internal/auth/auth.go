package auth

import (
	"log/slog"
	"strings"

	"github.com/example/uniride/internal/models"
	"github.com/example/uniride/internal/storage"
)

// Service handles registration and login-by-email. There are no sessions or
// tokens here; transport-level auth is out of scope and the HTTP layer trusts
// the user IDs it is given.
type Service struct {
	Store storage.Store
	// EmailDomain, when set, restricts registration to one campus domain.
	EmailDomain string
	Logger      *slog.Logger
}

func NewService(store storage.Store, emailDomain string, logger *slog.Logger) *Service {
	return &Service{Store: store, EmailDomain: emailDomain, Logger: logger}
}

// Register stores a user profile. Registering an existing ID overwrites the
// profile, matching upsert semantics in storage.
func (s *Service) Register(u models.User) (models.User, error) {
	if u.ID == "" || u.Name == "" || u.Email == "" {
		return models.User{}, models.Validationf(models.ReasonBadRoute, "id, name and email are required")
	}
	if !strings.Contains(u.Email, "@") {
		return models.User{}, models.Validationf(models.ReasonBadRoute, "invalid email %q", u.Email)
	}
	if s.EmailDomain != "" && !strings.HasSuffix(u.Email, "@"+s.EmailDomain) {
		return models.User{}, models.Validationf(models.ReasonBadRoute, "email must belong to %s", s.EmailDomain)
	}
	if u.GenderPref == "" {
		u.GenderPref = models.GenderAny
	}
	if err := s.Store.SaveUser(u); err != nil {
		return models.User{}, models.StorageErr("save user", err)
	}
	s.Logger.Info("user registered", "user", u.ID)
	return u, nil
}

// Login looks a user up by email; a missing user is a not-found error, not a
// credential failure.
func (s *Service) Login(email string) (*models.User, error) {
	u, err := s.Store.UserByEmail(email)
	if err != nil {
		return nil, err
	}
	return u, nil
}

// UpdatePreferences stores the gender and vehicle preferences the matcher
// reads during eligibility filtering.
func (s *Service) UpdatePreferences(userID, genderPref, vehiclePref string) error {
	switch genderPref {
	case models.GenderMale, models.GenderFemale, models.GenderAny, "":
	default:
		return models.Validationf(models.ReasonBadRoute, "unknown gender preference %q", genderPref)
	}
	if genderPref == "" {
		genderPref = models.GenderAny
	}
	return s.Store.UpdateUserPreferences(userID, genderPref, vehiclePref)
}

// Preferences returns the stored preference pair for a user.
func (s *Service) Preferences(userID string) (genderPref, vehiclePref string, err error) {
	u, err := s.Store.UserByID(userID)
	if err != nil {
		return "", "", err
	}
	return u.GenderPref, u.VehiclePref, nil
}
