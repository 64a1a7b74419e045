package chat

import (
	"crypto/rand"
	"sync"
)

// otpSession tracks one user pair working through the unlock handshake: both
// sides enter the shared code, then both confirm the other's identity.
type otpSession struct {
	userA, userB      string
	code              string
	aVerified         bool
	bVerified         bool
	identityConfirmed bool
}

// OTPManager issues and checks the 6-digit codes that unlock direct chat
// between two matched users.
type OTPManager struct {
	mu       sync.Mutex
	sessions map[pairKey]*otpSession
}

type pairKey [2]string

func keyFor(a, b string) pairKey {
	if a > b {
		a, b = b, a
	}
	return pairKey{a, b}
}

func NewOTPManager() *OTPManager {
	return &OTPManager{sessions: make(map[pairKey]*otpSession)}
}

// Initiate starts (or restarts) a verification session and returns the code.
// In production the code would be delivered out of band; returning it keeps
// development and tests simple.
func (m *OTPManager) Initiate(userA, userB string) string {
	code := generateOTP(6)
	m.mu.Lock()
	m.sessions[keyFor(userA, userB)] = &otpSession{userA: userA, userB: userB, code: code}
	m.mu.Unlock()
	return code
}

// Verify checks the code entered by one side of the pair.
func (m *OTPManager) Verify(userID, partnerID, input string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[keyFor(userID, partnerID)]
	if !ok || input != s.code {
		return false
	}
	switch userID {
	case s.userA:
		s.aVerified = true
	case s.userB:
		s.bVerified = true
	default:
		return false
	}
	return true
}

// ConfirmIdentity records whether both sides acknowledged each other.
func (m *OTPManager) ConfirmIdentity(userA, userB string, aOK, bOK bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[keyFor(userA, userB)]; ok {
		s.identityConfirmed = aOK && bOK
	}
}

// Unlocked reports whether both sides verified the code; direct chat opens at
// this point.
func (m *OTPManager) Unlocked(userA, userB string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[keyFor(userA, userB)]
	return ok && s.aVerified && s.bVerified
}

// FullyVerified additionally requires the identity confirmation step.
func (m *OTPManager) FullyVerified(userA, userB string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[keyFor(userA, userB)]
	return ok && s.aVerified && s.bVerified && s.identityConfirmed
}

func generateOTP(length int) string {
	b := make([]byte, length)
	_, _ = rand.Read(b)
	out := make([]byte, length)
	for i, v := range b {
		out[i] = '0' + v%10
	}
	return string(out)
}
