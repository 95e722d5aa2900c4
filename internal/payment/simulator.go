package payment

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// Simulator is an in-memory Provider for development and tests. Sessions are
// created open and completed explicitly via CompleteSession, mimicking the
// user paying on the hosted page.
type Simulator struct {
	mu       sync.Mutex
	sessions map[string]*Session
	refunds  map[string]int64
	baseURL  string
}

// NewSimulator constructs a Simulator. baseURL is where the fake hosted
// checkout page would live.
func NewSimulator(baseURL string) *Simulator {
	return &Simulator{
		sessions: make(map[string]*Session),
		refunds:  make(map[string]int64),
		baseURL:  baseURL,
	}
}

func generateID(prefix string) string {
	b := make([]byte, 16)
	rand.Read(b)
	return prefix + hex.EncodeToString(b)
}

func (s *Simulator) CreateSession(ctx context.Context, req CreateSessionRequest) (*Session, error) {
	var total int64
	for _, item := range req.LineItems {
		total += item.AmountCents * item.Quantity
	}

	session := &Session{
		ID:            generateID("cs_test_"),
		Status:        StatusOpen,
		PaymentStatus: "unpaid",
		AmountTotal:   total,
		Metadata:      req.Metadata,
		ExpiresAt:     req.ExpiresAt,
	}
	session.URL = fmt.Sprintf("%s/checkout/%s", s.baseURL, session.ID)

	s.mu.Lock()
	s.sessions[session.ID] = session
	s.mu.Unlock()

	return session, nil
}

func (s *Simulator) GetSession(ctx context.Context, id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if session.Status == StatusOpen && time.Now().After(session.ExpiresAt) {
		session.Status = StatusExpired
	}
	out := *session
	return &out, nil
}

func (s *Simulator) Refund(ctx context.Context, paymentIntentID string, amountCents int64, metadata map[string]string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	refundID := generateID("re_test_")
	s.refunds[refundID] = amountCents
	return refundID, nil
}

// CompleteSession marks an open session paid, as the hosted page would after
// a successful card charge.
func (s *Simulator) CompleteSession(id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	session.Status = StatusComplete
	session.PaymentStatus = "paid"
	session.PaymentIntentID = generateID("pi_test_")
	out := *session
	return &out, nil
}

// RefundTotal reports the sum refunded so far, for assertions in tests.
func (s *Simulator) RefundTotal() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	var total int64
	for _, amount := range s.refunds {
		total += amount
	}
	return total
}
