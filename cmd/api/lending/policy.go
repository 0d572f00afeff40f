package lending

import (
	"crypto/rand"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

type Policy struct {
	LoanPeriodDays int
	FinePerDay     Money
	MaxOpenLoans   int
}

func DefaultPolicy() Policy {
	return Policy{
		LoanPeriodDays: 14,
		FinePerDay:     50,
		MaxOpenLoans:   5,
	}
}

func (p Policy) Validate() error {
	if p.LoanPeriodDays < 1 {
		return ErrResponseInvalidArgument.WithDetail("loan period must be at least one day")
	}
	if p.FinePerDay < 0 {
		return ErrResponseInvalidArgument.WithDetail("fine per day must not be negative")
	}
	if p.MaxOpenLoans < 1 {
		return ErrResponseInvalidArgument.WithDetail("max open loans must be at least one")
	}
	return nil
}

type Clock interface {
	Now() time.Time
}

type realClock struct{}

// Now is truncated to microseconds, the precision timestamps are persisted with.
func (realClock) Now() time.Time { return time.Now().UTC().Truncate(time.Microsecond) }

// ReferenceGenerator produces the external reference stamped on each loan.
type ReferenceGenerator interface {
	NewReference(t time.Time) (string, error)
}

type ulidGenerator struct {
	mu      sync.Mutex
	entropy io.Reader
}

func NewULIDGenerator() ReferenceGenerator {
	return &ulidGenerator{entropy: ulid.Monotonic(rand.Reader, 0)}
}

func (g *ulidGenerator) NewReference(t time.Time) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	id, err := ulid.New(ulid.Timestamp(t), g.entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

type settings struct {
	clock  Clock
	logger *zap.Logger
	policy Policy
	refs   ReferenceGenerator
}

type Option func(*settings)

func WithClock(c Clock) Option {
	return func(s *settings) { s.clock = c }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *settings) { s.logger = l }
}

func WithPolicy(p Policy) Option {
	return func(s *settings) { s.policy = p }
}

func WithReferenceGenerator(g ReferenceGenerator) Option {
	return func(s *settings) { s.refs = g }
}

func newSettings(opts []Option) settings {
	s := settings{
		clock:  realClock{},
		logger: zap.NewNop(),
		policy: DefaultPolicy(),
	}
	for _, opt := range opts {
		opt(&s)
	}
	if s.refs == nil {
		s.refs = NewULIDGenerator()
	}
	return s
}
