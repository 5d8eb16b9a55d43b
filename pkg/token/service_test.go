package token

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/turtacn/trustkit/pkg/claims"
	"github.com/turtacn/trustkit/pkg/errors"
)

const (
	testSecret = "unit-test-signing-secret"
	testKey    = "0123456789abcdef"
)

type account struct {
	A     string
	B     int
	Notes string
}

func (a account) TokenClaims() map[string]any {
	return map[string]any{"a": a.A, "b": a.B}
}

func (a *account) ApplyClaims(set claims.Set) error {
	if _, err := set.Decode("a", &a.A); err != nil {
		return err
	}
	_, err := set.Decode("b", &a.B)
	return err
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recorderStub struct {
	mu       sync.Mutex
	created  []string
	verified []string
}

func (r *recorderStub) TokenCreated(result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created = append(r.created, result)
}

func (r *recorderStub) TokenVerified(result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.verified = append(r.verified, result)
}

type ServiceTestSuite struct {
	suite.Suite
	ctx   context.Context
	clock *fakeClock
}

func TestServiceTestSuite(t *testing.T) {
	suite.Run(t, new(ServiceTestSuite))
}

func (s *ServiceTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.clock = &fakeClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
}

func (s *ServiceTestSuite) newService(opts Options) *Service {
	svc, err := NewService(opts, WithClock(s.clock.Now))
	s.Require().NoError(err)
	return svc
}

func (s *ServiceTestSuite) TestRoundTrip() {
	svc := s.newService(Options{Sign: testSecret})

	tok, err := svc.CreateToken(s.ctx, account{A: "x", B: 7, Notes: "not a claim"})
	s.Require().NoError(err)
	s.Len(strings.Split(tok, "."), 3)

	got, err := Parse[account](s.ctx, svc, tok)
	s.Require().NoError(err)
	s.Equal("x", got.A)
	s.Equal(7, got.B)
	s.Empty(got.Notes)
}

func (s *ServiceTestSuite) TestRoundTrip_Encrypted() {
	svc := s.newService(Options{Sign: testSecret, KeyStr: testKey})
	s.True(svc.Encrypted())

	tok, err := svc.CreateToken(s.ctx, account{A: "secret-ish", B: -3})
	s.Require().NoError(err)

	var got account
	s.Require().NoError(svc.ParseToken(s.ctx, tok, &got))
	s.Equal("secret-ish", got.A)
	s.Equal(-3, got.B)
	s.True(svc.CheckToken(s.ctx, tok))
}

func (s *ServiceTestSuite) TestEncryptionMismatchFails() {
	encrypting := s.newService(Options{Sign: testSecret, KeyStr: testKey})
	plain := s.newService(Options{Sign: testSecret})

	encTok, err := encrypting.CreateToken(s.ctx, account{A: "x", B: 1})
	s.Require().NoError(err)
	plainTok, err := plain.CreateToken(s.ctx, account{A: "x", B: 1})
	s.Require().NoError(err)

	var got account
	s.Error(plain.ParseToken(s.ctx, encTok, &got))
	s.False(plain.CheckToken(s.ctx, encTok))

	s.Error(encrypting.ParseToken(s.ctx, plainTok, &got))
	s.False(encrypting.CheckToken(s.ctx, plainTok))
	s.Empty(got.A)
}

func (s *ServiceTestSuite) TestZeroTTLExpiry() {
	svc := s.newService(Options{Sign: testSecret, Time: "0"})

	tok, err := svc.CreateToken(s.ctx, account{A: "x"})
	s.Require().NoError(err)
	s.True(svc.CheckToken(s.ctx, tok))

	s.clock.Advance(time.Second)
	s.False(svc.CheckToken(s.ctx, tok))

	var got account
	err = svc.ParseToken(s.ctx, tok, &got)
	s.True(errors.IsVerificationError(err))
	s.True(IsExpired(err))
}

func (s *ServiceTestSuite) TestExpiryFollowsTTL() {
	svc := s.newService(Options{Sign: testSecret, Time: "2 * 60"})
	s.Equal(2*time.Minute, svc.TTL())

	tok, err := svc.CreateToken(s.ctx, account{A: "x"})
	s.Require().NoError(err)

	_, exp, err := svc.Claims(s.ctx, tok)
	s.Require().NoError(err)
	s.Equal(s.clock.Now().Add(2*time.Minute).Unix(), exp.Unix())

	s.clock.Advance(2 * time.Minute)
	s.True(svc.CheckToken(s.ctx, tok))
	s.clock.Advance(time.Second)
	s.False(svc.CheckToken(s.ctx, tok))
}

func (s *ServiceTestSuite) TestTamperedSignatureRejected() {
	for _, opts := range []Options{
		{Sign: testSecret},
		{Sign: testSecret, KeyStr: testKey},
	} {
		svc := s.newService(opts)
		tok, err := svc.CreateToken(s.ctx, account{A: "x", B: 7})
		s.Require().NoError(err)
		s.Require().True(svc.CheckToken(s.ctx, tok))

		sigStart := strings.LastIndex(tok, ".") + 1
		for i := sigStart; i < len(tok); i++ {
			replacement := byte('A')
			if tok[i] == 'A' {
				replacement = 'B'
			}
			tampered := tok[:i] + string(replacement) + tok[i+1:]
			s.False(svc.CheckToken(s.ctx, tampered), "position %d encrypted=%v", i, svc.Encrypted())
		}
	}
}

func (s *ServiceTestSuite) TestWrongSecretRejected() {
	issuer := s.newService(Options{Sign: testSecret})
	verifier := s.newService(Options{Sign: "another-secret"})

	tok, err := issuer.CreateToken(s.ctx, account{A: "x"})
	s.Require().NoError(err)
	s.False(verifier.CheckToken(s.ctx, tok))
}

func (s *ServiceTestSuite) TestCheckTokenNeverFails() {
	svc := s.newService(Options{Sign: testSecret, KeyStr: testKey})
	for _, tok := range []string{"", "abc", "a.b", "a.b.c", "a.!!!.c", "..", "a.b.c.d"} {
		s.False(svc.CheckToken(s.ctx, tok), tok)
	}
}

func (s *ServiceTestSuite) TestParseTokenErrors() {
	svc := s.newService(Options{Sign: testSecret})

	var got account
	s.True(errors.IsInvalidArgumentError(svc.ParseToken(s.ctx, "", &got)))
	s.True(errors.IsVerificationError(svc.ParseToken(s.ctx, "not.a.token", &got)))

	tok, err := svc.CreateToken(s.ctx, account{A: "x"})
	s.Require().NoError(err)
	var nilTarget *account
	s.True(errors.IsInstantiationError(svc.ParseToken(s.ctx, tok, nilTarget)))
}

func (s *ServiceTestSuite) TestParseTokenTypeMismatch() {
	svc := s.newService(Options{Sign: testSecret})

	tok, err := svc.CreateToken(s.ctx, claims.Map{"b": "seven"})
	s.Require().NoError(err)

	_, err = Parse[account](s.ctx, svc, tok)
	s.True(errors.IsSerializationError(err))
}

func (s *ServiceTestSuite) TestCreateTokenErrors() {
	svc := s.newService(Options{Sign: testSecret})

	_, err := svc.CreateToken(s.ctx, nil)
	s.True(errors.IsInvalidArgumentError(err))

	_, err = svc.CreateToken(s.ctx, claims.Map{"jti": "mine"})
	s.True(errors.IsInvalidArgumentError(err))

	// nbf is validated by type on every parse and would make the token unreadable.
	_, err = svc.CreateToken(s.ctx, claims.Map{"nbf": "x"})
	s.True(errors.IsInvalidArgumentError(err))

	for _, name := range []string{"iss", "sub", "aud"} {
		tok, err := svc.CreateToken(s.ctx, claims.Map{name: "x"})
		s.Require().NoError(err, name)
		var got claims.Map
		s.Require().NoError(svc.ParseToken(s.ctx, tok, &got), name)
		s.Equal("x", got[name])
	}

	_, err = svc.CreateToken(s.ctx, claims.Map{"fn": func() {}})
	s.True(errors.IsSerializationError(err))
}

func (s *ServiceTestSuite) TestClaimsReturnsApplicationClaimsOnly() {
	svc := s.newService(Options{Sign: testSecret})

	tok, err := svc.CreateToken(s.ctx, account{A: "x", B: 7})
	s.Require().NoError(err)

	set, _, err := svc.Claims(s.ctx, tok)
	s.Require().NoError(err)
	s.Equal(claims.Set{"a": `"x"`, "b": "7"}, set)
}

func (s *ServiceTestSuite) TestSetTTLExpression() {
	svc := s.newService(Options{Sign: testSecret})
	s.Equal(15*24*time.Hour, svc.TTL())

	s.Require().NoError(svc.SetTTLExpression("60*60"))
	s.Equal(time.Hour, svc.TTL())
	s.Equal("60*60", svc.TTLExpression())

	s.True(errors.IsConfigurationError(svc.SetTTLExpression("60/0")))
	s.Equal(time.Hour, svc.TTL())
	s.Equal("60*60", svc.TTLExpression())
}

func (s *ServiceTestSuite) TestRecorder() {
	rec := &recorderStub{}
	svc, err := NewService(Options{Sign: testSecret}, WithClock(s.clock.Now), WithRecorder(rec))
	s.Require().NoError(err)

	tok, err := svc.CreateToken(s.ctx, account{A: "x"})
	s.Require().NoError(err)
	s.True(svc.CheckToken(s.ctx, tok))
	s.False(svc.CheckToken(s.ctx, "bad"))
	_, err = svc.CreateToken(s.ctx, nil)
	s.Error(err)

	s.Equal([]string{"ok", "invalid_argument"}, rec.created)
	s.Equal([]string{"valid", "invalid"}, rec.verified)
}

func TestNewService_Validation(t *testing.T) {
	tests := []struct {
		name  string
		opts  Options
		check func(error) bool
	}{
		{name: "missing secret", opts: Options{}, check: errors.IsConfigurationError},
		{name: "malformed ttl", opts: Options{Sign: testSecret, Time: "1 +"}, check: errors.IsConfigurationError},
		{name: "division by zero", opts: Options{Sign: testSecret, Time: "1/0"}, check: errors.IsConfigurationError},
		{name: "negative ttl", opts: Options{Sign: testSecret, Time: "1 - 2"}, check: errors.IsConfigurationError},
		{name: "bad key size", opts: Options{Sign: testSecret, KeyStr: "short"}, check: errors.IsCryptoError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := NewService(tt.opts)
			require.Error(t, err)
			assert.Nil(t, svc)
			assert.True(t, tt.check(err), "got %v", err)
		})
	}
}

func TestService_ConcurrentUse(t *testing.T) {
	svc, err := NewService(Options{Sign: testSecret, KeyStr: testKey})
	require.NoError(t, err)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%4 == 0 {
				assert.NoError(t, svc.SetTTLExpression("60 * 60"))
				return
			}
			tok, err := svc.CreateToken(ctx, account{A: "c", B: i})
			if !assert.NoError(t, err) {
				return
			}
			got, err := Parse[account](ctx, svc, tok)
			if assert.NoError(t, err) {
				assert.Equal(t, i, got.B)
			}
		}(i)
	}
	wg.Wait()
}
