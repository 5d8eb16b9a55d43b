// Package token issues and verifies signed, time-limited bearer tokens built from
// payload objects.
//
// Tokens are HS256 JWS compact strings (header.payload.signature). When an
// encryption key is configured the payload segment is replaced by its AES
// ciphertext after signing, and restored before verification; the header and
// signature segments are never touched. The signature therefore covers the
// plaintext claims.
package token

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/turtacn/trustkit/pkg/claims"
	"github.com/turtacn/trustkit/pkg/constants"
	"github.com/turtacn/trustkit/pkg/errors"
	"github.com/turtacn/trustkit/pkg/logger"
	"github.com/turtacn/trustkit/pkg/ttlexpr"
)

const tracerName = "github.com/turtacn/trustkit/pkg/token"

// expiryGranularity makes exp inclusive: exp carries whole seconds, so a token stays
// valid through the second it expires in.
const expiryGranularity = time.Second

// Options is the configuration surface of a Service.
type Options struct {
	// Sign is the shared HMAC secret. Required.
	Sign string
	// Time is the lifetime expression in seconds, e.g. "15 * 24 * 60 * 60".
	// Empty means constants.DefaultTTLExpression.
	Time string
	// KeyStr is the AES key for payload encryption. Empty disables encryption.
	KeyStr string
}

// Recorder receives token outcomes. monitoring.Metrics implements it.
type Recorder interface {
	TokenCreated(result string)
	TokenVerified(result string)
}

// Option customizes a Service.
type Option func(*Service)

// WithClock overrides the time source used for expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(log logger.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Service) {
		s.recorder = r
	}
}

// descriptor is replaced as a whole on reconfiguration.
type descriptor struct {
	sign          []byte
	ttlExpression string
	ttlSeconds    int
	cipher        *payloadCipher
}

// Service creates, parses and checks tokens. It is safe for concurrent use.
type Service struct {
	desc     atomic.Pointer[descriptor]
	now      func() time.Time
	log      logger.Logger
	recorder Recorder
	tracer   trace.Tracer
}

// NewService validates opts and returns a ready Service.
// A missing secret, a malformed lifetime or a bad key size fails immediately.
func NewService(opts Options, options ...Option) (*Service, error) {
	if opts.Sign == "" {
		return nil, errors.ErrConfiguration("token signing secret is required")
	}
	expr := opts.Time
	if expr == "" {
		expr = constants.DefaultTTLExpression
	}
	ttl, err := evaluateTTL(expr)
	if err != nil {
		return nil, err
	}

	d := &descriptor{
		sign:          []byte(opts.Sign),
		ttlExpression: expr,
		ttlSeconds:    ttl,
	}
	if opts.KeyStr != "" {
		if d.cipher, err = newPayloadCipher(opts.KeyStr); err != nil {
			return nil, err
		}
	}

	s := &Service{
		now:    time.Now,
		log:    logger.NewNoopLogger(),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range options {
		opt(s)
	}
	s.log = s.log.WithComponent("token")
	s.desc.Store(d)
	return s, nil
}

// SetTTLExpression re-evaluates the lifetime. On error the previous lifetime is kept.
func (s *Service) SetTTLExpression(expr string) error {
	ttl, err := evaluateTTL(expr)
	if err != nil {
		return err
	}
	for {
		old := s.desc.Load()
		next := *old
		next.ttlExpression = expr
		next.ttlSeconds = ttl
		if s.desc.CompareAndSwap(old, &next) {
			break
		}
	}
	s.log.Info(context.Background(), "Token TTL reconfigured",
		logger.String("expression", expr),
		logger.Int("ttl_seconds", ttl),
	)
	return nil
}

// TTL returns the current token lifetime.
func (s *Service) TTL() time.Duration {
	return time.Duration(s.desc.Load().ttlSeconds) * time.Second
}

// TTLExpression returns the last successfully applied lifetime expression.
func (s *Service) TTLExpression() string {
	return s.desc.Load().ttlExpression
}

// Encrypted reports whether payload encryption is enabled.
func (s *Service) Encrypted() bool {
	return s.desc.Load().cipher != nil
}

// CreateToken extracts the claims of payload and returns a signed token expiring
// after the configured lifetime.
func (s *Service) CreateToken(ctx context.Context, payload claims.Extractor) (string, error) {
	ctx, span := s.tracer.Start(ctx, "token.Create")
	defer span.End()

	tok, err := s.createToken(payload)
	s.recordCreate(ctx, span, err)
	if err != nil {
		return "", err
	}
	return tok, nil
}

func (s *Service) createToken(payload claims.Extractor) (string, error) {
	set, err := claims.Extract(payload)
	if err != nil {
		return "", err
	}

	d := s.desc.Load()
	now := s.now()

	mc := make(jwt.MapClaims, len(set)+3)
	for name, value := range set {
		mc[name] = value
	}
	mc[constants.ClaimIssuedAt] = jwt.NewNumericDate(now)
	mc[constants.ClaimExpiresAt] = jwt.NewNumericDate(now.Add(time.Duration(d.ttlSeconds) * time.Second))
	mc[constants.ClaimTokenID] = uuid.NewString()

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, mc).SignedString(d.sign)
	if err != nil {
		return "", errors.ErrCrypto("failed to sign token").WithCause(err)
	}

	if d.cipher == nil {
		return signed, nil
	}
	return d.cipher.encryptPayload(signed)
}

// ParseToken verifies tok and assigns its claims to target.
func (s *Service) ParseToken(ctx context.Context, tok string, target claims.Injector) error {
	ctx, span := s.tracer.Start(ctx, "token.Parse")
	defer span.End()

	set, _, err := s.verify(tok)
	if err == nil {
		err = claims.Inject(set, target)
	}
	s.recordVerify(ctx, span, err)
	return err
}

// Parse verifies tok and builds a new T from its claims.
func Parse[T any, PT interface {
	*T
	claims.Injector
}](ctx context.Context, s *Service, tok string) (*T, error) {
	target := new(T)
	if err := s.ParseToken(ctx, tok, PT(target)); err != nil {
		return nil, err
	}
	return target, nil
}

// Claims verifies tok and returns its claim set and expiry.
func (s *Service) Claims(ctx context.Context, tok string) (claims.Set, time.Time, error) {
	_, span := s.tracer.Start(ctx, "token.Claims")
	defer span.End()

	set, exp, err := s.verify(tok)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return set, exp, err
}

// CheckToken reports whether tok has a valid signature and has not expired.
// It never fails: every error, including a panic in a collaborator, yields false.
func (s *Service) CheckToken(ctx context.Context, tok string) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error(ctx, "Token check panicked", fmt.Errorf("%v", r))
			ok = false
		}
	}()

	_, _, err := s.verify(tok)
	if err != nil {
		s.log.Debug(ctx, "Token check failed", logger.Err(err))
		s.record(false, "invalid")
		return false
	}
	s.record(false, "valid")
	return true
}

// IsExpired reports whether err was caused by an expired token.
func IsExpired(err error) bool {
	return stderrors.Is(err, jwt.ErrTokenExpired)
}

// verify runs decrypt-then-verify and returns the application claims.
func (s *Service) verify(tok string) (claims.Set, time.Time, error) {
	if tok == "" {
		return nil, time.Time{}, errors.ErrMissingRequiredParameter("token")
	}

	d := s.desc.Load()
	if d.cipher != nil {
		var err error
		if tok, err = d.cipher.decryptPayload(tok); err != nil {
			return nil, time.Time{}, err
		}
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(expiryGranularity),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(s.now),
	)
	parsed, err := parser.ParseWithClaims(tok, jwt.MapClaims{}, func(t *jwt.Token) (interface{}, error) {
		return d.sign, nil
	})
	if err != nil {
		msg := "token verification failed"
		if IsExpired(err) {
			msg = "token has expired"
		}
		return nil, time.Time{}, errors.ErrVerification(msg).WithCause(err)
	}

	mc, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return nil, time.Time{}, errors.ErrVerification("token claims are invalid")
	}
	exp, err := mc.GetExpirationTime()
	if err != nil || exp == nil {
		return nil, time.Time{}, errors.ErrVerification("token has no valid expiry").WithCause(err)
	}

	set := make(claims.Set, len(mc))
	for name, value := range mc {
		if claims.IsReserved(name) {
			continue
		}
		str, ok := value.(string)
		if !ok {
			return nil, time.Time{}, errors.ErrSerialization(fmt.Sprintf("claim %q is not an encoded value", name)).
				WithMetadata("claim", name)
		}
		set[name] = str
	}
	return set, exp.Time, nil
}

func (s *Service) recordCreate(ctx context.Context, span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.log.Warn(ctx, "Token creation failed", logger.Err(err))
		s.record(true, string(errors.CodeOf(err)))
		return
	}
	span.SetAttributes(attribute.Bool("token.encrypted", s.Encrypted()))
	s.record(true, "ok")
}

func (s *Service) recordVerify(ctx context.Context, span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.log.Debug(ctx, "Token parse failed", logger.Err(err))
		s.record(false, string(errors.CodeOf(err)))
		return
	}
	s.record(false, "valid")
}

func (s *Service) record(create bool, result string) {
	if s.recorder == nil {
		return
	}
	if create {
		s.recorder.TokenCreated(result)
	} else {
		s.recorder.TokenVerified(result)
	}
}

func evaluateTTL(expr string) (int, error) {
	ttl, err := ttlexpr.Evaluate(expr)
	if err != nil {
		return 0, err
	}
	if ttl < 0 {
		return 0, errors.ErrConfiguration(fmt.Sprintf("TTL expression %q evaluates to a negative lifetime", expr)).
			WithMetadata("expression", expr)
	}
	return ttl, nil
}
