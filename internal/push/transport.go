// Package push wraps the web push protocol behind a small contract: send a
// payload to one subscription and learn whether it was delivered, whether the
// endpoint is permanently gone, or whether the attempt should be retried.
package push

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/devshad-01/social-task-sub000/internal/logging"
	"github.com/devshad-01/social-task-sub000/internal/metrics"
)

// Result classifies a single transport call.
type Result int

const (
	ResultSent Result = iota
	ResultGone
	ResultTransient
)

func (r Result) String() string {
	switch r {
	case ResultSent:
		return "sent"
	case ResultGone:
		return "gone"
	default:
		return "transient"
	}
}

// Outcome is what the engine learns about one send.
type Outcome struct {
	Result     Result
	StatusCode int
	Err        error
}

// Target is a push endpoint with its encryption keys.
type Target struct {
	Endpoint string
	P256DH   string
	Auth     string
}

// Message is an encoded payload with delivery hints.
type Message struct {
	Payload  []byte
	TTL      time.Duration
	Priority int
}

// Options configures the transport.
type Options struct {
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	Subject         string
	// Timeout bounds one transport call. Expiry is a transient failure.
	Timeout time.Duration
	// BreakerFailures consecutive transient failures open a host's breaker.
	BreakerFailures uint32
	// BreakerOpenPeriod is how long an open breaker rejects calls.
	BreakerOpenPeriod time.Duration
}

var errGone = errors.New("push endpoint gone")

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("push service returned %d: %s", e.code, e.body)
}

// Transport sends payloads through a NotificationSender, one circuit breaker
// per push service host.
type Transport struct {
	sender NotificationSender
	opts   Options
	log    zerolog.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[int]
}

// NewTransport creates a transport. A nil sender selects WebPushSender.
func NewTransport(sender NotificationSender, opts Options) *Transport {
	if sender == nil {
		sender = &WebPushSender{}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.BreakerFailures == 0 {
		opts.BreakerFailures = 5
	}
	if opts.BreakerOpenPeriod <= 0 {
		opts.BreakerOpenPeriod = time.Minute
	}
	return &Transport{
		sender:   sender,
		opts:     opts,
		log:      logging.With("push"),
		breakers: make(map[string]*gobreaker.CircuitBreaker[int]),
	}
}

// PublicKey returns the VAPID public key handed to browsers.
func (t *Transport) PublicKey() string {
	return t.opts.VAPIDPublicKey
}

// Send delivers msg to target and classifies the result. It never blocks
// longer than the configured timeout.
func (t *Transport) Send(ctx context.Context, target Target, msg Message) Outcome {
	host := hostOf(target.Endpoint)
	cb := t.breaker(host)

	code, err := cb.Execute(func() (int, error) {
		return t.send(ctx, target, msg)
	})

	out := classify(code, err)
	metrics.PushAttempts.WithLabelValues(out.Result.String()).Inc()
	if out.Result == ResultTransient {
		t.log.Warn().Err(out.Err).Str("host", host).Int("status", out.StatusCode).Msg("push attempt failed")
	}
	return out
}

func (t *Transport) send(ctx context.Context, target Target, msg Message) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, t.opts.Timeout)
	defer cancel()

	sub := &webpush.Subscription{
		Endpoint: target.Endpoint,
		Keys: webpush.Keys{
			P256dh: target.P256DH,
			Auth:   target.Auth,
		},
	}
	ttl := int(msg.TTL / time.Second)
	if ttl < 1 {
		ttl = 1
	}

	resp, err := t.sender.Send(ctx, msg.Payload, sub, &webpush.Options{
		VAPIDPublicKey:  t.opts.VAPIDPublicKey,
		VAPIDPrivateKey: t.opts.VAPIDPrivateKey,
		Subscriber:      t.opts.Subject,
		TTL:             ttl,
		Urgency:         urgencyFor(msg.Priority),
	})
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return resp.StatusCode, nil
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return resp.StatusCode, errGone
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return resp.StatusCode, &statusError{code: resp.StatusCode, body: string(body)}
	}
}

func classify(code int, err error) Outcome {
	switch {
	case err == nil:
		return Outcome{Result: ResultSent, StatusCode: code}
	case errors.Is(err, errGone):
		return Outcome{Result: ResultGone, StatusCode: code, Err: err}
	default:
		return Outcome{Result: ResultTransient, StatusCode: code, Err: err}
	}
}

// countsAsSuccess decides what feeds a breaker's failure count: only errors
// that say something about the push service itself.
func countsAsSuccess(err error) bool {
	if err == nil || errors.Is(err, errGone) {
		return true
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.code < 500 && se.code != http.StatusTooManyRequests
	}
	return false
}

func (t *Transport) breaker(host string) *gobreaker.CircuitBreaker[int] {
	t.mu.Lock()
	defer t.mu.Unlock()

	if cb, ok := t.breakers[host]; ok {
		return cb
	}

	metrics.CircuitBreakerState.WithLabelValues(host).Set(0)
	failures := t.opts.BreakerFailures
	cb := gobreaker.NewCircuitBreaker[int](gobreaker.Settings{
		Name:        host,
		MaxRequests: 1,
		Timeout:     t.opts.BreakerOpenPeriod,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: countsAsSuccess,
		OnStateChange: func(name string, from, to gobreaker.State) {
			t.log.Info().Str("host", name).Str("from", from.String()).Str("to", to.String()).Msg("push circuit breaker state change")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValue(to))
		},
	})
	t.breakers[host] = cb
	return cb
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

func hostOf(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return "unknown"
	}
	return u.Host
}

func urgencyFor(priority int) webpush.Urgency {
	switch {
	case priority >= 3:
		return webpush.UrgencyHigh
	case priority <= 1:
		return webpush.UrgencyLow
	default:
		return webpush.UrgencyNormal
	}
}
