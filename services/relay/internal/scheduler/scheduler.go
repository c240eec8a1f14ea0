package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charliejllewellyn/airplanes.live-takserver-script/services/relay/internal/cot"
	"github.com/charliejllewellyn/airplanes.live-takserver-script/services/relay/internal/feed"
	"github.com/charliejllewellyn/airplanes.live-takserver-script/services/relay/internal/logging"
	"github.com/charliejllewellyn/airplanes.live-takserver-script/services/relay/internal/models"
)

// SingleShotStale is the stale interval used when the relay runs once.
const SingleShotStale = 60 * time.Second

// staleCycles is how many poll periods an event stays valid.
const staleCycles = 2.5

var (
	// ErrFetch wraps feed failures. It ends the run.
	ErrFetch = errors.New("fetch aircraft")
	// ErrSend wraps transport failures. It ends the run.
	ErrSend = errors.New("send cot event")
)

// Fetcher retrieves one batch of aircraft.
type Fetcher interface {
	FetchAircraft(ctx context.Context, q feed.Query) (models.FeedResponse, error)
}

// Sender delivers one serialized event.
type Sender interface {
	Send(msg []byte) error
}

// Observer is told about every finished cycle, failed ones included.
type Observer interface {
	ObserveCycle(CycleResult)
}

// CycleResult summarizes one fetch, build and send pass.
type CycleResult struct {
	Started       time.Time
	Duration      time.Duration
	FetchDuration time.Duration
	Mode          string
	Received      int
	Skipped       int
	Sent          int
	Bytes         int
	Err           error
}

// Outcome is a short label for the cycle result.
func (r CycleResult) Outcome() string {
	switch {
	case r.Err == nil:
		return "ok"
	case errors.Is(r.Err, ErrFetch):
		return "fetch_error"
	case errors.Is(r.Err, ErrSend):
		return "send_error"
	default:
		return "error"
	}
}

// StaleInterval derives how long events stay valid for a poll rate in
// seconds. A single-shot run uses SingleShotStale.
func StaleInterval(rateSeconds int) time.Duration {
	if rateSeconds <= 0 {
		return SingleShotStale
	}
	return time.Duration(float64(rateSeconds) * staleCycles * float64(time.Second))
}

// Config wires a Scheduler.
type Config struct {
	Query feed.Query
	// RateSeconds <= 0 runs exactly one cycle.
	RateSeconds int
	// Mode labels sends in results, e.g. "udp".
	Mode string

	Fetcher   Fetcher
	Builder   *cot.Builder
	Sender    Sender
	Logger    logging.Logger
	Observers []Observer

	// Sleep waits between cycles; defaults to a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Scheduler drives the poll loop. It is single-goroutine: fetch, build and
// send run sequentially and block the loop.
type Scheduler struct {
	cfg Config
	log logging.Logger
}

// New validates cfg and returns a Scheduler.
func New(cfg Config) (*Scheduler, error) {
	if cfg.Fetcher == nil {
		return nil, errors.New("scheduler: fetcher is required")
	}
	if cfg.Sender == nil {
		return nil, errors.New("scheduler: sender is required")
	}
	if cfg.Builder == nil {
		cfg.Builder = cot.NewBuilder(StaleInterval(cfg.RateSeconds))
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepContext
	}
	log := cfg.Logger
	if log == nil {
		log = logging.Noop()
	}
	return &Scheduler{cfg: cfg, log: log}, nil
}

// Run executes cycles until the rate says stop, a cycle fails or ctx is
// cancelled. Cancellation during the wait between cycles is a clean exit.
func (s *Scheduler) Run(ctx context.Context) error {
	rate := time.Duration(s.cfg.RateSeconds) * time.Second
	for {
		if _, err := s.RunCycle(ctx); err != nil {
			if ctx.Err() != nil {
				s.log.Info(ctx, "poll loop interrupted", logging.Err(err))
				return nil
			}
			return err
		}
		if s.cfg.RateSeconds <= 0 {
			return nil
		}
		if err := s.cfg.Sleep(ctx, rate); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				s.log.Info(ctx, "poll loop stopped", logging.String("reason", err.Error()))
				return nil
			}
			return err
		}
	}
}

// RunCycle performs one fetch and forwards every classifiable record in feed
// order. Records without a category are skipped; any fetch or send error
// aborts the cycle.
func (s *Scheduler) RunCycle(ctx context.Context) (res CycleResult, err error) {
	res = CycleResult{Started: time.Now(), Mode: s.cfg.Mode}
	defer func() {
		res.Duration = time.Since(res.Started)
		for _, o := range s.cfg.Observers {
			o.ObserveCycle(res)
		}
	}()

	resp, err := s.cfg.Fetcher.FetchAircraft(ctx, s.cfg.Query)
	res.FetchDuration = time.Since(res.Started)
	if err != nil {
		res.Err = fmt.Errorf("%w: %w", ErrFetch, err)
		s.log.Error(ctx, "feed fetch failed", logging.Err(err))
		return res, res.Err
	}
	res.Received = len(resp.Aircraft)
	if !resp.HasAircraft {
		s.log.Debug(ctx, "feed returned no aircraft list", logging.String("msg", resp.Message))
	}

	for _, ac := range resp.Aircraft {
		ev, ok := s.cfg.Builder.Build(ac)
		if !ok {
			res.Skipped++
			s.log.Debug(ctx, "skipping aircraft without category", logging.String("hex", ac.Hex))
			continue
		}

		msg, err := ev.Marshal()
		if err != nil {
			res.Err = fmt.Errorf("%w: %w", ErrSend, err)
			return res, res.Err
		}
		if err := s.cfg.Sender.Send(msg); err != nil {
			res.Err = fmt.Errorf("%w: hex %s: %w", ErrSend, ac.Hex, err)
			s.log.Error(ctx, "transport send failed", logging.String("hex", ac.Hex), logging.Err(err))
			return res, res.Err
		}
		res.Sent++
		res.Bytes += len(msg)
	}

	s.log.Info(ctx, "cycle complete",
		logging.Int("received", res.Received),
		logging.Int("sent", res.Sent),
		logging.Int("skipped", res.Skipped),
		logging.Int("bytes", res.Bytes),
		logging.String("fetch", res.FetchDuration.String()),
	)
	return res, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
