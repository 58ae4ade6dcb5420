package hosting

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	cbus "github.com/next-trace/scg-shared-kernel/contract/bus"
)

// Dispatcher sends commands. *servicebus.Bus implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, cmd cbus.Command) error
}

// CronService dispatches commands on cron schedules while it runs.
type CronService struct {
	cron   *cron.Cron
	bus    Dispatcher
	logger *slog.Logger
	ctx    context.Context
}

// NewCronService builds the scheduler. Jobs recover from panics and skip a tick
// while the previous run is still going. opts are passed to cron.New.
func NewCronService(bus Dispatcher, logger *slog.Logger, opts ...cron.Option) *CronService {
	if logger == nil {
		logger = slog.Default()
	}

	cl := cronLogger{l: logger.With("component", "cron")}
	base := []cron.Option{
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	}

	return &CronService{
		cron:   cron.New(append(base, opts...)...),
		bus:    bus,
		logger: logger,
		ctx:    context.Background(),
	}
}

// Schedule dispatches the command built by next every time schedule fires.
// Schedules use the standard five field syntax and descriptors such as "@every 1m".
func (s *CronService) Schedule(schedule string, next func() cbus.Command) (cron.EntryID, error) {
	id, err := s.cron.AddFunc(schedule, func() {
		cmd := next()
		if err := s.bus.Dispatch(s.ctx, cmd); err != nil {
			s.logger.ErrorContext(s.ctx, "scheduled command failed",
				"schedule", schedule, "command", fmt.Sprintf("%T", cmd), "error", err)
		}
	})
	if err != nil {
		return 0, fmt.Errorf("schedule %q: %w", schedule, err)
	}

	return id, nil
}

// Entries returns the scheduled entries.
func (s *CronService) Entries() []cron.Entry { return s.cron.Entries() }

func (s *CronService) Name() string { return "cron" }

// Run starts the scheduler and waits for ctx, then for running jobs to finish.
func (s *CronService) Run(ctx context.Context) error {
	s.ctx = ctx
	s.cron.Start()

	<-ctx.Done()

	<-s.cron.Stop().Done()

	return nil
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct{ l *slog.Logger }

func (c cronLogger) Info(msg string, kv ...any) { c.l.Debug(msg, kv...) }

func (c cronLogger) Error(err error, msg string, kv ...any) {
	c.l.Error(msg, append(kv, "error", err)...)
}
