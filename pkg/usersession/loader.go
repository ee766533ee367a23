package usersession

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/nat-prohmpiriya/fipe-garage/pkg/logger"
	"github.com/nat-prohmpiriya/fipe-garage/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrClosed is returned by Start after Close
	ErrClosed = errors.New("usersession: loader closed")
	// ErrAlreadyStarted is returned by a second Start
	ErrAlreadyStarted = errors.New("usersession: loader already started")
)

// Loader keeps the session state of one user. Refresh cycles may overlap;
// only the most recently started cycle commits its result.
type Loader struct {
	cfg Config
	log *logger.Logger

	mu       sync.Mutex
	state    State
	seq      uint64
	watchers []chan State
	sub      Subscription
	started  bool
	closed   bool

	// event-triggered cycles run under ctx and are awaited by Close
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewLoader returns a Loader in the loading state. Nothing is fetched
// until Start or Refresh.
func NewLoader(cfg Config) (*Loader, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Loader{
		cfg:    cfg,
		log:    cfg.Logger,
		state:  State{Loading: true},
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Start subscribes to auth events and runs the first refresh. A subscribe
// failure is returned after the refresh has run, so the state is usable
// either way.
func (l *Loader) Start(ctx context.Context) (State, error) {
	l.mu.Lock()
	switch {
	case l.closed:
		l.mu.Unlock()
		return l.State(), ErrClosed
	case l.started:
		l.mu.Unlock()
		return l.State(), ErrAlreadyStarted
	}
	l.started = true
	l.mu.Unlock()

	var subErr error
	if l.cfg.Events != nil {
		sub, err := l.cfg.Events.Subscribe(ctx, l.onEvent)
		if err != nil {
			l.log.Warn("Failed to subscribe to auth events", zap.Error(err))
			subErr = fmt.Errorf("subscribe to auth events: %w", err)
		} else {
			l.mu.Lock()
			if l.closed {
				l.mu.Unlock()
				sub.Unsubscribe()
				return l.State(), ErrClosed
			}
			l.sub = sub
			l.mu.Unlock()
		}
	}

	return l.Refresh(ctx), subErr
}

func (l *Loader) onEvent(ev AuthEvent) {
	if !ev.TriggersRefresh() {
		l.log.Debug("Ignoring auth event", zap.String("event", string(ev.Type)))
		return
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.wg.Add(1)
	l.mu.Unlock()

	l.log.Debug("Auth event triggered refresh",
		zap.String("event", string(ev.Type)),
		zap.String("user_id", ev.UserID))

	go func() {
		defer l.wg.Done()
		l.Refresh(l.ctx)
	}()
}

// Refresh runs one load cycle and returns the resulting state. When the
// user is not signed in and redirects are enabled, the navigator is called
// and the state is left loading.
func (l *Loader) Refresh(ctx context.Context) State {
	ctx, span := telemetry.StartSpan(ctx, "usersession.refresh")
	defer span.End()

	seq := l.begin()

	user, err := l.cfg.Authenticator.CurrentUser(ctx)
	if err != nil || user == nil {
		if err != nil {
			l.log.Warn("Failed to load current user", zap.Error(err))
		}
		if l.cfg.Options.RedirectOnError && l.cfg.Navigator != nil {
			span.SetAttributes(attribute.String("session.redirect", l.cfg.Options.LoginPath))
			l.cfg.Navigator.Redirect(ctx, l.cfg.Options.LoginPath)
			return l.State()
		}
		telemetry.RecordError(span, ErrNotAuthenticated)
		return l.commit(seq, State{Error: ErrNotAuthenticated.Error()})
	}
	span.SetAttributes(attribute.String("user.id", user.ID))

	// every task reports nil; a failed lookup only leaves its result empty
	var g errgroup.Group
	var profile *Profile
	if l.cfg.Options.IncludeProfile {
		g.Go(func() error {
			p, err := l.cfg.Profiles.GetProfileByID(ctx, user.ID)
			if err != nil {
				l.log.Warn("Failed to load profile", zap.String("user_id", user.ID), zap.Error(err))
				return nil
			}
			profile = p
			return nil
		})
	}
	_ = g.Wait()

	return l.commit(seq, State{User: user, Profile: profile})
}

// State returns the current state. The principal and profile it points to
// are shared and must not be modified.
func (l *Loader) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Watch returns a channel that holds the latest state. A slow reader only
// sees the newest value. The channel is closed by Close.
func (l *Loader) Watch() <-chan State {
	ch := make(chan State, 1)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		close(ch)
		return ch
	}
	ch <- l.state
	l.watchers = append(l.watchers, ch)
	return ch
}

// Close releases the auth subscription, waits for event-triggered cycles
// and closes watch channels. It is safe to call more than once.
func (l *Loader) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	sub := l.sub
	l.sub = nil
	l.mu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
	}
	l.cancel()
	l.wg.Wait()

	l.mu.Lock()
	for _, ch := range l.watchers {
		close(ch)
	}
	l.watchers = nil
	l.mu.Unlock()
}

func (l *Loader) begin() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.seq++
	l.state.Loading = true
	l.state.Error = ""
	l.publishLocked()
	return l.seq
}

func (l *Loader) commit(seq uint64, st State) State {
	l.mu.Lock()
	defer l.mu.Unlock()

	if seq != l.seq {
		l.log.Debug("Discarding superseded session cycle", zap.Uint64("cycle", seq), zap.Uint64("latest", l.seq))
		return l.state
	}
	st.Loading = false
	l.state = st
	l.publishLocked()
	return st
}

func (l *Loader) publishLocked() {
	if l.closed {
		return
	}
	for _, ch := range l.watchers {
		select {
		case <-ch:
		default:
		}
		ch <- l.state
	}
}
