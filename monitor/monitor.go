package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"

	"polyscope/accounts"
	"polyscope/clock"
	"polyscope/config"
	"polyscope/model"
	"polyscope/resolver"
	"polyscope/score"
	"polyscope/store"
)

// pingInterval is the keep-alive ping cadence once connected.
const pingInterval = 25 * time.Second

// idleTimeout is how long the monitor waits without a received event
// before triggering the opportunistic backfill pass.
const idleTimeout = 30 * time.Second

// Monitor subscribes to the live trade-event stream for a set of
// market slugs and scores each event as it arrives.
type Monitor struct {
	wsURL string
	cfg   config.ScoringConfig

	st       *store.Store
	accts    *accounts.Fetcher
	resolver *resolver.Resolver
	cache    *lru.LRU[string, accounts.Lookup]
	log      zerolog.Logger
	clk      clock.Clock

	stateMu sync.Mutex
	state   connState

	minSizeUSD      float64
	verbose         bool
	stabilityWindow time.Duration

	// OnAlert and OnVerbose are emission hooks. Tests substitute their
	// own to observe output without parsing log lines; production
	// callers leave them nil and get zerolog output only.
	OnAlert   func(score.Scored)
	OnVerbose func(score.Scored)

	t *transport
}

// New builds a Monitor.
func New(st *store.Store, accts *accounts.Fetcher, res *resolver.Resolver, cfg *config.Config, log zerolog.Logger) *Monitor {
	return &Monitor{
		wsURL:           cfg.MonitorWSURL,
		cfg:             cfg.Scoring,
		st:              st,
		accts:           accts,
		resolver:        res,
		cache:           newHistoryCache(time.Duration(cfg.MonitorCacheTTLMinutes) * time.Minute),
		log:             log.With().Str("component", "monitor").Logger(),
		clk:             clock.Real(),
		state:           stateDisconnected,
		minSizeUSD:      cfg.MonitorMinSizeUSD,
		stabilityWindow: time.Duration(cfg.MonitorStabilityWindowSec) * time.Second,
	}
}

// SetVerbose toggles emission of non-alerting scored trades.
func (m *Monitor) SetVerbose(v bool) { m.verbose = v }

// subscribeMessage is the minimal subscribe framing this monitor
// sends once connected. The stream's subscription wire format is not
// specified; this is the smallest shape that names what's being
// watched.
type subscribeMessage struct {
	Action  string   `json:"action"`
	Markets []string `json:"markets"`
}

// Run connects to the stream and processes events until ctx is
// canceled, reconnecting with exponential backoff on disconnect.
// Shutdown releases the connection and closes the store.
func (m *Monitor) Run(ctx context.Context, marketSlugs []string) error {
	defer func() {
		if m.t != nil {
			_ = m.t.close()
		}
		if err := m.st.Close(); err != nil {
			m.log.Warn().Err(err).Msg("store close failed during shutdown")
		}
	}()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 1 * time.Second
	bo.MaxInterval = 60 * time.Second
	bo.Multiplier = 2
	bo.MaxElapsedTime = 0 // reconnect forever; ctx cancellation is the only way out

	var connectedAt time.Time
	reconnects := 0

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		m.setState(stateConnecting)
		if err := m.connect(ctx, marketSlugs); err != nil {
			m.setState(stateBackoff)
			wait := bo.NextBackOff()
			if wait == backoff.Stop {
				return fmt.Errorf("monitor: backoff exhausted: %w", err)
			}
			m.log.Warn().Err(err).Dur("wait", wait).Int("reconnects", reconnects).Msg("connect failed, backing off")
			m.setState(stateRetryWait)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
			reconnects++
			continue
		}

		m.setState(stateConnected)
		connectedAt = m.clk.Now()
		m.t.startPing(pingInterval)

		err := m.readLoop(ctx)
		_ = m.t.close()

		if ctx.Err() != nil {
			return ctx.Err()
		}

		if m.clk.Now().Sub(connectedAt) >= m.stabilityWindow {
			bo.Reset()
			reconnects = 0
		}
		m.setState(stateReconnecting)
		m.log.Warn().Err(err).Msg("stream disconnected, reconnecting")
	}
}

func (m *Monitor) connect(ctx context.Context, marketSlugs []string) error {
	header := make(http.Header)
	t, err := dial(ctx, m.wsURL, header)
	if err != nil {
		return err
	}
	m.t = t

	if err := m.t.writeJSON(subscribeMessage{Action: "subscribe", Markets: marketSlugs}); err != nil {
		_ = m.t.close()
		return fmt.Errorf("subscribe: %w", err)
	}
	return nil
}

// readLoop reads events until the connection errors or ctx is done,
// resetting the idle timer on every received event and triggering the
// opportunistic backfill pass when it fires.
func (m *Monitor) readLoop(ctx context.Context) error {
	msgs := make(chan []byte)
	errs := make(chan error, 1)

	readerCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		for {
			data, err := m.t.readMessage()
			if err != nil {
				errs <- err
				return
			}
			select {
			case msgs <- data:
			case <-readerCtx.Done():
				return
			}
		}
	}()

	idle := time.NewTimer(idleTimeout)
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errs:
			return err
		case data := <-msgs:
			if !idle.Stop() {
				<-idle.C
			}
			idle.Reset(idleTimeout)
			m.handleMessage(ctx, data)
		case <-idle.C:
			m.idleBackfill(ctx)
			idle.Reset(idleTimeout)
		}
	}
}

func (m *Monitor) handleMessage(ctx context.Context, data []byte) {
	var ev model.TradeEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		m.log.Warn().Err(err).Msg("malformed trade event, dropped")
		return
	}
	m.handleEvent(ctx, ev)
}
