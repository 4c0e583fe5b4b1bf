// Package trade runs the two-phase quote → confirm flow for one portfolio.
//
// Each attempt is a short-lived state machine:
//
//	Idle → QuoteRequested → QuoteShown → {Confirming → Filled | Rejected} | Abandoned
//
// The quote is advisory only. The confirmed order is always built from the
// caller's current inputs, never from the stored quote, and a fill triggers
// a full authoritative reload of the position store — never an optimistic
// local patch, because the execution price is decided server-side.
package trade

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"tradedesk/internal/api"
	"tradedesk/internal/model"
)

// State of the current attempt.
type State int

const (
	StateIdle State = iota
	StateQuoteRequested
	StateQuoteShown
	StateConfirming
	StateFilled
	StateAbandoned
)

func (s State) String() string {
	switch s {
	case StateQuoteRequested:
		return "quote_requested"
	case StateQuoteShown:
		return "quote_shown"
	case StateConfirming:
		return "confirming"
	case StateFilled:
		return "filled"
	case StateAbandoned:
		return "abandoned"
	default:
		return "idle"
	}
}

// Validation and flow-control errors, all raised locally before (or
// instead of) any remote call.
var (
	ErrInvalidSymbol     = errors.New("symbol is required")
	ErrInvalidQuantity   = errors.New("quantity must be at least 1")
	ErrInvalidLimitPrice = errors.New("limit orders require a limit price greater than 0")
	ErrNoQuote           = errors.New("no quote shown, request one first")
	ErrQuoteExpired      = errors.New("quote expired, request a fresh one")
	ErrConfirmInFlight   = errors.New("a confirmation is already in flight")
	ErrAttemptAbandoned  = errors.New("attempt was abandoned")
)

// RejectionError is a trade declined by the trading service. The service
// reports these as well-formed responses (success=false plus a message),
// not as transport failures, so they get their own type here.
type RejectionError struct {
	Message string
}

func (e *RejectionError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "trade rejected by the trading service"
}

// API is the slice of the trading service the flow depends on.
type API interface {
	GetQuote(ctx context.Context, symbol string, qty int64, side model.Side) (model.Quote, error)
	Buy(ctx context.Context, req model.TradeRequest) (model.TradeResponse, error)
	Sell(ctx context.Context, req model.TradeRequest) (model.TradeResponse, error)
	GetPositions(ctx context.Context) ([]model.Position, error)
}

// Store receives the authoritative post-fill snapshot.
type Store interface {
	ReplaceSnapshot([]model.Position)
}

// Journal records confirmed fills; optional.
type Journal interface {
	RecordFill(order model.Order, message string) error
}

// Input is the current state of the trade form. Confirm reads it fresh, so
// edits made after the quote was shown take effect in the submitted order.
type Input struct {
	Symbol     string
	Quantity   int64
	Side       model.Side
	PriceType  model.PriceType
	LimitPrice decimal.Decimal // required iff PriceType is LIMIT
}

func (in Input) validate() error {
	if in.Symbol == "" {
		return ErrInvalidSymbol
	}
	if in.Quantity < 1 {
		return ErrInvalidQuantity
	}
	if in.PriceType == model.PriceTypeLimit && !in.LimitPrice.IsPositive() {
		return ErrInvalidLimitPrice
	}
	return nil
}

// Config configures a Flow.
type Config struct {
	PortfolioID int64
	QuoteTTL    time.Duration // max age of a shown quote; default 30s
}

// Flow drives trade attempts for one portfolio. Methods are safe for
// concurrent use; at most one confirmation is in flight at a time.
type Flow struct {
	api         API
	store       Store
	journal     Journal
	log         *slog.Logger
	portfolioID int64
	quoteTTL    time.Duration
	now         func() time.Time

	mu    sync.Mutex
	state State
	quote model.Quote
	// gen identifies the current attempt. Abandon bumps it, so a response
	// from an earlier attempt is recognized and dropped instead of
	// mutating state after the attempt ended.
	gen uint64

	// Metrics hooks.
	OnFilled   func()
	OnRejected func()
}

// New creates a Flow. journal may be nil.
func New(cfg Config, api API, store Store, journal Journal, log *slog.Logger) *Flow {
	ttl := cfg.QuoteTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Flow{
		api:         api,
		store:       store,
		journal:     journal,
		log:         log,
		portfolioID: cfg.PortfolioID,
		quoteTTL:    ttl,
		now:         time.Now,
		state:       StateIdle,
	}
}

// State returns the current attempt state.
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Quote returns the currently shown quote, if any.
func (f *Flow) Quote() (model.Quote, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.quote, f.state == StateQuoteShown
}

// RequestQuote validates the inputs locally and fetches an advisory quote.
// On success the attempt moves to QuoteShown and the quote is returned for
// verbatim display — the client never recomputes its total value. If the
// attempt is abandoned while the request is in flight, the late response
// is dropped and ErrAttemptAbandoned returned.
func (f *Flow) RequestQuote(ctx context.Context, in Input) (model.Quote, error) {
	if err := in.validate(); err != nil {
		return model.Quote{}, err
	}

	f.mu.Lock()
	if f.state == StateConfirming {
		f.mu.Unlock()
		return model.Quote{}, ErrConfirmInFlight
	}
	f.state = StateQuoteRequested
	g := f.gen
	f.mu.Unlock()

	quote, err := f.api.GetQuote(ctx, in.Symbol, in.Quantity, in.Side)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gen != g {
		return model.Quote{}, ErrAttemptAbandoned
	}
	if err != nil {
		f.state = StateIdle
		return model.Quote{}, err
	}

	f.state = StateQuoteShown
	f.quote = quote
	return quote, nil
}

// Abandon ends the current attempt without touching the store or the
// remote service. Any in-flight quote or trade response belonging to this
// attempt is dropped when it arrives.
func (f *Flow) Abandon() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gen++
	f.state = StateAbandoned
	f.quote = model.Quote{}
}

// Confirm submits the trade built from the current inputs. Exactly one
// confirmation may be in flight; a second call while one is pending is
// refused locally so a duplicate order can never reach the service.
//
// A quote older than the configured TTL refuses confirmation and resets
// the attempt, forcing a re-quote. On a fill, the store is reloaded from
// the authoritative position endpoint and the fill is journaled. A remote
// rejection returns the attempt to QuoteShown with the service's message
// in the returned error.
func (f *Flow) Confirm(ctx context.Context, in Input) (model.TradeResponse, error) {
	if err := in.validate(); err != nil {
		return model.TradeResponse{}, err
	}

	f.mu.Lock()
	switch f.state {
	case StateConfirming:
		f.mu.Unlock()
		return model.TradeResponse{}, ErrConfirmInFlight
	case StateQuoteShown:
		// ok
	default:
		f.mu.Unlock()
		return model.TradeResponse{}, ErrNoQuote
	}
	if f.now().Sub(f.quote.LastUpdated) > f.quoteTTL {
		f.state = StateIdle
		f.quote = model.Quote{}
		f.mu.Unlock()
		return model.TradeResponse{}, ErrQuoteExpired
	}
	f.state = StateConfirming
	g := f.gen
	f.mu.Unlock()

	req := model.TradeRequest{
		PortfolioID: f.portfolioID,
		Symbol:      in.Symbol,
		Quantity:    in.Quantity,
		PriceType:   in.PriceType,
	}
	if in.PriceType == model.PriceTypeLimit {
		req.LimitPrice = in.LimitPrice
	}

	var resp model.TradeResponse
	var err error
	if in.Side == model.SideSell {
		resp, err = f.api.Sell(ctx, req)
	} else {
		resp, err = f.api.Buy(ctx, req)
	}

	f.mu.Lock()
	if f.gen != g {
		f.mu.Unlock()
		return model.TradeResponse{}, ErrAttemptAbandoned
	}
	if err != nil {
		// Back to QuoteShown so the user can retry or re-quote. No store
		// mutation happened. Only a structured rejection counts as rejected;
		// a transient transport failure is neither a fill nor a rejection.
		f.state = StateQuoteShown
		f.mu.Unlock()
		var apiErr *api.APIError
		if errors.As(err, &apiErr) && f.OnRejected != nil {
			f.OnRejected()
		}
		return model.TradeResponse{}, err
	}
	if !resp.Success {
		// The service reports rejections such as insufficient cash as a
		// well-formed response with success=false, not as an HTTP error.
		f.state = StateQuoteShown
		f.mu.Unlock()
		f.log.Info("order rejected",
			"symbol", in.Symbol, "side", in.Side, "qty", in.Quantity,
			"reason", resp.Message)
		if f.OnRejected != nil {
			f.OnRejected()
		}
		return model.TradeResponse{}, &RejectionError{Message: resp.Message}
	}
	f.state = StateFilled
	f.quote = model.Quote{}
	f.mu.Unlock()

	f.log.Info("order filled",
		"symbol", in.Symbol, "side", in.Side, "qty", in.Quantity,
		"order_id", resp.Order.ID, "fill_price", resp.Order.FilledPrice)

	if f.OnFilled != nil {
		f.OnFilled()
	}
	if f.journal != nil {
		if jerr := f.journal.RecordFill(resp.Order, resp.Message); jerr != nil {
			f.log.Warn("journal write failed", "error", jerr)
		}
	}

	// The fill price and quantity are authoritative on the service side,
	// so reconcile with a full reload instead of patching locally.
	if positions, perr := f.api.GetPositions(ctx); perr != nil {
		f.log.Warn("post-fill position reload failed", "error", perr)
	} else {
		f.store.ReplaceSnapshot(positions)
	}

	return resp, nil
}
