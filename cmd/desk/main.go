// Command desk is the interactive trading desk client.
//
// On start it authenticates against the trading service, loads the
// authoritative portfolio snapshot, warms prices from the Redis cache, and
// subscribes to the live price feed. A small command loop on stdin drives
// the quote → confirm trade flow.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"tradedesk/config"
	"tradedesk/internal/api"
	"tradedesk/internal/feed"
	"tradedesk/internal/journal"
	"tradedesk/internal/logger"
	"tradedesk/internal/metrics"
	"tradedesk/internal/model"
	"tradedesk/internal/positions"
	"tradedesk/internal/pricecache"
	"tradedesk/internal/session"
	"tradedesk/internal/summary"
	"tradedesk/internal/trade"
)

func main() {
	cfg := config.Load()
	log := logger.Init("desk", slog.LevelInfo)

	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		s := <-sigCh
		log.Info("shutdown signal received", "signal", s.String())
		cancel()
	}()

	sess := session.New()
	sess.OnExpired = func() {
		health.SetSessionActive(false)
		log.Error("session expired, re-authentication required")
		cancel()
	}

	client := api.New(api.Config{BaseURL: cfg.APIBaseURL}, sess, log)

	totpCode := ""
	if cfg.TOTPSecret != "" {
		code, err := session.TOTPCode(cfg.TOTPSecret)
		if err != nil {
			log.Error("totp code generation failed", "error", err)
			os.Exit(1)
		}
		totpCode = code
	}
	if err := client.Login(ctx, cfg.Username, cfg.Password, totpCode); err != nil {
		log.Error("login failed", "error", err)
		os.Exit(1)
	}
	health.SetSessionActive(true)

	store := positions.New()
	held, err := client.GetPositions(ctx)
	if err != nil {
		log.Error("initial position load failed", "error", err)
		os.Exit(1)
	}
	store.ReplaceSnapshot(held)

	svcSummary, err := client.GetSummary(ctx)
	if err != nil {
		log.Error("initial summary load failed", "error", err)
		os.Exit(1)
	}
	log.Info("portfolio loaded",
		"portfolio_id", sess.PortfolioID(),
		"positions", store.Len(),
		"cash", svcSummary.CashBalance,
		"portfolio_value", svcSummary.TotalPortfolioValue)

	// Best-effort price cache: a cold or unreachable Redis only means the
	// display starts from the snapshot prices.
	var cache *pricecache.Cache
	cacheCh := make(chan model.PriceEvent, 1024)
	if c, cerr := pricecache.New(pricecache.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}, log); cerr != nil {
		log.Warn("price cache unavailable, starting cold", "error", cerr)
	} else {
		cache = c
		health.SetRedisOK(true)
		if warm, lerr := cache.Load(ctx, store.Symbols()); lerr != nil {
			log.Warn("price cache load failed", "error", lerr)
		} else {
			for _, ev := range warm {
				store.ApplyPriceEvent(ev)
			}
			log.Info("warmed prices from cache", "symbols", len(warm))
		}
		go cache.Run(ctx, cacheCh)
		defer cache.Close()
	}

	var jrnl *journal.Journal
	if dir := filepath.Dir(cfg.JournalPath); dir != "." {
		if merr := os.MkdirAll(dir, 0o755); merr != nil {
			log.Warn("journal directory unavailable", "dir", dir, "error", merr)
		}
	}
	if j, jerr := journal.New(cfg.JournalPath, log); jerr != nil {
		log.Warn("fill journal unavailable, fills will not be recorded locally", "error", jerr)
	} else {
		jrnl = j
		health.SetJournalOK(true)
		defer jrnl.Close()
	}

	var fillLog trade.Journal
	if jrnl != nil {
		fillLog = jrnl
	}
	flow := trade.New(trade.Config{
		PortfolioID: sess.PortfolioID(),
		QuoteTTL:    cfg.QuoteTTL,
	}, client, store, fillLog, log)
	flow.OnFilled = func() { prom.TradesFilled.Inc() }
	flow.OnRejected = func() { prom.TradesRejected.Inc() }

	conn := feed.New(feed.Config{
		WSURL:      cfg.FeedWSURL,
		StreamURL:  cfg.FeedStreamURL,
		Topic:      cfg.FeedTopic,
		RetryDelay: cfg.FeedRetryDelay,
	}, log)
	conn.OnReconnect = func() { prom.FeedReconnects.Inc() }

	sub := conn.Subscribe(func(ev model.PriceEvent) {
		prom.EventsTotal.Inc()
		health.MarkEvent()
		if !store.ApplyPriceEvent(ev) {
			prom.EventsUnheld.Inc()
			return
		}
		select {
		case cacheCh <- ev:
		default:
			prom.CacheWriteFailures.Inc()
		}
	})
	conn.Connect(ctx)

	// Mirror the feed state into health and metrics.
	go func() {
		t := time.NewTicker(time.Second)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				up := conn.Status() == feed.StatusConnected
				health.SetFeedConnected(up)
				if up {
					prom.FeedConnected.Set(1)
				} else {
					prom.FeedConnected.Set(0)
				}
			}
		}
	}()

	d := &desk{
		log:    log,
		client: client,
		sess:   sess,
		store:  store,
		flow:   flow,
		jrnl:   jrnl,
		prom:   prom,
		conn:   conn,
		cash:   svcSummary.CashBalance,
	}
	go d.commandLoop(ctx, cancel)

	<-ctx.Done()

	sub.Cancel()
	conn.Close()

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
	metricsSrv.Stop(shutCtx)
	shutCancel()
	log.Info("desk stopped")
}

// desk holds the running components the command loop drives.
type desk struct {
	log    *slog.Logger
	client *api.Client
	sess   *session.Session
	store  *positions.Store
	flow   *trade.Flow
	jrnl   *journal.Journal
	prom   *metrics.Metrics
	conn   *feed.Conn

	mu    sync.Mutex
	input trade.Input
	cash  decimal.Decimal
}

const helpText = `commands:
  quote SYMBOL QTY BUY|SELL [LIMIT price]   fetch a quote for the given order
  confirm                                   submit the quoted order as entered
  abandon                                   drop the current quote
  positions                                 list held positions
  summary                                   portfolio aggregate view
  fills [n]                                 recent fills from the local journal
  orders                                    order history from the trading service
  sellall SYMBOL                            liquidate the full held quantity
  status                                    feed and session state
  quit`

func (d *desk) commandLoop(ctx context.Context, quit func()) {
	fmt.Println(helpText)
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			quit()
			return
		}
		d.handle(ctx, line)
	}
}

func (d *desk) handle(ctx context.Context, line string) {
	args := strings.Fields(line)
	switch args[0] {
	case "help":
		fmt.Println(helpText)
	case "quote":
		d.cmdQuote(ctx, args[1:])
	case "confirm":
		d.cmdConfirm(ctx)
	case "abandon":
		d.flow.Abandon()
		fmt.Println("quote abandoned")
	case "positions":
		d.cmdPositions()
	case "summary":
		d.cmdSummary()
	case "fills":
		d.cmdFills(args[1:])
	case "orders":
		d.cmdOrders(ctx)
	case "sellall":
		d.cmdSellAll(ctx, args[1:])
	case "status":
		fmt.Printf("feed: %s  session: active=%v  state: %s\n",
			d.conn.Status(), d.sess.Active(), d.flow.State())
	default:
		fmt.Printf("unknown command %q (try help)\n", args[0])
	}
}

func parseOrderArgs(args []string) (trade.Input, error) {
	if len(args) < 3 {
		return trade.Input{}, fmt.Errorf("usage: quote SYMBOL QTY BUY|SELL [LIMIT price]")
	}
	qty, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return trade.Input{}, fmt.Errorf("bad quantity %q", args[1])
	}
	in := trade.Input{
		Symbol:    strings.ToUpper(args[0]),
		Quantity:  qty,
		Side:      model.Side(strings.ToUpper(args[2])),
		PriceType: model.PriceTypeMarket,
	}
	if in.Side != model.SideBuy && in.Side != model.SideSell {
		return trade.Input{}, fmt.Errorf("side must be BUY or SELL, got %q", args[2])
	}
	if len(args) >= 5 && strings.EqualFold(args[3], "LIMIT") {
		price, perr := decimal.NewFromString(args[4])
		if perr != nil {
			return trade.Input{}, fmt.Errorf("bad limit price %q", args[4])
		}
		in.PriceType = model.PriceTypeLimit
		in.LimitPrice = price
	}
	return in, nil
}

func (d *desk) cmdQuote(ctx context.Context, args []string) {
	in, err := parseOrderArgs(args)
	if err != nil {
		fmt.Println(err)
		return
	}
	d.mu.Lock()
	d.input = in
	d.mu.Unlock()

	start := time.Now()
	q, err := d.flow.RequestQuote(ctx, in)
	d.prom.QuoteLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		fmt.Printf("quote failed: %v\n", err)
		return
	}
	fmt.Printf("%s (%s)  %s %d @ %s  total %s\n",
		q.Symbol, q.CompanyName, q.Side, q.Quantity, q.CurrentPrice, q.TotalValue)
	fmt.Println("confirm to submit, abandon to drop")
}

func (d *desk) cmdConfirm(ctx context.Context) {
	d.mu.Lock()
	in := d.input
	d.mu.Unlock()

	resp, err := d.flow.Confirm(ctx, in)
	if err != nil {
		fmt.Printf("confirm failed: %v\n", err)
		return
	}
	fmt.Printf("filled: order %d  %s %d %s @ %s\n",
		resp.Order.ID, resp.Order.Side, resp.Order.Quantity,
		resp.Order.Symbol, resp.Order.FilledPrice)
	d.refreshCash(ctx)
}

// refreshCash pulls the service-side summary after a fill so the local
// aggregate view reflects the new cash balance.
func (d *desk) refreshCash(ctx context.Context) {
	s, err := d.client.GetSummary(ctx)
	if err != nil {
		d.log.Warn("post-fill summary refresh failed", "error", err)
		return
	}
	d.mu.Lock()
	d.cash = s.CashBalance
	d.mu.Unlock()
}

func (d *desk) cmdPositions() {
	snap := d.store.Snapshot()
	if len(snap) == 0 {
		fmt.Println("no positions held")
		return
	}
	for _, p := range snap {
		fmt.Printf("%-8s qty %-6d avg %-10s cur %-10s mv %-12s pnl %s (%s%%)\n",
			p.Symbol, p.Quantity, p.AveragePrice, p.CurrentPrice,
			p.MarketValue, p.UnrealizedPnL, p.PercentageReturn.Round(2))
	}
}

func (d *desk) cmdSummary() {
	d.mu.Lock()
	cash := d.cash
	d.mu.Unlock()

	s := summary.Compute(d.sess.PortfolioID(), cash, d.store.Snapshot())
	fmt.Printf("cash %s  positions %s  total %s  pnl %s (%s%%)\n",
		s.CashBalance, s.TotalPositionsValue, s.TotalPortfolioValue,
		s.UnrealizedPnL, s.PercentageReturn.Round(2))
}

func (d *desk) cmdFills(args []string) {
	if d.jrnl == nil {
		fmt.Println("fill journal unavailable")
		return
	}
	limit := 10
	if len(args) > 0 {
		if n, err := strconv.Atoi(args[0]); err == nil && n > 0 {
			limit = n
		}
	}
	fills, err := d.jrnl.Recent(limit)
	if err != nil {
		fmt.Printf("journal read failed: %v\n", err)
		return
	}
	if len(fills) == 0 {
		fmt.Println("no fills recorded")
		return
	}
	for _, f := range fills {
		fmt.Printf("order %-6d %-4s %-6d %-8s @ %-10s %s\n",
			f.OrderID, f.Side, f.Qty, f.Symbol, f.FilledPrice, f.FilledAt)
	}
}

func (d *desk) cmdOrders(ctx context.Context) {
	orders, err := d.client.GetOrders(ctx)
	if err != nil {
		fmt.Printf("order history failed: %v\n", err)
		return
	}
	if len(orders) == 0 {
		fmt.Println("no orders")
		return
	}
	for _, o := range orders {
		fmt.Printf("order %-6d %-4s %-6d %-8s %-8s %s\n",
			o.ID, o.Side, o.Quantity, o.Symbol, o.Status, o.FilledPrice)
	}
}

func (d *desk) cmdSellAll(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Println("usage: sellall SYMBOL")
		return
	}
	symbol := strings.ToUpper(args[0])
	if _, held := d.store.Get(symbol); !held {
		fmt.Printf("no position in %s\n", symbol)
		return
	}
	resp, err := d.client.SellAll(ctx, symbol, model.PriceTypeMarket)
	if err != nil {
		fmt.Printf("sell-all failed: %v\n", err)
		return
	}
	// Rejections arrive as well-formed responses with success=false.
	if !resp.Success {
		fmt.Printf("sell-all rejected: %s\n", resp.Message)
		return
	}
	fmt.Printf("liquidated %s: order %d @ %s\n", symbol, resp.Order.ID, resp.Order.FilledPrice)

	if held, perr := d.client.GetPositions(ctx); perr != nil {
		d.log.Warn("post-liquidation position reload failed", "error", perr)
	} else {
		d.store.ReplaceSnapshot(held)
	}
	if d.jrnl != nil {
		if jerr := d.jrnl.RecordFill(resp.Order, resp.Message); jerr != nil {
			d.log.Warn("journal write failed", "error", jerr)
		}
	}
	d.refreshCash(ctx)
}
