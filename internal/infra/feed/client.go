package feed

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"fxengine/internal/domain"
	"fxengine/internal/infra"
	"fxengine/pkg/fixed"
)

// Session states.
const (
	StateDisconnected int32 = iota
	StateConnecting
	StateLoggedOn
	StateSubscribed
)

const (
	dialTimeout    = 10 * time.Second
	sendingTimeFmt = "20060102-15:04:05.000"
)

// QuoteHandler receives each market-data update. Either side may be absent
// on incremental refreshes.
type QuoteHandler func(bid, ask fixed.Price, hasBid, hasAsk bool, at time.Time)

// ClientConfig carries the session parameters.
type ClientConfig struct {
	Addr         string
	Symbol       string
	SenderCompID string
	TargetCompID string
	Account      string
	Password     string
	Heartbeat    time.Duration
	Reconnect    time.Duration
}

// Client maintains the feed session: dial, logon, subscribe, answer
// heartbeats, parse market data, and reconnect after a fixed backoff on any
// socket error or close.
type Client struct {
	cfg     ClientConfig
	onQuote QuoteHandler
	metrics *infra.Metrics

	mu      sync.RWMutex
	conn    net.Conn
	writeMu sync.Mutex
	state   atomic.Int32
	seqNum  int

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewClient creates a feed client. onQuote is invoked from the read loop and
// must not block.
func NewClient(cfg ClientConfig, metrics *infra.Metrics, onQuote QuoteHandler) *Client {
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = 30 * time.Second
	}
	if cfg.Reconnect <= 0 {
		cfg.Reconnect = 5 * time.Second
	}
	return &Client{cfg: cfg, metrics: metrics, onQuote: onQuote}
}

// State returns the current session state.
func (c *Client) State() int32 { return c.state.Load() }

// Connect starts the session loop.
func (c *Client) Connect(ctx context.Context) error {
	ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(1)
	go c.connectionLoop(ctx)
	return nil
}

func (c *Client) connectionLoop(ctx context.Context) {
	defer c.wg.Done()
	first := true
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if !first {
			// Fixed backoff; a pending reconnect must be cancelable.
			c.metrics.RecordFeedReconnect()
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.cfg.Reconnect):
			}
		}
		first = false

		if err := c.connect(ctx); err != nil {
			slog.Warn("feed connect failed", slog.Any("error", err))
			c.metrics.RecordError()
			continue
		}
		// readLoop returns on any socket error, logout or reject. The
		// socket is fully torn down before the next dial so a stale
		// reader can never deliver duplicate ticks.
		c.readLoop(ctx)
		c.closeConnection()
	}
}

func (c *Client) connect(ctx context.Context) error {
	c.state.Store(StateConnecting)

	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.cfg.Addr)
	if err != nil {
		c.state.Store(StateDisconnected)
		return domain.NewFeedError("dial", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.seqNum = 0
	c.mu.Unlock()

	hb := int(c.cfg.Heartbeat / time.Second)
	err = c.send(MsgTypeLogon,
		Field{TagEncryptMethod, "0"},
		Field{TagHeartBtInt, strconv.Itoa(hb)},
		Field{TagUsername, c.cfg.Account},
		Field{TagPassword, c.cfg.Password},
	)
	if err != nil {
		c.closeConnection()
		return domain.NewFeedError("logon", err)
	}

	slog.Info("feed dialed, logon sent", slog.String("addr", c.cfg.Addr))
	return nil
}

// send frames and writes one message, stamping the session header fields.
func (c *Client) send(msgType string, fields ...Field) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return fmt.Errorf("no connection")
	}

	c.seqNum++
	header := []Field{
		{TagMsgSeqNum, strconv.Itoa(c.seqNum)},
		{TagSenderCompID, c.cfg.SenderCompID},
		{TagTargetCompID, c.cfg.TargetCompID},
		{TagSendingTime, time.Now().UTC().Format(sendingTimeFmt)},
	}
	frame := Encode(msgType, append(header, fields...)...)
	_, err := conn.Write(frame)
	return err
}

func (c *Client) readLoop(ctx context.Context) {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return
	}

	scanner := bufio.NewScanner(conn)
	scanner.Split(ScanFrames)
	readTimeout := c.cfg.Heartbeat * 5 / 2

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		conn.SetReadDeadline(time.Now().Add(readTimeout))
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				slog.Warn("feed read failed", slog.Any("error", err))
			}
			return
		}

		msg, err := Parse(scanner.Bytes())
		if err != nil {
			slog.Warn("feed frame rejected", slog.Any("error", err))
			c.metrics.RecordError()
			continue
		}
		if !c.handleMessage(msg) {
			return
		}
	}
}

// handleMessage dispatches one inbound message. A false return tears the
// session down.
func (c *Client) handleMessage(msg *Message) bool {
	switch msg.Type {
	case MsgTypeLogon:
		c.state.Store(StateLoggedOn)
		if err := c.subscribe(); err != nil {
			slog.Warn("market data request failed", slog.Any("error", err))
			return false
		}
		c.state.Store(StateSubscribed)
		c.metrics.SetFeedConnected(true)
		slog.Info("feed subscribed", slog.String("symbol", c.cfg.Symbol))

	case MsgTypeMDSnapshot, MsgTypeMDIncremental:
		bid, ask, hasBid, hasAsk, err := ParseMarketData(msg)
		if err != nil {
			slog.Warn("market data parse failed", slog.Any("error", err))
			c.metrics.RecordError()
			return true
		}
		if (hasBid || hasAsk) && c.onQuote != nil {
			c.onQuote(bid, ask, hasBid, hasAsk, time.Now())
		}

	case MsgTypeTestRequest:
		id, _ := msg.Get(TagTestReqID)
		if err := c.send(MsgTypeHeartbeat, Field{TagTestReqID, id}); err != nil {
			slog.Warn("heartbeat reply failed", slog.Any("error", err))
			return false
		}

	case MsgTypeHeartbeat:
		// Counterparty liveness; the read deadline already advanced.

	case MsgTypeLogout:
		text, _ := msg.Get(TagText)
		slog.Warn("feed logout received", slog.String("text", text))
		return false

	case MsgTypeReject:
		text, _ := msg.Get(TagText)
		slog.Error("feed session reject", slog.String("text", text))
		return false

	default:
		slog.Debug("feed message ignored", slog.String("type", msg.Type))
	}
	return true
}

func (c *Client) subscribe() error {
	reqID := fmt.Sprintf("md-%d", time.Now().UnixNano())
	return c.send(MsgTypeMDRequest,
		Field{TagMDReqID, reqID},
		Field{TagSubscriptionType, "1"}, // snapshot + updates
		Field{TagMarketDepth, "1"},      // top of book
		Field{TagNoMDEntryTypes, "2"},
		Field{TagMDEntryType, EntryTypeBid},
		Field{TagMDEntryType, EntryTypeAsk},
		Field{TagSymbol, c.cfg.Symbol},
	)
}

func (c *Client) closeConnection() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.state.Store(StateDisconnected)
	c.metrics.SetFeedConnected(false)
}

// Disconnect cancels the session loop and waits for full teardown.
func (c *Client) Disconnect() {
	if c.cancel != nil {
		c.cancel()
	}
	c.closeConnection()
	c.wg.Wait()
}
