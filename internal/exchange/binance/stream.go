package binance

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/your-org/stop-guard-bot/pkg/logger"
)

var defaultStreamURL = "wss://stream.binance.com:9443/ws"

// SetStreamURL overrides the websocket endpoint. Intended for tests.
func SetStreamURL(url string) {
	defaultStreamURL = url
}

// PriceHandler receives last-price updates from the ticker stream.
type PriceHandler func(symbol string, price float64)

// StreamClient subscribes to the mini-ticker stream for a set of symbols and
// forwards last prices to the handler.
type StreamClient struct {
	symbols []string
	handler PriceHandler
	conn    *websocket.Conn
}

// NewStreamClient creates a new ticker stream client.
func NewStreamClient(symbols []string, handler PriceHandler) *StreamClient {
	return &StreamClient{symbols: symbols, handler: handler}
}

type subscribeMessage struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int      `json:"id"`
}

// miniTickerEvent is the payload of a <symbol>@miniTicker stream message.
type miniTickerEvent struct {
	EventType string `json:"e"`
	Symbol    string `json:"s"`
	Close     string `json:"c"`
}

// Connect establishes the websocket connection and handles message receiving
// and pinging. It attempts to reconnect with exponential backoff if the
// connection is lost, and returns when ctx is cancelled.
func (c *StreamClient) Connect(ctx context.Context) error {
	logger.Infof("Attempting to connect to %s", defaultStreamURL)

	var conn *websocket.Conn
	var dialErr error
	maxRetries := 5
	retryCount := 0
	backoff := 1 * time.Second

	for retryCount < maxRetries {
		conn, _, dialErr = websocket.DefaultDialer.DialContext(ctx, defaultStreamURL, nil)
		if dialErr == nil {
			break
		}
		logger.Errorf("Dial error (attempt %d/%d): %v. Retrying in %v...", retryCount+1, maxRetries, dialErr, backoff)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		retryCount++
	}
	if dialErr != nil {
		logger.Errorf("Failed to connect after %d attempts: %v", maxRetries, dialErr)
		return dialErr
	}

	c.conn = conn
	logger.Infof("Successfully connected to %s", defaultStreamURL)
	defer func() {
		logger.Info("Closing ticker stream connection.")
		c.conn.Close()
	}()

	if err := c.subscribe(); err != nil {
		return err
	}

	done := make(chan struct{})  // Signals that the read goroutine has finished
	reconnect := make(chan bool, 1)

	go func() {
		defer close(done)
		for {
			_, message, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
					logger.Error("Unexpected close error, attempting to reconnect...")
					select {
					case reconnect <- true:
					default:
					}
				} else if errors.Is(err, websocket.ErrCloseSent) {
					logger.Info("Connection closed by client.")
				} else if opError, ok := err.(*net.OpError); ok && strings.Contains(opError.Err.Error(), "closed network connection") {
					logger.Info("Connection closed, possibly by server or network issue.")
				} else {
					logger.Errorf("Unhandled read error: %T %v", err, err)
				}
				return
			}
			c.handleMessage(message)
		}
	}()

	pingTicker := time.NewTicker(30 * time.Second)
	defer pingTicker.Stop()

	for {
		select {
		case <-done:
			select {
			case <-reconnect:
				logger.Info("Reconnect signal received. Attempting to reconnect...")
				c.conn.Close()
				return c.Connect(ctx)
			case <-ctx.Done():
				return nil
			case <-time.After(5 * time.Second):
				logger.Error("Timeout waiting for reconnect signal after read error.")
				return errors.New("failed to maintain ticker stream connection after read error")
			}

		case <-pingTicker.C:
			if err := c.conn.WriteMessage(websocket.PingMessage, []byte{}); err != nil {
				logger.Errorf("Ping error: %v", err)
				select {
				case reconnect <- true:
				default:
				}
			}

		case <-ctx.Done():
			logger.Info("Context cancelled. Closing stream connection...")
			err := c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			if err != nil {
				logger.Errorf("Write close error: %v", err)
				return err
			}
			select {
			case <-done:
			case <-time.After(2 * time.Second):
				logger.Error("Timeout waiting for server to close connection.")
			}
			return nil
		}
	}
}

// handleMessage parses a stream message and forwards mini-ticker prices.
func (c *StreamClient) handleMessage(message []byte) {
	var event miniTickerEvent
	if err := json.Unmarshal(message, &event); err != nil {
		logger.Errorf("Error unmarshalling stream message: %v. Original message: %s", err, message)
		return
	}
	if event.EventType != "24hrMiniTicker" {
		// Subscription acks and other control frames arrive on the same socket.
		logger.Debugf("Ignoring non-ticker stream message: %s", message)
		return
	}

	price, err := strconv.ParseFloat(event.Close, 64)
	if err != nil {
		logger.Errorf("Error parsing ticker price %q for %s: %v", event.Close, event.Symbol, err)
		return
	}
	if c.handler != nil {
		c.handler(event.Symbol, price)
	}
}

// subscribe sends the stream subscription message for all configured symbols.
func (c *StreamClient) subscribe() error {
	if c.conn == nil {
		return errors.New("cannot subscribe: stream connection is not established")
	}
	params := make([]string, 0, len(c.symbols))
	for _, s := range c.symbols {
		params = append(params, strings.ToLower(s)+"@miniTicker")
	}
	logger.Infof("Subscribing to streams: %v", params)
	msg := subscribeMessage{Method: "SUBSCRIBE", Params: params, ID: 1}
	if err := c.conn.WriteJSON(msg); err != nil {
		logger.Errorf("Error subscribing to streams: %v", err)
		return err
	}
	return nil
}

// Close closes the websocket connection.
func (c *StreamClient) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
