package feed

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/catalogfi/swapper/pkg/order"
)

// Response is one message from the order feed, either UpdatedOrders or Error.
type Response interface{}

// UpdatedOrders carries fresh order observations pushed by the feed.
type UpdatedOrders struct {
	Orders []order.Order `json:"orders"`
}

type Error struct {
	Err error
}

type message struct {
	Type   string        `json:"type"`
	Error  string        `json:"error,omitempty"`
	Orders []order.Order `json:"orders,omitempty"`
}

type subscription struct {
	Action string `json:"action"`
	Filter string `json:"filter"`
}

// Client is a push source of order observations. The channel returned by
// Listen closes when the connection drops, callers own the reconnect cadence
// and will usually dial a fresh client with backoff.
type Client interface {
	Subscribe(filter string)
	Listen() <-chan Response
	Close() error
}

type wsClient struct {
	url    string
	logger *zap.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	pending []string
}

func NewWSClient(url string, logger *zap.Logger) Client {
	return &wsClient{
		url:    url,
		logger: logger,
	}
}

// Subscribe queues a subscription, sent once the connection is up. Safe to
// call before Listen.
func (client *wsClient) Subscribe(filter string) {
	client.mu.Lock()
	defer client.mu.Unlock()

	if client.conn != nil {
		if err := client.subscribe(filter); err != nil {
			client.logger.Error("failed to subscribe", zap.String("filter", filter), zap.Error(err))
		}
		return
	}
	client.pending = append(client.pending, filter)
}

func (client *wsClient) Listen() <-chan Response {
	responses := make(chan Response, 16)
	go func() {
		defer close(responses)

		conn, _, err := websocket.DefaultDialer.Dial(client.url, nil)
		if err != nil {
			responses <- Error{Err: fmt.Errorf("dial %v: %w", client.url, err)}
			return
		}

		client.mu.Lock()
		client.conn = conn
		pending := client.pending
		client.pending = nil
		for _, filter := range pending {
			if err := client.subscribe(filter); err != nil {
				client.logger.Error("failed to subscribe", zap.String("filter", filter), zap.Error(err))
			}
		}
		client.mu.Unlock()

		for {
			var msg message
			if err := conn.ReadJSON(&msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					client.logger.Debug("websocket read error", zap.Error(err))
				}
				return
			}

			switch msg.Type {
			case "updated_orders":
				responses <- UpdatedOrders{Orders: msg.Orders}
			case "error":
				responses <- Error{Err: fmt.Errorf("%v", msg.Error)}
			default:
				client.logger.Debug("unknown message type", zap.String("type", msg.Type))
			}
		}
	}()
	return responses
}

func (client *wsClient) Close() error {
	client.mu.Lock()
	defer client.mu.Unlock()

	if client.conn == nil {
		return nil
	}
	return client.conn.Close()
}

// subscribe must be called with the lock held and an open connection.
func (client *wsClient) subscribe(filter string) error {
	data, err := json.Marshal(subscription{Action: "subscribe", Filter: filter})
	if err != nil {
		return err
	}
	return client.conn.WriteMessage(websocket.TextMessage, data)
}
