package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gridmaker/internal/models"

	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10 // 必须小于 pongWait
)

// SubscribeDepth 订阅20档盘口深度流
func (e *BinanceExchange) SubscribeDepth(ctx context.Context, symbol string) (<-chan models.DepthUpdate, error) {
	out := make(chan models.DepthUpdate, 64)
	url := fmt.Sprintf("%s/ws/%s@depth20@100ms", e.wsBaseURL, strings.ToLower(symbol))

	go e.streamLoop(ctx, url, func() { close(out) }, func(message []byte) {
		var payload struct {
			EventTime int64       `json:"E"`
			Bids      [][2]string `json:"b"`
			Asks      [][2]string `json:"a"`
		}
		if err := json.Unmarshal(message, &payload); err != nil {
			e.logger.Warnf("解析深度推送失败: %v", err)
			return
		}
		du := models.DepthUpdate{
			Bids: parseDepthLevels(payload.Bids),
			Asks: parseDepthLevels(payload.Asks),
			Time: time.UnixMilli(payload.EventTime),
		}
		sendLatest(out, du)
	})
	return out, nil
}

// SubscribeTrades 订阅归集成交流
func (e *BinanceExchange) SubscribeTrades(ctx context.Context, symbol string) (<-chan models.TradeEvent, error) {
	out := make(chan models.TradeEvent, 64)
	url := fmt.Sprintf("%s/ws/%s@aggTrade", e.wsBaseURL, strings.ToLower(symbol))

	go e.streamLoop(ctx, url, func() { close(out) }, func(message []byte) {
		var payload struct {
			Price     json.Number `json:"p"`
			Quantity  json.Number `json:"q"`
			TradeTime int64       `json:"T"`
		}
		if err := json.Unmarshal(message, &payload); err != nil {
			e.logger.Warnf("解析成交推送失败: %v", err)
			return
		}
		price, errP := payload.Price.Float64()
		qty, errQ := payload.Quantity.Float64()
		if errP != nil || errQ != nil {
			e.logger.Warnf("转换成交价格失败: %v %v", errP, errQ)
			return
		}
		sendLatest(out, models.TradeEvent{Price: price, Quantity: qty, Time: time.UnixMilli(payload.TradeTime)})
	})
	return out, nil
}

// streamLoop 是一个守护循环：建立连接、保持心跳、断开后指数退避重连。
// 流断开触发重新订阅而不是任务终止；仅当ctx取消时退出并关闭下游通道。
func (e *BinanceExchange) streamLoop(ctx context.Context, url string, closeOut func(), handle func([]byte)) {
	defer closeOut()

	b := &backoff.Backoff{Min: time.Second, Max: 30 * time.Second, Jitter: true}
	for {
		if ctx.Err() != nil {
			return
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
		if err != nil {
			wait := b.Duration()
			e.logger.Warnf("WebSocket连接 %s 失败: %v，%s后重试", url, err, wait)
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
			continue
		}
		b.Reset()
		e.logger.Infof("WebSocket已连接: %s", url)

		if err := e.readMessages(ctx, conn, handle); err != nil && ctx.Err() == nil {
			e.logger.Warnf("WebSocket连接断开: %v，准备重连...", err)
		}
		conn.Close()
	}
}

// readMessages 为一个已建立的连接处理消息，并实现Ping/Pong心跳。
// 任何读取错误都意味着连接已损坏，返回错误让 streamLoop 重连。
func (e *BinanceExchange) readMessages(ctx context.Context, conn *websocket.Conn, handle func([]byte)) error {
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	pingDone := make(chan struct{})
	defer close(pingDone)
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			case <-pingDone:
				return
			case <-ctx.Done():
				// 优雅关闭，服务端收到后会断开连接
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				_ = conn.Close()
				return
			}
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		handle(message)
	}
}

// sendLatest 非阻塞投递：消费方只关心最新事件，通道满时丢弃最旧的一条
func sendLatest[T any](out chan T, v T) {
	select {
	case out <- v:
	default:
		select {
		case <-out:
		default:
		}
		select {
		case out <- v:
		default:
		}
	}
}

func parseDepthLevels(raw [][2]string) []models.DepthLevel {
	levels := make([]models.DepthLevel, 0, len(raw))
	for _, r := range raw {
		price, errP := strconv.ParseFloat(r[0], 64)
		qty, errQ := strconv.ParseFloat(r[1], 64)
		if errP != nil || errQ != nil {
			continue
		}
		levels = append(levels, models.DepthLevel{Price: price, Quantity: qty})
	}
	return levels
}
