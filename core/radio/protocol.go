package radio

import (
	"encoding/json"
	"time"
)

// 消息类型
const (
	MsgTypeSync   = "sync"         // 完整快照：加入时推送，或响应客户端的 sync 请求
	MsgTypeUpdate = "radio-update" // 播出状态变化
	MsgTypePing   = "ping"
	MsgTypePong   = "pong"
	MsgTypeError  = "error"
)

// Message 电台 WebSocket 消息
type Message struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// NewStatusMessage wraps a status into a message of the given type.
func NewStatusMessage(msgType string, status Status) (Message, error) {
	data, err := json.Marshal(status)
	if err != nil {
		return Message{}, err
	}
	return Message{Type: msgType, Data: data, Timestamp: time.Now().UnixMilli()}, nil
}

// DecodeStatus extracts the status carried by a sync or update message.
func (m Message) DecodeStatus() (Status, error) {
	var st Status
	if len(m.Data) == 0 {
		return st, nil
	}
	err := json.Unmarshal(m.Data, &st)
	return st, err
}
