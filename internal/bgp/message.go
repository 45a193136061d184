// Package bgp 定义了控制平面与数据平面之间搬运的 BGP 协议消息模型。
package bgp

import (
	"fmt"
	"time"
)

// MessageType 表示 BGP 消息类型。
//
// 取值与 RFC 4271 中的 Message Type 编号保持一致。
type MessageType uint8

const (
	// MessageTypeOpen 会话建立消息，携带协商参数（如 HoldTime）。
	MessageTypeOpen MessageType = iota + 1
	// MessageTypeUpdate 路由通告/撤销消息。
	MessageTypeUpdate
	// MessageTypeNotification 错误通知消息。
	MessageTypeNotification
	// MessageTypeKeepalive 会话保活消息，不携带任何负载。
	MessageTypeKeepalive
)

// String 返回消息类型的可读名称。
func (t MessageType) String() string {
	switch t {
	case MessageTypeOpen:
		return "OPEN"
	case MessageTypeUpdate:
		return "UPDATE"
	case MessageTypeNotification:
		return "NOTIFICATION"
	case MessageTypeKeepalive:
		return "KEEPALIVE"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(t))
	}
}

// Message 表示一条在路由器之间交换的 BGP 消息。
//
// 说明：
//   - PeerIdentifier 始终是发送方的 BGP Identifier，接收方据此匹配对应的会话；
//   - OutboundInterface 由发送方在出队前填写，数据平面据此选择链路；
//   - HoldTime 仅在 OPEN 消息中有意义，用于协商会话的 HoldDown 时间；
//   - WithdrawnRoutes 仅在 UPDATE 消息中有意义，携带被撤销的路由前缀。
type Message struct {
	Type              MessageType   `json:"type"`
	PeerIdentifier    uint32        `json:"peer_identifier"`
	OutboundInterface int           `json:"outbound_interface"`
	HoldTime          time.Duration `json:"hold_time,omitempty"`
	WithdrawnRoutes   []string      `json:"withdrawn_routes,omitempty"`
	Payload           []byte        `json:"payload,omitempty"`
}

// NewKeepalive 构造一条保活消息。
//
// 参数：
//   - senderID: 发送方自身的 BGP Identifier；
//   - ifIndex: 发送方的出接口编号。
func NewKeepalive(senderID uint32, ifIndex int) *Message {
	return &Message{
		Type:              MessageTypeKeepalive,
		PeerIdentifier:    senderID,
		OutboundInterface: ifIndex,
	}
}

// NewOpen 构造一条 OPEN 消息，携带发送方期望协商的 HoldTime。
func NewOpen(senderID uint32, ifIndex int, holdTime time.Duration) *Message {
	return &Message{
		Type:              MessageTypeOpen,
		PeerIdentifier:    senderID,
		OutboundInterface: ifIndex,
		HoldTime:          holdTime,
	}
}

// NewWithdrawal 构造一条撤销指定路由前缀的 UPDATE 消息。
func NewWithdrawal(senderID uint32, prefixes []string) *Message {
	return &Message{
		Type:            MessageTypeUpdate,
		PeerIdentifier:  senderID,
		WithdrawnRoutes: prefixes,
	}
}
