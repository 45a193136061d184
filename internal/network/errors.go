package network

import "errors"

// Stage 表示数据平面收发链路中的处理阶段。
//
// 主要用于在回调与日志中标记错误发生的位置，便于监控与排查。
type Stage string

const (
	StageEncode  Stage = "encode"  // 协议消息 -> 字节
	StageDeliver Stage = "deliver" // 字节投递到对端接收队列
	StageDecode  Stage = "decode"  // 字节 -> 协议消息
)

// 统一的错误码常量。
//
// 注意：这些是用于日志/监控的稳定字符串，真正的 error 对象在下面通过 errors.New 构造。
const (
	ErrCodeEncodeFailed  = "network:encode_failed"
	ErrCodeDeliverFailed = "network:deliver_failed"
	ErrCodeDecodeFailed  = "network:decode_failed"
)

var (
	// ErrEncodeFailed 表示在将协议消息编码为字节时发生错误。
	ErrEncodeFailed = errors.New(ErrCodeEncodeFailed)

	// ErrDeliverFailed 表示在将字节投递到对端接收队列时发生错误。
	ErrDeliverFailed = errors.New(ErrCodeDeliverFailed)

	// ErrDecodeFailed 表示在将字节解码为协议消息时发生错误。
	ErrDecodeFailed = errors.New(ErrCodeDecodeFailed)
)

// StageFor 根据错误携带的哨兵返回其所属的处理阶段。
// 未被标记的错误返回空字符串。
func StageFor(err error) Stage {
	switch {
	case errors.Is(err, ErrEncodeFailed):
		return StageEncode
	case errors.Is(err, ErrDeliverFailed):
		return StageDeliver
	case errors.Is(err, ErrDecodeFailed):
		return StageDecode
	default:
		return ""
	}
}
