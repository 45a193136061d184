package serializer

// Serializer 抽象了数据平面“协议消息 <-> 字节流”的序列化能力。
//
// 设计目标：
//   - 面向 BGP 消息在数据平面上的搬运，控制平面内部始终只处理解码后的对象；
//   - 调用方通过接口注入具体实现，便于后续扩展其它序列化方案。
type Serializer interface {
	// Marshal 将任意对象编码为字节序列。
	Marshal(v any) ([]byte, error)

	// Unmarshal 将字节序列解码到目标对象。
	//
	// v 通常为指针类型，用于接收解码结果。
	Unmarshal(data []byte, v any) error
}
