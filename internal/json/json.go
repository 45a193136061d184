package json

import (
	"io"

	"github.com/bytedance/sonic"
)

// api 使用与标准库兼容的 sonic 配置，
// 保证与 encoding/json 的行为一致，同时获得更好的编解码性能。
var api = sonic.ConfigStd

// Marshal 将任意对象编码为 JSON 字节序列。
func Marshal(v any) ([]byte, error) {
	return api.Marshal(v)
}

// Unmarshal 将 JSON 字节序列解码到目标对象。
func Unmarshal(data []byte, v any) error {
	return api.Unmarshal(data, v)
}

// NewEncoder 创建一个向 w 写入 JSON 的编码器。
func NewEncoder(w io.Writer) sonic.Encoder {
	return api.NewEncoder(w)
}

// NewDecoder 创建一个从 r 读取 JSON 的解码器。
func NewDecoder(r io.Reader) sonic.Decoder {
	return api.NewDecoder(r)
}
