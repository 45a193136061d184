package log

import (
	"go.uber.org/zap"
)

const (
	FieldNameModule    = "module"
	FieldNameComponent = "component"
)

// FieldModule 返回一个包含模块名的 zap 字段。
func FieldModule(module string) zap.Field {
	return zap.String(FieldNameModule, module)
}

// FieldComponent 返回一个包含组件名的 zap 字段。
func FieldComponent(component string) zap.Field {
	return zap.String(FieldNameComponent, component)
}

// FieldInterface 返回一个包含对等接口编号的 zap 字段。
func FieldInterface(ifIndex int) zap.Field {
	return zap.Int("peering_interface", ifIndex)
}

// FieldPeer 返回一个包含对端 BGP Identifier 的 zap 字段。
func FieldPeer(id uint32) zap.Field {
	return zap.Uint32("peer_identifier", id)
}
