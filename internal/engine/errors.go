package engine

import (
	"errors"
	"fmt"
)

// 区域操作的错误分类。所有错误都返回给调用层，引擎不会因坏请求退出。
var (
	// ErrDuplicateZoneName 区域名称已存在
	ErrDuplicateZoneName = errors.New("zone name already exists")
	// ErrZoneNotFound 区域不存在
	ErrZoneNotFound = errors.New("zone not found")
	// ErrInsufficientDevices 区域设备少于2个
	ErrInsufficientDevices = errors.New("zone requires at least 2 devices")
	// ErrDeviceNotInZone 设备不在区域成员中
	ErrDeviceNotInZone = errors.New("device not in zone")
)

// InvalidConfigError 配置越界错误（带字段名和原因）
type InvalidConfigError struct {
	Field  string
	Reason string
}

func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("invalid config: %s: %s", e.Field, e.Reason)
}

// IsInvalidConfig 判断错误是否为配置错误
func IsInvalidConfig(err error) bool {
	var ice *InvalidConfigError
	return errors.As(err, &ice)
}
