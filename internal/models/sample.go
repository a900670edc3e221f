package models

import (
	"strings"
	"time"
)

// LinkSample 一次链路质量采样
//
// DeviceA/DeviceB 的顺序不重要：同一对设备的采样总是归并到同一条链路
type LinkSample struct {
	DeviceA   string
	DeviceB   string
	RSSI      int
	Timestamp time.Time
}

// LinkKey 无序设备对的链路键
//
// 键格式为字典序排列的 "a|b"，保证 (a,b) 和 (b,a) 映射到同一条链路
type LinkKey string

// NewLinkKey 构建链路键（对设备标识符排序）
func NewLinkKey(a, b string) LinkKey {
	if a > b {
		a, b = b, a
	}
	return LinkKey(a + "|" + b)
}

// Devices 返回链路两端的设备标识符
func (k LinkKey) Devices() (string, string) {
	parts := strings.SplitN(string(k), "|", 2)
	if len(parts) != 2 {
		return string(k), ""
	}
	return parts[0], parts[1]
}

// NormalizeDeviceID 规范化设备标识符（小写、去空白）
//
// 与设备注册表保持一致的键形式，避免大小写差异导致链路分裂
func NormalizeDeviceID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// LQIToRSSI 将 LQI (0-255) 转换为近似 RSSI (dBm)
//
// 线性映射：LQI 255 → -30dBm，LQI 0 → -100dBm
func LQIToRSSI(lqi int) int {
	return int(-100 + (float64(lqi)/255)*70)
}

// RSSIToLQI 将 RSSI (dBm) 转换为近似 LQI (0-255)，结果截断到 [0, 255]
func RSSIToLQI(rssi int) int {
	lqi := int(float64(rssi+100) * 255 / 70)
	if lqi < 0 {
		return 0
	}
	if lqi > 255 {
		return 255
	}
	return lqi
}
