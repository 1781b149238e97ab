//go:build !darwin

// Package permissions 提供屏幕采集权限检查（macOS 专用）
//
// 非 macOS 平台无需额外授权，检查始终通过。
package permissions

// Status 权限状态
type Status struct {
	ScreenRecording bool `json:"screen_recording"`
}

// Check 检查屏幕采集所需权限
func Check() *Status {
	return &Status{ScreenRecording: true}
}

// Instructions 返回缺失权限的授权说明，权限齐全时返回空字符串
func (s *Status) Instructions() string {
	return ""
}
