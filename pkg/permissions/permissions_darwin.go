//go:build darwin

// Package permissions 提供屏幕采集权限检查（macOS 专用）
//
// macOS 10.15 起未授权屏幕录制时抓屏得到的是空白画面而不是报错，
// 采集前先检查权限可以给出明确提示。
package permissions

/*
#cgo CFLAGS: -x objective-c
#cgo LDFLAGS: -framework Cocoa -framework CoreGraphics
#import <Cocoa/Cocoa.h>
#import <CoreGraphics/CoreGraphics.h>

int checkScreenRecordingPermission() {
    if (@available(macOS 10.15, *)) {
        CFArrayRef windowList = CGWindowListCopyWindowInfo(
            kCGWindowListOptionOnScreenOnly | kCGWindowListExcludeDesktopElements,
            kCGNullWindowID
        );

        if (windowList == NULL) {
            return 0;
        }

        CFIndex count = CFArrayGetCount(windowList);
        int hasNames = 0;

        for (CFIndex i = 0; i < count; i++) {
            CFDictionaryRef window = (CFDictionaryRef)CFArrayGetValueAtIndex(windowList, i);
            CFStringRef name = (CFStringRef)CFDictionaryGetValue(window, kCGWindowName);
            if (name != NULL && CFStringGetLength(name) > 0) {
                hasNames = 1;
                break;
            }
        }

        CFRelease(windowList);
        return (count == 0 || hasNames) ? 1 : 0;
    }
    return 1;
}
*/
import "C"

// Status 权限状态
type Status struct {
	ScreenRecording bool `json:"screen_recording"`
}

// Check 检查屏幕采集所需权限（不触发弹窗）
func Check() *Status {
	return &Status{
		ScreenRecording: C.checkScreenRecordingPermission() == 1,
	}
}

// Instructions 返回缺失权限的授权说明，权限齐全时返回空字符串
func (s *Status) Instructions() string {
	if s.ScreenRecording {
		return ""
	}

	return "缺少屏幕录制权限，抓屏将得到空白画面。\n" +
		"请在 系统偏好设置 > 安全性与隐私 > 隐私 > 屏幕录制 中授权后重启程序。"
}
