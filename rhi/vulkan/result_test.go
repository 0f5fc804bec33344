package vulkan

import (
	"strings"
	"testing"

	vk "github.com/goki/vulkan"
)

func TestResultStringShortForm(t *testing.T) {
	if got := ResultString(vk.ErrorDeviceLost, false); got != "VK_ERROR_DEVICE_LOST" {
		t.Errorf("got %q", got)
	}
}

func TestResultStringExtendedFormIncludesShortForm(t *testing.T) {
	got := ResultString(vk.ErrorOutOfDate, true)
	if !strings.HasPrefix(got, "VK_ERROR_OUT_OF_DATE_KHR") {
		t.Errorf("extended form should lead with the short code, got %q", got)
	}
	if len(got) <= len("VK_ERROR_OUT_OF_DATE_KHR") {
		t.Errorf("extended form should carry more detail than the short form, got %q", got)
	}
}

func TestIsSuccessTreatsSuboptimalAsNonFatal(t *testing.T) {
	if !IsSuccess(vk.Suboptimal) {
		t.Error("VK_SUBOPTIMAL_KHR should count as success")
	}
	if IsSuccess(vk.ErrorDeviceLost) {
		t.Error("VK_ERROR_DEVICE_LOST must not count as success")
	}
}

func TestSafeStringAppendsExactlyOneNul(t *testing.T) {
	if got := SafeString("hello"); got != "hello\x00" {
		t.Errorf("got %q", got)
	}
	if got := SafeString("hello\x00"); got != "hello\x00" {
		t.Errorf("already-terminated string should be left alone, got %q", got)
	}
	if got := SafeString(""); got != "\x00" {
		t.Errorf("empty string should become a bare NUL, got %q", got)
	}
}
