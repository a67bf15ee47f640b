package util

import (
	"strings"
	"testing"
	"time"
)

func TestGetVersion(t *testing.T) {
	if GetVersion() == "" {
		t.Error("Version should not be empty")
	}
	if strings.ContainsAny(GetVersion(), " \n") {
		t.Errorf("Version should be trimmed, got '%s'", GetVersion())
	}
}

func TestGetNameAndVersion(t *testing.T) {
	result := GetNameAndVersion()
	if !strings.HasPrefix(result, Name+" / ") {
		t.Errorf("Unexpected name and version: %s", result)
	}
}

func TestPrettyPrint(t *testing.T) {
	result := PrettyPrint(map[string]int{"a": 1})
	if !strings.Contains(result, "\"a\": 1") {
		t.Errorf("Unexpected output: %s", result)
	}
}

func TestMillis(t *testing.T) {
	if ToMillis(time.Time{}) != 0 {
		t.Error("Zero time should be stored as 0")
	}
	if !FromMillis(0).IsZero() {
		t.Error("0 should be read as zero time")
	}
	now := time.UnixMilli(time.Now().UnixMilli())
	if !FromMillis(ToMillis(now)).Equal(now) {
		t.Error("Millis round trip failed")
	}
}

func TestResolveFilePathKeepsAbsoluteAndMemory(t *testing.T) {
	if ResolveFilePath(":memory:") != ":memory:" {
		t.Error(":memory: should be kept as is")
	}
	if ResolveFilePath("/tmp/x.db") != "/tmp/x.db" {
		t.Error("Absolute paths should be kept as is")
	}
}
