package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestPreInitLoggerUsesConfiguredHandler(t *testing.T) {
	logger := L("capture")

	var buf bytes.Buffer
	Init("text", "info", &buf)

	logger.Info("sampler started", "fps", 30)

	out := buf.String()
	if !strings.Contains(out, "msg=\"sampler started\"") {
		t.Fatalf("expected message, got: %s", out)
	}
	if !strings.Contains(out, "component=capture") {
		t.Fatalf("expected component field, got: %s", out)
	}
	if !strings.Contains(out, "fps=30") {
		t.Fatalf("expected fps field, got: %s", out)
	}
}

func TestPreInitLoggerRespectsConfiguredLevel(t *testing.T) {
	logger := L("audio")

	var buf bytes.Buffer
	Init("text", "warn", &buf)

	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info log should be filtered at warn level: %s", out)
	}
	if !strings.Contains(out, "shown") {
		t.Fatalf("warn log should be emitted: %s", out)
	}
}

func TestWithSessionAddsSessionID(t *testing.T) {
	var buf bytes.Buffer
	Init("json", "debug", &buf)

	WithSession(L("recorder"), "abc-123").Debug("tick")

	out := buf.String()
	if !strings.Contains(out, `"sessionId":"abc-123"`) {
		t.Fatalf("expected session id in json output, got: %s", out)
	}
	if !strings.Contains(out, `"component":"recorder"`) {
		t.Fatalf("expected component in json output, got: %s", out)
	}
}

func TestRollingFileKeepsNewestBackups(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "omnicapture.log")
	rf, err := OpenRollingFile(path, 1, 2)
	if err != nil {
		t.Fatalf("OpenRollingFile: %v", err)
	}
	defer rf.Close()

	for i, c := range []byte("abcd") {
		if _, err := rf.Write(bytes.Repeat([]byte{c}, 600*1024)); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}

	// Each 600 KiB write exceeds the 1 MiB limit together with the previous.
	for name, want := range map[string]byte{path: 'd', path + ".1": 'c', path + ".2": 'b'} {
		data, err := os.ReadFile(name)
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		if len(data) == 0 {
			t.Fatalf("%s is empty", filepath.Base(name))
		}
		if data[0] != want {
			t.Fatalf("%s starts with %q, want %q", filepath.Base(name), data[0], want)
		}
	}
	if _, err := os.Stat(path + ".3"); !os.IsNotExist(err) {
		t.Fatalf("only two backups are kept, stat .3: %v", err)
	}
}

func TestRollingFileWriteAfterClose(t *testing.T) {
	rf, err := OpenRollingFile(filepath.Join(t.TempDir(), "a.log"), 1, 1)
	if err != nil {
		t.Fatalf("OpenRollingFile: %v", err)
	}
	if err := rf.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := rf.Write([]byte("late\n")); err == nil {
		t.Fatal("write after close succeeded")
	}
}
