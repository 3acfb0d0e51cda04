package cli

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lazypower/crisp/internal/config"
	"github.com/lazypower/crisp/internal/engagement"
	"github.com/sirupsen/logrus"
)

func TestNewLogger(t *testing.T) {
	l, err := newLogger(config.LogConfig{Level: "debug", Format: "json"})
	if err != nil {
		t.Fatalf("newLogger: %v", err)
	}
	if l.GetLevel() != logrus.DebugLevel {
		t.Errorf("level = %v, want debug", l.GetLevel())
	}
	if _, ok := l.Formatter.(*logrus.JSONFormatter); !ok {
		t.Errorf("formatter = %T, want JSONFormatter", l.Formatter)
	}

	if _, err := newLogger(config.LogConfig{Level: "loud"}); err == nil {
		t.Error("expected error for unknown level")
	}
	if _, err := newLogger(config.LogConfig{Level: "info", Format: "xml"}); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestReadLegacy(t *testing.T) {
	single := `{"id": "q1", "question": "?", "answers": [{"id": "a1", "totems": [
		{"name": "Funny", "count": 1, "userIdList": ["alice"], "timestamps": [1000]}
	]}]}`
	items, err := readLegacy(strings.NewReader(single))
	if err != nil {
		t.Fatalf("readLegacy single: %v", err)
	}
	if len(items) != 1 || items[0].Answers[0].Labels[0].UserIDList[0] != "alice" {
		t.Errorf("got %+v", items)
	}

	items, err = readLegacy(strings.NewReader("\n  [" + single + "," + single + "]"))
	if err != nil {
		t.Fatalf("readLegacy array: %v", err)
	}
	if len(items) != 2 {
		t.Errorf("len = %d, want 2", len(items))
	}

	if _, err := readLegacy(strings.NewReader("{nope")); err == nil {
		t.Error("expected decode error")
	}
}

func TestPrintItem(t *testing.T) {
	item := &engagement.ContentItem{
		ID:       "q1",
		Question: "Tabs?",
		Answers: []engagement.Answer{{ID: "a1", Text: "yes", Labels: []engagement.Label{
			{Name: "Funny", Crispness: 42.5, Count: 2, UserIDList: []string{"alice", "bob"}},
		}}},
	}
	var buf bytes.Buffer
	if err := printItem(&buf, item); err != nil {
		t.Fatalf("printItem: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"q1", "Tabs?", "Funny", "42.50", "likes 2", "alice, bob"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestOpenInput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "item.json")
	if err := os.WriteFile(path, []byte(`{"question":"q"}`), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	in, closeIn, err := openInput([]string{path})
	if err != nil {
		t.Fatalf("openInput: %v", err)
	}
	defer closeIn()
	data, _ := io.ReadAll(in)
	if string(data) != `{"question":"q"}` {
		t.Errorf("read %q", data)
	}

	if _, _, err := openInput([]string{filepath.Join(t.TempDir(), "missing.json")}); err == nil {
		t.Error("expected error for missing file")
	}
	if in, _, _ := openInput(nil); in != os.Stdin {
		t.Error("no args should read stdin")
	}
}
