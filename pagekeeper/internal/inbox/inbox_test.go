package inbox

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestDescribe(t *testing.T) {
	root := "/data/inbox"
	cases := []struct {
		path    string
		doc     string
		lineage string
		ok      bool
	}{
		{"/data/inbox/content_site_en_home/lm-en_20240101.json", "/content/site/en/home", "lm-en", true},
		{"/data/inbox/content_kr/spac-ko_KR_20240101-093000.json", "/content/kr", "spac-ko_KR", true},
		{"/data/inbox/page/nounderscore.json", "", "", false},
		{"/data/inbox/page/en_x.txt", "", "", false},
		{"/data/inbox/en_x.json", "", "", false},
		{"/data/inbox/a/b/en_x.json", "", "", false},
		{"/elsewhere/a/en_x.json", "", "", false},
	}
	for _, c := range cases {
		doc, lineage, _, err := Describe(root, c.path)
		if c.ok != (err == nil) {
			t.Errorf("Describe(%s) err = %v", c.path, err)
			continue
		}
		if !c.ok {
			if !errors.Is(err, ErrLayout) {
				t.Errorf("Describe(%s) err = %v, want ErrLayout", c.path, err)
			}
			continue
		}
		if doc != c.doc || lineage != c.lineage {
			t.Errorf("Describe(%s) = %q, %q; want %q, %q", c.path, doc, lineage, c.doc, c.lineage)
		}
	}
}

func TestLoadAndScan(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "content_home", "en_2.json"), `{"text":"Hello",":items":{"a":{"text":"World"}}}`)
	writeFile(t, filepath.Join(root, "content_home", "en_1.json"), `{"text":"Old"}`)
	writeFile(t, filepath.Join(root, "content_about", "ko_1.json"), `{"title":"About"}`)
	writeFile(t, filepath.Join(root, "content_about", "notes.txt"), `ignored`)
	writeFile(t, filepath.Join(root, "stray.json"), `{}`)
	writeFile(t, filepath.Join(root, "content_about", "deep", "en_1.json"), `{}`)

	files, err := Scan(root)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	want := []string{
		filepath.Join(root, "content_about", "ko_1.json"),
		filepath.Join(root, "content_home", "en_1.json"),
		filepath.Join(root, "content_home", "en_2.json"),
	}
	if len(files) != len(want) {
		t.Fatalf("Scan = %v", files)
	}
	for i := range want {
		if files[i] != want[i] {
			t.Errorf("files[%d] = %s, want %s", i, files[i], want[i])
		}
	}

	snap, err := Load(root, want[2])
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if snap.DocumentPath != "/content/home" || snap.Lineage != "en" || snap.SourceFile != "content_home/en_2.json" {
		t.Errorf("snapshot = %+v", snap)
	}
	if snap.Timestamp.IsZero() {
		t.Error("timestamp not set from mtime")
	}
	m, ok := snap.Tree.Map()
	if !ok || m.Len() != 2 {
		t.Errorf("tree = %v", snap.Tree)
	}

	writeFile(t, filepath.Join(root, "content_bad", "en_1.json"), `{"text":`)
	if _, err := Load(root, filepath.Join(root, "content_bad", "en_1.json")); err == nil {
		t.Error("Load accepted malformed JSON")
	}
}

func TestWatcher_DebouncedDelivery(t *testing.T) {
	root := t.TempDir()
	if err := os.Mkdir(filepath.Join(root, "existing"), 0o755); err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	got := map[string]int{}
	done := make(chan struct{}, 10)
	w, err := NewWatcher(root, 50*time.Millisecond, func(_ context.Context, path string) {
		mu.Lock()
		got[path]++
		mu.Unlock()
		done <- struct{}{}
	}, nil)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	target := filepath.Join(root, "existing", "en_1.json")
	writeFile(t, target, `{"text":"a"}`)
	writeFile(t, target, `{"text":"b"}`)
	writeFile(t, filepath.Join(root, "existing", "readme.txt"), `x`)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("handler not called")
	}
	// Give a stray second delivery time to show up.
	time.Sleep(200 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if got[target] != 1 {
		t.Errorf("deliveries for %s = %d, want 1 (got %v)", target, got[target], got)
	}
	if len(got) != 1 {
		t.Errorf("unexpected deliveries: %v", got)
	}
}
