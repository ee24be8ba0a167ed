package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventTypeString(t *testing.T) {
	testCases := []struct {
		eventType EventType
		expected  string
	}{
		{EventTypeCreated, "created"},
		{EventTypeModified, "modified"},
		{EventTypeDeleted, "deleted"},
		{EventTypeRenamed, "renamed"},
		{EventType(42), "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.eventType.String())
		})
	}
}

func TestDebouncer_GroupsAndDeduplicates(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d := NewDebouncer(30 * time.Millisecond)
	go d.start(ctx)

	require.True(t, d.Add(ChangeEvent{Type: EventTypeCreated, Path: "b.html"}))
	require.True(t, d.Add(ChangeEvent{Type: EventTypeModified, Path: "a.html"}))
	require.True(t, d.Add(ChangeEvent{Type: EventTypeDeleted, Path: "b.html"}))

	select {
	case batch := <-d.Output():
		require.Len(t, batch, 2)
		assert.Equal(t, "a.html", batch[0].Path)
		assert.Equal(t, "b.html", batch[1].Path)
		assert.Equal(t, EventTypeDeleted, batch[1].Type, "last event per path wins")
	case <-time.After(2 * time.Second):
		t.Fatal("no batch delivered")
	}

	select {
	case batch := <-d.Output():
		t.Fatalf("unexpected second batch: %v", batch)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDebouncer_AddNeverBlocks(t *testing.T) {
	d := NewDebouncer(time.Second)
	accepted := 0
	for i := 0; i < 150; i++ {
		if d.Add(ChangeEvent{Path: "x"}) {
			accepted++
		}
	}
	assert.Equal(t, 100, accepted)
}

func TestFilters(t *testing.T) {
	html := ExtFilter(".html", ".css")
	assert.True(t, html("site/index.html"))
	assert.True(t, html("components/my-widget.css"))
	assert.False(t, html("script/app.js"))

	assert.False(t, NoHiddenFilter("site/.hydrate-manifest.json"))
	assert.False(t, NoHiddenFilter(".index.html.swp"))
	assert.True(t, NoHiddenFilter("site/index.html"))

	assert.False(t, NoTempFilter("index.html~"))
	assert.False(t, NoTempFilter("index.html.tmp"))
	assert.True(t, NoTempFilter("index.html"))
}

func TestAddRecursive_RejectsFiles(t *testing.T) {
	fw, err := NewFileWatcher(10*time.Millisecond, nil)
	require.NoError(t, err)
	defer fw.Stop()

	file := filepath.Join(t.TempDir(), "page.html")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	assert.Error(t, fw.AddRecursive(file))
	assert.Error(t, fw.AddRecursive(filepath.Join(t.TempDir(), "missing")))
}

type batches struct {
	mu  sync.Mutex
	all [][]ChangeEvent
	ch  chan struct{}
}

func newBatches() *batches {
	return &batches{ch: make(chan struct{}, 16)}
}

func (b *batches) handle(_ context.Context, events []ChangeEvent) error {
	b.mu.Lock()
	b.all = append(b.all, events)
	b.mu.Unlock()
	b.ch <- struct{}{}
	return nil
}

func (b *batches) wait(t *testing.T) []ChangeEvent {
	t.Helper()
	select {
	case <-b.ch:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for change batch")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.all[len(b.all)-1]
}

func TestFileWatcher_DeliversFilteredBatches(t *testing.T) {
	dir := t.TempDir()
	fw, err := NewFileWatcher(50*time.Millisecond, nil)
	require.NoError(t, err)
	defer fw.Stop()

	fw.AddFilter(ExtFilter(".html"))
	fw.AddFilter(NoHiddenFilter)
	got := newBatches()
	fw.AddHandler(got.handle)
	require.NoError(t, fw.AddRecursive(dir))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, fw.Start(ctx))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignored.js"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden.html"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<p>1</p>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<p>2</p>"), 0o644))

	batch := got.wait(t)
	require.Len(t, batch, 1)
	assert.Equal(t, filepath.Join(dir, "index.html"), batch[0].Path)
}

func TestFileWatcher_WatchesNewDirectories(t *testing.T) {
	dir := t.TempDir()
	fw, err := NewFileWatcher(50*time.Millisecond, nil)
	require.NoError(t, err)
	defer fw.Stop()

	fw.AddFilter(ExtFilter(".html"))
	got := newBatches()
	fw.AddHandler(got.handle)
	require.NoError(t, fw.AddRecursive(dir))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, fw.Start(ctx))

	sub := filepath.Join(dir, "blog")
	require.NoError(t, os.Mkdir(sub, 0o755))
	// Give the watch loop a moment to register the new directory.
	time.Sleep(200 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(sub, "post.html"), []byte("x"), 0o644))

	deadline := time.After(5 * time.Second)
	for {
		batch := got.wait(t)
		for _, ev := range batch {
			if ev.Path == filepath.Join(sub, "post.html") {
				return
			}
		}
		select {
		case <-deadline:
			t.Fatal("new directory was not watched")
		default:
		}
	}
}
