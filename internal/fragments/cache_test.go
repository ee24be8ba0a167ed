package fragments

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/conneroisu/hydrate/internal/metrics"
	"github.com/conneroisu/hydrate/internal/styles/mocks"
)

func newFs(t *testing.T, files map[string]string) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	for path, content := range files {
		require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0o644))
	}
	return fs
}

func TestCache_ResolvesMarkupAndStyle(t *testing.T) {
	fs := newFs(t, map[string]string{
		"/components/my-widget.html": "<p>Hello</p>",
		"/components/my-widget.css":  "p { color: red; }",
	})
	c := New(Options{Fs: fs, Dir: "/components"})
	ctx := context.Background()

	assert.Equal(t, "<p>Hello</p>", c.Markup(ctx, "my-widget"))
	assert.Equal(t, "p { color: red; }", c.Style(ctx, "my-widget"))
	assert.Equal(t, "", c.Markup(ctx, "x-missing"))
	assert.Equal(t, "", c.Style(ctx, "x-missing"))
	assert.Equal(t, "/components", c.Dir())
}

func TestCache_ReadsEachFileAtMostOnce(t *testing.T) {
	ctrl := gomock.NewController(t)
	pipeline := mocks.NewMockPipeline(ctrl)
	pipeline.EXPECT().
		Process(gomock.Any(), "p { color: red; }", "/components/my-widget.css").
		Return("p{color:red}", nil).
		Times(1)

	fs := newFs(t, map[string]string{
		"/components/my-widget.html": "<p>Hello</p>",
		"/components/my-widget.css":  "p { color: red; }",
	})
	c := New(Options{Fs: fs, Dir: "/components", Pipeline: pipeline})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Equal(t, "<p>Hello</p>", c.Markup(ctx, "my-widget"))
			assert.Equal(t, "p{color:red}", c.Style(ctx, "my-widget"))
			assert.Equal(t, "", c.Markup(ctx, "x-missing"))
		}()
	}
	wg.Wait()

	assert.Equal(t, 2, c.Reads("my-widget"))
	assert.Equal(t, 1, c.Reads("x-missing"))
}

func TestCache_PipelineFailureCachesEmptyStyle(t *testing.T) {
	ctrl := gomock.NewController(t)
	pipeline := mocks.NewMockPipeline(ctrl)
	pipeline.EXPECT().Process(gomock.Any(), gomock.Any(), gomock.Any()).
		Return("", errors.New("bad css")).
		Times(1)

	fs := newFs(t, map[string]string{"/c/x-card.css": "p {"})
	reg := prometheus.NewRegistry()
	c := New(Options{Fs: fs, Dir: "/c", Pipeline: pipeline, Metrics: metrics.NewBuild(reg)})

	assert.Equal(t, "", c.Style(context.Background(), "x-card"))
	assert.Equal(t, "", c.Style(context.Background(), "x-card"))
	assert.Equal(t, 1, c.Reads("x-card"))
}

func TestCache_CancelledStyleIsNotCached(t *testing.T) {
	ctrl := gomock.NewController(t)
	pipeline := mocks.NewMockPipeline(ctrl)
	gomock.InOrder(
		pipeline.EXPECT().Process(gomock.Any(), gomock.Any(), gomock.Any()).
			DoAndReturn(func(ctx context.Context, _, _ string) (string, error) {
				return "", ctx.Err()
			}),
		pipeline.EXPECT().Process(gomock.Any(), gomock.Any(), gomock.Any()).
			Return("p{color:red}", nil),
	)

	fs := newFs(t, map[string]string{"/components/my-widget.css": "p { color: red; }"})
	reg := prometheus.NewRegistry()
	c := New(Options{Fs: fs, Dir: "/components", Pipeline: pipeline, Metrics: metrics.NewBuild(reg)})

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Equal(t, "", c.Style(cancelled, "my-widget"))
	assert.Empty(t, c.Entries(), "a cancelled read leaves nothing cached")

	assert.Equal(t, "p{color:red}", c.Style(context.Background(), "my-widget"))
	assert.Equal(t, "p{color:red}", c.Style(context.Background(), "my-widget"))
	assert.Equal(t, 2, c.Reads("my-widget"))
}

func TestCache_EmptyStyleSkipsPipeline(t *testing.T) {
	ctrl := gomock.NewController(t)
	pipeline := mocks.NewMockPipeline(ctrl)

	fs := newFs(t, map[string]string{"/c/x-card.html": "<b>hi</b>"})
	c := New(Options{Fs: fs, Dir: "/c", Pipeline: pipeline})

	assert.Equal(t, "", c.Style(context.Background(), "x-card"))
	assert.Equal(t, "<b>hi</b>", c.Markup(context.Background(), "x-card"))
}

func TestCache_RejectsPathLikeTags(t *testing.T) {
	fs := newFs(t, map[string]string{"/secret.html": "nope"})
	c := New(Options{Fs: fs, Dir: "/c"})

	assert.Equal(t, "", c.Markup(context.Background(), "../secret"))
	assert.Equal(t, "", c.Markup(context.Background(), "a/b"))
	assert.Equal(t, 0, c.Reads("../secret"))
}

func TestCache_Entries(t *testing.T) {
	fs := newFs(t, map[string]string{
		"/c/b-two.html": "<i>two</i>",
		"/c/a-one.css":  ":host{display:block}",
	})
	c := New(Options{Fs: fs, Dir: "/c"})
	ctx := context.Background()
	for _, tag := range []string{"b-two", "a-one", "c-none"} {
		c.Markup(ctx, tag)
		c.Style(ctx, tag)
	}

	entries := c.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, "a-one", entries[0].Tag)
	assert.Empty(t, entries[0].MarkupDigest)
	assert.Equal(t, Digest(":host{display:block}"), entries[0].StyleDigest)
	assert.Equal(t, "b-two", entries[1].Tag)
	assert.Len(t, entries[1].MarkupDigest, 16)
	assert.True(t, entries[2].Empty())
}

func TestDigest(t *testing.T) {
	assert.Equal(t, "", Digest(""))
	assert.Equal(t, Digest("abc"), Digest("abc"))
	assert.NotEqual(t, Digest("abc"), Digest("abd"))
}

func TestTags(t *testing.T) {
	fs := newFs(t, map[string]string{
		"/components/x-card.html":      "<slot></slot>",
		"/components/x-card.css":       ":host{display:block}",
		"/components/my-widget.css":    "p{}",
		"/components/layout.html":      "<main></main>",
		"/components/notes.txt":        "ignored",
		"/components/nested/x-sub.css": "p{}",
	})

	tags, err := Tags(fs, "/components")
	require.NoError(t, err)
	assert.Equal(t, []string{"my-widget", "x-card"}, tags)

	_, err = Tags(fs, "/missing")
	assert.Error(t, err)
}
