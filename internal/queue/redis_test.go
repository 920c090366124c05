package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newsflow/draft-import-service/internal/fetcher"
	"github.com/newsflow/draft-import-service/internal/logger"
	"github.com/newsflow/draft-import-service/internal/pipeline"
)

func newQueue(t *testing.T) *RedisQueue {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	q := NewRedisQueue(client, "test-1", logger.Discard())
	q.blockTimeout = 100 * time.Millisecond
	t.Cleanup(func() { q.Close() })
	return q
}

func TestEnqueueAndConsume(t *testing.T) {
	q := newQueue(t)
	ctx := context.Background()

	task := &ImportTask{HTML: "<p>x</p>", Sanitize: true}
	require.NoError(t, q.Enqueue(ctx, task))
	assert.NotEmpty(t, task.ID)

	n, err := q.GetQueueLength(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	got, err := q.ConsumeTask(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, task.ID, got.ID)
	assert.Equal(t, "<p>x</p>", got.HTML)
	assert.True(t, got.Sanitize)

	// 队列为空时超时返回 nil
	got, err = q.ConsumeTask(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)

	res, err := q.PopResult(ctx)
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestStartConsumer(t *testing.T) {
	q := newQueue(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handler := NewImportHandler(pipeline.New(nil, 0, logger.Discard()), nil)

	tasks := []*ImportTask{
		{ID: "t1", HTML: `<p>ok <img src=x onerror=alert(1)//></p>`, Sanitize: true},
		{ID: "t2", HTML: `<h1>raw</h1>`},
		{ID: "t3", HTML: `<p>x</p>`, Sanitize: true, Policy: "nope"},
		{ID: "t4", URL: "https://example.test/"},
	}
	for _, task := range tasks {
		require.NoError(t, q.Enqueue(ctx, task))
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		q.StartConsumer(ctx, handler, 2)
	}()

	results := map[string]*ImportResult{}
	require.Eventually(t, func() bool {
		res, err := q.PopResult(context.Background())
		if err == nil && res != nil {
			results[res.TaskID] = res
		}
		return len(results) == len(tasks)
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	wg.Wait()

	assert.True(t, results["t1"].Success)
	assert.Equal(t, "<p>ok</p>", results["t1"].HTML)
	assert.Equal(t, "rich", results["t1"].Policy)

	assert.True(t, results["t2"].Success)
	assert.Equal(t, "<h1>raw</h1>", results["t2"].HTML)

	assert.False(t, results["t3"].Success)
	assert.Contains(t, results["t3"].Error, "unknown sanitizer policy")

	assert.False(t, results["t4"].Success)
	assert.NotEmpty(t, results["t4"].Error)
}

type stubPages struct {
	html string
	err  error
}

func (s stubPages) Page(_ context.Context, req fetcher.Request, _ bool) (*fetcher.Page, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &fetcher.Page{URL: req.URL, HTML: s.html}, nil
}

func TestImportHandler_URL(t *testing.T) {
	p := pipeline.New(nil, 0, logger.Discard())

	ok := NewImportHandler(p, stubPages{html: `<p><a href="https://x.test">x</a></p>`})(context.Background(), &ImportTask{ID: "u1", URL: "https://x.test/"})
	assert.True(t, ok.Success)
	assert.Equal(t, `<p><a href="https://x.test">x</a></p>`, ok.HTML)
	assert.Equal(t, "x", ok.PlainText)

	failed := NewImportHandler(p, stubPages{err: errors.New("boom")})(context.Background(), &ImportTask{ID: "u2", URL: "https://x.test/"})
	assert.False(t, failed.Success)
	assert.Equal(t, "boom", failed.Error)
}
