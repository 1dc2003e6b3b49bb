package queue

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scoregate/domain/core"
	"scoregate/domain/submission"
	"scoregate/ports"
)

func item(id string) submission.QueueItem {
	return submission.NewQueueItem(core.SubmissionID(id))
}

// exerciseFIFO checks ordering, acking and blocking behaviour shared by every driver.
func exerciseFIFO(t *testing.T, q ports.Queue) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for i := 0; i < 3; i++ {
		require.NoError(t, q.Enqueue(ctx, item(fmt.Sprintf("s%d", i))))
	}
	for i := 0; i < 3; i++ {
		d, err := q.Dequeue(ctx)
		require.NoError(t, err)
		assert.Equal(t, core.SubmissionID(fmt.Sprintf("s%d", i)), d.Item.SubmissionID)
		require.NoError(t, d.Ack(ctx))
	}

	short, stop := context.WithTimeout(ctx, 50*time.Millisecond)
	defer stop()
	_, err := q.Dequeue(short)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	got := make(chan core.SubmissionID, 1)
	go func() {
		d, err := q.Dequeue(ctx)
		if err == nil {
			_ = d.Ack(ctx)
			got <- d.Item.SubmissionID
		}
	}()
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, q.Enqueue(ctx, item("late")))
	select {
	case id := <-got:
		assert.Equal(t, core.SubmissionID("late"), id)
	case <-ctx.Done():
		t.Fatal("blocked dequeue never woke up")
	}
}

func TestMemoryQueue(t *testing.T) {
	q := NewMemoryQueue(ports.QueueOriginality)
	assert.Equal(t, ports.QueueOriginality, q.Name())
	exerciseFIFO(t, q)
	assert.Zero(t, q.Pending())
}

func TestMemoryQueue_PendingCountsUnacked(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue("q")
	require.NoError(t, q.Enqueue(ctx, item("a")))
	d, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, q.Pending())
	require.NoError(t, d.Ack(ctx))
	require.NoError(t, d.Ack(ctx))
	assert.Zero(t, q.Pending())
}

func TestMemoryQueue_ConcurrentConsumers(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	q := NewMemoryQueue("q")

	var mu sync.Mutex
	seen := map[core.SubmissionID]int{}
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				d, err := q.Dequeue(ctx)
				if err != nil {
					return
				}
				mu.Lock()
				seen[d.Item.SubmissionID]++
				done := len(seen) == 50
				mu.Unlock()
				_ = d.Ack(ctx)
				if done {
					cancel()
				}
			}
		}()
	}
	for i := 0; i < 50; i++ {
		require.NoError(t, q.Enqueue(context.Background(), item(fmt.Sprintf("s%d", i))))
	}
	wg.Wait()
	assert.Len(t, seen, 50)
	for id, n := range seen {
		assert.Equal(t, 1, n, id)
	}
}

func openTestBroker(t *testing.T, opts SQLiteOptions) *SQLiteBroker {
	t.Helper()
	b, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "queue", "scoregate.db"), opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestSQLiteQueue(t *testing.T) {
	b := openTestBroker(t, SQLiteOptions{PollEvery: 10 * time.Millisecond})
	q := b.Queue(ports.QueueLeaderboard)
	assert.Same(t, q, b.Queue(ports.QueueLeaderboard))
	exerciseFIFO(t, q)

	n, err := q.Len(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSQLiteQueue_QueuesAreIndependent(t *testing.T) {
	ctx := context.Background()
	b := openTestBroker(t, SQLiteOptions{PollEvery: 10 * time.Millisecond})
	require.NoError(t, b.Queue("a").Enqueue(ctx, item("x")))

	short, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()
	_, err := b.Queue("b").Dequeue(short)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	d, err := b.Queue("a").Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.SubmissionID("x"), d.Item.SubmissionID)
}

func TestSQLiteQueue_UnackedItemIsRedelivered(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	b := openTestBroker(t, SQLiteOptions{Lease: 50 * time.Millisecond, PollEvery: 10 * time.Millisecond})
	q := b.Queue("q")
	require.NoError(t, q.Enqueue(ctx, item("crash")))

	first, err := q.Dequeue(ctx)
	require.NoError(t, err)

	again, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.Item.SubmissionID, again.Item.SubmissionID)

	// the expired lease can no longer remove the item
	require.NoError(t, first.Ack(ctx))
	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, again.Ack(ctx))
	n, err = q.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSQLiteQueue_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "q.db")
	b, err := OpenSQLite(ctx, path, SQLiteOptions{})
	require.NoError(t, err)
	require.NoError(t, b.Queue("q").Enqueue(ctx, item("durable")))
	require.NoError(t, b.Close())

	b, err = OpenSQLite(ctx, path, SQLiteOptions{})
	require.NoError(t, err)
	defer b.Close()
	d, err := b.Queue("q").Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.SubmissionID("durable"), d.Item.SubmissionID)
}

// fakeSQS keeps messages in memory; received messages stay until deleted.
type fakeSQS struct {
	mu       sync.Mutex
	messages []types.Message
	deleted  []string
	receives []sqs.ReceiveMessageInput
	seq      int
}

func (f *fakeSQS) SendMessage(ctx context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	f.messages = append(f.messages, types.Message{Body: in.MessageBody, ReceiptHandle: aws.String(fmt.Sprintf("h%d", f.seq))})
	return &sqs.SendMessageOutput{}, nil
}

func (f *fakeSQS) ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	f.mu.Lock()
	f.receives = append(f.receives, *in)
	n := min(int(in.MaxNumberOfMessages), len(f.messages))
	out := append([]types.Message(nil), f.messages[:n]...)
	f.messages = f.messages[n:]
	f.mu.Unlock()
	if n == 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}
	return &sqs.ReceiveMessageOutput{Messages: out}, nil
}

func (f *fakeSQS) DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, aws.ToString(in.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

func TestSQSQueue(t *testing.T) {
	client := &fakeSQS{}
	q := NewSQSQueue(ports.QueueConcordance, "https://sqs.local/000/concordance", client, SQSOptions{})
	exerciseFIFO(t, q)
	assert.Len(t, client.deleted, 4)
}

func TestSQSQueue_SkipsUndecodableMessages(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client := &fakeSQS{messages: []types.Message{
		{Body: aws.String("not json"), ReceiptHandle: aws.String("bad")},
		{Body: aws.String(`{"submission_id":"ok","enqueue_time":"2024-01-01T00:00:00Z"}`), ReceiptHandle: aws.String("good")},
	}}
	q := NewSQSQueue("q", "url", client, SQSOptions{})

	d, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.SubmissionID("ok"), d.Item.SubmissionID)
	require.NoError(t, d.Ack(ctx))
	assert.Equal(t, []string{"good"}, client.deleted)
}

func TestSQSQueue_ReceivesOneMessageUnderLease(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client := &fakeSQS{}
	q := NewSQSQueue("q", "url", client, SQSOptions{VisibilityTimeout: 2 * time.Hour})
	for i := 0; i < 3; i++ {
		require.NoError(t, q.Enqueue(ctx, item(fmt.Sprintf("s%d", i))))
	}

	d, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.SubmissionID("s0"), d.Item.SubmissionID)

	client.mu.Lock()
	defer client.mu.Unlock()
	require.Len(t, client.receives, 1)
	in := client.receives[0]
	assert.Equal(t, int32(1), in.MaxNumberOfMessages)
	assert.Equal(t, int32(7200), in.VisibilityTimeout)
	assert.Len(t, client.messages, 2, "unclaimed messages stay on the queue")
}

func TestSQSQueue_VisibilityIsCapped(t *testing.T) {
	client := &fakeSQS{messages: []types.Message{
		{Body: aws.String(`{"submission_id":"a","enqueue_time":"2024-01-01T00:00:00Z"}`), ReceiptHandle: aws.String("h")},
	}}
	q := NewSQSQueue("q", "url", client, SQSOptions{VisibilityTimeout: 48 * time.Hour})
	_, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(43200), client.receives[0].VisibilityTimeout)
}
