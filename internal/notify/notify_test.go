package notify_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/cartpool/internal/notify"
)

type testSender struct {
	name  string
	err   error
	delay time.Duration
	panic bool

	mu   sync.Mutex
	sent []notify.Notification
}

func (s *testSender) Name() string { return s.name }

func (s *testSender) Send(ctx context.Context, n notify.Notification) error {
	if s.panic {
		panic("boom")
	}
	if s.delay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.delay):
		}
	}
	if s.err != nil {
		return s.err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, n)
	return nil
}

func (s *testSender) Sent() []notify.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent
}

func TestDispatcherNotify(t *testing.T) {
	n := notify.Notification{TaskID: "t1", Recipient: "ops@example.com", Subject: "s", Message: "m", Complete: true}

	tests := map[string]struct {
		senders    func() []*testSender
		expSentBy  []string
		maxElapsed time.Duration
	}{
		"All sinks should receive the notification.": {
			senders: func() []*testSender {
				return []*testSender{{name: "email"}, {name: "webhook"}}
			},
			expSentBy: []string{"email", "webhook"},
		},

		"A failing sink should not affect the others.": {
			senders: func() []*testSender {
				return []*testSender{{name: "email", err: errors.New("smtp down")}, {name: "webhook"}}
			},
			expSentBy: []string{"webhook"},
		},

		"A panicking sink should not affect the others.": {
			senders: func() []*testSender {
				return []*testSender{{name: "email"}, {name: "webhook", panic: true}}
			},
			expSentBy: []string{"email"},
		},

		"A slow sink should be cut by the send timeout without blocking the others.": {
			senders: func() []*testSender {
				return []*testSender{{name: "email", delay: time.Minute}, {name: "webhook"}}
			},
			expSentBy:  []string{"webhook"},
			maxElapsed: time.Second,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			require := require.New(t)
			assert := assert.New(t)

			tss := test.senders()
			var senders []notify.Sender
			for _, s := range tss {
				senders = append(senders, s)
			}

			d, err := notify.NewDispatcher(notify.DispatcherConfig{
				Senders:     senders,
				SendTimeout: 50 * time.Millisecond,
			})
			require.NoError(err)

			start := time.Now()
			d.Notify(context.Background(), n)
			if test.maxElapsed > 0 {
				assert.Less(time.Since(start), test.maxElapsed)
			}

			var gotSentBy []string
			for _, s := range tss {
				sent := s.Sent()
				if len(sent) == 0 {
					continue
				}
				// Exactly once per sink.
				assert.Equal([]notify.Notification{n}, sent)
				gotSentBy = append(gotSentBy, s.name)
			}
			assert.Equal(test.expSentBy, gotSentBy)
		})
	}
}

func TestDispatcherWithoutSenders(t *testing.T) {
	d, err := notify.NewDispatcher(notify.DispatcherConfig{})
	require.NoError(t, err)
	d.Notify(context.Background(), notify.Notification{TaskID: "t1"})
}

func TestNewDispatcherNilSender(t *testing.T) {
	_, err := notify.NewDispatcher(notify.DispatcherConfig{Senders: []notify.Sender{nil}})
	assert.Error(t, err)
}
