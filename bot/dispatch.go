package bot

import (
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	queueSize     = 32
	queueIdleTime = time.Minute
)

// dispatcher runs the updates of every sender on its own worker, one at a
// time and in arrival order. Workers exit after idling for idle.
// dispatch and stop must be called from a single goroutine.
type dispatcher struct {
	handle func(tgbotapi.Update)
	idle   time.Duration

	mu     sync.Mutex
	queues map[int64]*senderQueue
	wg     sync.WaitGroup
}

type senderQueue struct {
	updates chan tgbotapi.Update
	pending int // queued or being handled, guarded by dispatcher.mu
}

func newDispatcher(handle func(tgbotapi.Update), idle time.Duration) *dispatcher {
	return &dispatcher{
		handle: handle,
		idle:   idle,
		queues: make(map[int64]*senderQueue),
	}
}

// dispatch queues update behind the earlier updates of the same sender
func (d *dispatcher) dispatch(update tgbotapi.Update) {
	key := senderID(update)

	d.mu.Lock()
	q, ok := d.queues[key]
	if !ok {
		q = &senderQueue{updates: make(chan tgbotapi.Update, queueSize)}
		d.queues[key] = q
		d.wg.Add(1)
		go d.work(key, q)
	}
	q.pending++
	d.mu.Unlock()

	q.updates <- update
}

// stop lets every worker finish its queue and waits for them
func (d *dispatcher) stop() {
	d.mu.Lock()
	for key, q := range d.queues {
		close(q.updates)
		delete(d.queues, key)
	}
	d.mu.Unlock()

	d.wg.Wait()
}

func (d *dispatcher) work(key int64, q *senderQueue) {
	defer d.wg.Done()

	timer := time.NewTimer(d.idle)
	defer timer.Stop()

	for {
		select {
		case update, ok := <-q.updates:
			if !ok {
				return
			}
			d.handle(update)

			d.mu.Lock()
			q.pending--
			d.mu.Unlock()
			timer.Reset(d.idle)
		case <-timer.C:
			d.mu.Lock()
			if q.pending == 0 {
				if d.queues[key] == q {
					delete(d.queues, key)
				}
				d.mu.Unlock()
				return
			}
			d.mu.Unlock()
			timer.Reset(d.idle)
		}
	}
}

// senderID is the user an update comes from, 0 when it has none
func senderID(update tgbotapi.Update) int64 {
	switch {
	case update.Message != nil && update.Message.From != nil:
		return update.Message.From.ID
	case update.CallbackQuery != nil && update.CallbackQuery.From != nil:
		return update.CallbackQuery.From.ID
	}
	return 0
}
