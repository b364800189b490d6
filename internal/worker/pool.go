package worker

import (
	"context"
	"hash/fnv"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Dzeddy/study-habits-tracker/internal/models"
)

// Handler processes one activity event.
type Handler func(ctx context.Context, event models.ActivityEvent)

// Pool runs a fixed set of workers, each draining its own queue. Events with
// the same key always land on the same worker, so they are handled in
// submission order.
type Pool struct {
	handler     Handler
	queues      []chan models.ActivityEvent
	workerCount int
	log         *logrus.Entry
	stopChan    chan struct{}
	wg          sync.WaitGroup
	startOnce   sync.Once
	stopOnce    sync.Once
}

func NewPool(workerCount, queueSize int, handler Handler, log *logrus.Entry) *Pool {
	if workerCount < 1 {
		workerCount = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}

	queues := make([]chan models.ActivityEvent, workerCount)
	for i := range queues {
		queues[i] = make(chan models.ActivityEvent, queueSize)
	}

	return &Pool{
		handler:     handler,
		queues:      queues,
		workerCount: workerCount,
		log:         log,
		stopChan:    make(chan struct{}),
	}
}

func (p *Pool) Start() {
	p.startOnce.Do(func() {
		for i := 0; i < p.workerCount; i++ {
			p.wg.Add(1)
			go p.worker(i)
		}
		p.log.WithField("workers", p.workerCount).Info("started broadcast workers")
	})
}

// Stop signals the workers, lets them finish what is already queued and waits.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopChan)
	})
	p.wg.Wait()
}

// Submit enqueues event on the worker owning key. It never blocks and returns
// false when that queue is full or the pool is stopped.
func (p *Pool) Submit(key uuid.UUID, event models.ActivityEvent) bool {
	select {
	case <-p.stopChan:
		return false
	default:
	}

	select {
	case p.queues[p.shard(key)] <- event:
		return true
	default:
		return false
	}
}

func (p *Pool) shard(key uuid.UUID) int {
	h := fnv.New32a()
	h.Write(key[:])
	return int(h.Sum32() % uint32(p.workerCount))
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	queue := p.queues[id]

	for {
		select {
		case <-p.stopChan:
			p.drain(id, queue)
			return
		case event := <-queue:
			p.handle(event)
		}
	}
}

func (p *Pool) drain(id int, queue chan models.ActivityEvent) {
	for {
		select {
		case event := <-queue:
			p.handle(event)
		default:
			p.log.WithField("worker", id).Debug("broadcast worker shutting down")
			return
		}
	}
}

func (p *Pool) handle(event models.ActivityEvent) {
	defer func() {
		if r := recover(); r != nil {
			p.log.WithFields(logrus.Fields{
				"event_type": event.Type,
				"user_id":    event.ActorID,
				"panic":      r,
			}).Error("broadcast handler panicked")
		}
	}()
	p.handler(context.Background(), event)
}
