package dispatch

import (
	"sync"

	"github.com/timmy/outreach/internal/domain"
)

// EventType names a progress stream event.
type EventType string

const (
	EventProgress EventType = "progress"
	EventComplete EventType = "complete"
)

// Event is one message on a job's progress stream.
type Event struct {
	Type EventType          `json:"type"`
	Job  domain.JobProgress `json:"job"`
}

// bus fans job events out to its subscribers. Each subscriber owns an
// unbounded mailbox, so publishing never blocks on a slow reader.
type bus struct {
	mu     sync.Mutex
	subs   map[uint64]*Subscription
	nextID uint64
	closed bool
	final  domain.JobProgress
}

func newBus() *bus {
	return &bus{subs: make(map[uint64]*Subscription)}
}

func (b *bus) subscribe(current domain.JobProgress) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	s := newSubscription(b, b.nextID)
	s.push(Event{Type: EventProgress, Job: current})
	if b.closed {
		s.push(Event{Type: EventComplete, Job: b.final.Clone()})
		s.finish()
		return s
	}
	b.subs[s.id] = s
	return s
}

func (b *bus) publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, s := range b.subs {
		s.push(Event{Type: ev.Type, Job: ev.Job.Clone()})
	}
}

// close delivers the complete event and ends every stream.
func (b *bus) close(final domain.JobProgress) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	b.final = final
	for id, s := range b.subs {
		s.push(Event{Type: EventComplete, Job: final.Clone()})
		s.finish()
		delete(b.subs, id)
	}
}

func (b *bus) remove(id uint64) {
	b.mu.Lock()
	delete(b.subs, id)
	b.mu.Unlock()
}

func (b *bus) subscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Subscription is a live view of one job's progress events.
type Subscription struct {
	bus *bus
	id  uint64

	mu    sync.Mutex
	queue []Event
	done  bool

	wake chan struct{}
	out  chan Event
	stop chan struct{}
	once sync.Once
}

func newSubscription(b *bus, id uint64) *Subscription {
	s := &Subscription{
		bus:  b,
		id:   id,
		wake: make(chan struct{}, 1),
		out:  make(chan Event),
		stop: make(chan struct{}),
	}
	go s.pump()
	return s
}

// Events returns the ordered event stream. The channel is closed after the
// complete event or once Close is called.
func (s *Subscription) Events() <-chan Event {
	return s.out
}

// Close detaches the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		close(s.stop)
		s.bus.remove(s.id)
	})
}

func (s *Subscription) closed() bool {
	select {
	case <-s.stop:
		return true
	default:
		return false
	}
}

func (s *Subscription) push(ev Event) {
	s.mu.Lock()
	s.queue = append(s.queue, ev)
	s.mu.Unlock()
	s.signal()
}

// finish marks the mailbox complete; the pump exits once it drains.
func (s *Subscription) finish() {
	s.mu.Lock()
	s.done = true
	s.mu.Unlock()
	s.signal()
}

func (s *Subscription) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Subscription) pump() {
	defer close(s.out)
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			done := s.done
			s.mu.Unlock()
			if done {
				return
			}
			select {
			case <-s.wake:
				continue
			case <-s.stop:
				return
			}
		}
		ev := s.queue[0]
		s.queue[0] = Event{}
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- ev:
		case <-s.stop:
			return
		}
	}
}
