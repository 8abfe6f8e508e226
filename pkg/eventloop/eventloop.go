package eventloop

import (
	"container/list"
	"sync"
	"time"
)

// Loop is a single-goroutine cooperative dispatcher. Deferred calls may be
// enqueued from any goroutine; they run, in FIFO order, on the goroutine
// that called Exec.
type Loop struct {
	mu      sync.Mutex
	calls   *list.List
	wake    chan struct{}
	exit    chan struct{}
	once    sync.Once
	code    int
	timeout time.Duration
}

func New() *Loop {
	return &Loop{
		calls: list.New(),
		wake:  make(chan struct{}, 1),
		exit:  make(chan struct{}),
	}
}

// CallLater schedules f to run on the Exec goroutine. Safe to call from any
// goroutine; this is the only Loop method a foreign dispatch thread may use.
func (l *Loop) CallLater(f func()) {
	l.mu.Lock()
	l.calls.PushBack(f)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Timeout bounds the next Exec call. Zero means run until Exit.
func (l *Loop) Timeout(d time.Duration) {
	l.timeout = d
}

// Exit stops Exec with the given code. Pending deferred calls are dropped.
func (l *Loop) Exit(code int) {
	l.once.Do(func() {
		l.code = code
		close(l.exit)
	})
}

// Exec dispatches deferred calls until Exit is called or the timeout
// elapses. Returns the exit code (0 on timeout).
func (l *Loop) Exec() int {
	var expired <-chan time.Time
	if l.timeout > 0 {
		t := time.NewTimer(l.timeout)
		defer t.Stop()
		expired = t.C
	}

	for {
		select {
		case <-l.exit:
			return l.code
		case <-expired:
			return 0
		case <-l.wake:
			l.dispatch()
		}
	}
}

func (l *Loop) dispatch() {
	for {
		select {
		case <-l.exit:
			return
		default:
		}

		l.mu.Lock()
		front := l.calls.Front()
		if front == nil {
			l.mu.Unlock()
			return
		}
		l.calls.Remove(front)
		l.mu.Unlock()

		front.Value.(func())()
	}
}

// Pending reports the number of deferred calls not yet dispatched.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls.Len()
}
