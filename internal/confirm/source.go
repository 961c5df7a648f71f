package confirm

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
)

// ErrSourceClosed is returned by a Source that will never produce another answer.
var ErrSourceClosed = errors.New("confirmation source closed")

// Source asks an operator a yes/no question and returns the raw answer.
// Ask blocks until an answer is available or ctx is done.
type Source interface {
	Ask(ctx context.Context, prompt string) (string, error)
}

// Console prompts on Out and reads one line per question from In.
type Console struct {
	out io.Writer

	once      sync.Once
	lines     chan lineResult
	in        io.Reader
	done      chan struct{}
	closeOnce sync.Once
	stopped   chan struct{} // closed when the reader goroutine returns
}

type lineResult struct {
	line string
	err  error
}

func NewConsole(in io.Reader, out io.Writer) *Console {
	return &Console{in: in, out: out, done: make(chan struct{})}
}

// Ask writes prompt and waits for the next input line. The first read error
// (usually io.EOF) is returned as is; later calls report ErrSourceClosed.
func (c *Console) Ask(ctx context.Context, prompt string) (string, error) {
	select {
	case <-c.done:
		return "", ErrSourceClosed
	default:
	}
	c.once.Do(c.start)
	if c.out != nil {
		if _, err := fmt.Fprint(c.out, prompt); err != nil {
			return "", err
		}
	}
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-c.done:
		return "", ErrSourceClosed
	case r, ok := <-c.lines:
		if !ok {
			return "", ErrSourceClosed
		}
		return r.line, r.err
	}
}

// Close makes later Asks return ErrSourceClosed and lets the reader goroutine
// exit. A read already blocked on In finishes when In delivers or closes.
func (c *Console) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

// start reads In on its own goroutine so Ask can honour ctx cancellation.
func (c *Console) start() {
	c.lines = make(chan lineResult)
	c.stopped = make(chan struct{})
	go func() {
		defer close(c.stopped)
		defer close(c.lines)
		sc := bufio.NewScanner(c.in)
		for sc.Scan() {
			if !c.send(lineResult{line: sc.Text()}) {
				return
			}
		}
		err := sc.Err()
		if err == nil {
			err = io.EOF
		}
		c.send(lineResult{err: err})
	}()
}

func (c *Console) send(r lineResult) bool {
	select {
	case c.lines <- r:
		return true
	case <-c.done:
		return false
	}
}

// Scripted replays a fixed list of answers, then reports ErrSourceClosed.
type Scripted struct {
	mu      sync.Mutex
	answers []string
	prompts []string
}

func NewScripted(answers ...string) *Scripted {
	return &Scripted{answers: answers}
}

func (s *Scripted) Ask(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, prompt)
	if len(s.answers) == 0 {
		return "", ErrSourceClosed
	}
	a := s.answers[0]
	s.answers = s.answers[1:]
	return a, nil
}

// Prompts returns every prompt asked so far.
func (s *Scripted) Prompts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.prompts...)
}

// Channel delivers answers pushed from elsewhere, e.g. an HTTP handler.
type Channel struct {
	answers chan string

	mu      sync.Mutex
	closed  bool
	pending string // prompt currently waiting for an answer
}

func NewChannel(buffer int) *Channel {
	return &Channel{answers: make(chan string, buffer)}
}

func (c *Channel) Ask(ctx context.Context, prompt string) (string, error) {
	c.mu.Lock()
	c.pending = prompt
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.pending = ""
		c.mu.Unlock()
	}()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case a, ok := <-c.answers:
		if !ok {
			return "", ErrSourceClosed
		}
		return a, nil
	}
}

// Submit hands an answer to the waiting (or next) Ask. It fails when the
// buffer is full or the channel was closed.
func (c *Channel) Submit(answer string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrSourceClosed
	}
	select {
	case c.answers <- answer:
		return nil
	default:
		return errors.New("confirmation answer already pending")
	}
}

// Pending returns the prompt of an Ask in progress, or "".
func (c *Channel) Pending() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.answers)
	}
	return nil
}
