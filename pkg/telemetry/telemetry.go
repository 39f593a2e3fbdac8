// Package telemetry records step timings for chat turns and store writes as
// JSON lines, one file per operation name.
package telemetry

import (
	"bufio"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"
)

type Step struct {
	Name     string  `json:"name"`
	Duration float64 `json:"duration_ms"`
}

type Trace struct {
	Name     string            `json:"name"`
	Start    time.Time         `json:"start"`
	Steps    []Step            `json:"steps"`
	Attrs    map[string]string `json:"attrs,omitempty"`
	TotalMS  float64           `json:"total_ms"`
	lastMark time.Time
	tel      *Telemetry
}

// Options configures a Telemetry writer.
type Options struct {
	Dir           string
	SampleRate    float64
	QueueCapacity int
	BufferSize    int
	FlushInterval time.Duration
	MaxFileSize   int64
}

// Telemetry writes finished traces from a background goroutine.
type Telemetry struct {
	opts     Options
	mu       sync.Mutex
	files    map[string]*os.File
	buffers  map[string]*bufio.Writer
	traces   chan *Trace
	dropped  atomic.Uint64
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

var global atomic.Pointer[Telemetry]

// Init installs the process-wide writer used by Track.
func Init(opts Options) error {
	t, err := New(opts)
	if err != nil {
		return err
	}
	if old := global.Swap(t); old != nil {
		old.Close()
	}
	return nil
}

// Track starts a trace on the process-wide writer. Without Init the trace
// is still usable but Finish discards it.
func Track(name string) *Trace {
	return global.Load().Track(name)
}

// Close stops the process-wide writer.
func Close() {
	if t := global.Swap(nil); t != nil {
		t.Close()
	}
}

func New(opts Options) (*Telemetry, error) {
	if opts.Dir == "" {
		return nil, fmt.Errorf("telemetry dir is empty")
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, err
	}
	if opts.QueueCapacity <= 0 {
		opts.QueueCapacity = 1024
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = 64 * 1024
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = 2 * time.Second
	}
	if opts.SampleRate <= 0 || opts.SampleRate > 1 {
		opts.SampleRate = 1
	}
	t := &Telemetry{
		opts:    opts,
		files:   make(map[string]*os.File),
		buffers: make(map[string]*bufio.Writer),
		traces:  make(chan *Trace, opts.QueueCapacity),
		stopCh:  make(chan struct{}),
	}
	t.wg.Add(1)
	go t.writerLoop()
	return t, nil
}

// Track starts a new trace. Unsampled traces are detached from the writer.
func (t *Telemetry) Track(name string) *Trace {
	now := time.Now()
	tr := &Trace{Name: name, Start: now, lastMark: now}
	if t != nil && (t.opts.SampleRate >= 1 || rand.Float64() < t.opts.SampleRate) {
		tr.tel = t
	}
	return tr
}

// Dropped reports traces discarded because the queue was full.
func (t *Telemetry) Dropped() uint64 { return t.dropped.Load() }

// Mark records the elapsed duration since the last mark.
func (tr *Trace) Mark(label string) {
	now := time.Now()
	tr.Steps = append(tr.Steps, Step{Name: label, Duration: now.Sub(tr.lastMark).Seconds() * 1000})
	tr.lastMark = now
}

// Set attaches a string attribute to the trace.
func (tr *Trace) Set(key, value string) {
	if tr.Attrs == nil {
		tr.Attrs = make(map[string]string, 4)
	}
	tr.Attrs[key] = value
}

// Finish enqueues the trace. Safe to call more than once or via defer.
func (tr *Trace) Finish() {
	if tr.tel == nil {
		return
	}
	tr.TotalMS = time.Since(tr.Start).Seconds() * 1000
	var sum float64
	for _, s := range tr.Steps {
		sum += s.Duration
	}
	if rest := tr.TotalMS - sum; rest > 0.001 {
		tr.Steps = append(tr.Steps, Step{Name: "unmarked", Duration: rest})
	}
	tel := tr.tel
	tr.tel = nil
	select {
	case tel.traces <- tr:
	default:
		tel.dropped.Add(1)
	}
}

func (t *Telemetry) writerLoop() {
	defer t.wg.Done()
	ticker := time.NewTicker(t.opts.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case tr := <-t.traces:
			t.write(tr)
		case <-ticker.C:
			t.flush(true)
		case <-t.stopCh:
			for {
				select {
				case tr := <-t.traces:
					t.write(tr)
					continue
				default:
				}
				break
			}
			t.flush(false)
			t.mu.Lock()
			for _, f := range t.files {
				f.Sync()
				f.Close()
			}
			t.mu.Unlock()
			return
		}
	}
}

func (t *Telemetry) write(tr *Trace) {
	data, err := json.Marshal(tr)
	if err != nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	b := t.bufferFor(tr.Name)
	if b == nil {
		return
	}
	b.Write(data)
	b.WriteByte('\n')
}

// flush writes buffers out; with rotate, files over the size cap are truncated.
func (t *Telemetry) flush(rotate bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for name, b := range t.buffers {
		b.Flush()
		if !rotate || t.opts.MaxFileSize <= 0 {
			continue
		}
		f := t.files[name]
		fi, err := f.Stat()
		if err != nil || fi.Size() <= t.opts.MaxFileSize {
			continue
		}
		if err := f.Truncate(0); err != nil {
			fmt.Fprintf(os.Stderr, "telemetry: truncate %s: %v\n", f.Name(), err)
		}
	}
}

func (t *Telemetry) bufferFor(op string) *bufio.Writer {
	if b, ok := t.buffers[op]; ok {
		return b
	}
	path := filepath.Join(t.opts.Dir, op+".jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "telemetry: failed to open %s: %v\n", path, err)
		return nil
	}
	b := bufio.NewWriterSize(f, t.opts.BufferSize)
	t.files[op] = f
	t.buffers[op] = b
	return b
}

// Close stops the writer and flushes what is queued.
func (t *Telemetry) Close() {
	t.stopOnce.Do(func() {
		close(t.stopCh)
		t.wg.Wait()
	})
}
