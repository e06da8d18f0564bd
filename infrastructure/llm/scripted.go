package llm

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"carechat/application/ports"
	"carechat/domain/core/valueobjects"
)

// Script is a canned response: chunks are emitted in order, then Err if set
type Script struct {
	Chunks []string
	Err    error

	// Delay is waited before each chunk
	Delay time.Duration

	// Hang keeps the stream open after the chunks until ctx ends
	Hang bool
}

// Call records one generation request
type Call struct {
	Prompt     string
	SessionKey valueobjects.SessionKey
}

// ScriptedBackend replays queued scripts and echoes the prompt when the queue
// is empty. Used for local runs and tests.
type ScriptedBackend struct {
	name      string
	stateless bool

	mu      sync.Mutex
	scripts []Script
	match   map[string]Script
	calls   []Call
}

// NewScriptedBackend creates a scripted backend
func NewScriptedBackend(name string, stateless bool) *ScriptedBackend {
	return &ScriptedBackend{name: name, stateless: stateless, match: make(map[string]Script)}
}

// Enqueue appends scripts to be replayed in order
func (b *ScriptedBackend) Enqueue(scripts ...Script) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.scripts = append(b.scripts, scripts...)
}

// When replays script for every prompt containing substr, ahead of the queue
func (b *ScriptedBackend) When(substr string, script Script) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.match[substr] = script
}

// Calls returns the requests seen so far
func (b *ScriptedBackend) Calls() []Call {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Call, len(b.calls))
	copy(out, b.calls)
	return out
}

func (b *ScriptedBackend) Name() string    { return b.name }
func (b *ScriptedBackend) Stateless() bool { return b.stateless }

// StreamGenerate implements ports.Backend
func (b *ScriptedBackend) StreamGenerate(ctx context.Context, prompt string, key valueobjects.SessionKey) <-chan ports.Fragment {
	script := b.next(prompt, key)
	ch, out := newStream(ctx, b.name)

	go func() {
		defer close(ch)
		for _, chunk := range script.Chunks {
			if script.Delay > 0 {
				select {
				case <-time.After(script.Delay):
				case <-ctx.Done():
					return
				}
			}
			if !out.text(chunk) {
				return
			}
		}
		if script.Err != nil {
			out.fail(script.Err)
			return
		}
		if script.Hang {
			<-ctx.Done()
		}
	}()
	return ch
}

// Generate implements ports.Backend
func (b *ScriptedBackend) Generate(ctx context.Context, prompt string, key valueobjects.SessionKey) (string, error) {
	return ports.Drain(ctx, b.StreamGenerate(ctx, prompt, key))
}

func (b *ScriptedBackend) next(prompt string, key valueobjects.SessionKey) Script {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.calls = append(b.calls, Call{Prompt: prompt, SessionKey: key})

	for substr, script := range b.match {
		if strings.Contains(prompt, substr) {
			return script
		}
	}
	if len(b.scripts) > 0 {
		script := b.scripts[0]
		b.scripts = b.scripts[1:]
		return script
	}
	return echo(prompt)
}

// echo answers with the last line of the prompt, word by word
func echo(prompt string) Script {
	lines := strings.Split(strings.TrimSpace(prompt), "\n")
	last := strings.TrimSpace(lines[len(lines)-1])
	if last == "" {
		return Script{Err: errors.New("empty prompt")}
	}
	words := strings.Fields("You said: " + last)
	chunks := make([]string, len(words))
	for i, w := range words {
		if i < len(words)-1 {
			w += " "
		}
		chunks[i] = w
	}
	return Script{Chunks: chunks}
}
