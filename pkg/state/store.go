// Package state is the blackboard a pipeline run shares between its agents.
// Each agent writes its output under its output key; later agents read the
// values back through {key} placeholders in their instructions or through
// the state tools.
package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"sync"

	"github.com/germanamz/shorts/pkg/tools/toolbox"
)

// Store is a thread-safe string key-value store. The zero value is ready to
// use.
type Store struct {
	mu     sync.RWMutex
	once   sync.Once
	signal chan struct{}
	data   map[string]string
}

func (s *Store) init() {
	s.once.Do(func() {
		s.data = make(map[string]string)
		s.signal = make(chan struct{})
	})
}

// Get returns the value for key and whether it was found.
func (s *Store) Get(key string) (string, bool) {
	s.init()
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.data[key]
	return v, ok
}

// Set stores value under key and wakes every Watch.
func (s *Store) Set(key, value string) {
	s.init()
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[key] = value
	close(s.signal)
	s.signal = make(chan struct{})
}

// Delete removes key and wakes every Watch.
func (s *Store) Delete(key string) {
	s.init()
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, key)
	close(s.signal)
	s.signal = make(chan struct{})
}

// Keys returns the keys in sorted order.
func (s *Store) Keys() []string {
	s.init()
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}

// Snapshot returns a copy of the store.
func (s *Store) Snapshot() map[string]string {
	s.init()
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp := make(map[string]string, len(s.data))
	for k, v := range s.data {
		cp[k] = v
	}

	return cp
}

// Watch blocks until key exists or ctx is done.
func (s *Store) Watch(ctx context.Context, key string) (string, error) {
	s.init()

	for {
		s.mu.RLock()
		v, ok := s.data[key]
		sig := s.signal
		s.mu.RUnlock()

		if ok {
			return v, nil
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-sig:
		}
	}
}

var placeholder = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)(\?)?\}`)

// Render replaces {key} placeholders in tmpl with stored values. A missing
// key is left untouched, except in the optional form {key?} which renders
// as an empty string.
func (s *Store) Render(tmpl string) string {
	s.init()
	s.mu.RLock()
	defer s.mu.RUnlock()

	return placeholder.ReplaceAllStringFunc(tmpl, func(m string) string {
		sub := placeholder.FindStringSubmatch(m)
		if v, ok := s.data[sub[1]]; ok {
			return v
		}
		if sub[2] == "?" {
			return ""
		}
		return m
	})
}

// --- Tool integration ---

type ctxKey struct{}

// NewContext returns a copy of ctx carrying s.
func NewContext(ctx context.Context, s *Store) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext returns the store carried by ctx, if any.
func FromContext(ctx context.Context) (*Store, bool) {
	s, ok := ctx.Value(ctxKey{}).(*Store)
	return s, ok && s != nil
}

// ErrNoStore is returned by context-bound tools called outside a run.
var ErrNoStore = errors.New("state: no store in context")

// Tools returns a ToolBox with state_get, state_set and state_list bound to
// s, so an agent can read and write the blackboard from its tool loop.
func (s *Store) Tools() *toolbox.ToolBox {
	return newTools(func(context.Context) (*Store, error) { return s, nil })
}

// ContextTools is Tools for the store of the calling run, resolved with
// FromContext on every call. Agents built once and run many times use it.
func ContextTools() *toolbox.ToolBox {
	return newTools(func(ctx context.Context) (*Store, error) {
		s, ok := FromContext(ctx)
		if !ok {
			return nil, ErrNoStore
		}
		return s, nil
	})
}

type resolver func(ctx context.Context) (*Store, error)

func newTools(resolve resolver) *toolbox.ToolBox {
	return toolbox.New().MustRegister(
		toolbox.Tool{
			Name:        "state_get",
			Description: "Get a value from the shared pipeline state by key.",
			InputSchema: json.RawMessage(`{"type":"object","properties":{"key":{"type":"string"}},"required":["key"]}`),
			Handler:     resolve.get,
		},
		toolbox.Tool{
			Name:        "state_set",
			Description: "Store a text value in the shared pipeline state.",
			InputSchema: json.RawMessage(`{"type":"object","properties":{"key":{"type":"string"},"value":{"type":"string"}},"required":["key","value"]}`),
			Handler:     resolve.set,
		},
		toolbox.Tool{
			Name:        "state_list",
			Description: "List every key in the shared pipeline state.",
			InputSchema: json.RawMessage(`{"type":"object"}`),
			Handler:     resolve.list,
		},
	)
}

type getInput struct {
	Key string `json:"key"`
}

type setInput struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (r resolver) get(ctx context.Context, input json.RawMessage) (string, error) {
	var in getInput
	if err := json.Unmarshal(input, &in); err != nil {
		return "", fmt.Errorf("invalid input: %w", err)
	}

	s, err := r(ctx)
	if err != nil {
		return "", err
	}

	v, ok := s.Get(in.Key)
	if !ok {
		return "", errors.New("key not found")
	}

	return v, nil
}

func (r resolver) set(ctx context.Context, input json.RawMessage) (string, error) {
	var in setInput
	if err := json.Unmarshal(input, &in); err != nil {
		return "", fmt.Errorf("invalid input: %w", err)
	}
	if in.Key == "" {
		return "", errors.New("key is required")
	}

	s, err := r(ctx)
	if err != nil {
		return "", err
	}

	s.Set(in.Key, in.Value)

	return "ok", nil
}

func (r resolver) list(ctx context.Context, _ json.RawMessage) (string, error) {
	s, err := r(ctx)
	if err != nil {
		return "", err
	}

	b, err := json.Marshal(s.Keys())
	if err != nil {
		return "", fmt.Errorf("failed to encode keys: %w", err)
	}

	return string(b), nil
}
