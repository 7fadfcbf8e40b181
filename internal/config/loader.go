package config

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/gyaneshwarpardhi/procrastihator/internal/packet"
	"github.com/gyaneshwarpardhi/procrastihator/internal/session"
)

// Loader reads a YAML config file and watches it for changes.
type Loader struct {
	path     string
	logger   *slog.Logger
	mu       sync.RWMutex
	current  *AgentConfig
	onChange []func(*AgentConfig)
	watcher  *fsnotify.Watcher
}

// NewLoader creates a Loader and performs the initial load.
func NewLoader(path string, logger *slog.Logger) (*Loader, error) {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Loader{path: path, logger: logger}
	cfg, err := l.load()
	if err != nil {
		return nil, err
	}
	l.current = cfg
	return l, nil
}

// Config returns the current (latest) configuration.
func (l *Loader) Config() *AgentConfig {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// Path returns the watched file.
func (l *Loader) Path() string { return l.path }

// OnChange registers a callback invoked whenever the config reloads.
func (l *Loader) OnChange(fn func(*AgentConfig)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onChange = append(l.onChange, fn)
}

// Watch starts a background goroutine that hot-reloads the config on file changes.
// Call the returned stop function to clean up.
func (l *Loader) Watch() (stop func(), err error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config watcher: %w", err)
	}
	if err := w.Add(l.path); err != nil {
		w.Close()
		return nil, fmt.Errorf("config watcher add %s: %w", l.path, err)
	}
	l.watcher = w

	done := make(chan struct{})
	go func() {
		defer w.Close()
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
					if _, err := l.Reload(); err != nil {
						l.logger.Warn("config reload failed, keeping previous config", "path", l.path, "err", err)
					}
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				l.logger.Warn("config watcher error", "err", err)
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return func() { once.Do(func() { close(done) }) }, nil
}

// Reload forces an immediate re-read of the config file. An invalid file
// leaves the current config in place.
func (l *Loader) Reload() (*AgentConfig, error) {
	cfg, err := l.load()
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.current = cfg
	callbacks := make([]func(*AgentConfig), len(l.onChange))
	copy(callbacks, l.onChange)
	l.mu.Unlock()
	for _, fn := range callbacks {
		fn(cfg)
	}
	return cfg, nil
}

func (l *Loader) load() (*AgentConfig, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", l.path, err)
	}
	var cfg AgentConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", l.path, err)
	}
	ApplyDefaults(&cfg)
	return &cfg, nil
}

// ApplyDefaults fills zero values. A zero cooldown is read as "unset".
func ApplyDefaults(cfg *AgentConfig) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	g := &cfg.Gate
	if g.Cooldown == 0 {
		g.Cooldown = 10 * time.Second
	}
	if g.HistorySize == 0 {
		g.HistorySize = 10
	}
	if g.HistoryMaxAge == 0 {
		g.HistoryMaxAge = 10 * time.Minute
	}
	if len(g.DetectionKinds) == 0 {
		g.DetectionKinds = append([]string(nil), packet.DetectionKinds...)
	}

	s := &cfg.Session
	if s.DefaultPersona == "" {
		s.DefaultPersona = session.DefaultPersonaName
	}
	if s.MinTranscriptChars == nil {
		s.MinTranscriptChars = ptr(2)
	}

	d := &cfg.Dispatch
	if d.QueueDepth == 0 {
		d.QueueDepth = 256
	}
	if d.DedupeSize == 0 {
		d.DedupeSize = 1024
	}
	if d.EventTimeout == 0 {
		d.EventTimeout = 5 * time.Second
	}

	r := &cfg.Response
	if r.Model == "" {
		r.Model = "gpt-4o-mini"
	}
	if r.MaxTokens == 0 {
		r.MaxTokens = 200
	}
	if r.Temperature == nil {
		r.Temperature = ptr[float32](0.9)
	}
	if r.LLMTimeout == 0 {
		r.LLMTimeout = 20 * time.Second
	}
	if r.TTSModel == "" {
		r.TTSModel = "tts-1"
	}
	if r.TTSVoice == "" {
		r.TTSVoice = "onyx"
	}
	if r.TTSTimeout == 0 {
		r.TTSTimeout = 30 * time.Second
	}
	if r.STTModel == "" {
		r.STTModel = "whisper-1"
	}
	if r.STTTimeout == 0 {
		r.STTTimeout = 30 * time.Second
	}

	t := &cfg.Transport
	if t.Room == "" {
		t.Room = "procrastihator"
	}
	if t.ClientName == "" {
		t.ClientName = "procrastihator-agent"
	}
	if t.ReconnectWait == 0 {
		t.ReconnectWait = 2 * time.Second
	}
	if t.PublishRate == 0 {
		t.PublishRate = 5
	}
	if t.PublishBurst == 0 {
		t.PublishBurst = 10
	}
}

func ptr[T any](v T) *T { return &v }
