package config

import "time"

// AgentConfig is the top-level YAML structure.
type AgentConfig struct {
	Version   string        `yaml:"version"`
	LogLevel  string        `yaml:"log_level"`
	Gate      GateConf      `yaml:"gate"`
	Session   SessionConf   `yaml:"session"`
	Dispatch  DispatchConf  `yaml:"dispatch"`
	Response  ResponseConf  `yaml:"response"`
	Transport TransportConf `yaml:"transport"`
}

// GateConf tunes the cooldown gate and its rolling history.
type GateConf struct {
	Cooldown       time.Duration `yaml:"cooldown"`
	HistorySize    int           `yaml:"history_size"`
	HistoryMaxAge  time.Duration `yaml:"history_max_age"`
	DetectionKinds []string      `yaml:"detection_kinds"`

	// Filters maps a detection kind to an expression its data must satisfy,
	// e.g. PHONE_DETECTED: "confidence >= 0.6".
	Filters map[string]string `yaml:"filters"`
}

// SessionConf controls what a SESSION_START resets. A nil
// MinTranscriptChars means 2; 0 accepts any final transcript with text.
type SessionConf struct {
	DefaultPersona              string `yaml:"default_persona"`
	DefaultPersonaDescription   string `yaml:"default_persona_description"`
	ResetCooldownOnSessionStart bool   `yaml:"reset_cooldown_on_session_start"`
	MinTranscriptChars          *int   `yaml:"min_transcript_chars"`
}

// DispatchConf holds the inbound queue settings.
type DispatchConf struct {
	QueueDepth   int           `yaml:"queue_depth"`
	DedupeSize   int           `yaml:"dedupe_size"`
	EventTimeout time.Duration `yaml:"event_timeout"`
}

// ResponseConf configures the language model and speech collaborators.
type ResponseConf struct {
	Model       string        `yaml:"model"`
	MaxTokens   int           `yaml:"max_tokens"`
	Temperature *float32      `yaml:"temperature"` // nil means 0.9; 0 is honored
	LLMTimeout  time.Duration `yaml:"llm_timeout"`
	TTSModel    string        `yaml:"tts_model"`
	TTSVoice    string        `yaml:"tts_voice"`
	TTSTimeout  time.Duration `yaml:"tts_timeout"`
	STTModel    string        `yaml:"stt_model"`
	STTLanguage string        `yaml:"stt_language"`
	STTTimeout  time.Duration `yaml:"stt_timeout"`
}

// TransportConf names the NATS subjects used for one room.
type TransportConf struct {
	Room          string        `yaml:"room"`
	ClientName    string        `yaml:"client_name"`
	ReconnectWait time.Duration `yaml:"reconnect_wait"`
	PublishRate   float64       `yaml:"publish_rate"` // packets per second from `send`
	PublishBurst  int           `yaml:"publish_burst"`
}

// DetectionSubject carries encoded packets.
func (t TransportConf) DetectionSubject() string { return t.Room + ".detection" }

// VoiceInSubject carries recorded user utterances.
func (t TransportConf) VoiceInSubject() string { return t.Room + ".voice.in" }

// VoiceOutSubject carries the agent's synthesized audio frames.
func (t TransportConf) VoiceOutSubject() string { return t.Room + ".voice.out" }
