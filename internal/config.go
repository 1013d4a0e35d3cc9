package internal

import (
	"fmt"
	"strings"
	"time"
)

type Config struct {
	ObserverID           string        `env:"OBSERVER_ID"`
	PairingMode          string        `env:"PAIRING_MODE,default=peer"`
	Transport            string        `env:"TRANSPORT,default=local"`
	RelayURL             string        `env:"RELAY_URL"`
	ServeRelay           bool          `env:"SERVE_RELAY,default=false"`
	TransportBufferSize  int           `env:"TRANSPORT_BUFFER_SIZE,default=256"`
	ReconnectMaxInterval time.Duration `env:"RECONNECT_MAX_INTERVAL,default=30s"`

	BufferSize           int           `env:"BUFFER_SIZE,default=1024"`
	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,default=64"`
	SinkTimeout          time.Duration `env:"SINK_TIMEOUT,default=2s"`
	LatencyThreshold     time.Duration `env:"LATENCY_THRESHOLD,default=5s"`
	LowCapacityThreshold float64       `env:"LOW_CAPACITY_THRESHOLD,default=0.8"`
	RestartInterval      time.Duration `env:"RESTART_INTERVAL,default=200ms"`
	MaxRestartInterval   time.Duration `env:"MAX_RESTART_INTERVAL,default=10s"`

	QueueTTL           time.Duration `env:"QUEUE_TTL,default=5m"`
	MatchTimeout       time.Duration `env:"MATCH_TIMEOUT,default=60s"`
	MatchSweepInterval time.Duration `env:"MATCH_SWEEP_INTERVAL,default=1s"`
	StateSyncInterval  time.Duration `env:"STATE_SYNC_INTERVAL,default=30s"`
	HeartbeatInterval  time.Duration `env:"HEARTBEAT_INTERVAL,default=30s"`
	SessionRetention   time.Duration `env:"SESSION_RETENTION,default=5m"`
	EvictionInterval   time.Duration `env:"SESSION_EVICTION_INTERVAL,default=30s"`

	TranslationURL       string        `env:"TRANSLATION_URL,required=true"`
	TranslationTimeout   time.Duration `env:"TRANSLATION_TIMEOUT,default=10s"`
	LanguageDetection    string        `env:"LANGUAGE_DETECTION,default=local"`
	TranslationCacheSize int64         `env:"TRANSLATION_CACHE_SIZE,default=10000"`
	BreakerMaxFailures   int           `env:"BREAKER_MAX_FAILURES,default=5"`
	BreakerTimeout       time.Duration `env:"BREAKER_TIMEOUT,default=30s"`
	MessageLogSize       int           `env:"MESSAGE_LOG_SIZE,default=500"`
	CharReplacement      string        `env:"CHARACTER_REPLACEMENT,default=*"`

	BadgerFilepath string `env:"BADGER_FILEPATH"`
	LogLevel       string `env:"LOG_LEVEL,default=INFO"`
	Host           string `env:"HOST,default=0.0.0.0"`
	Port           int    `env:"PORT,default=8080"`
	GrpcPort       int    `env:"GRPC_PORT,default=9090"`
	DebugPort      int    `env:"DEBUG_PORT,default=8081"`
	AllowedOrigins string `env:"ALLOWED_ORIGINS"`
}

const (
	TransportLocal     = "local"
	TransportWebSocket = "websocket"
	DetectionLocal     = "local"
	DetectionRemote    = "remote"
)

// Validate checks the values env tags cannot express.
func (c Config) Validate() error {
	switch c.PairingMode {
	case "peer", "follower":
	default:
		return fmt.Errorf("PAIRING_MODE must be peer or follower, got %q", c.PairingMode)
	}
	switch c.Transport {
	case TransportLocal:
	case TransportWebSocket:
		if c.RelayURL == "" {
			return fmt.Errorf("RELAY_URL is required with TRANSPORT=%s", TransportWebSocket)
		}
	default:
		return fmt.Errorf("TRANSPORT must be %s or %s, got %q", TransportLocal, TransportWebSocket, c.Transport)
	}
	switch c.LanguageDetection {
	case DetectionLocal, DetectionRemote:
	default:
		return fmt.Errorf("LANGUAGE_DETECTION must be %s or %s, got %q", DetectionLocal, DetectionRemote, c.LanguageDetection)
	}
	if c.BreakerMaxFailures <= 0 {
		return fmt.Errorf("BREAKER_MAX_FAILURES must be positive, got %d", c.BreakerMaxFailures)
	}
	_, err := CharacterRune(c.CharReplacement)
	return err
}

// Origins splits ALLOWED_ORIGINS on commas.
func (c Config) Origins() []string {
	var origins []string
	for _, origin := range strings.Split(c.AllowedOrigins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}

func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CHARACTER_REPLACEMENT must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}
