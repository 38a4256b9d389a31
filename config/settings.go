package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Settings is the process configuration read from the environment (after godotenv.Load).
type Settings struct {
	Port          string
	PublicBaseURL string // http(s)://host used to build provider callback urls
	WebSocketURL  string // media stream url handed to the PBX for inbound calls

	MongoURI         string
	MongoDB          string
	PostgresURI      string
	RedisAddr        string
	AgentConfigPath  string
	TranscriptBucket string
	APIJWTSecret     string

	STTProvider    string // deepgram|google|none
	DeepgramAPIKey string
	DeepgramURL    string
	// DeepgramInputRate is the rate of caller audio fed to Deepgram; 8000 skips resampling.
	DeepgramInputRate int

	GoogleTTSEnabled bool
	TTSSpeakingRate  float64
	TTSPitch         float64

	LLMProvider    string // groq|vertex
	GroqAPIKey     string
	GroqBaseURL    string
	LLMModel       string
	VertexProject  string
	VertexLocation string
	VertexModel    string

	PiopiyAppID      string
	PiopiySecret     string
	PiopiyFromNumber string
	PiopiyAPIURL     string

	HoldWindow  time.Duration
	NudgeAfter  time.Duration
	IdleAfter   time.Duration
	LLMTimeout  time.Duration
	HangupDelay time.Duration
	SpeakPad    time.Duration
}

func LoadSettings() Settings {
	return Settings{
		Port:             envOr("PORT", "8080"),
		PublicBaseURL:    strings.TrimRight(os.Getenv("PUBLIC_BASE_URL"), "/"),
		WebSocketURL:     os.Getenv("WEBSOCKET_URL"),
		MongoURI:         os.Getenv("MONGO_URI"),
		MongoDB:          envOr("MONGO_DB", "call_agent"),
		PostgresURI:      firstEnv("POSTGRES_URI", "DATABASE_URL"),
		RedisAddr:        firstEnv("REDIS_ADDR", "REDIS_URI", "REDIS_URL"),
		AgentConfigPath:  envOr("AGENT_CONFIG_PATH", "agent_config.json"),
		TranscriptBucket: os.Getenv("TRANSCRIPT_BUCKET"),
		APIJWTSecret:     os.Getenv("API_JWT_SECRET"),

		STTProvider:       strings.ToLower(envOr("STT_PROVIDER", "deepgram")),
		DeepgramAPIKey:    firstEnv("DEEPGRAM_API_KEY", "DG_API_KEY"),
		DeepgramURL:       os.Getenv("DEEPGRAM_URL"),
		DeepgramInputRate: envInt("DEEPGRAM_INPUT_RATE", 22050),

		GoogleTTSEnabled: envBool("GOOGLE_TTS_ENABLED", true),
		TTSSpeakingRate:  envFloat("TTS_SPEAKING_RATE", 1.15),
		TTSPitch:         envFloat("TTS_PITCH", 0),

		LLMProvider:    strings.ToLower(envOr("LLM_PROVIDER", "groq")),
		GroqAPIKey:     os.Getenv("GROQ_API_KEY"),
		GroqBaseURL:    envOr("GROQ_BASE_URL", "https://api.groq.com/openai/v1"),
		LLMModel:       envOr("LLM_MODEL", "llama-3.3-70b-versatile"),
		VertexProject:  os.Getenv("VERTEX_PROJECT"),
		VertexLocation: envOr("VERTEX_LOCATION", "us-central1"),
		VertexModel:    os.Getenv("VERTEX_MODEL"),

		PiopiyAppID:      firstEnv("PIOPIY_APP_ID", "APP_ID"),
		PiopiySecret:     firstEnv("PIOPIY_SECRET", "APP_SECRET"),
		PiopiyFromNumber: firstEnv("PIOPIY_FROM_NUMBER", "PIOPIY_NUMBER"),
		PiopiyAPIURL:     envOr("PIOPIY_API_URL", "https://rest.piopiy.com/v1/voice/call"),

		HoldWindow:  envMillis("HOLD_WINDOW_MS", 700),
		NudgeAfter:  envSeconds("NUDGE_AFTER_SEC", 20),
		IdleAfter:   envSeconds("IDLE_AFTER_SEC", 60),
		LLMTimeout:  envSeconds("LLM_TIMEOUT_SEC", 10),
		HangupDelay: envSeconds("HANGUP_DELAY_SEC", 3),
		SpeakPad:    envMillis("SPEAK_PAD_MS", 300),
	}
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return ""
}

func envBool(key string, def bool) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return def
	}
	return v
}

func envFloat(key string, def float64) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(os.Getenv(key)), 64)
	if err != nil {
		return def
	}
	return v
}

func envInt(key string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envMillis(key string, def int) time.Duration {
	n, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil || n <= 0 {
		n = def
	}
	return time.Duration(n) * time.Millisecond
}

func envSeconds(key string, def int) time.Duration {
	n, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil || n <= 0 {
		n = def
	}
	return time.Duration(n) * time.Second
}
