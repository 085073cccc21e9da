package params

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type API struct {
	Addr        string
	CORSOrigins []string
}

type Chain struct {
	// ChallengeWindow bounds how long an issued ownership challenge
	// stays answerable. The registry default is 300s.
	ChallengeWindow time.Duration
}

type Config struct {
	API     API
	Chain   Chain
	LogFile string
}

func Default() Config {
	return Config{
		API: API{
			Addr:        ":8080",
			CORSOrigins: []string{"http://localhost:3000"},
		},
		Chain: Chain{
			ChallengeWindow: 300 * time.Second,
		},
		LogFile: "data/node.log",
	}
}

// LoadFromEnv loads configuration from a .env file (if present) and
// environment variables. Priority: ENV > .env file > defaults.
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load() // .env in current directory, optional
	}

	if addr := os.Getenv("API_ADDR"); addr != "" {
		cfg.API.Addr = addr
	}
	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		cfg.API.CORSOrigins = strings.Split(origins, ",")
	}
	if window := os.Getenv("CHALLENGE_WINDOW_SECS"); window != "" {
		if secs, err := strconv.Atoi(window); err == nil && secs > 0 {
			cfg.Chain.ChallengeWindow = time.Duration(secs) * time.Second
		}
	}
	if logFile := os.Getenv("LOG_FILE"); logFile != "" {
		cfg.LogFile = logFile
	}

	return cfg
}
