package env

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

var Env map[string]string

func GetEnv(key, def string) string {
	// First check our loaded Env map
	if val, ok := Env[key]; ok {
		return val
	}
	// Fallback to OS environment variables (for Docker/tests)
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// GetEnvInt returns the integer value of key, or def when unset or malformed
func GetEnvInt(key string, def int) int {
	raw := GetEnv(key, "")
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

// SetupEnvFile loads the first .env file found. Without one the process
// environment is used as is.
func SetupEnvFile() error {
	envFiles := []string{
		".env",          // Current directory
		"../../.env",    // From cmd/automarkt to project root
		"../../../.env", // Fallback for deeper nesting
	}

	var err error
	for _, envFile := range envFiles {
		var loaded map[string]string
		loaded, err = godotenv.Read(envFile)
		if err == nil {
			Env = loaded
			return nil
		}
	}
	Env = map[string]string{}
	return err
}

func IsDev() bool {
	return GetEnv("APP_ENV", "prod") == "dev"
}
