package env

import (
	"os"

	"github.com/gofiber/fiber/v2/log"
	"github.com/joho/godotenv"
)

// Env holds the key/value pairs read from the .env file. Lookups fall
// through to the process environment, so containerized deployments and tests
// work without a file.
var Env map[string]string

// GetEnv returns the value for key from the loaded .env file, then the
// process environment, then the default.
func GetEnv(key, def string) string {
	if val, ok := Env[key]; ok {
		return val
	}
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// SetupEnvFile loads the nearest .env file. A missing file is not an error;
// configuration then comes from the process environment alone.
func SetupEnvFile() {
	candidates := []string{
		".env",
		"../../.env", // from cmd/migrate
		"../../../.env",
	}
	for _, path := range candidates {
		if parsed, err := godotenv.Read(path); err == nil {
			Env = parsed
			return
		}
	}

	Env = map[string]string{}
	log.Info("no .env file found, using process environment")
}

// IsDev reports whether the app runs in the dev environment.
func IsDev() bool {
	return GetEnv("APP_ENV", "prod") == "dev"
}
