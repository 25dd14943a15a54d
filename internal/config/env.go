package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variables read once at startup. The NEXT_PUBLIC_ names are
// the ones the front-end build already exports, so both are honoured.
const (
	EnvLegacyOrigin       = "LEGACY_ORIGIN"
	EnvLegacyOriginPublic = "NEXT_PUBLIC_LEGACY_ORIGIN"
	EnvNativeRoutes       = "NATIVE_ROUTES"
	EnvNativeRoutesPublic = "NEXT_PUBLIC_NATIVE_ROUTES"
)

// LoadDotEnv loads variables from a dotenv file without overriding values
// already present in the environment. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	return nil
}

// LookupFirst returns the first of names set to a non-blank value.
func LookupFirst(names ...string) (string, bool) {
	for _, name := range names {
		if v, ok := os.LookupEnv(name); ok {
			if v = strings.TrimSpace(v); v != "" {
				return v, true
			}
		}
	}
	return "", false
}
