package cfg

import (
	"fmt"
	"os"

	"github.com/knadh/koanf/parsers/dotenv"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// LoadEnvFile reads a dotenv file into a flat key/value map.
func LoadEnvFile(path string) (map[string]string, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), dotenv.Parser()); err != nil {
		return nil, fmt.Errorf("load env file %s: %w", path, err)
	}
	keys := k.Keys()
	out := make(map[string]string, len(keys))
	for _, key := range keys {
		out[key] = k.String(key)
	}
	return out, nil
}

// EnvLookup consults the process environment first and falls back to
// values loaded from an env file.
func EnvLookup(fileVals map[string]string) Lookup {
	return func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := fileVals[key]
		return v, ok
	}
}
