package config

import (
	"errors"
	"io/fs"
	"log"

	"github.com/joho/godotenv"
)

// loadEnvFiles loads the given files into the process environment if they exist.
// Variables already set in the environment win.
func loadEnvFiles(paths ...string) {
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			log.Printf("config: skip %s: %v", path, err)
		}
	}
}
