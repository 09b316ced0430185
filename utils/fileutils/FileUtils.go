// Package fileutils implements file persistence helpers for training
// runs
package fileutils

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// SaveGob gob-encodes object into the file at path, creating parent
// directories as needed
func SaveGob(path string, object interface{}) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("savegob: could not create directory: %v", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("savegob: could not create file: %v", err)
	}
	defer file.Close()

	if err := gob.NewEncoder(file).Encode(object); err != nil {
		return fmt.Errorf("savegob: could not encode object: %v", err)
	}
	return nil
}

// LoadGob gob-decodes the file at path into object
func LoadGob(path string, object interface{}) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("loadgob: could not open file: %v", err)
	}
	defer file.Close()

	if err := gob.NewDecoder(file).Decode(object); err != nil {
		return fmt.Errorf("loadgob: could not decode object: %v", err)
	}
	return nil
}

// NewRunDir creates a fresh run directory under base, named with the
// run start time and a UUID so that concurrent runs never collide,
// and returns its path
func NewRunDir(base, name string) (string, error) {
	dir := filepath.Join(base, fmt.Sprintf("%v-%v-%v", name,
		time.Now().Format("2006-01-02-15-04-05"), uuid.New().String()))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("newrundir: could not create run "+
			"directory: %v", err)
	}
	return dir, nil
}

// TimestampedFilename returns a function generating distinct
// filenames in dir by appending the number of nanoseconds since
// January 1, 1970 to name
func TimestampedFilename(dir, name, extension string) func() string {
	return func() string {
		return filepath.Join(dir, fmt.Sprintf("%v-%v%v", name,
			time.Now().UnixNano(), extension))
	}
}
