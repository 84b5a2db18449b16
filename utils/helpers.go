package utils

import (
	"fmt"
	"io"
	"math/rand"
	"os"
)

// GetEnv retrieves the value of an environment variable, with an optional
// fallback used when the variable is unset.
func GetEnv(key string, fallback ...string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}

	if len(fallback) > 0 {
		return fallback[0]
	}

	return ""
}

func CreateFolder(folderPath string) error {
	err := os.MkdirAll(folderPath, 0755)
	if err != nil {
		return fmt.Errorf("error creating folder %s: %v", folderPath, err)
	}

	return nil
}

// MoveFile copies sourcePath to destPath and removes the source. A plain
// os.Rename fails across filesystems, so the copy is explicit.
func MoveFile(sourcePath, destPath string) error {
	inputFile, err := os.Open(sourcePath)
	if err != nil {
		return fmt.Errorf("error opening source file: %v", err)
	}

	outputFile, err := os.Create(destPath)
	if err != nil {
		inputFile.Close()
		return fmt.Errorf("error creating destination file: %v", err)
	}
	defer outputFile.Close()

	_, err = io.Copy(outputFile, inputFile)
	inputFile.Close()
	if err != nil {
		return fmt.Errorf("error writing to destination file: %v", err)
	}

	err = os.Remove(sourcePath)
	if err != nil {
		return fmt.Errorf("error removing source file: %v", err)
	}

	return nil
}

// GenerateUniqueID returns a random identifier usable in temp file names.
func GenerateUniqueID() uint32 {
	return rand.Uint32()
}
