package utils

import (
	"encoding/base64"
	"fmt"
	"os"

	"github.com/gabriel-vasile/mimetype"
)

// MaxIconSize caps icon files embedded into the platform descriptor.
const MaxIconSize = 256 * 1024

// LoadIcon reads an icon file and returns it as a data URI with a
// sniffed media type, suitable for embedding in platform info.
func LoadIcon(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("failed to read icon: %w", err)
	}
	if info.Size() > MaxIconSize {
		return "", fmt.Errorf("icon %s exceeds %d bytes", path, MaxIconSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read icon: %w", err)
	}

	mtype := mimetype.Detect(data)
	return "data:" + mtype.String() + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}
