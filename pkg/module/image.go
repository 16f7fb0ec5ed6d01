package module

import (
	"context"
	"encoding/base64"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// longer strings are never treated as a local path
const maxPathLen = 256

// resolveImage turns encoded_bytes_or_url into image bytes. The value may be
// an http(s) URL, a short local file path, or base64 with an optional data
// URL prefix.
func resolveImage(ctx context.Context, hub Hub, value string) ([]byte, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, errors.New("no image given")
	}

	if strings.HasPrefix(value, "http://") || strings.HasPrefix(value, "https://") {
		return hub.Download(ctx, value)
	}

	if len(value) < maxPathLen {
		if info, err := os.Stat(value); err == nil && !info.IsDir() {
			return os.ReadFile(value)
		}
	}

	if i := strings.Index(value, ";base64,"); strings.HasPrefix(value, "data:") && i > 0 {
		value = value[i+len(";base64,"):]
	}
	b, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, errors.Wrap(err, "image is neither a URL, a file nor base64")
	}
	return b, nil
}
