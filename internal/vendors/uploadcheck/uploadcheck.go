// Package uploadcheck implements the built-in upload validation stage.
// Unlike the other stages it calls no external service: it verifies the
// uploaded file on disk and records its fingerprint.
package uploadcheck

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"lifescribe/internal/services"
	"lifescribe/internal/stagegraph"
	"lifescribe/internal/vendors"
)

// AdapterName is the vendor identifier recorded on upload attempts.
const AdapterName = "builtin"

var allowedExtensions = map[string]string{
	".pdf":  "application/pdf",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".m4a":  "audio/mp4",
	".flac": "audio/flac",
	".ogg":  "audio/ogg",
	".mp4":  "video/mp4",
	".mov":  "video/quicktime",
	".mkv":  "video/x-matroska",
}

type validationReport struct {
	MediaID     string `json:"media_id"`
	SizeBytes   int64  `json:"size_bytes"`
	SHA256      string `json:"sha256"`
	ContentType string `json:"content_type"`
}

// Validator checks uploaded files before the pipeline touches them.
type Validator struct {
	// MaxSizeBytes rejects files above this size. Zero means no limit.
	MaxSizeBytes int64
}

// New constructs the upload validator.
func New(maxSizeBytes int64) *Validator {
	return &Validator{MaxSizeBytes: maxSizeBytes}
}

func (v *Validator) Name() string { return AdapterName }

func (v *Validator) Capability() stagegraph.Capability { return stagegraph.CapabilityUpload }

// Probe always succeeds; there is no external dependency to check.
func (v *Validator) Probe(ctx context.Context) error { return nil }

// Execute validates the file referenced by the request. Missing, empty,
// oversized, or unrecognized files fail with the validation marker so
// the attempt is not retried.
func (v *Validator) Execute(ctx context.Context, req vendors.Request) (vendors.Result, error) {
	var empty vendors.Result

	info, err := os.Stat(req.FilePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return empty, services.Wrap(services.ErrValidation, AdapterName, "validate",
				fmt.Sprintf("uploaded file %q does not exist", req.FilePath), nil)
		}
		return empty, services.Wrap(services.ErrTransient, AdapterName, "validate", "stat uploaded file", err)
	}
	if info.IsDir() {
		return empty, services.Wrap(services.ErrValidation, AdapterName, "validate",
			fmt.Sprintf("upload path %q is a directory", req.FilePath), nil)
	}
	if info.Size() == 0 {
		return empty, services.Wrap(services.ErrValidation, AdapterName, "validate", "uploaded file is empty", nil)
	}
	if v.MaxSizeBytes > 0 && info.Size() > v.MaxSizeBytes {
		return empty, services.Wrap(services.ErrValidation, AdapterName, "validate",
			fmt.Sprintf("uploaded file is %d bytes, limit is %d", info.Size(), v.MaxSizeBytes), nil)
	}

	ext := strings.ToLower(filepath.Ext(req.FilePath))
	contentType, ok := allowedExtensions[ext]
	if !ok {
		return empty, services.Wrap(services.ErrValidation, AdapterName, "validate",
			fmt.Sprintf("unsupported file type %q", ext), nil)
	}

	digest, err := hashFile(req.FilePath)
	if err != nil {
		return empty, services.Wrap(services.ErrTransient, AdapterName, "validate", "hash uploaded file", err)
	}

	report := validationReport{
		MediaID:     req.MediaID,
		SizeBytes:   info.Size(),
		SHA256:      digest,
		ContentType: contentType,
	}
	encoded, err := json.Marshal(report)
	if err != nil {
		return empty, fmt.Errorf("encode validation report: %w", err)
	}
	return vendors.Result{Output: string(encoded)}, nil
}

func hashFile(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}
