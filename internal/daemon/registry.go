package daemon

import (
	"lifescribe/internal/config"
	"lifescribe/internal/jobs"
	"lifescribe/internal/vendors"
	"lifescribe/internal/vendors/clamav"
	"lifescribe/internal/vendors/cloudvision"
	"lifescribe/internal/vendors/deepgram"
	"lifescribe/internal/vendors/meilisearch"
	"lifescribe/internal/vendors/tesseract"
	"lifescribe/internal/vendors/typesense"
	"lifescribe/internal/vendors/uploadcheck"
	"lifescribe/internal/vendors/virustotal"
	"lifescribe/internal/vendors/whispercpp"
)

// maxUploadBytes bounds accepted media files.
const maxUploadBytes int64 = 2 << 30

// buildRegistry assembles the vendor fallback chains from the enabled
// adapters. Registration order is fallback order within a capability. The
// built-in upload validator is always present; everything else follows the
// config.
func buildRegistry(cfg *config.Config, store *jobs.Store) *vendors.Registry {
	registry := vendors.NewRegistry(store)
	registry.Register(uploadcheck.New(maxUploadBytes))

	if cfg.Vendors.ClamAV.Enabled {
		registry.Register(clamav.New(cfg.Vendors.ClamAV))
	}
	if cfg.Vendors.VirusTotal.Enabled {
		registry.Register(virustotal.New(cfg.Vendors.VirusTotal))
	}
	if cfg.Vendors.Tesseract.Enabled {
		registry.Register(tesseract.New(cfg.Vendors.Tesseract))
	}
	if cfg.Vendors.CloudVision.Enabled {
		registry.Register(cloudvision.New(cfg.Vendors.CloudVision))
	}
	if cfg.Vendors.WhisperCPP.Enabled {
		registry.Register(whispercpp.New(cfg.Vendors.WhisperCPP))
	}
	if cfg.Vendors.Deepgram.Enabled {
		registry.Register(deepgram.New(cfg.Vendors.Deepgram))
	}
	if cfg.Vendors.Meilisearch.Enabled {
		registry.Register(meilisearch.New(cfg.Vendors.Meilisearch))
	}
	if cfg.Vendors.Typesense.Enabled {
		registry.Register(typesense.New(cfg.Vendors.Typesense))
	}
	return registry
}
