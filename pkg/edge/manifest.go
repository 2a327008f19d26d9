package edge

import (
	"fmt"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/calendis/calendis-edge/pkg/config"
	"github.com/calendis/calendis-edge/pkg/domain"
)

// ManifestPath is served by the edge itself.
const ManifestPath = "/manifest.webmanifest"

type manifestIcon struct {
	Src   string `json:"src"`
	Sizes string `json:"sizes"`
	Type  string `json:"type"`
}

type webManifest struct {
	Name            string         `json:"name"`
	ShortName       string         `json:"short_name"`
	Description     string         `json:"description,omitempty"`
	StartURL        string         `json:"start_url"`
	Display         string         `json:"display"`
	BackgroundColor string         `json:"background_color,omitempty"`
	ThemeColor      string         `json:"theme_color,omitempty"`
	Icons           []manifestIcon `json:"icons"`
}

// Manifest serves an installable manifest on application hosts and an empty
// one everywhere else, so the marketing site is never installable.
type Manifest struct {
	full  []byte
	empty []byte
}

// NewManifest encodes both manifest variants once.
func NewManifest(cfg config.ManifestConfig) (*Manifest, error) {
	icons := make([]manifestIcon, 0, len(cfg.Icons))
	for _, icon := range cfg.Icons {
		icons = append(icons, manifestIcon(icon))
	}

	full, err := json.Marshal(webManifest{
		Name:            cfg.Name,
		ShortName:       cfg.ShortName,
		Description:     cfg.Description,
		StartURL:        cfg.StartURL,
		Display:         "standalone",
		BackgroundColor: cfg.BackgroundColor,
		ThemeColor:      cfg.ThemeColor,
		Icons:           icons,
	})
	if err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}

	empty, err := json.Marshal(webManifest{
		StartURL: "/",
		Display:  "browser",
		Icons:    []manifestIcon{},
	})
	if err != nil {
		return nil, fmt.Errorf("encode empty manifest: %w", err)
	}

	return &Manifest{full: full, empty: empty}, nil
}

// Serve writes the manifest variant for cls.
func (m *Manifest) Serve(w http.ResponseWriter, cls domain.Classification) {
	body := m.empty
	if cls.Subdomain == domain.SubdomainApp {
		body = m.full
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
