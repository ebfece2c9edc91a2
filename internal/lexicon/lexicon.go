// Package lexicon holds the versioned heuristic tables used by the domain
// resolver and the feature engine: urgency vocabulary, attachment extension
// tiers, multi-label public suffixes, brand aliases and trusted domain groups.
package lexicon

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultVersion identifies the built-in tables
const DefaultVersion = "2024.1"

// ExtensionRisk is the risk tier of an attachment extension
type ExtensionRisk int

const (
	RiskNone ExtensionRisk = iota
	RiskArchive
	RiskMacro
	RiskExecutable
)

// Weight returns the attachment suspicion points for the tier
func (r ExtensionRisk) Weight() int {
	switch r {
	case RiskExecutable, RiskMacro:
		return 2
	case RiskArchive:
		return 1
	default:
		return 0
	}
}

// String returns the tier name used in table files
func (r ExtensionRisk) String() string {
	switch r {
	case RiskArchive:
		return "archive"
	case RiskMacro:
		return "macro"
	case RiskExecutable:
		return "executable"
	default:
		return "none"
	}
}

// ParseExtensionRisk parses a tier name
func ParseExtensionRisk(s string) (ExtensionRisk, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "":
		return RiskNone, nil
	case "archive":
		return RiskArchive, nil
	case "macro":
		return RiskMacro, nil
	case "executable":
		return RiskExecutable, nil
	default:
		return RiskNone, fmt.Errorf("unknown extension risk tier: %q", s)
	}
}

// Tables is one versioned set of heuristic tables
type Tables struct {
	Version            string
	UrgencyWords       []string
	EmphasisPhrases    []string
	Extensions         map[string]ExtensionRisk
	MultiLevelSuffixes []string
	DomainAliases      map[string]string
	TrustedGroups      [][]string
}

// Default returns the built-in tables. The returned value is a fresh copy.
func Default() *Tables {
	t := &Tables{
		Version: DefaultVersion,
		UrgencyWords: []string{
			"urgente", "urgencia", "inmediato", "inmediatamente", "suspension", "suspensión",
			"expira", "expirara", "vence", "hoy", "verifica", "verificar", "actualiza",
			"actualizar", "bloqueado", "bloqueada", "alerta", "alert", "seguridad", "pago",
			"factura", "ganaste", "ganador", "premio",
		},
		EmphasisPhrases: []string{
			"verifica tu cuenta", "actualiza tu cuenta", "actualiza tus datos",
			"confirma tu identidad", "accion requerida", "action required",
			"important update required", "evita la suspension",
			"evita la suspensión", "riesgo de bloqueo", "suspenderemos tu cuenta",
		},
		Extensions: map[string]ExtensionRisk{},
		MultiLevelSuffixes: []string{
			"co.uk", "com.au", "com.br", "com.ar", "com.mx", "com.tr", "com.cn",
			"com.sa", "com.eg", "com.ve", "com.co", "com.pe", "com.cl",
		},
		DomainAliases: map[string]string{
			"c.gle":                   "google.com",
			"g.co":                    "google.com",
			"googlemail.com":          "google.com",
			"gmail.com":               "google.com",
			"youtube.com":             "google.com",
			"yt.be":                   "google.com",
			"1e100.net":               "google.com",
			"facebookmail.com":        "facebook.com",
			"fb.com":                  "facebook.com",
			"messaging.microsoft.com": "microsoft.com",
			"outlook.com":             "microsoft.com",
			"office365.com":           "microsoft.com",
		},
		TrustedGroups: [][]string{
			{"google.com", "gmail.com", "googlemail.com", "g.co", "c.gle", "youtube.com", "yt.be", "android.com", "withgoogle.com", "googleapis.com", "1e100.net"},
			{"facebook.com", "facebookmail.com", "fb.com", "meta.com", "instagram.com", "whatsapp.com"},
			{"microsoft.com", "outlook.com", "office.com", "office365.com", "microsoftonline.com", "live.com"},
			{"apple.com", "icloud.com", "me.com"},
		},
	}
	for _, ext := range []string{".exe", ".scr", ".bat", ".cmd", ".js", ".vbs", ".jar", ".ps1", ".hta", ".lnk", ".msi", ".apk"} {
		t.Extensions[ext] = RiskExecutable
	}
	for _, ext := range []string{".docm", ".xlsm", ".pptm"} {
		t.Extensions[ext] = RiskMacro
	}
	for _, ext := range []string{".zip", ".rar", ".iso", ".img"} {
		t.Extensions[ext] = RiskArchive
	}
	return t
}

// ExtensionRisk returns the tier of a lowercase extension such as ".exe"
func (t *Tables) ExtensionRisk(ext string) ExtensionRisk {
	return t.Extensions[strings.ToLower(ext)]
}

// fileTables is the on-disk YAML shape
type fileTables struct {
	Version            string              `yaml:"version"`
	UrgencyWords       []string            `yaml:"urgency_words"`
	EmphasisPhrases    []string            `yaml:"emphasis_phrases"`
	Extensions         map[string][]string `yaml:"extensions"`
	MultiLevelSuffixes []string            `yaml:"multi_level_suffixes"`
	DomainAliases      map[string]string   `yaml:"domain_aliases"`
	TrustedGroups      [][]string          `yaml:"trusted_groups"`
}

// Load reads a YAML tables file. Sections missing from the file keep the
// built-in defaults; sections present replace them entirely.
func Load(path string) (*Tables, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read lexicon file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML tables on top of the defaults
func Parse(data []byte) (*Tables, error) {
	var ft fileTables
	if err := yaml.Unmarshal(data, &ft); err != nil {
		return nil, fmt.Errorf("failed to parse lexicon file: %w", err)
	}

	t := Default()
	if ft.Version == "" {
		return nil, fmt.Errorf("lexicon file has no version")
	}
	t.Version = ft.Version
	if ft.UrgencyWords != nil {
		t.UrgencyWords = ft.UrgencyWords
	}
	if ft.EmphasisPhrases != nil {
		t.EmphasisPhrases = ft.EmphasisPhrases
	}
	if ft.Extensions != nil {
		t.Extensions = make(map[string]ExtensionRisk)
		for name, exts := range ft.Extensions {
			risk, err := ParseExtensionRisk(name)
			if err != nil {
				return nil, err
			}
			// an extension listed under two tiers keeps the higher one
			for _, ext := range exts {
				ext = strings.ToLower(strings.TrimSpace(ext))
				if !strings.HasPrefix(ext, ".") {
					ext = "." + ext
				}
				if risk > t.Extensions[ext] {
					t.Extensions[ext] = risk
				}
			}
		}
	}
	if ft.MultiLevelSuffixes != nil {
		t.MultiLevelSuffixes = ft.MultiLevelSuffixes
	}
	if ft.DomainAliases != nil {
		t.DomainAliases = ft.DomainAliases
	}
	if ft.TrustedGroups != nil {
		t.TrustedGroups = ft.TrustedGroups
	}
	return t, nil
}
