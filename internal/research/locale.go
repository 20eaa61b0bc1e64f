package research

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Labels are the section markers the generation service is instructed to emit.
// Matching is case-insensitive; the trailing colon is part of the label.
type Labels struct {
	RequestType string `yaml:"request_type"`
	Summary     string `yaml:"summary"`
	MainContent string `yaml:"main_content"`
	Notes       string `yaml:"notes"`
}

// Locale bundles every user-facing string the core produces or recognises.
type Locale struct {
	Name   string `yaml:"name"`
	Labels Labels `yaml:"labels"`

	DefaultTitle    string `yaml:"default_title"`
	GeneralType     string `yaml:"general_type"`
	NewSessionTitle string `yaml:"new_session_title"`
	FallbackReply   string `yaml:"fallback_reply"`

	// KnownTypes is the closed set of classification tags. The parsed type is
	// not restricted to it.
	KnownTypes        []string `yaml:"known_types"`
	SystemInstruction string   `yaml:"system_instruction"`
}

func English() Locale {
	return Locale{
		Name: "en",
		Labels: Labels{
			RequestType: "Request Type:",
			Summary:     "Short Summary:",
			MainContent: "Main Content:",
			Notes:       "Academic Notes:",
		},
		DefaultTitle:    "Academic Research Result",
		GeneralType:     "general",
		NewSessionTitle: "New Research Discussion",
		FallbackReply:   "We're sorry, something went wrong while contacting the knowledge repository. Please try again in a moment.",
		KnownTypes: []string{
			"journal search",
			"journal summary",
			"lab report",
			"concept explanation",
		},
		SystemInstruction: strings.Join([]string{
			"You are a professional AI research assistant.",
			"Goal: provide efficient, trustworthy academic research help that follows academic conventions.",
			"",
			"Rules:",
			"1. Use formal academic English.",
			"2. Stay objective, neutral and grounded in scientific reasoning.",
			"3. Never invent references, journal titles or data.",
			"4. When a specific source is unavailable, explain conceptually and state the limitation.",
			"5. Do not copy journal text verbatim.",
			"",
			"Required output structure:",
			"[Response Title]",
			"Request Type: (journal search / journal summary / lab report / concept explanation)",
			"Short Summary: (2-3 sentence overview)",
			"Main Content: (organised with subheadings and points, following academic structure)",
			"Academic Notes: (1. information limits, 2. suggestions for use or further work)",
			"",
			"When the user looks for journals, use the search tool and list valid URLs.",
		}, "\n"),
	}
}

func Indonesian() Locale {
	return Locale{
		Name: "id",
		Labels: Labels{
			RequestType: "Jenis Permintaan:",
			Summary:     "Ringkasan Singkat:",
			MainContent: "Isi Utama:",
			Notes:       "Catatan Akademik:",
		},
		DefaultTitle:    "Hasil Riset Akademik",
		GeneralType:     "umum",
		NewSessionTitle: "Diskusi Riset Baru",
		FallbackReply:   "Mohon maaf, terjadi gangguan saat menghubungi repositori pengetahuan. Silakan coba beberapa saat lagi.",
		KnownTypes: []string{
			"pencarian jurnal",
			"ringkasan jurnal",
			"laporan praktikum",
			"penjelasan konsep",
		},
		SystemInstruction: strings.Join([]string{
			"Anda adalah AI Research Assistant profesional.",
			"TUJUAN: Memberikan bantuan riset akademik yang efisien, terpercaya, dan sesuai kaidah akademik.",
			"",
			"ATURAN UTAMA:",
			"1. Gunakan Bahasa Indonesia formal akademik.",
			"2. Objektif, netral, dan berbasis penalaran ilmiah.",
			"3. JANGAN PERNAH membuat referensi, judul jurnal, atau data fiktif.",
			"4. Jika sumber spesifik tidak tersedia, jelaskan secara konseptual dan nyatakan keterbatasan.",
			"5. Jangan menyalin teks jurnal secara verbatim.",
			"",
			"STRUKTUR OUTPUT WAJIB:",
			"[Judul Respons]",
			"Jenis Permintaan: (pencarian jurnal / ringkasan jurnal / laporan praktikum / penjelasan konsep)",
			"Ringkasan Singkat: (2-3 kalimat overview)",
			"Isi Utama: (Disusun dengan subjudul dan poin, menggunakan struktur akademik)",
			"Catatan Akademik: (1. Batasan informasi, 2. Saran penggunaan/pengembangan)",
			"",
			"Jika pengguna mencari jurnal, gunakan alat pencarian dan berikan daftar URL yang valid.",
		}, "\n"),
	}
}

// LocaleByName returns a built-in locale. Unknown names fall back to Indonesian,
// the deployed locale.
func LocaleByName(name string) Locale {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "en", "english":
		return English()
	default:
		return Indonesian()
	}
}

// LoadLocale reads a YAML locale file and overlays its non-empty fields on base.
func LoadLocale(path string, base Locale) (Locale, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Locale{}, fmt.Errorf("research: read locale %q: %w", path, err)
	}
	var file Locale
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return Locale{}, fmt.Errorf("research: decode locale %q: %w", path, err)
	}
	return base.overlay(file), nil
}

func (l Locale) overlay(o Locale) Locale {
	pick := func(dst *string, v string) {
		if strings.TrimSpace(v) != "" {
			*dst = v
		}
	}
	pick(&l.Name, o.Name)
	pick(&l.Labels.RequestType, o.Labels.RequestType)
	pick(&l.Labels.Summary, o.Labels.Summary)
	pick(&l.Labels.MainContent, o.Labels.MainContent)
	pick(&l.Labels.Notes, o.Labels.Notes)
	pick(&l.DefaultTitle, o.DefaultTitle)
	pick(&l.GeneralType, o.GeneralType)
	pick(&l.NewSessionTitle, o.NewSessionTitle)
	pick(&l.FallbackReply, o.FallbackReply)
	pick(&l.SystemInstruction, o.SystemInstruction)
	if len(o.KnownTypes) > 0 {
		l.KnownTypes = append([]string(nil), o.KnownTypes...)
	}
	return l
}

// Known reports whether tag is one of the locale's classification tags,
// including the catch-all.
func (l Locale) Known(tag string) bool {
	tag = strings.ToLower(strings.TrimSpace(tag))
	if tag == strings.ToLower(l.GeneralType) {
		return true
	}
	for _, k := range l.KnownTypes {
		if strings.ToLower(k) == tag {
			return true
		}
	}
	return false
}
