package voice

import (
	"strings"

	"github.com/ent0n29/mbtivoice/internal/baidu"
	"github.com/ent0n29/mbtivoice/internal/volcano"
)

type Provider string

const (
	ProviderBaidu   Provider = "baidu"
	ProviderVolcano Provider = "volcano"
)

// Style names offered to users.
const (
	StyleStandard  = "Standard Voice"
	StyleSoft      = "Soft Female Voice"
	StyleEnergetic = "Energetic Male Voice"
	StyleVolcano   = "Volcano Engine TTS"
)

// baiduLanguage is always synthesized by Baidu whatever the style says.
const baiduLanguage = "Chinese"

// Style is a named voice preset as declared, before language routing.
type Style struct {
	Name     string   `json:"name"`
	Provider Provider `json:"provider"`
	// Baidu scale, 0..15.
	Speed  int `json:"speed,omitempty"`
	Pitch  int `json:"pitch,omitempty"`
	Person int `json:"person,omitempty"`
	// Volcano ratios.
	SpeedRatio float64 `json:"speed_ratio,omitempty"`
	PitchRatio float64 `json:"pitch_ratio,omitempty"`
}

// VoiceDefaults are the configured Baidu parameters used by the standard style.
type VoiceDefaults struct {
	Speed  int
	Pitch  int
	Volume int
	Person int
}

// VoiceConfig is a style resolved against a target language.
type VoiceConfig struct {
	Provider   Provider `json:"provider"`
	VoiceID    string   `json:"voice_id,omitempty"`
	Speed      int      `json:"speed"`
	Pitch      int      `json:"pitch"`
	Volume     int      `json:"volume"`
	Person     int      `json:"person"`
	SpeedRatio float64  `json:"speed_ratio"`
	PitchRatio float64  `json:"pitch_ratio"`
	Language   string   `json:"language"`
	LangCode   string   `json:"lang_code"`
}

// Styles returns the presets in display order.
func Styles(def VoiceDefaults) []Style {
	return []Style{
		{Name: StyleStandard, Provider: ProviderBaidu, Speed: def.Speed, Pitch: def.Pitch, Person: def.Person},
		{Name: StyleSoft, Provider: ProviderBaidu, Speed: 4, Pitch: 6, Person: 4},
		{Name: StyleEnergetic, Provider: ProviderBaidu, Speed: 6, Pitch: 6, Person: 3},
		{Name: StyleVolcano, Provider: ProviderVolcano, SpeedRatio: 1.0, PitchRatio: 1.0},
	}
}

// LookupStyle finds a preset by name; unknown names resolve to the standard style.
func LookupStyle(name string, def VoiceDefaults) (Style, bool) {
	styles := Styles(def)
	name = strings.TrimSpace(name)
	for _, s := range styles {
		if strings.EqualFold(s.Name, name) {
			return s, true
		}
	}
	return styles[0], false
}

// ResolveStyle picks the provider for language and translates the preset's
// parameters onto that provider's scale.
func ResolveStyle(style, language string, def VoiceDefaults) VoiceConfig {
	s, _ := LookupStyle(style, def)
	if strings.EqualFold(strings.TrimSpace(language), baiduLanguage) {
		return resolveBaidu(s, language, def)
	}
	return resolveVolcano(s, language)
}

func resolveBaidu(s Style, language string, def VoiceDefaults) VoiceConfig {
	cfg := VoiceConfig{
		Provider: ProviderBaidu,
		Speed:    s.Speed,
		Pitch:    s.Pitch,
		Volume:   def.Volume,
		Person:   s.Person,
		Language: language,
		LangCode: baidu.LangCode(language),
	}
	if s.Provider == ProviderVolcano {
		cfg.Speed = int(s.SpeedRatio * 5)
		cfg.Pitch = int(s.PitchRatio * 5)
		cfg.Volume = 15
		cfg.Person = 0
	}
	return cfg
}

func resolveVolcano(s Style, language string) VoiceConfig {
	cfg := VoiceConfig{
		Provider:   ProviderVolcano,
		VoiceID:    volcano.DefaultVoice(language),
		SpeedRatio: s.SpeedRatio,
		PitchRatio: s.PitchRatio,
		Language:   language,
		LangCode:   volcano.LangCode(language),
	}
	if s.Provider == ProviderBaidu {
		cfg.SpeedRatio = float64(s.Speed) / 5
		cfg.PitchRatio = float64(s.Pitch) / 5
	}
	return cfg
}
