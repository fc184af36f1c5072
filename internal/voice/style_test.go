package voice

import "testing"

var testVoiceDefaults = VoiceDefaults{Speed: 5, Pitch: 5, Volume: 5, Person: 0}

func TestResolveStyleRouting(t *testing.T) {
	cases := []struct {
		name     string
		style    string
		language string
		want     VoiceConfig
	}{
		{
			name:     "chinese standard stays on baidu",
			style:    StyleStandard,
			language: "Chinese",
			want:     VoiceConfig{Provider: ProviderBaidu, Speed: 5, Pitch: 5, Volume: 5, Person: 0, Language: "Chinese", LangCode: "zh"},
		},
		{
			name:     "chinese soft keeps baidu preset",
			style:    StyleSoft,
			language: "Chinese",
			want:     VoiceConfig{Provider: ProviderBaidu, Speed: 4, Pitch: 6, Volume: 5, Person: 4, Language: "Chinese", LangCode: "zh"},
		},
		{
			name:     "chinese volcano style is remapped onto baidu",
			style:    StyleVolcano,
			language: "Chinese",
			want:     VoiceConfig{Provider: ProviderBaidu, Speed: 5, Pitch: 5, Volume: 15, Person: 0, Language: "Chinese", LangCode: "zh"},
		},
		{
			name:     "english volcano style",
			style:    StyleVolcano,
			language: "English",
			want:     VoiceConfig{Provider: ProviderVolcano, VoiceID: "BV702_streaming", SpeedRatio: 1, PitchRatio: 1, Language: "English", LangCode: "en"},
		},
		{
			name:     "english energetic converts to ratios",
			style:    StyleEnergetic,
			language: "English",
			want:     VoiceConfig{Provider: ProviderVolcano, VoiceID: "BV702_streaming", SpeedRatio: 1.2, PitchRatio: 1.2, Language: "English", LangCode: "en"},
		},
		{
			name:     "japanese uses cancan",
			style:    StyleVolcano,
			language: "Japanese",
			want:     VoiceConfig{Provider: ProviderVolcano, VoiceID: "BV700_streaming", SpeedRatio: 1, PitchRatio: 1, Language: "Japanese", LangCode: "ja"},
		},
		{
			name:     "french is sent as english",
			style:    StyleStandard,
			language: "French",
			want:     VoiceConfig{Provider: ProviderVolcano, VoiceID: "BV700_streaming", SpeedRatio: 1, PitchRatio: 1, Language: "French", LangCode: "en"},
		},
		{
			name:     "unknown style falls back to standard",
			style:    "Whisper",
			language: "Chinese",
			want:     VoiceConfig{Provider: ProviderBaidu, Speed: 5, Pitch: 5, Volume: 5, Person: 0, Language: "Chinese", LangCode: "zh"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ResolveStyle(tc.style, tc.language, testVoiceDefaults)
			if got != tc.want {
				t.Fatalf("ResolveStyle(%q, %q) = %+v, want %+v", tc.style, tc.language, got, tc.want)
			}
		})
	}
}

func TestChineseAlwaysUsesBaidu(t *testing.T) {
	for _, s := range Styles(testVoiceDefaults) {
		if got := ResolveStyle(s.Name, "Chinese", testVoiceDefaults); got.Provider != ProviderBaidu {
			t.Fatalf("ResolveStyle(%q, Chinese).Provider = %q, want baidu", s.Name, got.Provider)
		}
	}
}

func TestLookupStyle(t *testing.T) {
	if s, ok := LookupStyle("soft female voice", testVoiceDefaults); !ok || s.Name != StyleSoft {
		t.Fatalf("LookupStyle() = %+v, %v; want soft style", s, ok)
	}
	if s, ok := LookupStyle("", testVoiceDefaults); ok || s.Name != StyleStandard {
		t.Fatalf("LookupStyle(\"\") = %+v, %v; want standard fallback", s, ok)
	}
}
