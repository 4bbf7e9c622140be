// Package settings holds the user-facing transcription preferences and their
// persistent store.
package settings

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/rbright/colloquy/internal/enhance"
)

var ErrUnknownKey = errors.New("unknown setting")

// Setting keys accepted by Apply and persisted by Store.
const (
	KeyLanguage          = "language"
	KeyNoiseReduction    = "noise_reduction"
	KeyEnhancementModel  = "enhancement_model"
	KeyNativeRecognition = "native_recognition"
	KeyAudioInput        = "audio_input"
)

// Keys lists every setting in display order.
var Keys = []string{
	KeyLanguage,
	KeyNoiseReduction,
	KeyEnhancementModel,
	KeyNativeRecognition,
	KeyAudioInput,
}

var languageTag = regexp.MustCompile(`^[A-Za-z]{2,3}(?:-[A-Za-z0-9]{2,8})*$`)

// Settings are persisted user preferences.
type Settings struct {
	Language          string          `json:"language"`
	NoiseReduction    int             `json:"noiseReduction"`
	EnhancementModel  enhance.Profile `json:"enhancementModel"`
	NativeRecognition bool            `json:"nativeRecognition"`
	AudioInput        string          `json:"audioInput"`
}

// Defaults returns the initial settings.
func Defaults() Settings {
	return Settings{
		Language:          "en-US",
		NoiseReduction:    50,
		EnhancementModel:  enhance.ProfileBalanced,
		NativeRecognition: false,
		AudioInput:        "default",
	}
}

// CanonicalKey maps aliases (camelCase, dashes) onto a setting key.
func CanonicalKey(raw string) (string, error) {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.ReplaceAll(key, "-", "_")
	switch key {
	case KeyLanguage, "lang":
		return KeyLanguage, nil
	case KeyNoiseReduction, "noisereduction", "noise":
		return KeyNoiseReduction, nil
	case KeyEnhancementModel, "enhancementmodel", "model", "ai_model", "aimodel":
		return KeyEnhancementModel, nil
	case KeyNativeRecognition, "nativerecognition", "native":
		return KeyNativeRecognition, nil
	case KeyAudioInput, "audioinput", "input":
		return KeyAudioInput, nil
	default:
		return "", fmt.Errorf("%w %q", ErrUnknownKey, raw)
	}
}

// Apply returns s with one key changed. s itself is not modified.
func (s Settings) Apply(key string, value string) (Settings, error) {
	canonical, err := CanonicalKey(key)
	if err != nil {
		return s, err
	}
	value = strings.TrimSpace(value)

	switch canonical {
	case KeyLanguage:
		if !languageTag.MatchString(value) {
			return s, fmt.Errorf("language %q is not a language tag", value)
		}
		s.Language = value
	case KeyNoiseReduction:
		n, err := strconv.Atoi(strings.TrimSuffix(value, "%"))
		if err != nil {
			return s, fmt.Errorf("noise_reduction must be an integer: %w", err)
		}
		if n < 0 || n > 100 {
			return s, fmt.Errorf("noise_reduction must be between 0 and 100, got %d", n)
		}
		s.NoiseReduction = n
	case KeyEnhancementModel:
		profile, err := enhance.ParseProfile(value)
		if err != nil {
			return s, err
		}
		s.EnhancementModel = profile
	case KeyNativeRecognition:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return s, fmt.Errorf("native_recognition must be a boolean: %w", err)
		}
		s.NativeRecognition = b
	case KeyAudioInput:
		if value == "" {
			return s, errors.New("audio_input must not be empty")
		}
		s.AudioInput = value
	}
	return s, nil
}

// Get renders one setting value as text.
func (s Settings) Get(key string) (string, error) {
	canonical, err := CanonicalKey(key)
	if err != nil {
		return "", err
	}
	switch canonical {
	case KeyLanguage:
		return s.Language, nil
	case KeyNoiseReduction:
		return strconv.Itoa(s.NoiseReduction), nil
	case KeyEnhancementModel:
		return string(s.EnhancementModel), nil
	case KeyNativeRecognition:
		return strconv.FormatBool(s.NativeRecognition), nil
	default:
		return s.AudioInput, nil
	}
}

// Values returns every setting as key/value text in display order.
func (s Settings) Values() [][2]string {
	out := make([][2]string, 0, len(Keys))
	for _, key := range Keys {
		v, _ := s.Get(key)
		out = append(out, [2]string{key, v})
	}
	return out
}

// String renders "key = value" lines.
func (s Settings) String() string {
	var b strings.Builder
	for _, kv := range s.Values() {
		fmt.Fprintf(&b, "%s = %s\n", kv[0], kv[1])
	}
	return b.String()
}
