package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rbright/colloquy/internal/enhance"
)

type jsoncConfig struct {
	Recognition *jsoncRecognition `json:"recognition"`
	Enhancement *jsoncEnhancement `json:"enhancement"`
	VAD         *jsoncVAD         `json:"vad"`
	Audio       *jsoncAudio       `json:"audio"`
	Indicator   *jsoncIndicator   `json:"indicator"`
	Bluetooth   *jsoncBluetooth   `json:"bluetooth"`

	ClipboardCmd *string `json:"clipboard_cmd"`
	SettingsDB   *string `json:"settings_db"`
}

type jsoncRecognition struct {
	GRPC           *string `json:"grpc"`
	DialTimeoutMS  *int    `json:"dial_timeout_ms"`
	RestartDelayMS *int    `json:"restart_delay_ms"`
}

type jsoncEnhancement struct {
	Backend       *string        `json:"backend"`
	GRPC          *string        `json:"grpc"`
	CallTimeoutMS *int           `json:"call_timeout_ms"`
	LatencyMS     map[string]int `json:"latency_ms"`
}

type jsoncVAD struct {
	Threshold        *float64 `json:"threshold"`
	ConfirmWindows   *int     `json:"confirm_windows"`
	SilenceTimeoutMS *int     `json:"silence_timeout_ms"`
}

type jsoncAudio struct {
	Fallback *string `json:"fallback"`
}

type jsoncIndicator struct {
	Enable         *bool   `json:"enable"`
	Backend        *string `json:"backend"`
	DesktopAppName *string `json:"desktop_app_name"`
	SoundEnable    *bool   `json:"sound_enable"`
	ErrorTimeoutMS *int    `json:"error_timeout_ms"`
}

type jsoncBluetooth struct {
	Services      *jsoncStringList `json:"services"`
	ScanTimeoutMS *int             `json:"scan_timeout_ms"`
}

type jsoncStringList []string

func (l *jsoncStringList) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*l = list
		return nil
	}

	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		out := make([]string, 0)
		for part := range strings.SplitSeq(single, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		*l = out
		return nil
	}

	return fmt.Errorf("expected string array or comma-delimited string")
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func (payload jsoncConfig) applyTo(cfg *Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if r := payload.Recognition; r != nil {
		if r.GRPC != nil {
			cfg.Recognition.GRPC = strings.TrimSpace(*r.GRPC)
		}
		if r.DialTimeoutMS != nil {
			cfg.Recognition.DialTimeout = millis(*r.DialTimeoutMS)
		}
		if r.RestartDelayMS != nil {
			cfg.Recognition.RestartDelay = millis(*r.RestartDelayMS)
		}
	}

	if e := payload.Enhancement; e != nil {
		if e.Backend != nil {
			cfg.Enhancement.Backend = strings.ToLower(strings.TrimSpace(*e.Backend))
		}
		if e.GRPC != nil {
			cfg.Enhancement.GRPC = strings.TrimSpace(*e.GRPC)
		}
		if e.CallTimeoutMS != nil {
			cfg.Enhancement.CallTimeout = millis(*e.CallTimeoutMS)
		}
		for name, ms := range e.LatencyMS {
			profile, err := enhance.ParseProfile(name)
			if err != nil {
				warnings = append(warnings, Warning{Message: fmt.Sprintf("enhancement.latency_ms: %v; entry ignored", err)})
				continue
			}
			if cfg.Enhancement.Latencies == nil {
				cfg.Enhancement.Latencies = make(map[enhance.Profile]time.Duration)
			}
			cfg.Enhancement.Latencies[profile] = millis(ms)
		}
	}

	if v := payload.VAD; v != nil {
		if v.Threshold != nil {
			cfg.VAD.Threshold = *v.Threshold
		}
		if v.ConfirmWindows != nil {
			cfg.VAD.ConfirmWindows = *v.ConfirmWindows
		}
		if v.SilenceTimeoutMS != nil {
			cfg.VAD.SilenceTimeout = millis(*v.SilenceTimeoutMS)
		}
	}

	if payload.Audio != nil && payload.Audio.Fallback != nil {
		cfg.Audio.Fallback = strings.TrimSpace(*payload.Audio.Fallback)
	}

	if ind := payload.Indicator; ind != nil {
		if ind.Enable != nil {
			cfg.Indicator.Enable = *ind.Enable
		}
		if ind.Backend != nil {
			cfg.Indicator.Backend = strings.TrimSpace(*ind.Backend)
		}
		if ind.DesktopAppName != nil {
			cfg.Indicator.DesktopAppName = strings.TrimSpace(*ind.DesktopAppName)
		}
		if ind.SoundEnable != nil {
			cfg.Indicator.SoundEnable = *ind.SoundEnable
		}
		if ind.ErrorTimeoutMS != nil {
			cfg.Indicator.ErrorTimeoutMS = *ind.ErrorTimeoutMS
		}
	}

	if bt := payload.Bluetooth; bt != nil {
		if bt.Services != nil {
			cfg.Bluetooth.Services = cfg.Bluetooth.Services[:0]
			for _, svc := range *bt.Services {
				if svc = strings.ToLower(strings.TrimSpace(svc)); svc != "" {
					cfg.Bluetooth.Services = append(cfg.Bluetooth.Services, svc)
				}
			}
		}
		if bt.ScanTimeoutMS != nil {
			cfg.Bluetooth.ScanTimeout = millis(*bt.ScanTimeoutMS)
		}
	}

	if payload.ClipboardCmd != nil {
		raw := *payload.ClipboardCmd
		argv, err := parseArgv(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid clipboard_cmd: %w", err)
		}
		cfg.Clipboard = CommandConfig{Raw: raw, Argv: argv}
	}

	if payload.SettingsDB != nil {
		cfg.SettingsDB = strings.TrimSpace(*payload.SettingsDB)
	}

	return warnings, nil
}

// normalizeJSONC blanks out comments and trailing commas in place so decoder
// offsets still map onto the original text.
func normalizeJSONC(content string) (string, error) {
	out := []byte(content)

	const (
		code = iota
		str
		lineComment
		blockComment
	)
	state := code
	escape := false
	pendingComma := -1

	blank := func(i int) {
		if out[i] != '\n' && out[i] != '\r' && out[i] != '\t' {
			out[i] = ' '
		}
	}

	for i := 0; i < len(out); i++ {
		ch := out[i]
		switch state {
		case str:
			switch {
			case escape:
				escape = false
			case ch == '\\':
				escape = true
			case ch == '"':
				state = code
			}
		case lineComment:
			if ch == '\n' || ch == '\r' {
				state = code
				continue
			}
			blank(i)
		case blockComment:
			if ch == '*' && i+1 < len(out) && out[i+1] == '/' {
				out[i], out[i+1] = ' ', ' '
				i++
				state = code
				continue
			}
			blank(i)
		default:
			switch {
			case ch == '/' && i+1 < len(out) && out[i+1] == '/':
				out[i], out[i+1] = ' ', ' '
				i++
				state = lineComment
			case ch == '/' && i+1 < len(out) && out[i+1] == '*':
				out[i], out[i+1] = ' ', ' '
				i++
				state = blockComment
			case isJSONWhitespace(ch):
			case ch == ',':
				pendingComma = i
			default:
				if pendingComma >= 0 && (ch == '}' || ch == ']') {
					out[pendingComma] = ' '
				}
				pendingComma = -1
				if ch == '"' {
					state = str
				}
			}
		}
	}

	if state == blockComment {
		return "", fmt.Errorf("unterminated block comment in JSONC")
	}
	return string(out), nil
}

func isJSONWhitespace(ch byte) bool {
	switch ch {
	case ' ', '\n', '\r', '\t':
		return true
	default:
		return false
	}
}
