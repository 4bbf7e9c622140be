package tui

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/rbright/colloquy/internal/audio"
	"github.com/rbright/colloquy/internal/session"
	"github.com/rbright/colloquy/internal/transcript"
)

var barGlyphs = []rune("▁▂▃▄▅▆▇█")

// View renders the full dialog.
func (m Model) View() string {
	width := m.width
	if width == 0 {
		width = 80
	}

	sections := []string{
		m.renderHeader(),
		m.renderStatus(),
		renderBars(m.snap.Bars),
		dividerStyle.Render(strings.Repeat("─", width)),
	}
	sections = append(sections, m.renderDialog(width)...)
	sections = append(sections, dividerStyle.Render(strings.Repeat("─", width)))
	if line := m.renderNotice(); line != "" {
		sections = append(sections, line)
	}
	sections = append(sections, m.renderFooter())
	return strings.Join(sections, "\n")
}

func (m Model) renderHeader() string {
	title := titleStyle.Render("colloquy")
	info := fmt.Sprintf(" %s | %d entries | speaker %s", m.snap.Mode, m.snap.Count, m.speakerLabel())
	if m.snap.Device != "" {
		info += " | " + m.snap.Device
	}
	bt := session.NoBluetooth
	if m.snap.Bluetooth != "" {
		bt = "BLE " + m.snap.Bluetooth
	}
	return title + dimStyle.Render(info+" | "+bt)
}

func (m Model) speakerLabel() string {
	if m.snap.Speaker == "" || m.snap.Speaker == transcript.Auto {
		return transcript.Auto
	}
	return m.speakers.Name(m.snap.Speaker)
}

func (m Model) renderStatus() string {
	dot := readyDotStyle.Render("●")
	if m.snap.Status.Kind == session.StatusRecording {
		dot = recordingDotStyle.Render("●")
	}
	text := m.snap.Status.Text
	if text == "" {
		text = session.TextReady
	}
	line := dot + " " + text
	if m.snap.Processing {
		line += "  " + processingStyle.Render(fmt.Sprintf("⟳ enhancing (%d queued)", m.snap.Pending))
	}
	s := m.snap.Settings
	line += dimStyle.Render(fmt.Sprintf("  %s | noise %d%% | %s", s.Language, s.NoiseReduction, s.EnhancementModel))
	return line
}

func renderBars(bars []audio.Bar) string {
	if len(bars) == 0 {
		bars = audio.Baseline()
	}
	var b strings.Builder
	for _, bar := range bars {
		ratio := (bar.Height - audio.BaselineHeight) / (audio.MaxBarHeight - audio.BaselineHeight)
		idx := int(math.Round(math.Max(0, math.Min(1, ratio)) * float64(len(barGlyphs)-1)))
		glyph := string(barGlyphs[idx])
		if bar.Active {
			b.WriteString(barActiveStyle.Render(glyph))
		} else {
			b.WriteString(barIdleStyle.Render(glyph))
		}
	}
	return b.String()
}

func (m Model) renderDialog(width int) []string {
	visible := 20
	if m.height > 0 {
		visible = max(3, m.height-8)
	}

	var lines []string
	if len(m.entries) == 0 && m.snap.Interim == "" {
		lines = append(lines, dimStyle.Render("  Press space to start transcribing"))
	}
	for _, e := range m.entries {
		lines = append(lines, m.renderEntry(e, width)...)
	}
	if m.snap.Interim != "" {
		lines = append(lines, interimStyle.Render("  … "+m.snap.Interim))
	}

	if len(lines) > visible {
		lines = lines[len(lines)-visible:]
	}
	for len(lines) < visible {
		lines = append(lines, "")
	}
	return lines
}

// renderEntry draws one dialog bubble: badge, name, time, confidence and
// the wrapped text beneath.
func (m Model) renderEntry(e transcript.Entry, width int) []string {
	speaker, ok := m.speakers.Lookup(e.Speaker)
	if !ok {
		speaker = transcript.Speaker{ID: e.Speaker, Name: "Unknown", Color: e.Speaker}
	}
	initials := speaker.Initials()
	if initials == "" {
		initials = "?"
	}

	level := e.ConfidenceLevel()
	confidence := confidenceStyles[level].Render(fmt.Sprintf("%d%%", int(math.Round(e.Confidence*100))))
	head := badgeStyle(speaker.Color).Render(initials) + " " +
		speakerNameStyle(speaker.Color).Render(speaker.Name) + " " +
		timestampStyle.Render(e.Timestamp.Format("15:04:05")) + " " + confidence

	body := lipgloss.NewStyle().Width(max(20, width-6)).Render(e.Text)
	lines := []string{"  " + head}
	for line := range strings.SplitSeq(body, "\n") {
		lines = append(lines, "     "+strings.TrimRight(line, " "))
	}
	return lines
}

func (m Model) renderNotice() string {
	switch {
	case m.confirming:
		return promptStyle.Render(transcript.ClearPrompt + " (y/n)")
	case m.errText != "":
		return noticeStyles["error"].Render(m.errText)
	case m.snap.Notice.Text != "":
		style, ok := noticeStyles[string(m.snap.Notice.Level)]
		if !ok {
			style = dimStyle
		}
		return style.Render(m.snap.Notice.Text)
	case m.replyText != "":
		return dimStyle.Render(m.replyText)
	}
	return ""
}

func (m Model) renderFooter() string {
	action := " Start"
	if m.snap.Status.Kind == session.StatusRecording || m.snap.Holding {
		action = " Stop"
	}
	pairs := [][2]string{
		{"space", action},
		{"m", " Mode"},
		{"s", " Speaker"},
		{"a", " Model"},
		{"[ ]", " Noise"},
		{"c", " Copy"},
		{"e", " Export"},
		{"x", " Clear"},
		{"b", " Pair"},
		{"q", " Quit"},
	}
	parts := make([]string, 0, len(pairs))
	for _, p := range pairs {
		parts = append(parts, footerKeyStyle.Render(p[0])+footerDescStyle.Render(p[1]))
	}
	return strings.Join(parts, "  ")
}
