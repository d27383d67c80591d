// SPDX-License-Identifier: MIT
package tui

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/SoundWareInc/spectral-compressor/internal/spectral"
)

const (
	meterRefresh   = 50 * time.Millisecond
	spectrumCols   = 48
	spectrumHeight = 8
	maxReductionDB = 24.0 // Display floor for the gain-reduction bars
)

var (
	paramStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#E0E0E0"))

	meterBarStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#25A065"))

	reductionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#D06060"))

	axisStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#707070"))
)

// Bypasser is the slice of the audio stream the meter view needs: the
// ability to toggle the compressor in and out of the signal path.
type Bypasser interface {
	SetBypassed(bypassed bool)
}

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(meterRefresh, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// MeterModel is the live view: per-band gain reduction, I/O peaks, and
// keyboard control over the compressor parameters.
type MeterModel struct {
	engine   *spectral.Engine
	bypasser Bypasser

	reduction []float64 // Reused snapshot buffer
	bins      int
	inPeak    float64
	outPeak   float64
	bypassed  bool

	width  int
	height int
}

// NewMeterModel builds the meter view around a prepared engine. The
// bypasser may be nil when there is no live stream to toggle.
func NewMeterModel(engine *spectral.Engine, bypasser Bypasser) MeterModel {
	return MeterModel{
		engine:    engine,
		bypasser:  bypasser,
		reduction: make([]float64, 1<<(spectral.MaxWindowOrder-1)),
	}
}

func (m MeterModel) Init() tea.Cmd {
	return tick()
}

func (m MeterModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		m.bins = m.engine.GainReduction(m.reduction)
		m.inPeak, m.outPeak = m.engine.Peaks()
		return m, tick()

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m MeterModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	e := m.engine
	switch {
	case key.Matches(msg, key.NewBinding(key.WithKeys("q", "ctrl+c"))):
		return m, tea.Quit

	case key.Matches(msg, key.NewBinding(key.WithKeys("up"))):
		e.SetRatio(e.Ratio() + 1)
	case key.Matches(msg, key.NewBinding(key.WithKeys("down"))):
		e.SetRatio(e.Ratio() - 1)

	case key.Matches(msg, key.NewBinding(key.WithKeys("a"))):
		e.SetAttack(e.Attack() - 10)
	case key.Matches(msg, key.NewBinding(key.WithKeys("A"))):
		e.SetAttack(e.Attack() + 10)

	case key.Matches(msg, key.NewBinding(key.WithKeys("r"))):
		e.SetRelease(e.ReleaseTime() - 100)
	case key.Matches(msg, key.NewBinding(key.WithKeys("R"))):
		e.SetRelease(e.ReleaseTime() + 100)

	case key.Matches(msg, key.NewBinding(key.WithKeys("["))):
		e.SetWindowOrder(e.WindowOrder() - 1)
	case key.Matches(msg, key.NewBinding(key.WithKeys("]"))):
		e.SetWindowOrder(e.WindowOrder() + 1)

	case key.Matches(msg, key.NewBinding(key.WithKeys("-"))):
		e.SetOverlapFactor(e.OverlapFactor() / 2)
	case key.Matches(msg, key.NewBinding(key.WithKeys("="))):
		e.SetOverlapFactor(e.OverlapFactor() * 2)

	case key.Matches(msg, key.NewBinding(key.WithKeys("s"))):
		e.SetSidechainActive(!e.SidechainActive())

	case key.Matches(msg, key.NewBinding(key.WithKeys("m"))):
		e.SetAutoMakeupGain(!e.AutoMakeupGain())

	case key.Matches(msg, key.NewBinding(key.WithKeys("b"))):
		if m.bypasser != nil {
			m.bypassed = !m.bypassed
			m.bypasser.SetBypassed(m.bypassed)
		}
	}
	return m, nil
}

func (m MeterModel) View() string {
	var sb strings.Builder

	title := "Spectral Compressor"
	if m.bypassed {
		title += " [BYPASSED]"
	}
	sb.WriteString(titleStyle.Render(title))
	sb.WriteString("\n\n")

	sb.WriteString(m.renderParams())
	sb.WriteString("\n\n")
	sb.WriteString(m.renderSpectrum())
	sb.WriteString("\n")
	sb.WriteString(m.renderPeaks())
	sb.WriteString("\n\n")
	sb.WriteString(infoStyle.Render(
		"↑/↓: Ratio • a/A: Attack • r/R: Release • [/]: Window • -/=: Overlap\n" +
			"s: Sidechain • m: Makeup • b: Bypass • q: Quit"))

	return sb.String()
}

func (m MeterModel) renderParams() string {
	e := m.engine
	onOff := func(v bool) string {
		if v {
			return "on"
		}
		return "off"
	}
	return paramStyle.Render(fmt.Sprintf(
		"Ratio %.0f:1   Attack %.0f ms   Release %.0f ms   Window 2^%d   Overlap %d\n"+
			"Sidechain %s   Auto makeup %s   Latency %d samples",
		e.Ratio(), e.Attack(), e.ReleaseTime(), e.WindowOrder(), e.OverlapFactor(),
		onOff(e.SidechainActive()), onOff(e.AutoMakeupGain()), e.LatencySamples()))
}

// renderSpectrum draws per-band gain reduction as columns hanging down
// from the top, the way a downward GR meter reads on a hardware unit.
// Bins are grouped logarithmically so the low end is not crushed into
// the first column.
func (m MeterModel) renderSpectrum() string {
	if m.bins == 0 {
		return axisStyle.Render("(waiting for audio)")
	}

	cols := make([]float64, spectrumCols)
	for c := 0; c < spectrumCols; c++ {
		lo, hi := logBinRange(c, spectrumCols, m.bins)
		worst := 1.0
		for i := lo; i < hi && i < m.bins; i++ {
			if m.reduction[i] < worst {
				worst = m.reduction[i]
			}
		}
		cols[c] = worst
	}

	var rows [spectrumHeight]strings.Builder
	for c := 0; c < spectrumCols; c++ {
		db := -20 * math.Log10(math.Max(cols[c], 1e-6))
		filled := int(db / maxReductionDB * spectrumHeight)
		if filled > spectrumHeight {
			filled = spectrumHeight
		}
		for r := 0; r < spectrumHeight; r++ {
			if r < filled {
				rows[r].WriteString("█")
			} else {
				rows[r].WriteString("·")
			}
		}
	}

	var sb strings.Builder
	for r := 0; r < spectrumHeight; r++ {
		sb.WriteString(reductionStyle.Render(rows[r].String()))
		sb.WriteString("\n")
	}

	lowHz := m.engine.BinFrequency(0)
	highHz := m.engine.BinFrequency(m.bins - 1)
	label := fmt.Sprintf("%.0f Hz%s%.0f kHz", lowHz,
		strings.Repeat(" ", maxInt(1, spectrumCols-14)), highHz/1000)
	sb.WriteString(axisStyle.Render(label))
	return sb.String()
}

// logBinRange maps display column c to a half-open bin range with
// logarithmic spacing.
func logBinRange(c, cols, bins int) (lo, hi int) {
	f := func(x int) int {
		return int(math.Pow(float64(bins), float64(x)/float64(cols)))
	}
	lo, hi = f(c)-1, f(c+1)
	if lo < 0 {
		lo = 0
	}
	if hi <= lo {
		hi = lo + 1
	}
	return lo, hi
}

func (m MeterModel) renderPeaks() string {
	return meterBarStyle.Render(
		fmt.Sprintf("In  %s %6.1f dB\nOut %s %6.1f dB",
			peakBar(m.inPeak), peakDB(m.inPeak),
			peakBar(m.outPeak), peakDB(m.outPeak)))
}

func peakDB(v float64) float64 {
	return 20 * math.Log10(math.Max(v, 1e-6))
}

func peakBar(v float64) string {
	const width = 40
	db := peakDB(v)
	filled := int((db + 60) / 60 * width)
	if filled < 0 {
		filled = 0
	}
	if filled > width {
		filled = width
	}
	return strings.Repeat("█", filled) + strings.Repeat("·", width-filled)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// StartMeterUI launches the live meter view and blocks until quit.
func StartMeterUI(engine *spectral.Engine, bypasser Bypasser) error {
	p := tea.NewProgram(
		NewMeterModel(engine, bypasser),
		tea.WithAltScreen(),
	)
	_, err := p.Run()
	return err
}
