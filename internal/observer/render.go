package observer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"vitalstream/internal/telemetry"
)

// DefaultRedrawInterval is the terminal redraw cadence.
const DefaultRedrawInterval = 50 * time.Millisecond

const (
	trendWidth       = 20
	pendingSummary   = "Analyzing vitals..."
	minSummaryWidth  = 20
	defaultViewWidth = 100
)

// ViewSource yields the state to draw.
type ViewSource interface {
	View() View
}

// redrawMsg fires on every redraw tick.
type redrawMsg time.Time

var (
	titleStyle     = lipgloss.NewStyle().Bold(true)
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	highlightStyle = lipgloss.NewStyle().Background(lipgloss.Color("17")).Bold(true)
	bandColors     = map[Band]lipgloss.Color{
		BandRed:    lipgloss.Color("#ef4444"),
		BandYellow: lipgloss.Color("#eab308"),
		BandGreen:  lipgloss.Color("#16a34a"),
	}
)

// RenderModel is the bubbletea model of the watch screen. It pulls the
// latest state on its own timer; frame arrival never triggers a redraw.
type RenderModel struct {
	src      ViewSource
	interval time.Duration
	now      func() time.Time
	table    table.Model
	view     View
	width    int
	height   int
	wrap     bool
	redraws  uint64
}

// NewRenderModel returns a model redrawing src every interval.
func NewRenderModel(src ViewSource, interval time.Duration) RenderModel {
	if interval <= 0 {
		interval = DefaultRedrawInterval
	}
	cols := []table.Column{
		{Title: "Subject", Width: 12},
		{Title: "Sensor", Width: 20},
		{Title: "Temp °F", Width: 8},
		{Title: "HR bpm", Width: 7},
		{Title: "Batt", Width: 5},
		{Title: "Alert", Width: 7},
		{Title: "Trend", Width: trendWidth},
	}
	t := table.New(table.WithColumns(cols), table.WithHeight(2))
	return RenderModel{
		src:      src,
		interval: interval,
		now:      time.Now,
		table:    t,
		width:    defaultViewWidth,
		wrap:     true,
	}
}

func (m RenderModel) redraw() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return redrawMsg(t) })
}

func (m RenderModel) Init() tea.Cmd { return m.redraw() }

func (m RenderModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case redrawMsg:
		m.refresh()
		return m, m.redraw()
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetWidth(msg.Width)
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "w":
			m.wrap = !m.wrap
		}
	}
	return m, nil
}

// refresh copies the latest state into the model.
func (m *RenderModel) refresh() {
	m.view = m.src.View()
	m.redraws++
	rows := make([]table.Row, 0, len(m.view.Subjects)*2)
	for _, subj := range m.view.Subjects {
		for _, d := range subj.Sensors {
			rows = append(rows, sensorRow(subj, d))
		}
	}
	m.table.SetRows(rows)
	m.table.SetHeight(len(rows) + 2)
}

func sensorRow(subj SubjectView, d SensorView) table.Row {
	temp, hr := "-", "-"
	if d.Temperature != nil {
		temp = fmt.Sprintf("%.1f", *d.Temperature)
	}
	if d.HeartRate != nil {
		hr = fmt.Sprintf("%d", *d.HeartRate)
	}
	return table.Row{
		subj.Name,
		d.Name,
		temp,
		hr,
		fmt.Sprintf("%d%%", d.Battery),
		strings.ToUpper(string(d.AlertLevel)),
		Sparkline(d.Points, trendWidth),
	}
}

func (m RenderModel) View() string {
	divider := dimStyle.Render(strings.Repeat("─", max(m.width, 1)))
	sections := []string{
		m.renderHeader(),
		divider,
		m.table.View(),
		divider,
		m.renderSubjects(),
		divider,
		m.renderAnalytics(),
		dimStyle.Render("q quit · w wrap"),
	}
	return strings.Join(sections, "\n")
}

func (m RenderModel) renderHeader() string {
	status := lipgloss.NewStyle().Foreground(bandColors[BandRed]).Render("●")
	if m.view.Connected {
		status = lipgloss.NewStyle().Foreground(bandColors[BandGreen]).Render("●")
	}
	updated := "-"
	if !m.view.UpdatedAt.IsZero() {
		updated = m.view.UpdatedAt.Format(DisplayTimeLayout)
	}
	return fmt.Sprintf("%s %s  last update %s  frames %d  dropped %d",
		titleStyle.Render("Vitals"), status, updated, m.view.Frames, m.view.Rejected)
}

func (m RenderModel) renderSubjects() string {
	now := m.now()
	width := max(m.width-4, minSummaryWidth)
	var b strings.Builder
	b.WriteString(titleStyle.Render("Health summary"))
	for _, subj := range m.view.Subjects {
		pct := SubjectBattery(subj)
		stripe := lipgloss.NewStyle().Foreground(bandColors[BatteryBand(pct)]).Render("▌")
		fmt.Fprintf(&b, "\n%s %s  battery %d%%\n", stripe, titleStyle.Render(subj.Name), pct)
		sum, ok := m.view.Summaries[subj.ID]
		text := pendingSummary
		if ok {
			text = sum.Text
		}
		if m.wrap {
			text = wordwrap.String(text, width)
		}
		if ok && sum.Highlighted(now) {
			text = highlightStyle.Render(text)
		}
		b.WriteString("  " + strings.ReplaceAll(text, "\n", "\n  "))
		if ok {
			b.WriteString("\n  " + dimStyle.Render("summary at "+sum.UpdatedAt.Local().Format(DisplayTimeLayout)))
		}
	}
	return b.String()
}

func (m RenderModel) renderAnalytics() string {
	a := Analyze(m.view.Subjects)
	return fmt.Sprintf("%s devices %d\n  temp avg %.1f min %.1f max %.1f\n  hr   avg %.0f min %.0f max %.0f",
		titleStyle.Render("Analytics"), a.Devices,
		a.Temperature.Avg, a.Temperature.Min, a.Temperature.Max,
		a.HeartRate.Avg, a.HeartRate.Min, a.HeartRate.Max)
}

var sparkBlocks = []rune("▁▂▃▄▅▆▇█")

// Sparkline draws the last width points scaled between their min and max.
func Sparkline(points []Point, width int) string {
	if width <= 0 || len(points) == 0 {
		return ""
	}
	if len(points) > width {
		points = points[len(points)-width:]
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, p := range points {
		lo = min(lo, p.Value)
		hi = max(hi, p.Value)
	}
	out := make([]rune, len(points))
	for i, p := range points {
		idx := 0
		if hi > lo {
			idx = int((p.Value - lo) / (hi - lo) * float64(len(sparkBlocks)-1))
		}
		out[i] = sparkBlocks[idx]
	}
	return string(out)
}

// RunTUI runs the terminal UI until the user quits or ctx is done.
func RunTUI(ctx context.Context, src ViewSource, interval time.Duration) error {
	p := tea.NewProgram(NewRenderModel(src, interval), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("run tui: %w", err)
	}
	return nil
}

// alertBand maps an alert level to its colour band.
func alertBand(l telemetry.AlertLevel) Band {
	switch l {
	case telemetry.AlertRed:
		return BandRed
	case telemetry.AlertYellow:
		return BandYellow
	}
	return BandGreen
}
