package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
)

type tickMsg time.Time
type resultMsg Result
type completeMsg struct{}

type logEntry struct {
	timestamp time.Time
	message   string
	success   bool
}

type model struct {
	settings   Settings
	spinner    spinner.Model
	progress   progress.Model
	sent       int
	successful int
	failed     int
	bytesSent  uint64
	byKind     map[PayloadKind]int
	latencies  []time.Duration
	recentLogs []logEntry
	errors     []string
	startTime  time.Time
	now        time.Time
	isComplete bool
	width      int
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212")).
			Background(lipgloss.Color("235")).
			Padding(0, 1).
			MarginBottom(1)

	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	valueStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("111"))
	patternStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("213"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(1, 2).
			MarginBottom(1)
)

func newModel(settings Settings) model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return model{
		settings:  settings,
		spinner:   s,
		progress:  progress.New(progress.WithDefaultGradient()),
		byKind:    make(map[PayloadKind]int, len(payloadKinds)),
		startTime: time.Now(),
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tickCmd())
}

func tickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.progress.Width = msg.Width - 4
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}
		return m, nil

	case tickMsg:
		m.now = time.Time(msg)
		if m.isComplete {
			return m, nil
		}
		return m, tickCmd()

	case resultMsg:
		return m.record(Result(msg)), nil

	case completeMsg:
		m.isComplete = true
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m model) record(r Result) model {
	m.sent++
	entry := logEntry{timestamp: time.Now(), success: r.Success}
	if r.Success {
		m.successful++
		m.bytesSent += uint64(r.Bytes)
		m.byKind[r.Kind]++
		m.latencies = append(m.latencies, r.Duration)
		entry.message = fmt.Sprintf("Record %d (%s, %s) put in %v", r.Index, r.Kind, humanize.Bytes(uint64(r.Bytes)), r.Duration.Round(time.Millisecond))
	} else {
		m.failed++
		entry.message = fmt.Sprintf("Record %d (%s) failed: %s", r.Index, r.Kind, r.Error)
		m.errors = append([]string{r.Error}, m.errors...)
		if len(m.errors) > 5 {
			m.errors = m.errors[:5]
		}
	}

	m.recentLogs = append([]logEntry{entry}, m.recentLogs...)
	if len(m.recentLogs) > 10 {
		m.recentLogs = m.recentLogs[:10]
	}
	return m
}

func (m model) fraction() float64 {
	return float64(m.sent) / float64(m.settings.Records)
}

func (m model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Firehose Log Load Generator") + "\n")

	status := fmt.Sprintf("Progress: %d/%d records (%.1f%%)", m.sent, m.settings.Records, m.fraction()*100)
	if m.isComplete {
		status = "✓ " + status
	} else {
		status = m.spinner.View() + " " + status
	}
	b.WriteString(status + "\n")
	b.WriteString(m.progress.ViewAs(m.fraction()) + "\n\n")

	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, m.renderTotals(), m.renderKinds()) + "\n")
	b.WriteString(m.renderPattern() + "\n")
	b.WriteString(m.renderLog() + "\n")

	if len(m.errors) > 0 {
		var errs strings.Builder
		errs.WriteString(errorStyle.Render("Recent Errors:") + "\n\n")
		for _, e := range m.errors {
			errs.WriteString(fmt.Sprintf("  %s %s\n", errorStyle.Render("•"), e))
		}
		b.WriteString(boxStyle.Width(84).Render(errs.String()) + "\n")
	}

	if m.isComplete {
		b.WriteString(successStyle.Render("\n✓ Load test complete! Press 'q' to quit"))
	} else {
		b.WriteString(labelStyle.Render("\nPress 'q' to quit"))
	}
	return b.String()
}

func (m model) renderTotals() string {
	elapsed := m.now.Sub(m.startTime)
	if elapsed <= 0 {
		elapsed = time.Since(m.startTime)
	}
	throughput := 0.0
	if secs := elapsed.Seconds(); secs > 0 {
		throughput = float64(m.successful) / secs
	}

	content := fmt.Sprintf(
		"%s %s\n%s %s\n%s %s\n%s %s\n\n%s %s\n%s %s\n%s %s",
		labelStyle.Render("Stream:"), valueStyle.Render(m.settings.StreamName),
		labelStyle.Render("Put:"), successStyle.Render(fmt.Sprintf("%d", m.successful)),
		labelStyle.Render("Failed:"), errorStyle.Render(fmt.Sprintf("%d", m.failed)),
		labelStyle.Render("Volume:"), valueStyle.Render(humanize.Bytes(m.bytesSent)),
		labelStyle.Render("Elapsed:"), valueStyle.Render(elapsed.Round(time.Second).String()),
		labelStyle.Render("Throughput:"), valueStyle.Render(fmt.Sprintf("%.2f rec/s", throughput)),
		labelStyle.Render("Avg latency:"), valueStyle.Render(averageLatency(m.latencies)),
	)
	return boxStyle.Width(42).Render(content)
}

func (m model) renderKinds() string {
	var b strings.Builder
	b.WriteString(labelStyle.Render("Payload kinds:") + "\n")
	for _, kind := range payloadKinds {
		b.WriteString(fmt.Sprintf("  %s %s (weight %d)\n",
			labelStyle.Render(fmt.Sprintf("%-10s", kind)),
			valueStyle.Render(fmt.Sprintf("%d", m.byKind[kind])),
			m.settings.Mix[kind],
		))
	}
	b.WriteString(fmt.Sprintf("\n%s %s", labelStyle.Render("Workers:"), valueStyle.Render(fmt.Sprintf("%d", m.settings.Concurrency))))
	return boxStyle.Width(42).Render(b.String())
}

func (m model) renderPattern() string {
	bars := []rune{' ', '▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}
	const width = 60

	var viz strings.Builder
	for i := 0; i < width; i++ {
		at := float64(i) / width
		idx := int(m.settings.Pattern.intensity(at) * float64(len(bars)-1))
		bar := string(bars[min(max(idx, 0), len(bars)-1)])
		if at <= m.fraction() && m.fraction() < at+1.0/width {
			viz.WriteString(successStyle.Render(bar))
		} else {
			viz.WriteString(labelStyle.Render(bar))
		}
	}

	content := fmt.Sprintf("%s %s\n%s %s\n\n%s",
		labelStyle.Render("Workload Pattern:"), patternStyle.Render(string(m.settings.Pattern)),
		labelStyle.Render("Phase:"), valueStyle.Render(m.settings.Pattern.phase(m.fraction())),
		viz.String(),
	)
	return boxStyle.Width(84).Render(content)
}

func (m model) renderLog() string {
	var b strings.Builder
	b.WriteString(labelStyle.Render("Recent Activity:") + "\n\n")
	if len(m.recentLogs) == 0 {
		b.WriteString(labelStyle.Render("  No activity yet..."))
	}
	for _, entry := range m.recentLogs {
		icon := successStyle.Render("✓")
		if !entry.success {
			icon = errorStyle.Render("✗")
		}
		b.WriteString(fmt.Sprintf("  %s %s %s\n", labelStyle.Render(entry.timestamp.Format("15:04:05.000")), icon, entry.message))
	}
	return boxStyle.Width(84).Render(b.String())
}

func averageLatency(latencies []time.Duration) string {
	if len(latencies) == 0 {
		return "N/A"
	}
	var total time.Duration
	for _, d := range latencies {
		total += d
	}
	return (total / time.Duration(len(latencies))).Round(time.Millisecond).String()
}
