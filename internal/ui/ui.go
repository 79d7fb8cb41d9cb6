// Package ui renders a terminal dashboard of target health.
package ui

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/rust-practice/conn-mon/internal/health"
	"github.com/rust-practice/conn-mon/internal/report"
)

const (
	refreshInterval = 500 * time.Millisecond

	// barScaleMS is how many milliseconds of RTT one bar cell represents.
	barScaleMS = 10
)

// UI renders a TUI view of target status from the board.
type UI struct {
	board *report.Board
}

// New returns a UI instance reading from board.
func New(board *report.Board) *UI {
	return &UI{board: board}
}

// Run blocks until the context is cancelled or the user quits.
func (u *UI) Run(ctx context.Context) error {
	screen, err := tcell.NewScreen()
	if err != nil {
		return err
	}
	if err := screen.Init(); err != nil {
		return err
	}
	screen.HideCursor()
	defer screen.Fini()

	eventCh := make(chan tcell.Event, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			ev := screen.PollEvent()
			if ev == nil {
				return
			}
			select {
			case eventCh <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()

	u.render(screen, u.board.Snapshot())
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-eventCh:
			switch ev := ev.(type) {
			case *tcell.EventKey:
				if ev.Key() == tcell.KeyCtrlC || ev.Rune() == 'q' {
					return context.Canceled
				}
			case *tcell.EventResize:
				screen.Sync()
			}
		case <-ticker.C:
			u.render(screen, u.board.Snapshot())
		}
	}
}

func (u *UI) render(screen tcell.Screen, snapshot []report.TargetView) {
	screen.Clear()
	width, height := screen.Size()
	if width < 20 || height < 5 {
		screen.Show()
		return
	}

	now := time.Now().Format("2006-01-02 15:04:05")
	header := fmt.Sprintf(" conn-mon  %s  (q to quit)", now)
	drawText(screen, 0, 0, width, header, tcell.StyleDefault.Bold(true))

	summary := formatSummary(snapshot)
	drawText(screen, 0, 1, width, summary, tcell.StyleDefault.Foreground(tcell.ColorGray))

	maxRows := height - 3
	for i, view := range snapshot {
		if i >= maxRows {
			break
		}
		line := formatTargetLine(width, view, time.Now())
		drawStyledText(screen, 0, 3+i, width, line)
	}

	screen.Show()
}

// formatSummary counts targets per state for the status line.
func formatSummary(snapshot []report.TargetView) string {
	counts := make(map[health.State]int)
	for _, view := range snapshot {
		counts[view.State]++
	}
	return fmt.Sprintf(" targets=%d  healthy=%d  degraded=%d  unreachable=%d",
		len(snapshot),
		counts[health.StateHealthy],
		counts[health.StateDegraded],
		counts[health.StateUnreachable])
}

func formatTargetLine(width int, view report.TargetView, now time.Time) []styledRune {
	style := stateStyle(view.State)
	name := padOrTrim(view.Name, minInt(14, width))
	addr := padOrTrim(view.Address, minInt(18, width))
	state := padOrTrim(view.State.String(), 11)
	rtt := padOrTrim(fmt.Sprintf("rtt:%s", formatRTT(view.LastRTT)), 11)

	loss := padOrTrim("loss:-", 11)
	p95 := padOrTrim("p95:-", 10)
	if view.Sufficient {
		loss = padOrTrim(fmt.Sprintf("loss:%.0f%%", view.Stats.LossRatio*100), 11)
		p95 = padOrTrim(fmt.Sprintf("p95:%s", formatRTT(view.Stats.P95)), 10)
	}

	since := padOrTrim("", 10)
	if !view.LastChange.IsZero() {
		since = padOrTrim(formatDuration(now.Sub(view.LastChange)), 10)
	}

	parts := []styledText{
		{text: name, style: tcell.StyleDefault},
		{text: " ", style: tcell.StyleDefault},
		{text: addr, style: tcell.StyleDefault},
		{text: " ", style: tcell.StyleDefault},
		{text: state, style: style},
		{text: " ", style: tcell.StyleDefault},
		{text: rtt, style: tcell.StyleDefault},
		{text: " ", style: tcell.StyleDefault},
		{text: loss, style: style},
		{text: " ", style: tcell.StyleDefault},
		{text: p95, style: tcell.StyleDefault},
		{text: " ", style: tcell.StyleDefault},
		{text: since, style: tcell.StyleDefault.Foreground(tcell.ColorGray)},
		{text: " ", style: tcell.StyleDefault},
	}

	used := 0
	for _, p := range parts {
		used += len([]rune(p.text))
	}
	barWidth := width - used
	if barWidth > 0 {
		bar := buildBar(view.LastRTT, barWidth)
		parts = append(parts, styledText{text: bar, style: style})
	}

	return flattenStyledText(parts, width)
}

// buildBar draws a proportional RTT bar, one cell per barScaleMS of latency.
func buildBar(rtt time.Duration, width int) string {
	if width <= 0 {
		return ""
	}
	ms := float64(rtt.Milliseconds())
	if ms <= 0 {
		return strings.Repeat(" ", width)
	}
	units := int(math.Round(ms / barScaleMS))
	if units > width {
		units = width
	}
	if units < 1 {
		units = 1
	}
	return strings.Repeat("#", units) + strings.Repeat(" ", width-units)
}

func drawText(screen tcell.Screen, x, y, width int, text string, style tcell.Style) {
	drawStyledText(screen, x, y, width, []styledRune{{r: []rune(text), style: style}})
}

type styledText struct {
	text  string
	style tcell.Style
}

type styledRune struct {
	r     []rune
	style tcell.Style
}

func drawStyledText(screen tcell.Screen, x, y, width int, parts []styledRune) {
	if width <= 0 {
		return
	}
	col := x
	for _, part := range parts {
		for _, r := range part.r {
			if col >= x+width {
				return
			}
			setCell(screen, col, y, r, part.style)
			col++
		}
	}
	for col < x+width {
		setCell(screen, col, y, ' ', tcell.StyleDefault)
		col++
	}
}

func flattenStyledText(parts []styledText, width int) []styledRune {
	result := make([]styledRune, 0, len(parts))
	used := 0
	for _, part := range parts {
		runes := []rune(part.text)
		if used+len(runes) > width {
			runes = runes[:maxInt(0, width-used)]
		}
		result = append(result, styledRune{r: runes, style: part.style})
		used += len(runes)
		if used >= width {
			break
		}
	}
	return result
}

func setCell(screen tcell.Screen, x, y int, r rune, style tcell.Style) {
	screen.SetContent(x, y, r, nil, style)
}

func padOrTrim(value string, width int) string {
	if width <= 0 {
		return ""
	}
	runes := []rune(value)
	if len(runes) > width {
		return string(runes[:width])
	}
	if len(runes) < width {
		return value + strings.Repeat(" ", width-len(runes))
	}
	return value
}

func formatRTT(rtt time.Duration) string {
	if rtt <= 0 {
		return "-"
	}
	if rtt < time.Millisecond {
		return fmt.Sprintf("%dus", rtt.Microseconds())
	}
	if rtt < time.Second {
		return fmt.Sprintf("%dms", rtt.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", rtt.Seconds())
}

func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%dus", d.Microseconds())
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%.1fm", d.Minutes())
}

func stateStyle(state health.State) tcell.Style {
	switch state {
	case health.StateHealthy:
		return tcell.StyleDefault.Foreground(tcell.ColorGreen)
	case health.StateDegraded:
		return tcell.StyleDefault.Foreground(tcell.ColorYellow)
	case health.StateUnreachable:
		return tcell.StyleDefault.Foreground(tcell.ColorRed)
	default:
		return tcell.StyleDefault.Foreground(tcell.ColorGray)
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
