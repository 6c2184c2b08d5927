// Command watch renders live klines for one symbol in the terminal.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/algobot/gotrade/internal/domain"
	"github.com/algobot/gotrade/internal/stream"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	upStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("2"))

	downStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("1"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(0, 1)
)

type tickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

type model struct {
	stream    *stream.KlineStream
	intervals []string
	updatedAt time.Time
}

func (m model) Init() tea.Cmd {
	return tickCmd()
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.stream.Stop()
			return m, tea.Quit
		}
	case tickMsg:
		m.updatedAt = time.Time(msg)
		return m, tickCmd()
	}
	return m, nil
}

func (m model) View() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(m.stream.Symbol()))
	b.WriteString("\n\n")

	rows := []string{fmt.Sprintf("%-5s %10s %10s %10s %10s %12s", "tf", "open", "high", "low", "close", "volume")}
	for _, iv := range m.intervals {
		candle, ok := m.stream.Latest(iv)
		if !ok {
			rows = append(rows, dimStyle.Render(fmt.Sprintf("%-5s waiting for data", iv)))
			continue
		}
		rows = append(rows, renderCandle(iv, candle))
	}
	b.WriteString(borderStyle.Render(strings.Join(rows, "\n")))
	b.WriteString("\n")
	if !m.updatedAt.IsZero() {
		b.WriteString(dimStyle.Render(m.updatedAt.Format("15:04:05")))
	}
	b.WriteString(dimStyle.Render("  q to quit"))
	b.WriteString("\n")
	return b.String()
}

func renderCandle(iv string, c domain.Candle) string {
	row := fmt.Sprintf("%-5s %10.2f %10.2f %10.2f %10.2f %12.2f",
		iv, c.Open, c.High, c.Low, c.Close, c.Volume)
	if c.Close >= c.Open {
		return upStyle.Render(row)
	}
	return downStyle.Render(row)
}

func main() {
	var (
		symbol    = flag.String("symbol", "btcusdt", "symbol to watch")
		intervals = flag.String("intervals", "1m,5m,1h", "comma separated kline intervals")
		wsURL     = flag.String("ws-url", "", "override the kline websocket endpoint")
		proxy     = flag.String("proxy", os.Getenv("GOTRADE_PROXY"), "socks5/http proxy url")
	)
	flag.Parse()

	ivs := strings.Split(*intervals, ",")
	for i := range ivs {
		ivs[i] = strings.TrimSpace(ivs[i])
	}

	opts := []stream.Option{stream.WithProxy(*proxy)}
	if *wsURL != "" {
		opts = append(opts, stream.WithURL(*wsURL))
	}
	ks := stream.NewKlineStream(*symbol, ivs, opts...)
	ks.Start()

	p := tea.NewProgram(model{stream: ks, intervals: ivs}, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		ks.Stop()
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
