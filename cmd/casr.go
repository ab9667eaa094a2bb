package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"
	"github.com/webitel/ca-rsrvd/internal/adapter/admin"
)

// printCasr fetches the one-shot casr(level) dump from a running
// server's admin surface and prints it.
func printCasr(addr string, level int) error {
	resp, err := http.Get(fmt.Sprintf("http://%s/casr?level=%d", addr, level))
	if err != nil {
		return fmt.Errorf("casr: cannot reach server admin surface at %s: %w", addr, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("casr: server returned %s", resp.Status)
	}
	_, err = io.Copy(os.Stdout, resp.Body)
	return err
}

func fetchStats(addr string) (*admin.StatsResponse, error) {
	resp, err := http.Get(fmt.Sprintf("http://%s/stats", addr))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var stats admin.StatsResponse
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// watchDashboard renders the casr report as a live terminal
// dashboard: circuit/channel counters plus one occupancy gauge per
// free pool, refreshed every second. Quit with q or Ctrl-C.
func watchDashboard(addr string) error {
	if err := ui.Init(); err != nil {
		return fmt.Errorf("casr: terminal init: %w", err)
	}
	defer ui.Close()

	header := widgets.NewParagraph()
	header.Title = " ca-rsrvd "
	header.SetRect(0, 0, 80, 5)

	gauges := make([]*widgets.Gauge, 6)
	labels := []string{"clients", "channels", "events", "small tcp bufs", "large tcp bufs", "put-notifies"}
	for i, label := range labels {
		g := widgets.NewGauge()
		g.Title = " " + label + " "
		g.SetRect(0, 5+i*3, 80, 8+i*3)
		g.BarColor = ui.ColorGreen
		gauges[i] = g
	}

	render := func() {
		stats, err := fetchStats(addr)
		if err != nil {
			header.Text = fmt.Sprintf("unreachable: %v", err)
			ui.Render(header)
			return
		}
		header.Text = fmt.Sprintf("state: %s\ncircuits: %d\nchannels: %d",
			stats.TCPState, stats.Circuits, stats.Channels)

		used := [][2]int{
			{stats.Pools.ClientsSeed - stats.Pools.ClientsFree, stats.Pools.ClientsSeed},
			{stats.Pools.ChannelsSeed - stats.Pools.ChannelsFree, stats.Pools.ChannelsSeed},
			{stats.Pools.EventsSeed - stats.Pools.EventsFree, stats.Pools.EventsSeed},
			{stats.Pools.SmallBufSeed - stats.Pools.SmallBufFree, stats.Pools.SmallBufSeed},
			{stats.Pools.LargeBufSeed - stats.Pools.LargeBufFree, stats.Pools.LargeBufSeed},
			{stats.Pools.PutNotifiesSeed - stats.Pools.PutNotifiesFree, stats.Pools.PutNotifiesSeed},
		}
		for i, g := range gauges {
			u, seed := used[i][0], used[i][1]
			pct := 0
			if seed > 0 {
				pct = u * 100 / seed
			}
			g.Percent = pct
			g.Label = fmt.Sprintf("%d/%d", u, seed)
			switch {
			case pct >= 90:
				g.BarColor = ui.ColorRed
			case pct >= 70:
				g.BarColor = ui.ColorYellow
			default:
				g.BarColor = ui.ColorGreen
			}
		}

		items := make([]ui.Drawable, 0, len(gauges)+1)
		items = append(items, header)
		for _, g := range gauges {
			items = append(items, g)
		}
		ui.Render(items...)
	}

	render()

	events := ui.PollEvents()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case e := <-events:
			switch e.ID {
			case "q", "<C-c>":
				return nil
			}
		case <-ticker.C:
			render()
		}
	}
}
