package util

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/docker/go-units"
	"github.com/schollz/progressbar/v3"
)

const (
	progressPrefixWidth = 56
	progressBarWidth    = 32
)

// ProgressLogger tracks and renders progress of commit rounds, rows and bytes.
type ProgressLogger struct {
	totalRounds int64
	action      string
	interval    time.Duration
	out         io.Writer

	rounds atomic.Int64
	rows   atomic.Int64
	bytes  atomic.Int64
	bar    *progressbar.ProgressBar

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// NewProgressLogger creates and starts a progress logger. A non-positive totalRounds
// or interval disables rendering but still counts.
func NewProgressLogger(totalRounds int64, action string, interval time.Duration) *ProgressLogger {
	p := &ProgressLogger{
		totalRounds: totalRounds,
		action:      action,
		interval:    interval,
		out:         os.Stdout,
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
	p.start()
	return p
}

// UpdateBytes increments the byte counter.
func (p *ProgressLogger) UpdateBytes(delta int64) {
	if p == nil || delta == 0 {
		return
	}
	p.bytes.Add(delta)
}

// UpdateRows increments the row counter.
func (p *ProgressLogger) UpdateRows(delta int64) {
	if p == nil || delta == 0 {
		return
	}
	p.rows.Add(delta)
}

// UpdateRounds increments the committed round counter.
func (p *ProgressLogger) UpdateRounds(delta int64) {
	if p == nil || delta == 0 {
		return
	}
	p.rounds.Add(delta)
}

// Snapshot returns the current round, row and byte counts.
func (p *ProgressLogger) Snapshot() (rounds, rows, bytes int64) {
	return p.rounds.Load(), p.rows.Load(), p.bytes.Load()
}

// Close stops rendering and waits for the last refresh.
func (p *ProgressLogger) Close() {
	if p == nil {
		return
	}
	p.once.Do(func() {
		close(p.stop)
		<-p.done
	})
}

func (p *ProgressLogger) start() {
	if p.totalRounds <= 0 || p.interval <= 0 {
		close(p.done)
		return
	}

	p.bar = NewRoundProgressBar(p.out, p.totalRounds, p.action)

	go func() {
		defer close(p.done)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		prevRounds, prevRows, prevBytes := p.Snapshot()
		prevTime := time.Now()
		lastDesc := ""

		refresh := func() bool {
			curRounds, curRows, curBytes := p.Snapshot()
			now := time.Now()
			elapsed := now.Sub(prevTime).Seconds()

			desc := progressDescription(p.action, curBytes,
				progressRate(curBytes-prevBytes, elapsed), progressRate(curRows-prevRows, elapsed))
			if desc != lastDesc {
				p.bar.Describe(desc)
				lastDesc = desc
			}
			if delta := max(curRounds-prevRounds, 0); delta > 0 {
				_ = p.bar.Add64(delta)
			}

			prevRounds, prevRows, prevBytes = curRounds, curRows, curBytes
			prevTime = now
			return curRounds >= p.totalRounds
		}

		for {
			select {
			case <-ticker.C:
				if refresh() {
					_ = p.bar.Finish()
					return
				}
			case <-p.stop:
				refresh()
				return
			}
		}
	}()
}

func progressRate(delta int64, elapsedSeconds float64) float64 {
	if elapsedSeconds <= 0 {
		return 0
	}
	return float64(delta) / elapsedSeconds
}

// NewRoundProgressBar creates a themed progress bar counting commit rounds.
func NewRoundProgressBar(out io.Writer, totalRounds int64, action string) *progressbar.ProgressBar {
	return progressbar.NewOptions64(
		totalRounds,
		progressbar.OptionSetWriter(out),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetDescription(progressDescription(action, 0, 0, 0)),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionSetElapsedTime(false),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(progressBarWidth),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(out)
		}),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[light_magenta]━",
			SaucerHead:    "[light_magenta]╸",
			SaucerPadding: "[dark_gray]━",
			BarStart:      "",
			BarEnd:        "[reset]",
		}),
	)
}

func progressDescription(action string, bytes int64, bytesPerSec float64, rowsPerSec float64) string {
	prefix := fmt.Sprintf(
		"%s %s (%s/s, %.0f rows/s)",
		action,
		units.BytesSize(float64(bytes)),
		units.BytesSize(bytesPerSec),
		rowsPerSec,
	)
	return padOrTrim(prefix, progressPrefixWidth) + " "
}

func padOrTrim(s string, width int) string {
	if width <= 0 {
		return s
	}
	if len(s) > width {
		if width <= 3 {
			return s[:width]
		}
		return s[:width-3] + "..."
	}
	if len(s) < width {
		return s + strings.Repeat(" ", width-len(s))
	}
	return s
}
