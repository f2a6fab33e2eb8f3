package main

import (
	"os"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
)

// ProgressObserver receives per-item lifecycle events from a stage. The stage
// logic never touches the terminal directly, so it can run under tests with a
// no-op observer.
type ProgressObserver interface {
	OnItemStart(id, title string)
	OnItemDone(id string, err error)
}

// ObserverFactory builds an observer for one stage run.
type ObserverFactory func(description string, total int) ProgressObserver

// newConsoleProgress renders a progress bar on stdout. When stdout is not a
// terminal (CI, piped output) it degrades to a no-op so logs stay clean.
func newConsoleProgress(description string, total int) ProgressObserver {
	if !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		return nopProgress{}
	}
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionClearOnFinish(),
	)
	return &consoleProgress{bar: bar}
}

type consoleProgress struct {
	bar *progressbar.ProgressBar
}

func (p *consoleProgress) OnItemStart(id, title string) {}

func (p *consoleProgress) OnItemDone(id string, err error) {
	p.bar.Add(1)
}

// nopProgress is used in tests and non-interactive runs.
type nopProgress struct{}

func (nopProgress) OnItemStart(id, title string) {}
func (nopProgress) OnItemDone(id string, err error) {}
