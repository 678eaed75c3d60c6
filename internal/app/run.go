package app

import (
	"context"
	"io"
	"os"

	fyneapp "fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/data/binding"

	"github.com/Antho-TB/veille/internal/logging"
	"github.com/Antho-TB/veille/prooflabel"
)

// Run loads the configuration, opens the canonicalizer and starts the review
// window. It returns once the window is closed.
func Run(configPath string) error {
	path := prooflabel.ResolveConfigPath(configPath)
	cfg, err := prooflabel.LoadConfig(path)
	if err != nil {
		return err
	}
	if err := prooflabel.EnsureTaxonomyFile(cfg.TaxonomyPath); err != nil {
		return err
	}

	logBind := binding.NewString()
	capture := newLogCapture(logBind, logLineLimit)
	logger := logging.NewWithWriter(io.MultiWriter(os.Stdout, capture), cfg.LogLevel)

	svc, err := NewService(context.Background(), path, cfg, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	a := fyneapp.NewWithID(fyneAppID)
	u := buildUI(a, svc, logger, logBind)
	u.w.ShowAndRun()
	return nil
}
