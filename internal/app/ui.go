package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/data/binding"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/storage"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"github.com/Antho-TB/veille/prooflabel"
)

type uiState struct {
	service *Service
	logger  *slog.Logger
	cfg     prooflabel.Config

	w             fyne.Window
	input         *widget.Entry
	log           *widget.Entry
	status        *widget.Label
	progress      *widget.ProgressBarInfinite
	configSummary *widget.Label
	resTbl        *widget.Table
	columns       []tableColumn
	rows          []ProposalRow
	selected      int
	statusBind    binding.String

	previewInput *widget.Entry
	previewOut   *widget.Label
	selectedInfo *widget.Label
	canonical    *widget.Entry

	mineBtn      *widget.Button
	exportBtn    *widget.Button
	loadBtn      *widget.Button
	proposalsBtn *widget.Button
	approveBtn   *widget.Button
	rejectBtn    *widget.Button
}

func buildUI(a fyne.App, svc *Service, logger *slog.Logger, logBind binding.String) *uiState {
	u := &uiState{service: svc, logger: logger, selected: -1}
	u.cfg = svc.Config()
	u.w = a.NewWindow("Veille - revue des preuves de conformité")

	u.statusBind = binding.NewString()
	_ = u.statusBind.Set("Prêt")

	u.input = widget.NewMultiLineEntry()
	u.input.SetPlaceHolder("Une preuve attendue par ligne")

	u.log = widget.NewEntryWithData(logBind)
	u.log.MultiLine = true
	u.log.Wrapping = fyne.TextWrapWord
	u.log.SetPlaceHolder("Journal")
	u.log.Disable()

	u.status = widget.NewLabelWithData(u.statusBind)
	u.progress = widget.NewProgressBarInfinite()
	u.progress.Stop()
	u.progress.Hide()
	u.configSummary = widget.NewLabel("")
	u.configSummary.Wrapping = fyne.TextWrapWord

	u.mineBtn = widget.NewButtonWithIcon("Lancer l'analyse", theme.SearchIcon(), func() { u.onMine() })
	u.exportBtn = widget.NewButtonWithIcon("Exporter", theme.DocumentSaveIcon(), func() { u.onExport() })
	u.loadBtn = widget.NewButtonWithIcon("Charger des preuves", theme.FolderOpenIcon(), func() { u.onLoadFile() })
	u.proposalsBtn = widget.NewButtonWithIcon("Charger des propositions", theme.ContentAddIcon(), func() { u.onLoadProposals() })
	settingsBtn := widget.NewButtonWithIcon("Paramètres", theme.SettingsIcon(), func() { u.openSettings() })

	u.previewInput = widget.NewEntry()
	u.previewInput.SetPlaceHolder("Tester une preuve…")
	u.previewOut = widget.NewLabel("")
	u.previewOut.Wrapping = fyne.TextWrapWord
	u.previewInput.OnSubmitted = func(string) { u.onPreview() }
	previewBtn := widget.NewButtonWithIcon("", theme.ConfirmIcon(), func() { u.onPreview() })

	u.selectedInfo = widget.NewLabel("Sélectionnez une proposition")
	u.selectedInfo.Wrapping = fyne.TextWrapWord
	u.canonical = widget.NewEntry()
	u.canonical.SetPlaceHolder("Libellé canonique")
	u.approveBtn = widget.NewButtonWithIcon("Fusionner", theme.ConfirmIcon(), func() { u.onApprove() })
	u.approveBtn.Importance = widget.HighImportance
	u.rejectBtn = widget.NewButtonWithIcon("Rejeter", theme.CancelIcon(), func() { u.onReject() })
	u.approveBtn.Disable()
	u.rejectBtn.Disable()

	u.columns = proposalColumns()
	u.resTbl = widget.NewTable(
		func() (int, int) { return len(u.rows) + 1, len(u.columns) },
		func() fyne.CanvasObject {
			lbl := widget.NewLabel("")
			lbl.Truncation = fyne.TextTruncateEllipsis
			return lbl
		},
		func(id widget.TableCellID, obj fyne.CanvasObject) {
			lbl := obj.(*widget.Label)
			if id.Row == 0 {
				lbl.SetText(u.columns[id.Col].Title)
				lbl.TextStyle = fyne.TextStyle{Bold: true}
				return
			}
			lbl.TextStyle = fyne.TextStyle{}
			rowIdx := id.Row - 1
			if rowIdx >= len(u.rows) {
				lbl.SetText("")
				return
			}
			lbl.SetText(u.columns[id.Col].Render(u.rows[rowIdx]))
		},
	)
	u.resTbl.OnSelected = func(id widget.TableCellID) { u.onSelect(id.Row - 1) }
	for i, col := range u.columns {
		u.resTbl.SetColumnWidth(i, col.Width)
	}

	controlRow1 := container.NewGridWithColumns(3, u.mineBtn, u.exportBtn, settingsBtn)
	controlRow2 := container.NewGridWithColumns(2, u.loadBtn, u.proposalsBtn)
	left := container.NewVBox(
		widget.NewLabelWithStyle("Preuves", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		container.NewGridWrap(fyne.NewSize(400, 220), u.input),
		controlRow1,
		controlRow2,
		widget.NewSeparator(),
		widget.NewLabelWithStyle("Aperçu du libellé", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		container.NewBorder(nil, nil, nil, previewBtn, u.previewInput),
		u.previewOut,
		widget.NewSeparator(),
		u.progress,
		u.status,
		widget.NewLabelWithStyle("Paramètres", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		u.configSummary,
		widget.NewSeparator(),
		widget.NewLabelWithStyle("Journal", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		container.NewGridWrap(fyne.NewSize(400, 180), u.log),
	)

	review := container.NewVBox(
		widget.NewSeparator(),
		u.selectedInfo,
		container.NewBorder(nil, nil, widget.NewLabel("Libellé :"), container.NewHBox(u.approveBtn, u.rejectBtn), u.canonical),
	)
	right := container.NewBorder(nil, review, nil, nil, u.resTbl)
	split := container.NewHSplit(container.NewVScroll(left), right)
	split.Offset = 0.32

	u.w.SetContent(split)
	u.w.Resize(fyne.NewSize(1280, 800))
	u.updateConfigSummary()
	return u
}

func (u *uiState) setBusy(b bool) {
	fyne.Do(func() {
		for _, btn := range []*widget.Button{u.mineBtn, u.exportBtn, u.loadBtn, u.proposalsBtn} {
			if b {
				btn.Disable()
			} else {
				btn.Enable()
			}
		}
		if b {
			u.progress.Show()
			u.progress.Start()
		} else {
			u.progress.Stop()
			u.progress.Hide()
		}
	})
}

func (u *uiState) setStatus(text string) {
	_ = u.statusBind.Set(text)
}

func (u *uiState) updateConfigSummary() {
	u.configSummary.SetText(formatConfigSummary(u.cfg, u.service.DecisionCount()))
}

func (u *uiState) refreshRows() {
	fyne.Do(func() {
		u.rows = u.service.Rows()
		u.selected = -1
		u.resTbl.UnselectAll()
		u.resTbl.Refresh()
		u.selectedInfo.SetText("Sélectionnez une proposition")
		u.canonical.SetText("")
		u.approveBtn.Disable()
		u.rejectBtn.Disable()
	})
}

func (u *uiState) onSelect(idx int) {
	if idx < 0 || idx >= len(u.rows) {
		return
	}
	u.selected = idx
	row := u.rows[idx]
	u.selectedInfo.SetText(fmt.Sprintf("« %s »\n« %s »\n%s", row.Proposal.ProofA, row.Proposal.ProofB, statusLabel(row)))
	canonical := row.Canonical
	if canonical == "" {
		canonical = row.Proposal.ProofA
	}
	u.canonical.SetText(canonical)
	u.approveBtn.Enable()
	u.rejectBtn.Enable()
}

func (u *uiState) onPreview() {
	raw := u.previewInput.Text
	res, ok := u.service.Preview(raw)
	u.previewOut.SetText(formatResolution(res, ok))
}

func (u *uiState) onMine() {
	proofs := splitNonEmptyLines(u.input.Text)
	if len(proofs) == 0 {
		dialog.ShowInformation("Information", "Aucune preuve à analyser", u.w)
		return
	}
	u.setStatus("Analyse en cours…")
	u.setBusy(true)
	u.logger.Info("analyse demandée", "proofs", len(proofs))
	start := time.Now()

	go func(entries []string) {
		run, err := u.service.Mine(context.Background(), entries)
		u.setBusy(false)
		if err != nil {
			if errors.Is(err, prooflabel.ErrMinerBusy) {
				u.setStatus("Une analyse est déjà en cours")
				return
			}
			fyne.Do(func() { dialog.ShowError(err, u.w) })
			u.setStatus("Erreur")
			return
		}
		for _, d := range run.Diagnostics {
			u.logger.Warn("stratégie ignorée", "strategy", d.Strategy, "message", d.Message)
		}
		u.refreshRows()
		u.setStatus(fmt.Sprintf("Terminé : %s (%.1fs)", formatRunSummary(run), time.Since(start).Seconds()))
	}(proofs)
}

func (u *uiState) onApprove() {
	idx := u.selected
	canonical := strings.TrimSpace(u.canonical.Text)
	row, err := u.service.Approve(context.Background(), idx, canonical)
	if err != nil {
		dialog.ShowError(err, u.w)
		return
	}
	u.rows = u.service.Rows()
	u.resTbl.Refresh()
	u.onSelect(idx)
	u.updateConfigSummary()
	u.setStatus(fmt.Sprintf("Fusion enregistrée → %s", row.Canonical))
}

func (u *uiState) onReject() {
	idx := u.selected
	if _, err := u.service.Reject(context.Background(), idx); err != nil {
		dialog.ShowError(err, u.w)
		return
	}
	u.rows = u.service.Rows()
	u.resTbl.Refresh()
	u.onSelect(idx)
	u.updateConfigSummary()
	u.setStatus("Rejet enregistré")
}

func (u *uiState) onExport() {
	if u.service.LastRun() == nil {
		dialog.ShowInformation("Information", "Lancez une analyse avant d'exporter", u.w)
		return
	}
	dialog.NewFolderOpen(func(dir fyne.ListableURI, err error) {
		if err != nil || dir == nil {
			return
		}
		art, err := u.service.Export(dir.Path())
		if err != nil {
			dialog.ShowError(err, u.w)
			return
		}
		u.logger.Info("export terminé", "proposals", art.Proposals, "rows", art.Written, "report", art.Report)
		u.setStatus(fmt.Sprintf("Exporté : %s", filepath.Base(art.Proposals)))
	}, u.w).Show()
}

func (u *uiState) onLoadProposals() {
	fd := dialog.NewFileOpen(func(rc fyne.URIReadCloser, err error) {
		if err != nil || rc == nil {
			return
		}
		defer rc.Close()
		n, err := u.service.LoadProposals(rc)
		if err != nil {
			dialog.ShowError(err, u.w)
			return
		}
		u.refreshRows()
		u.logger.Info("propositions chargées", "file", filepath.Base(rc.URI().Path()), "rows", n)
		u.setStatus(fmt.Sprintf("%d propositions chargées", n))
	}, u.w)
	fd.SetFilter(storage.NewExtensionFileFilter([]string{".csv"}))
	fd.Show()
}

func (u *uiState) openSettings() {
	cfg := u.cfg

	labels := make([]string, len(strategyChoices))
	byLabel := make(map[string]string, len(strategyChoices))
	var active []string
	for i, c := range strategyChoices {
		labels[i] = c.Label
		byLabel[c.Label] = c.Value
		for _, s := range cfg.Miner.Strategies {
			if s == c.Value {
				active = append(active, c.Label)
			}
		}
	}
	strategies := widget.NewCheckGroup(labels, nil)
	strategies.SetSelected(active)

	fuzzyEntry := widget.NewEntry()
	fuzzyEntry.SetText(fmt.Sprintf("%.2f", cfg.FuzzyThreshold))
	distanceEntry := widget.NewEntry()
	distanceEntry.SetText(fmt.Sprintf("%.2f", cfg.Miner.Lexical.DistanceThreshold))
	semanticEntry := widget.NewEntry()
	semanticEntry.SetText(fmt.Sprintf("%.2f", cfg.Miner.Semantic.Threshold))
	idfCheck := widget.NewCheck("Pondération IDF", nil)
	idfCheck.SetChecked(cfg.Miner.Lexical.IDF)
	coveredCheck := widget.NewCheck("Afficher les paires déjà couvertes", nil)
	coveredCheck.SetChecked(cfg.Miner.IncludeCovered)
	arbitratedCheck := widget.NewCheck("Garder les paires déjà arbitrées", nil)
	arbitratedCheck.SetChecked(cfg.Miner.KeepArbitrated)

	form := &widget.Form{Items: []*widget.FormItem{
		{Text: "Stratégies", Widget: strategies},
		{Text: "Seuil Jaccard", Widget: fuzzyEntry},
		{Text: "Distance de fusion", Widget: distanceEntry},
		{Text: "Seuil cosinus", Widget: semanticEntry},
		{Text: "N-grammes", Widget: idfCheck},
		{Text: "Propositions", Widget: coveredCheck},
		{Text: "Arbitrage", Widget: arbitratedCheck},
	}}

	dialog.NewCustomConfirm("Paramètres", "OK", "Annuler", form, func(ok bool) {
		if !ok {
			return
		}
		newCfg := cfg.Clone()
		var chosen []string
		for _, c := range strategyChoices {
			for _, sel := range strategies.Selected {
				if byLabel[sel] == c.Value {
					chosen = append(chosen, c.Value)
				}
			}
		}
		newCfg.Miner.Strategies = chosen
		if v, err := strconv.ParseFloat(strings.ReplaceAll(fuzzyEntry.Text, ",", "."), 64); err == nil {
			newCfg.FuzzyThreshold = v
		}
		if v, err := strconv.ParseFloat(strings.ReplaceAll(distanceEntry.Text, ",", "."), 64); err == nil {
			newCfg.Miner.Lexical.DistanceThreshold = v
		}
		if v, err := strconv.ParseFloat(strings.ReplaceAll(semanticEntry.Text, ",", "."), 64); err == nil {
			newCfg.Miner.Semantic.Threshold = v
		}
		newCfg.Miner.Lexical.IDF = idfCheck.Checked
		newCfg.Miner.IncludeCovered = coveredCheck.Checked
		newCfg.Miner.KeepArbitrated = arbitratedCheck.Checked

		saved, err := u.service.UpdateConfig(newCfg)
		u.cfg = saved
		u.updateConfigSummary()
		if err != nil {
			dialog.ShowError(err, u.w)
			return
		}
		u.logger.Info("paramètres mis à jour")
	}, u.w).Show()
}

func (u *uiState) onLoadFile() {
	fd := dialog.NewFileOpen(func(rc fyne.URIReadCloser, err error) {
		if err != nil || rc == nil {
			return
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			dialog.ShowError(err, u.w)
			return
		}
		uri := rc.URI()
		ext := strings.ToLower(filepath.Ext(uri.Path()))
		if ext == ".csv" || ext == ".tsv" {
			delim := ','
			if ext == ".tsv" {
				delim = '\t'
			}
			records, err := readCSVRecords(data, delim)
			if err != nil {
				dialog.ShowError(err, u.w)
				return
			}
			u.handleCSVRecords(uri, records)
			return
		}
		u.applyLoadedLines(uri, splitNonEmptyLines(string(data)))
	}, u.w)
	fd.SetFilter(storage.NewExtensionFileFilter([]string{".txt", ".csv", ".tsv"}))
	fd.Show()
}

func (u *uiState) applyLoadedLines(uri fyne.URI, lines []string) {
	u.input.SetText(strings.Join(lines, "\n"))
	u.logger.Info("fichier chargé", "file", filepath.Base(uri.Path()), "proofs", len(lines))
}

func (u *uiState) handleCSVRecords(uri fyne.URI, records [][]string) {
	maxCols := 0
	for _, row := range records {
		if len(row) > maxCols {
			maxCols = len(row)
		}
	}
	if maxCols == 0 {
		dialog.ShowError(errors.New("le fichier CSV est vide"), u.w)
		return
	}
	defaultCol := detectProofColumn(records[0])
	hasHeader := defaultCol >= 0
	if !hasHeader || defaultCol >= maxCols {
		defaultCol = 0
	}
	if maxCols == 1 {
		u.applyLoadedLines(uri, extractCSVColumn(records, defaultCol, hasHeader))
		return
	}
	choices := buildCSVColumnChoices(records, hasHeader)
	defaultChoice := 0
	for i, c := range choices {
		if c.Index == defaultCol {
			defaultChoice = i
			break
		}
	}
	options := make([]string, len(choices))
	for i, c := range choices {
		options[i] = c.Label
	}
	selectedCol := choices[defaultChoice].Index
	selectWidget := widget.NewSelect(options, func(value string) {
		for i, opt := range options {
			if opt == value {
				selectedCol = choices[i].Index
				return
			}
		}
	})
	selectWidget.SetSelected(options[defaultChoice])
	content := container.NewVBox(widget.NewLabel("Colonne contenant la preuve attendue"), selectWidget)
	dialog.NewCustomConfirm("Choix de la colonne", "Charger", "Annuler", content, func(ok bool) {
		if !ok {
			return
		}
		u.applyLoadedLines(uri, extractCSVColumn(records, selectedCol, hasHeader))
	}, u.w).Show()
}
