package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/ligun0805/multisender/internal/app"
	"github.com/ligun0805/multisender/internal/chain"
	"github.com/ligun0805/multisender/internal/multisend"
	"github.com/ligun0805/multisender/internal/recipients"
	"github.com/ligun0805/multisender/internal/registry"
)

// page is the single MultiSender screen.
type page struct {
	a   fyne.App
	w   fyne.Window
	env *app.Env
	log *zap.Logger
	run runState

	mu         sync.Mutex
	tokens     map[string]chain.TokenContext // option label -> token
	pasted     map[string]chain.TokenContext // lower-case address -> token
	pending    *multisend.Plan               // plan waiting for approval
	currentNet string

	netSel     *widget.Select
	networkLbl *widget.Label
	accountLbl *widget.Label
	keyEntry   *widget.Entry
	keyBtn     *widget.Button
	tokenSel   *widget.Select
	tokenEntry *widget.Entry
	text       *widget.Entry
	chunkEntry *widget.Entry
	linesLbl   *widget.Label
	previewLbl *widget.Label
	parsedLbl  *widget.Label
	rejectLbl  *widget.Label
	statusLbl  *widget.Label
	txLink     *widget.Hyperlink
	execBtn    *widget.Button
	approveBtn *widget.Button
	stopBtn    *widget.Button
	themeSel   *widget.Select
	compact    *widget.Check
}

func newPage(a fyne.App, w fyne.Window, env *app.Env, d draft) *page {
	p := &page{
		a: a, w: w, env: env, log: env.Log.Named("gui"),
		tokens: map[string]chain.TokenContext{},
		pasted: map[string]chain.TokenContext{},
	}

	p.netSel = widget.NewSelect(env.Registry.Names(), p.switchNetwork)
	p.netSel.PlaceHolder = "Network"
	p.networkLbl = widget.NewLabel("connecting...")
	p.accountLbl = widget.NewLabel("")
	p.keyEntry = widget.NewPasswordEntry()
	p.keyEntry.SetPlaceHolder("Private key (hex)")
	p.keyBtn = widget.NewButtonWithIcon("Connect", theme.LoginIcon(), p.connect)

	p.tokenSel = widget.NewSelect(nil, func(string) { p.refreshSummary() })
	p.tokenSel.PlaceHolder = "Select token"
	p.tokenEntry = widget.NewEntry()
	p.tokenEntry.SetPlaceHolder("or paste a token address")
	p.tokenEntry.SetText(d.Token)
	p.tokenEntry.OnChanged = func(s string) {
		p.refreshSummary()
		p.resolvePasted(s)
	}

	p.text = widget.NewMultiLineEntry()
	p.text.SetPlaceHolder("0x1234...abcd, 1.5\n0x5678...ef01, 20")
	p.text.SetMinRowsVisible(12)

	p.chunkEntry = widget.NewEntry()
	p.chunkEntry.SetText(strconv.Itoa(env.Settings.ChunkSize))
	if d.ChunkSize != "" {
		p.chunkEntry.SetText(d.ChunkSize)
	}
	p.chunkEntry.OnChanged = func(string) { p.refreshSummary() }

	p.linesLbl = widget.NewLabel("Lines: 0")
	p.previewLbl = widget.NewLabel("")
	p.previewLbl.TextStyle = fyne.TextStyle{Monospace: true}
	p.parsedLbl = widget.NewLabel("")
	p.rejectLbl = widget.NewLabel("")
	p.rejectLbl.Wrapping = fyne.TextWrapWord
	p.statusLbl = widget.NewLabel(multisend.StatusIdle)
	p.statusLbl.Wrapping = fyne.TextWrapWord
	p.txLink = widget.NewHyperlink("", nil)
	p.txLink.Hide()

	p.execBtn = widget.NewButtonWithIcon("Execute Batch Send", theme.MailSendIcon(), p.execute)
	p.execBtn.Importance = widget.HighImportance
	p.approveBtn = widget.NewButtonWithIcon("Approve", theme.ConfirmIcon(), p.approve)
	p.approveBtn.Disable()
	p.stopBtn = widget.NewButtonWithIcon("Stop", theme.MediaStopIcon(), func() {
		if p.run.stop() {
			p.setStatus("Stopping after the current step...")
		}
	})
	p.stopBtn.Disable()

	p.compact = widget.NewCheck("Compact", func(bool) { p.applyTheme() })
	p.themeSel = widget.NewSelect([]string{"Dark", "Light"}, func(string) { p.applyTheme() })
	if d.Theme == "light" {
		p.themeSel.SetSelected("Light")
	} else {
		p.themeSel.SetSelected("Dark")
	}

	p.text.SetText(d.Text)
	p.text.OnChanged = func(string) { p.refreshSummary() }
	return p
}

func (p *page) build() fyne.CanvasObject {
	wallet := container.NewBorder(nil, nil, nil, p.keyBtn, p.keyEntry)
	if p.env.Sender.Connected() {
		wallet.Hide()
	}
	header := widget.NewCard("MultiSender", "", container.NewVBox(
		container.NewHBox(widget.NewLabel("Network:"), p.netSel, p.networkLbl),
		p.accountLbl,
		wallet,
	))

	refreshBtn := widget.NewButtonWithIcon("", theme.ViewRefreshIcon(), func() { go p.refreshTokens(context.Background()) })
	logsBtn := widget.NewButtonWithIcon("Logs", theme.ListIcon(), func() { ensureLogWindow(p.a).Show() })
	clearBtn := widget.NewButtonWithIcon("Clear", theme.ContentClearIcon(), p.clear)

	form := widget.NewForm(
		widget.NewFormItem("Token", container.NewBorder(nil, nil, nil, refreshBtn, p.tokenSel)),
		widget.NewFormItem("", p.tokenEntry),
		widget.NewFormItem("Chunk size", p.chunkEntry),
	)

	input := widget.NewCard("Recipients", "One \"address, amount\" per line", container.NewVBox(
		p.text,
		container.NewHBox(p.linesLbl, clearBtn),
		p.parsedLbl,
		p.rejectLbl,
		widget.NewLabelWithStyle("Preview", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		p.previewLbl,
	))

	actions := container.NewGridWithColumns(3, p.execBtn, p.approveBtn, p.stopBtn)
	status := widget.NewCard("Status", "", container.NewVBox(p.statusLbl, p.txLink))
	footer := container.NewHBox(logsBtn, widget.NewLabel("Theme:"), p.themeSel, p.compact)

	return container.NewVScroll(container.NewVBox(header, form, input, actions, status, footer))
}

// start loads the network and token list in the background.
func (p *page) start(ctx context.Context) {
	p.refreshAccount()
	go func() {
		net, err := p.env.Sender.Network(ctx)
		if err != nil {
			p.networkLbl.SetText(chain.ShortMessage(err))
			return
		}
		p.showNetwork(net)
		p.refreshTokens(ctx)
		p.resolvePasted(p.tokenEntry.Text)
	}()
	p.refreshSummary()
}

func (p *page) showNetwork(net registry.Network) {
	line := fmt.Sprintf("chain %d", net.ChainID)
	if c, ok := net.Contract(); ok {
		line += "   Contract: " + chain.Shorten(c)
	} else {
		line += "   Contract: not deployed"
	}
	p.networkLbl.SetText(line)
	p.mu.Lock()
	p.currentNet = net.Name
	p.mu.Unlock()
	p.netSel.SetSelected(net.Name)
}

// switchNetwork re-dials the selected registry network. Selecting the current one is a no-op.
func (p *page) switchNetwork(name string) {
	p.mu.Lock()
	current := p.currentNet
	p.mu.Unlock()
	if name == current {
		return
	}
	ctx, ok := p.run.begin(context.Background())
	if !ok {
		p.netSel.SetSelected(current)
		return
	}
	p.setBusy(true)
	p.setStatus("Switching to " + name + "...")

	go func() {
		defer func() {
			p.run.end()
			p.setBusy(false)
		}()
		net, err := p.env.SwitchNetwork(ctx, name)
		if err != nil {
			p.setStatus(chain.ShortMessage(err))
			p.netSel.SetSelected(current)
			return
		}
		p.mu.Lock()
		p.pending = nil
		p.tokens = map[string]chain.TokenContext{}
		p.pasted = map[string]chain.TokenContext{}
		p.mu.Unlock()
		p.tokenSel.ClearSelected()
		p.tokenSel.Options = nil
		p.tokenSel.Refresh()
		p.txLink.Hide()
		p.showNetwork(net)
		p.setStatus(multisend.StatusIdle)
		p.refreshTokens(ctx)
		p.resolvePasted(p.tokenEntry.Text)
		p.refreshSummary()
	}()
}

// resolvePasted loads decimals and symbol of a pasted token address in the background.
func (p *page) resolvePasted(s string) {
	s = strings.TrimSpace(s)
	if !recipients.IsAddress(s) {
		return
	}
	key := strings.ToLower(s)
	p.mu.Lock()
	_, ok := p.pasted[key]
	p.mu.Unlock()
	if ok {
		return
	}
	go func() {
		tc, err := p.env.Sender.Token(context.Background(), s)
		if err != nil {
			p.log.Debug("pasted token unresolved", zap.String("token", s), zap.String("reason", chain.ShortMessage(err)))
			return
		}
		p.mu.Lock()
		p.pasted[key] = tc
		p.mu.Unlock()
		p.refreshSummary()
	}()
}

func (p *page) refreshAccount() {
	if !p.env.Sender.Connected() {
		p.accountLbl.SetText("Wallet: not connected")
		return
	}
	p.accountLbl.SetText("Wallet: " + p.env.Sender.Account().Hex())
}

func (p *page) connect() {
	if err := p.env.SetKey(p.keyEntry.Text); err != nil {
		dialog.ShowError(err, p.w)
		return
	}
	p.keyEntry.SetText("")
	p.keyEntry.Hide()
	p.keyBtn.Hide()
	p.refreshAccount()
	go p.refreshTokens(context.Background())
}

func (p *page) refreshTokens(ctx context.Context) {
	if !p.env.Sender.Connected() {
		return
	}
	idx, err := p.env.Indexer(ctx)
	if err != nil {
		p.log.Warn("indexer unavailable", zap.Error(err))
		return
	}
	toks, err := idx.Tokens(ctx, p.env.Sender.Account())
	if err != nil {
		p.log.Warn("token balances incomplete", zap.String("reason", chain.ShortMessage(err)))
	}

	p.mu.Lock()
	p.tokens = make(map[string]chain.TokenContext, len(toks))
	opts := make([]string, 0, len(toks))
	selected := ""
	prev := p.tokenSel.Selected
	for _, t := range toks {
		o := tokenOption(t)
		p.tokens[o] = t
		opts = append(opts, o)
		if prev != "" && strings.HasPrefix(prev, t.Label()+"  ") {
			selected = o
		}
	}
	p.mu.Unlock()

	p.tokenSel.Options = opts
	p.tokenSel.Refresh()
	if selected != "" {
		p.tokenSel.SetSelected(selected)
	}
}

// tokenRef is what Prepare gets: a pasted address wins over the picker.
func (p *page) tokenRef() (string, chain.TokenContext, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s := strings.TrimSpace(p.tokenEntry.Text); s != "" {
		t, ok := p.pasted[strings.ToLower(s)]
		return s, t, ok
	}
	t, ok := p.tokens[p.tokenSel.Selected]
	if !ok {
		return "", chain.TokenContext{}, false
	}
	return t.Address.Hex(), t, true
}

func (p *page) refreshSummary() {
	decimals, symbol := p.env.Settings.DefaultDecimals, ""
	if _, t, ok := p.tokenRef(); ok {
		decimals, symbol = t.Decimals, t.Label()
	}
	s := summarize(p.env.Memo, p.text.Text, decimals, parseChunkSize(p.chunkEntry.Text, p.env.Settings.ChunkSize))
	p.linesLbl.SetText(fmt.Sprintf("Lines: %d", s.Lines))
	p.previewLbl.SetText(strings.Join(s.Preview, "\n"))
	p.parsedLbl.SetText(s.headline(symbol))
	p.rejectLbl.SetText(s.rejectedText(5))
}

func (p *page) clear() {
	p.text.SetText("")
	p.setStatus(multisend.StatusIdle)
	p.txLink.Hide()
	p.approveBtn.Disable()
	p.mu.Lock()
	p.pending = nil
	p.mu.Unlock()
}

func (p *page) applyTheme() {
	if p.compact == nil {
		return
	}
	p.a.Settings().SetTheme(makeTheme(strings.ToLower(p.themeSel.Selected), p.compact.Checked))
}

func (p *page) setStatus(s string) {
	p.statusLbl.SetText(s)
}

func (p *page) showTx(plan *multisend.Plan, h common.Hash) {
	u := plan.Network.TxURL(h)
	p.txLink.SetText("Tx: " + h.Hex())
	if u != "" {
		_ = p.txLink.SetURLFromString(u)
	}
	p.txLink.Show()
}

func (p *page) draft() draft {
	d := draft{Token: p.tokenEntry.Text, Text: p.text.Text, ChunkSize: p.chunkEntry.Text, Theme: "dark"}
	if p.themeSel.Selected == "Light" {
		d.Theme = "light"
	}
	return d
}
