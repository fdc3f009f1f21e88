package main

import (
	"bufio"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/ethereum/go-ethereum/common"
	"github.com/urfave/cli/v2"

	"github.com/ligun0805/multisender/internal/chain"
	"github.com/ligun0805/multisender/internal/journal"
	"github.com/ligun0805/multisender/internal/multisend"
	"github.com/ligun0805/multisender/internal/recipients"
)

var errAborted = errors.New("aborted")

func fileFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "file",
		Aliases: []string{"f"},
		Usage:   `Recipients file, one "address, amount" per line ("-" for stdin)`,
	}
}

func tokenFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "token",
		Aliases:  []string{"t"},
		Usage:    "Token symbol from the network list or token address",
		Required: true,
	}
}

func chunkSizeFlag() cli.Flag {
	return &cli.IntFlag{
		Name:    "chunk-size",
		Usage:   "Recipients per transaction",
		EnvVars: []string{"CHUNK_SIZE"},
		Value:   recipients.DefaultChunkSize,
	}
}

func yesFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:    "yes",
		Aliases: []string{"y"},
		Usage:   "Do not ask for confirmation",
	}
}

func parseCommand() *cli.Command {
	return &cli.Command{
		Name:  "parse",
		Usage: "Validate a recipients list offline and show the chunk plan",
		Flags: []cli.Flag{
			fileFlag(),
			&cli.IntFlag{
				Name:    "decimals",
				Usage:   "Token decimals used to scale amounts",
				EnvVars: []string{"DEFAULT_DECIMALS"},
				Value:   recipients.DefaultDecimals,
			},
			chunkSizeFlag(),
			&cli.IntFlag{
				Name:  "preview",
				Usage: "Show the first N raw lines",
				Value: 5,
			},
			&cli.BoolFlag{
				Name:    "quiet",
				Aliases: []string{"q"},
				Usage:   "Only print rejected lines and totals",
			},
		},
		Action: func(c *cli.Context) error {
			if d := c.Int("decimals"); d < 0 || d > recipients.MaxDecimals {
				return fmt.Errorf("invalid --decimals %d: must be between 0 and %d", d, recipients.MaxDecimals)
			}
			text, err := readInput(c.App.Reader, c.String("file"))
			if err != nil {
				return err
			}
			w := c.App.Writer
			fmt.Fprintf(w, "Lines: %d\n", recipients.CountLines(text))
			if n := c.Int("preview"); n > 0 {
				headerColor.Fprintln(w, "=== PREVIEW ===")
				for _, l := range recipients.Preview(text, n) {
					fmt.Fprintln(w, l)
				}
			}
			b := recipients.Parse(text, c.Int("decimals"))
			printBatch(w, b, c.Int("chunk-size"), "", c.Bool("quiet"))
			if b.Len() == 0 {
				return errors.New(multisend.MsgNoRecipients)
			}
			return nil
		},
	}
}

func balancesCommand() *cli.Command {
	return &cli.Command{
		Name:  "balances",
		Usage: "List the wallet's token balances on the connected network",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "address",
				Usage: "Show balances of this address instead of the wallet",
			},
		},
		Action: func(c *cli.Context) error {
			s, err := openSession(c, "", c.String("address") == "")
			if err != nil {
				return err
			}
			defer s.Close()

			owner := s.Sender.Account()
			if a := c.String("address"); a != "" {
				if !recipients.IsAddress(a) {
					return fmt.Errorf("invalid address %q", a)
				}
				owner = common.HexToAddress(a)
			} else if !s.Sender.Connected() {
				return errors.New(multisend.MsgNoWallet)
			}

			net, err := s.Sender.Network(s.ctx)
			if err != nil {
				return err
			}
			idx, err := s.Indexer(s.ctx)
			if err != nil {
				return err
			}
			tokens, idxErr := idx.Tokens(s.ctx, owner)
			native, err := s.Client.NativeBalance(s.ctx, owner)
			if err != nil {
				return err
			}

			w := c.App.Writer
			headerColor.Fprintf(w, "=== %s (chain %d) ===\n", net.Name, net.ChainID)
			if contract, ok := net.Contract(); ok {
				fmt.Fprintln(w, "Multisender:", contract.Hex())
			} else {
				warnColor.Fprintln(w, "Multisender: not deployed on this network")
			}
			fmt.Fprintln(w, "Account    :", addrColor.Sprint(owner.Hex()))

			tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "%s\t%s\t%s\n", nativeSymbol(net.NativeSymbol), chain.FormatEther(native), "native")
			for _, t := range tokens {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", t.Label(), formatBalance(t.Balance, t.Decimals), t.Address.Hex())
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			if idxErr != nil {
				warnColor.Fprintln(w, "some balances could not be read:", chain.ShortMessage(idxErr))
			}
			return nil
		},
	}
}

func nativeSymbol(s string) string {
	if s == "" {
		return "native"
	}
	return s
}

func approveCommand() *cli.Command {
	return &cli.Command{
		Name:  "approve",
		Usage: "Approve the multisender contract to spend the batch total",
		Flags: []cli.Flag{
			tokenFlag(),
			fileFlag(),
			&cli.StringFlag{
				Name:  "amount",
				Usage: "Approve this amount (token units) instead of the batch total",
			},
			yesFlag(),
		},
		Action: func(c *cli.Context) error {
			if fromStdin(c.String("file")) && !c.Bool("yes") {
				return errStdinPrompt
			}
			in := bufio.NewReader(c.App.Reader)
			text, err := readInput(in, c.String("file"))
			if err != nil {
				return err
			}
			s, err := openSession(c, "approve", true)
			if err != nil {
				return err
			}
			defer s.Close()
			w := c.App.Writer

			plan, err := s.Sender.Prepare(s.ctx, multisend.Request{Token: c.String("token"), Text: text})
			if err != nil && !errors.Is(err, multisend.ErrApprovalRequired) {
				return errors.New(multisend.FailureMessage(err))
			}
			amount := plan.Batch.Total
			if a := c.String("amount"); a != "" {
				if amount, err = recipients.ParseAmount(a, plan.Token.Decimals); err != nil {
					return fmt.Errorf("amount: %w", err)
				}
			} else if !plan.NeedsApproval() {
				okColor.Fprintf(w, "Allowance %s already covers the total %s.\n",
					recipients.FormatAmount(plan.Token.Allowance, plan.Token.Decimals), recipients.FormatAmount(amount, plan.Token.Decimals))
				return nil
			}

			prompt := fmt.Sprintf("Approve %s %s for %s?", recipients.FormatAmount(amount, plan.Token.Decimals), plan.Token.Label(), plan.Contract.Hex())
			if !c.Bool("yes") && !confirm(in, w, prompt) {
				return errAborted
			}
			rc, err := s.Sender.Approve(s.ctx, plan, amount, func(st string) { printStatus(w, st) })
			if err != nil {
				return errors.New(multisend.FailureMessage(err))
			}
			fmt.Fprintln(w, "tx:", txLink(plan, rc.TxHash))
			return nil
		},
	}
}

func sendCommand() *cli.Command {
	return &cli.Command{
		Name:  "send",
		Usage: "Send the batch, one transaction per chunk, strictly in order",
		Flags: []cli.Flag{
			tokenFlag(),
			fileFlag(),
			chunkSizeFlag(),
			&cli.BoolFlag{
				Name:  "approve",
				Usage: "Approve the batch total first when the allowance is short",
			},
			yesFlag(),
		},
		Action: func(c *cli.Context) error {
			if fromStdin(c.String("file")) && !c.Bool("yes") {
				return errStdinPrompt
			}
			in := bufio.NewReader(c.App.Reader)
			text, err := readInput(in, c.String("file"))
			if err != nil {
				return err
			}
			s, err := openSession(c, "send", true)
			if err != nil {
				return err
			}
			defer s.Close()
			w := c.App.Writer
			yes := c.Bool("yes")

			printStatus(w, multisend.StatusPreparing)
			plan, err := s.Sender.Prepare(s.ctx, multisend.Request{Token: c.String("token"), Text: text, ChunkSize: c.Int("chunk-size")})
			if errors.Is(err, multisend.ErrApprovalRequired) && c.Bool("approve") {
				warnColor.Fprintln(w, multisend.FailureMessage(err))
				if !yes && !confirm(in, w, "Approve the batch total now?") {
					return errAborted
				}
				if _, err = s.Sender.Approve(s.ctx, plan, nil, func(st string) { printStatus(w, st) }); err != nil {
					return errors.New(multisend.FailureMessage(err))
				}
			}
			if err != nil {
				return errors.New(multisend.FailureMessage(err))
			}

			tc := plan.Token
			headerColor.Fprintln(w, "=== BATCH ===")
			fmt.Fprintln(w, "Network    :", plan.Network.Name)
			fmt.Fprintln(w, "Contract   :", plan.Contract.Hex())
			fmt.Fprintln(w, "Token      :", tc.Label(), tc.Address.Hex())
			fmt.Fprintln(w, "Recipients :", plan.Batch.Len())
			if n := len(plan.Batch.Rejected); n > 0 {
				warnColor.Fprintf(w, "Rejected   : %d (run `multisender parse` to see why)\n", n)
			}
			fmt.Fprintln(w, "Total      :", amountColor.Sprint(recipients.FormatAmount(plan.Batch.Total, tc.Decimals)), tc.Label())
			fmt.Fprintln(w, "Chunks     :", len(plan.Chunks))
			if !yes && !confirm(in, w, plan.Summary()+" Continue?") {
				return errAborted
			}

			last := ""
			rep, err := s.Sender.Run(s.ctx, plan, func(p multisend.Progress) {
				if p.Status == last {
					return
				}
				last = p.Status
				printStatus(w, p.Status)
				if p.Status == multisend.StatusWaiting && p.Current >= 0 {
					fmt.Fprintln(w, "  tx:", txLink(plan, p.Chunks[p.Current].TxHash))
				}
			})
			printChunks(w, rep.Chunks, tc.Decimals, func(h common.Hash) string { return txLink(plan, h) })
			if err != nil {
				return errors.New(rep.Status)
			}
			return nil
		},
	}
}

func txLink(plan *multisend.Plan, h common.Hash) string {
	if u := plan.Network.TxURL(h); u != "" {
		return u
	}
	return h.Hex()
}

func historyCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Show past send runs from the journal",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Value:   20,
				Usage:   "Number of runs to show",
			},
			&cli.Int64Flag{
				Name:  "run",
				Usage: "Show the chunks of one run",
			},
		},
		Action: func(c *cli.Context) error {
			st, err := loadSettings(c)
			if err != nil {
				return err
			}
			if st.JournalPath == "" {
				return errors.New("journal is disabled (JOURNAL_PATH is empty)")
			}
			j, err := journal.Open(st.JournalPath)
			if err != nil {
				return err
			}
			defer j.Close()
			w := c.App.Writer

			if id := c.Int64("run"); id > 0 {
				chunks, err := j.Chunks(c.Context, id)
				if err != nil {
					return err
				}
				if len(chunks) == 0 {
					return journal.ErrNotFound
				}
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "CHUNK\tSIZE\tSTATUS\tTX\tERROR")
				for _, ch := range chunks {
					fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\n", ch.Index+1, ch.Size, ch.Status, ch.TxHash, ch.Error)
				}
				return tw.Flush()
			}

			runs, err := j.ListRuns(c.Context, c.Int("limit"))
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(w, "No runs recorded.")
				return nil
			}
			tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSTARTED\tCHAIN\tTOKEN\tRECIPIENTS\tTOTAL\tCHUNKS\tSTATUS")
			for _, r := range runs {
				tok := r.Symbol
				if tok == "" {
					tok = chain.Shorten(common.HexToAddress(r.Token))
				}
				fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%d\t%s\t%d/%d\t%s\n",
					r.ID, r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.ChainID, tok, r.Recipients, r.Total, r.Confirmed, r.Chunks, r.Status)
			}
			return tw.Flush()
		},
	}
}
