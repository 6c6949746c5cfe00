package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/jmerrifield20/paymail/pkg/paymail"
	"github.com/spf13/cobra"
)

// ── capabilities ─────────────────────────────────────────────────────────────

var capabilitiesCmd = &cobra.Command{
	Use:   "capabilities <domain>",
	Short: "Fetch the capability document a domain publishes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(false)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		base, err := c.BaseURL(ctx, args[0])
		if err != nil {
			return err
		}
		caps, err := c.Capabilities(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"base_url":     base,
			"bsvalias":     caps.BSVAlias,
			"capabilities": caps.Capabilities,
		})
	},
}

// ── pubkey ───────────────────────────────────────────────────────────────────

type pubkeyRow struct {
	address string
	pubkey  string
	err     error
}

var pubkeyCmd = &cobra.Command{
	Use:   "pubkey <alias@domain> [alias@domain] ...",
	Short: "Look up the public key of one or more paymail addresses",
	Long: `Look up public keys through each domain's pki capability.

Multiple addresses are looked up concurrently and displayed as a table:

  paymail pubkey alice@example.com bob@example.org`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, a := range args {
			if _, err := paymail.ParseAddress(a); err != nil {
				return fmt.Errorf("invalid address %q: %w", a, err)
			}
		}
		c, err := newClient(false)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		rows := make([]pubkeyRow, len(args))
		done := make(chan struct{}, len(args))
		for i, a := range args {
			i, a := i, a
			go func() {
				pub, err := c.GetPubKey(ctx, a)
				rows[i] = pubkeyRow{address: a, pubkey: pub, err: err}
				done <- struct{}{}
			}()
		}
		for range args {
			<-done
		}

		out := cmd.OutOrStdout()
		if len(rows) == 1 {
			if rows[0].err != nil {
				return rows[0].err
			}
			fmt.Fprintln(out, rows[0].pubkey)
			return nil
		}
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ADDRESS\tPUBKEY\tERROR")
		for _, r := range rows {
			if r.err != nil {
				fmt.Fprintf(w, "%s\t\t%s\n", r.address, r.err)
			} else {
				fmt.Fprintf(w, "%s\t%s\t\n", r.address, r.pubkey)
			}
		}
		return w.Flush()
	},
}

// ── destination ──────────────────────────────────────────────────────────────

var (
	destSender     string
	destSenderName string
	destAmount     uint64
	destPurpose    string
)

var destinationCmd = &cobra.Command{
	Use:   "destination <alias@domain>",
	Short: "Request a signed payment destination output script",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if destSender == "" {
			return fmt.Errorf("--sender is required")
		}
		c, err := newClient(true)
		if err != nil {
			return err
		}

		req := paymail.PaymentRequest{SenderHandle: destSender}
		if destSenderName != "" {
			req.SenderName = &destSenderName
		}
		if cmd.Flags().Changed("amount") {
			req.Amount = &destAmount
		}
		if destPurpose != "" {
			req.Purpose = &destPurpose
		}

		script, err := c.PaymentDestination(cmd.Context(), args[0], req)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), script)
		return nil
	},
}

func init() {
	destinationCmd.Flags().StringVar(&destSender, "sender", "", "sender paymail handle (required)")
	destinationCmd.Flags().StringVar(&destSenderName, "sender-name", "", "sender display name")
	destinationCmd.Flags().Uint64Var(&destAmount, "amount", 0, "amount in satoshis")
	destinationCmd.Flags().StringVar(&destPurpose, "purpose", "", "human-readable purpose")
}

// ── p2p-destination ─────────────────────────────────────────────────────────

var p2pDestinationCmd = &cobra.Command{
	Use:   "p2p-destination <alias@domain> <satoshis>",
	Short: "Request P2P outputs and a reference for a payment",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		sats, err := strconv.ParseUint(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid satoshis %q: %w", args[1], err)
		}
		c, err := newClient(false)
		if err != nil {
			return err
		}
		res, err := c.P2PPaymentDestination(cmd.Context(), args[0], sats)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), res)
	},
}

// ── send-tx ──────────────────────────────────────────────────────────────────

var (
	sendReference string
	sendMetadata  string
	sendSender    string
)

var sendTxCmd = &cobra.Command{
	Use:   "send-tx <alias@domain> <raw-tx-hex>",
	Short: "Submit a signed transaction for a P2P reference",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if sendReference == "" {
			return fmt.Errorf("--reference is required")
		}
		c, err := newClient(true)
		if err != nil {
			return err
		}

		meta := map[string]any{}
		if sendMetadata != "" {
			if err := json.Unmarshal([]byte(sendMetadata), &meta); err != nil {
				return fmt.Errorf("--metadata: %w", err)
			}
		}
		if sendSender != "" {
			meta["sender"] = sendSender
		}
		if _, ok := meta["sender"]; !ok {
			return fmt.Errorf("--sender is required")
		}
		if _, ok := meta["pubkey"]; !ok {
			meta["pubkey"] = c.PubKey()
		}

		res, err := c.SendP2PTransaction(cmd.Context(), args[0], args[1], meta, sendReference)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), res)
	},
}

func init() {
	sendTxCmd.Flags().StringVar(&sendReference, "reference", "", "reference from p2p-destination (required)")
	sendTxCmd.Flags().StringVar(&sendMetadata, "metadata", "", "metadata JSON object")
	sendTxCmd.Flags().StringVar(&sendSender, "sender", "", "sender paymail handle added to metadata (required unless --metadata names one)")
}

// ── call ─────────────────────────────────────────────────────────────────────

var callBody string

var callCmd = &cobra.Command{
	Use:   "call <alias@domain> <capability-key>",
	Short: "Call the endpoint published under any capability key",
	Long: `Call resolves an arbitrary capability key and calls its endpoint.
Without --body the call is a GET; with --body the JSON is POSTed.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(false)
		if err != nil {
			return err
		}
		var body any
		if callBody != "" {
			if !json.Valid([]byte(callBody)) {
				return fmt.Errorf("--body is not valid JSON")
			}
			body = json.RawMessage(callBody)
		}
		res, err := c.CallExtension(cmd.Context(), args[0], args[1], body)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), res)
	},
}

func init() {
	callCmd.Flags().StringVar(&callBody, "body", "", "JSON request body; switches to POST")
}

// ── profile ──────────────────────────────────────────────────────────────────

var profileCmd = &cobra.Command{
	Use:   "profile <alias@domain>",
	Short: "Fetch the public profile of an address",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(false)
		if err != nil {
			return err
		}
		p, err := c.PublicProfile(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), p)
	},
}

// ── verify-pubkey ────────────────────────────────────────────────────────────

var verifyPubKeyCmd = &cobra.Command{
	Use:   "verify-pubkey <alias@domain> <pubkey-hex>",
	Short: "Ask a host whether a public key belongs to an address",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(false)
		if err != nil {
			return err
		}
		res, err := c.VerifyPubKey(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), res)
	},
}
