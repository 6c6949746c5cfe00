package main

import (
	"fmt"
	"strings"

	"github.com/jmerrifield20/paymail/pkg/bsm"
	"github.com/spf13/cobra"
)

// ── sign ─────────────────────────────────────────────────────────────────────

var signCmd = &cobra.Command{
	Use:   "sign <message>",
	Short: "Sign a message with the configured private key",
	Long: `Sign prints the base64 Bitcoin Signed Message signature of message.
Multiple arguments are joined with '|', the canonical field delimiter:

  paymail sign alice@example.com 2024-03-01T12:00:00.000Z 1000 coffee`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := requireSigningKey()
		if err != nil {
			return err
		}
		sig, err := bsm.Sign(key, strings.Join(args, "|"))
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), sig)
		return nil
	},
}

// ── verify ───────────────────────────────────────────────────────────────────

var verifyCmd = &cobra.Command{
	Use:   "verify <pubkey-hex> <signature> <message>",
	Short: "Verify a message signature against a public key",
	Args:  cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ok, err := bsm.Verify(args[0], args[1], strings.Join(args[2:], "|"))
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("signature does not match")
		}
		fmt.Fprintln(cmd.OutOrStdout(), "valid")
		return nil
	},
}

// ── keygen ───────────────────────────────────────────────────────────────────

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a new signing key",
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := bsm.GenerateKey()
		if err != nil {
			return err
		}
		pub := key.PubKey()
		return printJSON(cmd.OutOrStdout(), map[string]string{
			"private_key": fmt.Sprintf("%x", key.Serialize()),
			"wif":         bsm.EncodeWIF(key),
			"pubkey":      bsm.PubKeyHex(pub),
			"p2pkh":       bsm.P2PKHScript(pub),
		})
	},
}
