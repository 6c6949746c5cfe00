// Package client is the paymail Go SDK.
//
// A Client resolves a paymail address (alias@domain) to the host serving its
// domain, fetches and caches the domain's capability document, and calls the
// endpoints it publishes.
//
// # Looking up a public key
//
//	c, err := client.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	pub, err := c.GetPubKey(ctx, "alice@example.com")
//
// # Requesting a payment destination
//
// Payment requests are signed, so the client needs a private key:
//
//	key, _ := bsm.ParsePrivateKey(os.Getenv("PAYMAIL_PRIVATE_KEY"))
//	c, _ := client.New(client.WithPrivateKey(key))
//	script, err := c.PaymentDestination(ctx, "bob@example.com", paymail.PaymentRequest{
//	    SenderHandle: "alice@example.com",
//	})
//
// The dt and signature fields are filled in by the client.
//
// # P2P transactions
//
// P2PPaymentDestination returns outputs and a reference; build and sign the
// transaction elsewhere, then submit it with SendP2PTransaction quoting the
// same reference.
//
// # Errors
//
// Every error wraps one of the paymail.Err* sentinels; use errors.Is to
// classify, and errors.As with *paymail.HTTPError for the status code.
// The client never retries. See paymail.IsRetryable.
package client
