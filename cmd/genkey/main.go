// Command genkey generates a Nostr keypair and prints a
// nostr+walletconnect:// URI template for it. Handy when standing up a
// wallet service for development.
package main

import (
	"fmt"
	"net/url"
	"os"

	flags "github.com/jessevdk/go-flags"
	"github.com/nbd-wtf/go-nostr"
)

type options struct {
	Relay string `long:"relay" default:"wss://relay.damus.io" description:"Relay to embed in the URI"`
}

func main() {
	var opts options
	if _, err := flags.Parse(&opts); err != nil {
		os.Exit(1)
	}

	walletSecret := nostr.GeneratePrivateKey()
	walletPubkey, err := nostr.GetPublicKey(walletSecret)
	if err != nil {
		fmt.Fprintf(os.Stderr, "deriving wallet pubkey: %v\n", err)
		os.Exit(1)
	}
	clientSecret := nostr.GeneratePrivateKey()

	fmt.Printf("wallet service secret: %s\n", walletSecret)
	fmt.Printf("wallet service pubkey: %s\n", walletPubkey)
	fmt.Printf("client secret:         %s\n", clientSecret)
	fmt.Printf("\nconnection URI:\n")
	fmt.Printf("nostr+walletconnect://%s?relay=%s&secret=%s\n",
		walletPubkey, url.QueryEscape(opts.Relay), clientSecret)
}
