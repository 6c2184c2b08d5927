// Command keys manages exchange API credentials in the encrypted keystore.
//
//	keys put -exchange binance -label main
//	keys get -exchange binance -label main
//	keys list -exchange binance
//	keys delete -exchange binance -label main
//
// The API key pair for put is read from GOTRADE_API_KEY / GOTRADE_API_SECRET.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/algobot/gotrade/pkg/secretstore"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fatal(fmt.Errorf("load .env: %w", err))
	}
	if len(os.Args) < 2 {
		usage()
	}
	cmd, args := os.Args[1], os.Args[2:]

	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	var (
		dbPath   = fs.String("db", getenv("GOTRADE_KEYSTORE", "data/keys.badger"), "keystore path")
		keyStr   = fs.String("key", os.Getenv("GOTRADE_KEYSTORE_KEY"), "encryption key (32 bytes hex/base64)")
		exchange = fs.String("exchange", "", "exchange name")
		label    = fs.String("label", "main", "credential label")
	)
	fs.Parse(args)

	encKey, err := secretstore.ParseKey(*keyStr)
	if err != nil {
		fatal(err)
	}

	store, err := secretstore.Open(secretstore.OpenOptions{
		Path:          *dbPath,
		EncryptionKey: encKey,
		ReadOnly:      cmd == "get" || cmd == "list",
	})
	if err != nil {
		fatal(err)
	}
	defer store.Close()

	switch cmd {
	case "put":
		apiKey := strings.TrimSpace(os.Getenv("GOTRADE_API_KEY"))
		apiSecret := strings.TrimSpace(os.Getenv("GOTRADE_API_SECRET"))
		if apiKey == "" || apiSecret == "" {
			fatal(fmt.Errorf("GOTRADE_API_KEY and GOTRADE_API_SECRET must be set"))
		}
		err = store.PutCredentials(*exchange, *label, secretstore.Credentials{
			Exchange:  *exchange,
			APIKey:    apiKey,
			APISecret: apiSecret,
		})
		if err == nil {
			fmt.Printf("stored %s/%s\n", *exchange, *label)
		}

	case "get":
		creds, found, getErr := store.GetCredentials(*exchange, *label)
		err = getErr
		if err == nil && !found {
			err = fmt.Errorf("no credentials for %s/%s", *exchange, *label)
		}
		if err == nil {
			fmt.Printf("exchange:   %s\n", creds.Exchange)
			fmt.Printf("api key:    %s\n", creds.APIKey)
			fmt.Printf("api secret: %s\n", creds.APISecret)
		}

	case "list":
		var labels []string
		if labels, err = store.ListLabels(*exchange); err == nil {
			for _, l := range labels {
				fmt.Println(l)
			}
		}

	case "delete":
		if err = store.DeleteCredentials(*exchange, *label); err == nil {
			fmt.Printf("deleted %s/%s\n", *exchange, *label)
		}

	default:
		usage()
	}
	if err != nil {
		fatal(err)
	}
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: keys {put|get|list|delete} [-exchange name] [-label name] [-db path] [-key hex]")
	os.Exit(2)
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}
