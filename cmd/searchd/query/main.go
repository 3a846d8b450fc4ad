// Command query sends presence queries to a running searchd.
//
//	query --host 10.0.0.5 --port 44445 "some line" "another line"
//	echo "some line" | query --tls --ca ca.pem
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/hasirciogluhq/xsearch/cmd/searchd/internal/client"
	"github.com/hasirciogluhq/xsearch/cmd/searchd/internal/config"
	"github.com/hasirciogluhq/xsearch/cmd/searchd/internal/logger"
)

func main() {
	var opts client.Options
	flag.StringVar(&opts.Host, "host", "127.0.0.1", "server host")
	flag.IntVar(&opts.Port, "port", config.DefaultPort, "server port")
	flag.BoolVar(&opts.UseTLS, "tls", false, "connect over TLS")
	flag.StringVar(&opts.CertFile, "cert", "", "client certificate file")
	flag.StringVar(&opts.KeyFile, "key", "", "client private key file")
	flag.StringVar(&opts.CAFile, "ca", "", "CA file used to verify the server")
	flag.StringVar(&opts.PSK, "psk", "", "pre-shared key")
	flag.DurationVar(&opts.Timeout, "timeout", client.DefaultTimeout, "dial and response timeout")
	flag.Parse()

	logger.Init()
	opts.Logger = logger.Default()

	c := client.New(opts)
	if err := c.Connect(context.Background()); err != nil {
		logger.Fatal("Could not connect", "addr", c.Address(), "error", err)
	}
	defer c.Close()

	var err error
	if flag.NArg() > 0 {
		err = runQueries(c, flag.Args(), os.Stdout)
	} else {
		err = runInteractive(c, os.Stdin, os.Stdout)
	}
	if err != nil {
		c.Close()
		logger.Fatal("Query failed", "error", err)
	}
}

func runQueries(c *client.Client, queries []string, out io.Writer) error {
	for _, q := range queries {
		if err := ask(c, q, out); err != nil {
			return err
		}
	}
	return nil
}

// runInteractive reads one query per line until EOF or "exit".
func runInteractive(c *client.Client, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "exit" {
			return nil
		}
		if line == "" {
			continue
		}
		if err := ask(c, line, out); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func ask(c *client.Client, query string, out io.Writer) error {
	resp, err := c.SendQuery(query)
	if errors.Is(err, client.ErrEmptyQuery) {
		logger.Warn("Skipping empty query")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s: %s\n", strings.TrimSpace(query), resp)
	return nil
}
