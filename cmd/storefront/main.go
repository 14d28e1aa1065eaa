// Command storefront is a terminal storefront for the coffee shop: it keeps a
// cart on disk, walks through checkout and follows placed orders through the
// order API.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/utafrali/coffeeshop/pkg/logger"
)

const usage = `usage: storefront <command> [arguments]

commands:
  menu                                  list products
  cart add|remove|inc|dec <product>     change the cart (product id or name)
  cart show|clear                       show or empty the cart
  checkout -name N -phone P -email E -payment M [-dry-run]
                                        review the cart and place the order
  orders mine                           list your orders
  orders show|cancel <order-id>         show or cancel one order

environment:
  STOREFRONT_API_URL, STOREFRONT_TOKEN, STOREFRONT_CART_FILE`

var errUsage = errors.New("invalid usage")

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintln(os.Stderr, usage)
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logger.NewWithOptions(logger.Options{
		Service: "storefront",
		Level:   cfg.LogLevel,
		Format:  logger.FormatText,
		Writer:  stderr,
	})

	if len(args) == 0 {
		return fmt.Errorf("%w: missing command", errUsage)
	}

	sf, err := newStorefront(cfg, stdout, log)
	if err != nil {
		return err
	}

	switch args[0] {
	case "menu":
		return sf.menu()
	case "cart":
		return sf.cartCommand(args[1:])
	case "checkout":
		return sf.checkout(ctx, args[1:])
	case "orders":
		return sf.ordersCommand(ctx, args[1:])
	case "help", "-h", "--help":
		_, err := fmt.Fprintln(stdout, usage)
		return err
	}
	return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
}
