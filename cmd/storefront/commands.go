package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"text/tabwriter"

	"github.com/utafrali/coffeeshop/internal/app"
	"github.com/utafrali/coffeeshop/internal/domain"
	"github.com/utafrali/coffeeshop/internal/pricing"
	"github.com/utafrali/coffeeshop/internal/storefront/cart"
	"github.com/utafrali/coffeeshop/internal/storefront/checkout"
	"github.com/utafrali/coffeeshop/internal/storefront/client"
)

// storefront is one CLI invocation's view of the shop.
type storefront struct {
	cfg    *config
	out    io.Writer
	cart   *cart.Store
	api    *client.Client
	logger *slog.Logger
}

func newStorefront(cfg *config, out io.Writer, logger *slog.Logger) (*storefront, error) {
	store, err := cart.NewStore(cart.NewFileStorage(cfg.CartFile),
		cart.WithDiscount(cfg.discount()),
		cart.WithShippingFee(cfg.ShippingFee),
	)
	if err != nil {
		return nil, err
	}
	return &storefront{
		cfg:    cfg,
		out:    out,
		cart:   store,
		api:    client.NewDefault(client.Config{BaseURL: cfg.APIURL, Token: cfg.Token}, logger),
		logger: logger,
	}, nil
}

func money(v int64) string {
	return fmt.Sprintf("NT$%d", v)
}

// --- menu ---

func (s *storefront) menu() error {
	tw := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPRODUCT\tPRICE")
	for _, p := range app.Menu {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", p.ID, p.Name, money(p.Price))
	}
	if rule := s.cfg.discount(); rule.Enabled() {
		fmt.Fprintf(tw, "\nBuy %d %s, save %s\n", rule.QualifyingQuantity, rule.ProductName, money(rule.DiscountPerGroup))
	}
	return tw.Flush()
}

// findProduct matches a menu product by id or case-insensitive name.
func findProduct(ref string) (domain.Product, bool) {
	for _, p := range app.Menu {
		if p.ID == ref || strings.EqualFold(p.Name, ref) {
			return p, true
		}
	}
	return domain.Product{}, false
}

// --- cart ---

func (s *storefront) cartCommand(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: cart needs a subcommand", errUsage)
	}

	switch args[0] {
	case "show":
		return s.printCart()
	case "clear":
		if err := s.cart.Clear(); err != nil {
			return err
		}
		_, err := fmt.Fprintln(s.out, "Cart cleared.")
		return err
	}

	if len(args) != 2 {
		return fmt.Errorf("%w: cart %s needs one product", errUsage, args[0])
	}
	ref := args[1]

	var err error
	switch args[0] {
	case "add":
		p, ok := findProduct(ref)
		if !ok {
			return fmt.Errorf("no product %q on the menu", ref)
		}
		err = s.cart.AddItem(p)
	case "remove":
		err = s.cart.RemoveItem(s.lineID(ref))
	case "inc":
		err = s.cart.UpdateQuantity(s.lineID(ref), 1)
	case "dec":
		err = s.cart.UpdateQuantity(s.lineID(ref), -1)
	default:
		return fmt.Errorf("%w: unknown cart subcommand %q", errUsage, args[0])
	}
	if err != nil {
		return err
	}
	return s.printCart()
}

// lineID resolves ref against the cart by product id or name.
func (s *storefront) lineID(ref string) string {
	for _, l := range s.cart.Lines() {
		if l.ProductID == ref || strings.EqualFold(l.Name, ref) {
			return l.ProductID
		}
	}
	return ref
}

func (s *storefront) printCart() error {
	lines := s.cart.Lines()
	if len(lines) == 0 {
		_, err := fmt.Fprintln(s.out, "Your cart is empty.")
		return err
	}

	tw := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PRODUCT\tQTY\tPRICE\tLINE\tSAVING")
	for _, l := range lines {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n", l.Name, l.Quantity, money(l.UnitPrice), money(l.LineTotal()), saving(s.cart.LineDiscount(l)))
	}
	printTotals(tw, s.cart.Totals())
	fmt.Fprintf(tw, "Items:\t%d\n", s.cart.Count())
	return tw.Flush()
}

func saving(d int64) string {
	if d == 0 {
		return "-"
	}
	return "-" + money(d)
}

func printTotals(w io.Writer, t pricing.Totals) {
	fmt.Fprintf(w, "\nSubtotal:\t%s\n", money(t.Subtotal))
	if t.Discount > 0 {
		fmt.Fprintf(w, "Discount:\t-%s\n", money(t.Discount))
	}
	if t.ShippingFee > 0 {
		fmt.Fprintf(w, "Shipping:\t%s\n", money(t.ShippingFee))
	}
	fmt.Fprintf(w, "Total:\t%s\n", money(t.Total))
}

// --- checkout ---

func (s *storefront) checkout(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("checkout", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var (
		info    domain.ShippingInfo
		payment string
		dryRun  bool
	)
	fs.StringVar(&info.Name, "name", "", "recipient name")
	fs.StringVar(&info.Phone, "phone", "", "recipient phone")
	fs.StringVar(&info.Email, "email", "", "recipient email")
	fs.StringVar(&payment, "payment", "", "payment method: "+strings.Join(s.cfg.PaymentMethods, ", "))
	fs.BoolVar(&dryRun, "dry-run", false, "stop at the review step")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	w := checkout.NewWizard(s.cart, s.api, checkout.Options{
		PaymentMethods: s.cfg.PaymentMethods,
		OrderNumbering: s.cfg.numbering(),
	}, s.logger)

	w.SetShipping(info)
	if err := w.Next(); err != nil {
		return fmt.Errorf("shipping details: %w", err)
	}
	w.SelectPayment(payment)
	if err := w.Next(); err != nil {
		return fmt.Errorf("payment: %w", err)
	}

	if err := s.printSummary(w.Summary()); err != nil {
		return err
	}
	if dryRun {
		return nil
	}
	if s.cfg.Token == "" {
		return errors.New("STOREFRONT_TOKEN is required to place an order")
	}

	conf, err := w.Submit(ctx)
	if err != nil {
		return errors.New(w.LastError())
	}
	_, err = fmt.Fprintf(s.out, "\nOrder %s placed, total %s.\nTrack it at %s\n", conf.OrderNumber, money(conf.Total), conf.TrackingPath)
	return err
}

func (s *storefront) printSummary(sum checkout.Summary) error {
	tw := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "Review your order")
	for _, l := range sum.Lines {
		fmt.Fprintf(tw, "  %s x%d\t%s\t%s\n", l.Name, l.Quantity, money(l.LineTotal), saving(l.Discount))
	}
	printTotals(tw, sum.Totals)
	fmt.Fprintf(tw, "Ship to:\t%s, %s, %s\n", sum.ShippingInfo.Name, sum.ShippingInfo.Phone, sum.ShippingInfo.Email)
	fmt.Fprintf(tw, "Payment:\t%s\n", sum.PaymentLabel)
	return tw.Flush()
}

// --- orders ---

func (s *storefront) ordersCommand(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: orders needs a subcommand", errUsage)
	}
	if s.cfg.Token == "" {
		return errors.New("STOREFRONT_TOKEN is required to see orders")
	}

	switch args[0] {
	case "mine":
		orders, err := s.api.MyOrders(ctx)
		if err != nil {
			return err
		}
		return s.printOrders(orders)
	case "show", "cancel":
		if len(args) != 2 {
			return fmt.Errorf("%w: orders %s needs an order id", errUsage, args[0])
		}
		var (
			order *client.Order
			err   error
		)
		if args[0] == "show" {
			order, err = s.api.GetOrder(ctx, args[1])
		} else {
			order, err = s.api.CancelOrder(ctx, args[1])
		}
		if err != nil {
			return err
		}
		return s.printOrder(order)
	}
	return fmt.Errorf("%w: unknown orders subcommand %q", errUsage, args[0])
}

func (s *storefront) printOrders(orders []client.Order) error {
	if len(orders) == 0 {
		_, err := fmt.Fprintln(s.out, "You have no orders yet.")
		return err
	}
	tw := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ORDER\tPLACED\tSTATUS\tTOTAL\tID")
	for _, o := range orders {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", o.OrderNumber, o.CreatedAt.Local().Format("2006-01-02 15:04"), o.Status, money(o.TotalAmount), o.ID)
	}
	return tw.Flush()
}

func (s *storefront) printOrder(o *client.Order) error {
	tw := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Order:\t%s\n", o.OrderNumber)
	fmt.Fprintf(tw, "Status:\t%s\n", o.Status)
	fmt.Fprintf(tw, "Payment:\t%s\n", o.PaymentLabel)
	for _, it := range o.Items {
		name := it.Name
		if name == "" {
			name = it.ProductID
		}
		fmt.Fprintf(tw, "  %s x%d\t%s\n", name, it.Quantity, money(it.LineTotal()))
	}
	printTotals(tw, pricing.Totals{Subtotal: o.SubtotalAmount, Discount: o.DiscountAmount, ShippingFee: o.ShippingFee, Total: o.TotalAmount})
	for _, h := range o.StatusHistory {
		fmt.Fprintf(tw, "  %s\t%s\n", h.Timestamp.Local().Format("2006-01-02 15:04"), h.Status)
	}
	return tw.Flush()
}
