package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"storefront/internal/api"
	"storefront/internal/database"
	"storefront/internal/domain"
	"storefront/internal/price"
	"storefront/internal/reviews"
	"storefront/internal/state"

	"go.uber.org/zap"
)

var errUsage = errors.New("usage")

type command struct {
	args string
	help string
	run  func(a *app, ctx context.Context, args []string) error
}

var commands = map[string]command{
	"login":          {"<email> <password>", "sign in and persist the session", (*app).login},
	"logout":         {"", "end the session", (*app).logout},
	"products":       {"[-category c] [-sub s] [-bestseller]", "list cached products", (*app).products},
	"product":        {"<id> [-rating n] [-size s] [-images] [-oldest] [-page n]", "show a product and its reviews", (*app).product},
	"cart":           {"", "show the cart", (*app).showCart},
	"cart-add":       {"<productId> <size> [quantity]", "add a product to the cart", (*app).cartAdd},
	"cart-update":    {"<productId> <size> <quantity>", "set a line quantity", (*app).cartUpdate},
	"cart-remove":    {"<productId> <size>", "remove a line", (*app).cartRemove},
	"checkout":       {"-name -email -street -city -postal -phone [-payment m] [-items id:size,...]", "place an order", (*app).checkout},
	"orders":         {"", "list orders", (*app).listOrders},
	"order-status":   {"<orderId> <status>", "change an order's status", (*app).orderStatus},
	"order-cancel":   {"<orderId>", "cancel an order", (*app).orderCancel},
	"order-delete":   {"<orderId>", "delete an order (admin)", (*app).orderDelete},
	"review":         {"<orderId> -rating n -text t -size s [-image url]", "review and complete a shipped order", (*app).review},
	"reply":          {"<productId> <reviewId> <text>", "reply to a review (admin)", (*app).reply},
	"review-delete":  {"<productId> <reviewId>", "delete a review (admin)", (*app).reviewDelete},
	"export":         {"<file.xlsx>", "export orders to a spreadsheet (admin)", (*app).export},
	"watch":          {"", "keep the session checked and orders polled until interrupted", (*app).watch},
	"migrate-status": {"", "print the client state migration status", (*app).migrateStatus},
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: storefront <command> [arguments]")
	fmt.Fprintln(os.Stderr)
	w := tabwriter.NewWriter(os.Stderr, 0, 4, 2, ' ', 0)
	for _, name := range sortedCommands() {
		c := commands[name]
		fmt.Fprintf(w, "  %s %s\t%s\n", name, c.args, c.help)
	}
	w.Flush()
}

func sortedCommands() []string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (a *app) run(ctx context.Context, name string, args []string) error {
	c, ok := commands[name]
	if !ok {
		return errUsage
	}
	a.log.Debug("Running command", zap.String("command", name))
	return c.run(a, ctx, args)
}

func newFlags(name string) *flag.FlagSet {
	return flag.NewFlagSet(name, flag.ContinueOnError)
}

// parseArgs parses flags that may follow the positional arguments
func parseArgs(fs *flag.FlagSet, args []string, positional int) ([]string, error) {
	if len(args) < positional {
		return nil, errUsage
	}
	if err := fs.Parse(args[positional:]); err != nil {
		return nil, errUsage
	}
	return args[:positional], nil
}

func table() *tabwriter.Writer {
	return tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
}

func (a *app) login(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errUsage
	}
	if err := a.session.SignIn(ctx, a.client, args[0], args[1]); err != nil {
		return err
	}
	sess, _ := a.session.Current()
	fmt.Printf("signed in as %s until %s\n", sess.Role, sess.ExpiresAt.Format("2006-01-02 15:04"))
	return nil
}

func (a *app) logout(ctx context.Context, args []string) error {
	return a.session.Logout(ctx)
}

func (a *app) products(ctx context.Context, args []string) error {
	fs := newFlags("products")
	category := fs.String("category", "", "category")
	sub := fs.String("sub", "", "sub-category")
	bestseller := fs.Bool("bestseller", false, "bestsellers only")
	if _, err := parseArgs(fs, args, 0); err != nil {
		return err
	}

	w := table()
	fmt.Fprintln(w, "ID\tNAME\tCATEGORY\tPRICE\tSIZES")
	for _, p := range a.catalog.Filter(*category, *sub, *bestseller) {
		sizes := make([]string, len(p.Sizes))
		for i, s := range p.Sizes {
			sizes[i] = string(s)
		}
		fmt.Fprintf(w, "%s\t%s\t%s/%s\t%s\t%s\n", p.ID, p.Name, p.Category, p.SubCategory, price.FormatInt(p.Price), strings.Join(sizes, ","))
	}
	return w.Flush()
}

func (a *app) product(ctx context.Context, args []string) error {
	fs := newFlags("product")
	rating := fs.Int("rating", 0, "only this star rating")
	size := fs.String("size", "", "only this size")
	images := fs.Bool("images", false, "only reviews with images")
	oldest := fs.Bool("oldest", false, "oldest first")
	page := fs.Int("page", 1, "page")
	perPage := fs.Int("per-page", 5, "reviews per page")
	pos, err := parseArgs(fs, args, 1)
	if err != nil {
		return err
	}

	p, err := a.catalog.GetByID(ctx, pos[0])
	if err != nil {
		return err
	}
	fmt.Printf("%s  %s\n%s\n\n", p.Name, price.FormatInt(p.Price), p.Description)

	engine := reviews.NewEngine(p.Reviews)
	if *rating > 0 {
		engine.ToggleRating(*rating)
	}
	if *size != "" {
		s, err := domain.ParseSize(*size)
		if err != nil {
			return err
		}
		engine.ToggleSize(s)
	}
	if *images {
		engine.ToggleImageOnly()
	}
	if *oldest {
		engine.SetDateOrder(reviews.OrderOldest)
	}

	fmt.Printf("reviews: %d total, %d with images\n", engine.CountAll(), engine.CountWithImage())
	for n := 5; n >= 1; n-- {
		fmt.Printf("  %d★ %d\n", n, engine.CountByRating(n))
	}

	pg := engine.Page(*page, *perPage)
	fmt.Printf("page %d/%d (%d matching)\n", pg.Page, pg.TotalPages, pg.Total)
	for _, r := range pg.Reviews {
		fmt.Printf("- [%s] %s %d★ size %s: %s\n", r.ID, r.Username, r.Rating, r.Size, r.ReviewText)
		if r.AdminReply != nil {
			fmt.Printf("    reply: %s\n", *r.AdminReply)
		}
	}
	return nil
}

func (a *app) showCart(ctx context.Context, args []string) error {
	if err := a.cart.Refresh(ctx); err != nil {
		return err
	}

	w := table()
	fmt.Fprintln(w, "PRODUCT\tSIZE\tQTY\tNAME")
	for _, line := range a.cart.Lines() {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", line.ProductID, line.Size, line.Quantity, line.Name)
	}
	fmt.Fprintf(w, "\t\t%d\t%s\n", a.cart.Count(), price.FormatInt(a.cart.Amount()))
	return w.Flush()
}

func (a *app) cartAdd(ctx context.Context, args []string) error {
	if len(args) < 2 || len(args) > 3 {
		return errUsage
	}
	size, err := domain.ParseSize(args[1])
	if err != nil {
		return err
	}
	quantity := 1
	if len(args) == 3 {
		if quantity, err = strconv.Atoi(args[2]); err != nil {
			return errUsage
		}
	}

	p, ok := a.catalog.Lookup(args[0])
	if !ok {
		return fmt.Errorf("unknown product %q", args[0])
	}
	if !p.OffersSize(size) {
		return fmt.Errorf("%s is not available in size %s", p.Name, size)
	}
	if err := a.cart.AddToCart(ctx, p.ID, size, p.Price, p.Name, quantity); err != nil {
		return err
	}
	fmt.Printf("cart: %d item(s), %s\n", a.cart.Count(), price.FormatInt(a.cart.Amount()))
	return nil
}

func (a *app) cartUpdate(ctx context.Context, args []string) error {
	if len(args) != 3 {
		return errUsage
	}
	quantity, err := strconv.Atoi(args[2])
	if err != nil {
		return errUsage
	}
	return a.cart.UpdateQuantity(ctx, args[0], domain.Size(strings.ToUpper(args[1])), quantity)
}

func (a *app) cartRemove(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errUsage
	}
	return a.cart.RemoveFromCart(ctx, args[0], domain.Size(strings.ToUpper(args[1])))
}

func (a *app) checkout(ctx context.Context, args []string) error {
	fs := newFlags("checkout")
	var req api.CheckoutRequest
	fs.StringVar(&req.Name, "name", "", "recipient name")
	fs.StringVar(&req.Email, "email", "", "recipient email")
	fs.StringVar(&req.Phone, "phone", "", "recipient phone")
	fs.StringVar(&req.Address.Street, "street", "", "street")
	fs.StringVar(&req.Address.City, "city", "", "city")
	fs.StringVar(&req.Address.State, "state", "", "state")
	fs.StringVar(&req.Address.PostalCode, "postal", "", "postal code")
	fs.StringVar(&req.Address.Country, "country", "", "country")
	fs.StringVar(&req.PaymentMethod, "payment", "cod", "cod, card or transfer")
	items := fs.String("items", "", "comma separated productId:size lines; default is the whole cart")
	if _, err := parseArgs(fs, args, 0); err != nil {
		return err
	}

	if err := a.cart.Refresh(ctx); err != nil {
		return err
	}
	selected, err := selectItems(a.cart.SelectAll(), *items)
	if err != nil {
		return err
	}
	req.SelectedItems = selected

	return a.cart.Checkout(ctx, req, func(orderID string) {
		fmt.Printf("order %s placed\n", orderID)
	}, nil)
}

func selectItems(all []domain.SelectedItem, spec string) ([]domain.SelectedItem, error) {
	if spec == "" {
		return all, nil
	}

	byKey := make(map[domain.LineKey]domain.SelectedItem, len(all))
	for _, item := range all {
		byKey[item.Key()] = item
	}

	var out []domain.SelectedItem
	for _, part := range strings.Split(spec, ",") {
		id, size, ok := strings.Cut(strings.TrimSpace(part), ":")
		if !ok {
			return nil, fmt.Errorf("item %q must be productId:size", part)
		}
		item, ok := byKey[domain.LineKey{ProductID: id, Size: domain.Size(strings.ToUpper(size))}]
		if !ok {
			return nil, fmt.Errorf("%s is not in the cart", part)
		}
		out = append(out, item)
	}
	return out, nil
}

func (a *app) listOrders(ctx context.Context, args []string) error {
	if err := a.orders.FetchOrders(ctx); err != nil {
		return err
	}
	printOrders(a.orders.Orders())
	return nil
}

func printOrders(list []domain.Order) {
	w := table()
	fmt.Fprintln(w, "ID\tDATE\tSTATUS\tITEMS\tTOTAL")
	for _, o := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", o.ID, o.OrderDate.Format("2006-01-02"), o.Status, len(o.Items), price.FormatInt(o.Total()))
	}
	w.Flush()
}

func (a *app) orderStatus(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errUsage
	}
	status, err := domain.ParseOrderStatus(args[1])
	if err != nil {
		return err
	}
	if err := a.orders.FetchOrders(ctx); err != nil {
		return err
	}
	return a.orders.UpdateOrderStatus(ctx, args[0], status)
}

func (a *app) orderCancel(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	if err := a.orders.FetchOrders(ctx); err != nil {
		return err
	}
	return a.orders.CancelOrder(ctx, args[0])
}

func (a *app) orderDelete(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	return a.orders.DeleteOrder(ctx, args[0])
}

type stringList []string

func (l *stringList) String() string     { return strings.Join(*l, ",") }
func (l *stringList) Set(v string) error { *l = append(*l, v); return nil }

func (a *app) review(ctx context.Context, args []string) error {
	fs := newFlags("review")
	var form domain.ReviewForm
	var size string
	var images stringList
	fs.IntVar(&form.Rating, "rating", 0, "1 to 5 stars")
	fs.StringVar(&form.ReviewText, "text", "", "review text")
	fs.StringVar(&size, "size", "", "size worn")
	fs.Var(&images, "image", "image URL, repeatable")
	pos, err := parseArgs(fs, args, 1)
	if err != nil {
		return err
	}
	form.Size = domain.Size(strings.ToUpper(size))
	form.ReviewImages = images

	if err := a.orders.FetchOrders(ctx); err != nil {
		return err
	}
	order, ok := a.orders.Find(pos[0])
	if !ok {
		return fmt.Errorf("order %s not found", pos[0])
	}
	return a.orders.SubmitReview(ctx, form, order)
}

func (a *app) reply(ctx context.Context, args []string) error {
	if len(args) < 3 {
		return errUsage
	}
	return a.moderator.ReplyToReview(ctx, args[0], args[1], strings.Join(args[2:], " "))
}

func (a *app) reviewDelete(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errUsage
	}
	return a.moderator.DeleteReview(ctx, args[0], args[1])
}

func (a *app) export(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	if err := a.orders.FetchOrders(ctx); err != nil {
		return err
	}

	f, err := os.Create(args[0])
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", args[0], err)
	}
	if err := a.orders.ExportXLSX(ctx, f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Printf("exported %d order(s) to %s\n", len(a.orders.Orders()), args[0])
	return nil
}

func (a *app) watch(ctx context.Context, args []string) error {
	if _, err := a.session.Require(ctx); err != nil {
		return err
	}

	unsubscribe := a.store.Subscribe(func(act state.Action, s state.State) {
		switch act.(type) {
		case state.OrdersReplaced:
			fmt.Printf("orders refreshed: %d\n", len(s.Orders))
		case state.SessionEnded:
			fmt.Println("session ended")
		}
	})
	defer unsubscribe()

	go a.session.Watch(ctx, a.cfg.Client.SessionCheckInterval)
	poller := a.orders.StartPolling(ctx, a.cfg.Client.OrderPollInterval)
	defer poller.Stop()

	select {
	case <-ctx.Done():
	case <-poller.Done():
	}
	return nil
}

func (a *app) migrateStatus(ctx context.Context, args []string) error {
	db, err := database.Open(ctx, a.cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()
	return database.GetMigrationStatus(db)
}
