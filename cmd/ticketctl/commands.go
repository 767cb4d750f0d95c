package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/Ayaanthaher/ticket-booking/internal/booking"
	"github.com/Ayaanthaher/ticket-booking/internal/model"
	"github.com/Ayaanthaher/ticket-booking/internal/session"
)

var (
	errNotLoggedIn = errors.New("not logged in, run 'ticketctl login' first")
	errAdminOnly   = errors.New("admin access required")
)

func newFlags(name string, e *env) *pflag.FlagSet {
	flags := pflag.NewFlagSet(name, pflag.ContinueOnError)
	flags.SetOutput(e.errOut)
	return flags
}

// requireSession restores the stored credential and fails unless it is live.
func requireSession(e *env) (model.Principal, error) {
	if err := e.app.Session.Restore(e.ctx); err != nil {
		e.logger.Debug("restore failed", "error", err)
		return model.Principal{}, errNotLoggedIn
	}
	snap := e.app.Session.Snapshot()
	if snap.State != session.Authenticated || snap.Principal == nil {
		return model.Principal{}, errNotLoggedIn
	}
	return *snap.Principal, nil
}

func runLogin(e *env, args []string) error {
	flags := newFlags("login", e)
	email := flags.StringP("email", "e", "", "account email (prompted when empty)")
	passwordFile := flags.String("password-file", "", "read the password from a file, or \"-\" to prompt")
	if err := flags.Parse(args); err != nil {
		return err
	}

	if *email == "" {
		fmt.Fprint(e.errOut, "Email: ")
		line, err := e.in.ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("read email: %w", err)
		}
		*email = strings.TrimSpace(line)
	}
	password, err := readPassword(e, *passwordFile)
	if err != nil {
		return err
	}

	if _, err := e.app.Session.Login(e.ctx, *email, password); err != nil {
		return reportedError{err}
	}
	return nil
}

// readPassword reads from a file, the terminal with echo off, or one line of
// piped stdin.
func readPassword(e *env, path string) (string, error) {
	if path != "" && path != "-" {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read password file: %w", err)
		}
		return strings.TrimRight(string(data), "\r\n"), nil
	}

	if f, ok := e.stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(e.errOut, "Password: ")
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(e.errOut)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(b), nil
	}

	line, err := e.in.ReadString('\n')
	if err != nil && line == "" {
		return "", errors.New("no password given (use --password-file or a terminal)")
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func runLogout(e *env, _ []string) error {
	return e.app.Session.Logout(e.ctx)
}

func runWhoami(e *env, _ []string) error {
	p, err := requireSession(e)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "%s <%s>\nrole: %s\nid:   %s\n", p.Name, p.Email, p.Role, p.ID)
	return nil
}

func runEvents(e *env, _ []string) error {
	if _, err := requireSession(e); err != nil {
		return err
	}
	events, err := e.app.Catalog.Refresh(e.ctx)
	if err != nil {
		return err
	}
	printEvents(e, events)
	return nil
}

func printEvents(e *env, events []model.EventListing) {
	tw := tabwriter.NewWriter(e.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tDATE\tLOCATION\tAVAILABLE\tPRICE")
	for _, ev := range events {
		avail := fmt.Sprintf("%d/%d", ev.AvailableTickets, ev.TotalCapacity)
		if ev.SoldOut() {
			avail = "sold out"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%.2f\n", ev.ID, ev.Name, ev.Date, ev.Location, avail, ev.Price)
	}
	_ = tw.Flush()
}

func runBook(e *env, args []string) error {
	flags := newFlags("book", e)
	tickets := flags.IntP("tickets", "n", 1, "number of tickets")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() != 1 {
		return errors.New("usage: ticketctl book [-n TICKETS] EVENT_ID")
	}
	eventID := flags.Arg(0)

	if _, err := requireSession(e); err != nil {
		return err
	}
	if _, err := e.app.Catalog.Refresh(e.ctx); err != nil {
		return err
	}
	ev, ok := e.app.Catalog.Lookup(eventID)
	if !ok {
		return fmt.Errorf("event %s not found", eventID)
	}

	wf := e.app.Booking
	if err := wf.SelectEvent(ev); err != nil {
		return err
	}
	if err := wf.SetTicketCount(*tickets); err != nil {
		return err
	}
	total := wf.TotalPrice()
	conf, err := wf.Confirm(e.ctx)
	if err != nil {
		return reportedError{err}
	}
	fmt.Fprintf(e.out, "booking %s: %d x %s, total %.2f\n", conf.Booking.ID, conf.Booking.TicketCount, ev.Name, total)
	return nil
}

func runBookings(e *env, _ []string) error {
	if _, err := requireSession(e); err != nil {
		return err
	}
	records, err := booking.History(e.ctx, e.app.API)
	if err != nil {
		return err
	}
	printBookings(e, records, false)
	return nil
}

func printBookings(e *env, records []model.BookingRecord, withUser bool) {
	if len(records) == 0 {
		fmt.Fprintln(e.out, "no bookings")
		return
	}
	tw := tabwriter.NewWriter(e.out, 0, 0, 2, ' ', 0)
	header := "ID\tEVENT\tTICKETS\tTOTAL\tBOOKED"
	if withUser {
		header += "\tUSER"
	}
	fmt.Fprintln(tw, header)
	for _, r := range records {
		line := fmt.Sprintf("%s\t%s\t%d\t%.2f\t%s", r.ID, r.EventName, r.TicketCount, r.TotalPrice, r.BookingDate)
		if withUser {
			line += "\t" + r.UserName
		}
		fmt.Fprintln(tw, line)
	}
	_ = tw.Flush()
}

func runProfile(e *env, args []string) error {
	flags := newFlags("profile", e)
	name := flags.String("name", "", "new display name")
	email := flags.String("email", "", "new email")
	if err := flags.Parse(args); err != nil {
		return err
	}
	p, err := requireSession(e)
	if err != nil {
		return err
	}
	update := model.ProfileUpdate{Name: p.Name, Email: p.Email}
	if *name != "" {
		update.Name = *name
	}
	if *email != "" {
		update.Email = *email
	}
	updated, err := e.app.API.UpdateProfile(e.ctx, update)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "profile updated: %s <%s>\n", updated.Name, updated.Email)
	return nil
}

func runAdmin(e *env, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: ticketctl admin events|bookings|stats|create-event|update-event|delete-event")
	}
	p, err := requireSession(e)
	if err != nil {
		return err
	}
	if !p.IsAdmin() {
		return errAdminOnly
	}

	sub, rest := args[0], args[1:]
	switch sub {
	case "events":
		events, err := e.app.API.AdminEvents(e.ctx)
		if err != nil {
			return err
		}
		printEvents(e, events)
	case "bookings":
		records, err := e.app.API.AdminBookings(e.ctx)
		if err != nil {
			return err
		}
		printBookings(e, records, true)
	case "stats":
		st, err := e.app.API.Stats(e.ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(e.out, "events:   %d\nbookings: %d\nusers:    %d\nrevenue:  %.2f\n",
			st.TotalEvents, st.TotalBookings, st.TotalUsers, st.TotalRevenue)
	case "create-event":
		return adminCreateEvent(e, rest)
	case "update-event":
		return adminUpdateEvent(e, rest)
	case "delete-event":
		if len(rest) != 1 {
			return errors.New("usage: ticketctl admin delete-event EVENT_ID")
		}
		if err := e.app.API.DeleteEvent(e.ctx, rest[0]); err != nil {
			return err
		}
		fmt.Fprintf(e.out, "event %s deleted\n", rest[0])
	default:
		return fmt.Errorf("unknown admin command %q", sub)
	}
	return nil
}

func adminCreateEvent(e *env, args []string) error {
	flags := newFlags("create-event", e)
	var in model.EventInput
	flags.StringVar(&in.Name, "name", "", "event name")
	flags.StringVar(&in.Description, "description", "", "event description")
	flags.StringVar(&in.Date, "date", "", "event date (YYYY-MM-DD)")
	flags.StringVar(&in.Location, "location", "", "venue")
	flags.IntVar(&in.TotalCapacity, "capacity", 0, "total tickets")
	flags.Float64Var(&in.Price, "price", 0, "ticket price")
	if err := flags.Parse(args); err != nil {
		return err
	}
	ev, err := e.app.API.CreateEvent(e.ctx, in)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "event %s created: %s\n", ev.ID, ev.Name)
	return nil
}

// adminUpdateEvent replaces an event, keeping every field not given on the
// command line.
func adminUpdateEvent(e *env, args []string) error {
	flags := newFlags("update-event", e)
	name := flags.String("name", "", "event name")
	description := flags.String("description", "", "event description")
	date := flags.String("date", "", "event date (YYYY-MM-DD)")
	location := flags.String("location", "", "venue")
	capacity := flags.Int("capacity", 0, "total tickets")
	price := flags.Float64("price", 0, "ticket price")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() != 1 {
		return errors.New("usage: ticketctl admin update-event [flags] EVENT_ID")
	}
	id := flags.Arg(0)

	events, err := e.app.API.AdminEvents(e.ctx)
	if err != nil {
		return err
	}
	var current *model.EventListing
	for i := range events {
		if events[i].ID == id {
			current = &events[i]
			break
		}
	}
	if current == nil {
		return fmt.Errorf("event %s not found", id)
	}

	in := model.EventInput{
		Name:          current.Name,
		Description:   current.Description,
		Date:          current.Date,
		Location:      current.Location,
		TotalCapacity: current.TotalCapacity,
		Price:         current.Price,
	}
	if flags.Changed("name") {
		in.Name = *name
	}
	if flags.Changed("description") {
		in.Description = *description
	}
	if flags.Changed("date") {
		in.Date = *date
	}
	if flags.Changed("location") {
		in.Location = *location
	}
	if flags.Changed("capacity") {
		in.TotalCapacity = *capacity
	}
	if flags.Changed("price") {
		in.Price = *price
	}

	ev, err := e.app.API.UpdateEvent(e.ctx, id, in)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "event %s updated: %s, %d/%d available, %.2f\n",
		ev.ID, ev.Name, ev.AvailableTickets, ev.TotalCapacity, ev.Price)
	return nil
}
