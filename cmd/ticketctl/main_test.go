package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Ayaanthaher/ticket-booking/internal/stubapi"
)

type cli struct {
	t   *testing.T
	dir string
}

// newCLI points ticketctl at a seeded stub and a temporary credential file.
func newCLI(t *testing.T) *cli {
	t.Helper()
	stub := stubapi.New([]byte("cli-secret"), slog.New(slog.NewTextHandler(io.Discard, nil)))
	stub.Seed()
	srv := httptest.NewServer(stub.Router)
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	t.Setenv("TICKETS_CONFIG", "")
	t.Setenv("TICKETS_API_URL", srv.URL)
	t.Setenv("TICKETS_BASE_DELAY", "0s")
	t.Setenv("TICKETS_CREDENTIAL_STORE", "file")
	t.Setenv("TICKETS_CREDENTIAL_PATH", filepath.Join(dir, "token"))
	t.Setenv("TICKETS_LOG_LEVEL", "error")
	return &cli{t: t, dir: dir}
}

func (c *cli) run(args ...string) (code int, stdout, stderr string) {
	c.t.Helper()
	var out, errOut bytes.Buffer
	code = run(context.Background(), args, strings.NewReader(""), &out, &errOut)
	return code, out.String(), errOut.String()
}

func (c *cli) login(email, password string) {
	c.t.Helper()
	path := filepath.Join(c.dir, "password")
	if err := os.WriteFile(path, []byte(password+"\n"), 0o600); err != nil {
		c.t.Fatalf("write password: %v", err)
	}
	code, out, errOut := c.run("login", "--email", email, "--password-file", path)
	if code != 0 || !strings.Contains(out, "✓ Login successful") {
		c.t.Fatalf("login %s: code %d stdout %q stderr %q", email, code, out, errOut)
	}
}

func TestLoginWhoamiLogout(t *testing.T) {
	c := newCLI(t)
	c.login("user@example.com", "password123")

	code, out, _ := c.run("whoami")
	if code != 0 || !strings.Contains(out, "user@example.com") || !strings.Contains(out, "role: user") {
		t.Fatalf("whoami: code %d out %q", code, out)
	}

	code, out, _ = c.run("logout")
	if code != 0 || !strings.Contains(out, "✓ Logged out successfully") {
		t.Fatalf("logout: code %d out %q", code, out)
	}

	code, _, errOut := c.run("whoami")
	if code != 1 || !strings.Contains(errOut, "not logged in") {
		t.Fatalf("whoami after logout: code %d stderr %q", code, errOut)
	}
}

func TestLoginFailureShowsServerMessage(t *testing.T) {
	c := newCLI(t)
	path := filepath.Join(c.dir, "password")
	if err := os.WriteFile(path, []byte("wrong"), 0o600); err != nil {
		t.Fatalf("write password: %v", err)
	}

	code, out, errOut := c.run("login", "-e", "user@example.com", "--password-file", path)
	if code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
	if !strings.Contains(out, "✗ Invalid credentials") {
		t.Fatalf("expected failure notice, got %q", out)
	}
	if strings.Contains(errOut, "error:") {
		t.Fatalf("failure reported twice: %q", errOut)
	}
}

func TestPipedPassword(t *testing.T) {
	newCLI(t)
	var out, errOut bytes.Buffer
	code := run(context.Background(), []string{"login"}, strings.NewReader("user@example.com\npassword123\n"), &out, &errOut)
	if code != 0 || !strings.Contains(out.String(), "✓ Login successful") {
		t.Fatalf("piped login: code %d out %q err %q", code, out.String(), errOut.String())
	}
}

func TestEventsAndBook(t *testing.T) {
	c := newCLI(t)
	c.login("user@example.com", "password123")

	code, out, _ := c.run("events")
	if code != 0 || !strings.Contains(out, "Jazz Night") || !strings.Contains(out, "40/40") {
		t.Fatalf("events: code %d out %q", code, out)
	}
	var jazzID string
	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, "Jazz Night") {
			jazzID = strings.Fields(line)[0]
		}
	}

	code, out, _ = c.run("book", "-n", "41", jazzID)
	if code != 1 || !strings.Contains(out, "✗ Only 40 tickets available") {
		t.Fatalf("over-booking: code %d out %q", code, out)
	}

	code, out, _ = c.run("book", "-n", "3", jazzID)
	if code != 0 || !strings.Contains(out, "total 105.00") || !strings.Contains(out, "✓ Booking successful") {
		t.Fatalf("book: code %d out %q", code, out)
	}

	code, out, _ = c.run("bookings")
	if code != 0 || !strings.Contains(out, "Jazz Night") {
		t.Fatalf("bookings: code %d out %q", code, out)
	}

	code, out, _ = c.run("events")
	if code != 0 || !strings.Contains(out, "37/40") {
		t.Fatalf("events after booking: code %d out %q", code, out)
	}
}

func TestAdminCommandsAreRoleGated(t *testing.T) {
	c := newCLI(t)
	c.login("user@example.com", "password123")

	code, _, errOut := c.run("admin", "stats")
	if code != 1 || !strings.Contains(errOut, "admin access required") {
		t.Fatalf("user admin stats: code %d stderr %q", code, errOut)
	}

	c.login("admin@example.com", "admin123")
	code, out, _ := c.run("admin", "create-event", "--name", "Poetry Slam", "--date", "2026-12-01",
		"--location", "Library", "--capacity", "30", "--price", "12.5")
	if code != 0 || !strings.Contains(out, "Poetry Slam") {
		t.Fatalf("create-event: code %d out %q", code, out)
	}

	code, out, _ = c.run("admin", "stats")
	if code != 0 || !strings.Contains(out, "events:   4") {
		t.Fatalf("stats: code %d out %q", code, out)
	}
}

func eventID(t *testing.T, table, name string) string {
	t.Helper()
	for _, line := range strings.Split(table, "\n") {
		if strings.Contains(line, name) {
			return strings.Fields(line)[0]
		}
	}
	t.Fatalf("event %q not in %q", name, table)
	return ""
}

func TestAdminUpdateEvent(t *testing.T) {
	c := newCLI(t)
	c.login("user@example.com", "password123")
	_, out, _ := c.run("events")
	jazzID := eventID(t, out, "Jazz Night")
	if code, out, _ := c.run("book", "-n", "5", jazzID); code != 0 {
		t.Fatalf("book: code %d out %q", code, out)
	}

	c.login("admin@example.com", "admin123")
	code, out, _ := c.run("admin", "update-event", "--capacity", "60", "--price", "40", jazzID)
	if code != 0 || !strings.Contains(out, "Jazz Night, 55/60 available, 40.00") {
		t.Fatalf("update-event: code %d out %q", code, out)
	}

	code, _, errOut := c.run("admin", "update-event", "--capacity", "4", jazzID)
	if code != 1 || !strings.Contains(errOut, "Capacity is below tickets already booked") {
		t.Fatalf("shrink below booked: code %d stderr %q", code, errOut)
	}

	code, _, errOut = c.run("admin", "update-event", "--name", "Ghost", "no-such-event")
	if code != 1 || !strings.Contains(errOut, "event no-such-event not found") {
		t.Fatalf("unknown event: code %d stderr %q", code, errOut)
	}

	_, out, _ = c.run("admin", "events")
	if !strings.Contains(out, "55/60") || !strings.Contains(out, "40.00") {
		t.Fatalf("update not visible in listing: %q", out)
	}
}

func TestUsage(t *testing.T) {
	var out, errOut bytes.Buffer
	if code := run(context.Background(), nil, strings.NewReader(""), &out, &errOut); code != 2 {
		t.Fatalf("expected exit 2, got %d", code)
	}
	if !strings.Contains(errOut.String(), "commands:") {
		t.Fatalf("expected usage, got %q", errOut.String())
	}
	errOut.Reset()
	if code := run(context.Background(), []string{"dance"}, strings.NewReader(""), &out, &errOut); code != 2 {
		t.Fatalf("expected exit 2 for unknown command, got %d", code)
	}
}
