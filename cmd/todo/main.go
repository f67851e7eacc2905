package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"tickbox/internal/client"
	"tickbox/internal/tui"
)

func main() {
	_ = godotenv.Load()

	apiURL := flag.String("api", envOr("TICKBOX_API_URL", "http://localhost:8787"), "Tickbox API base URL")
	sessionToken := flag.String("session", os.Getenv("TICKBOX_SESSION"), "session cookie value (sign in via /auth/google in a browser first)")
	cookieName := flag.String("cookie", envOr("TICKBOX_COOKIE_NAME", "tickbox_session"), "session cookie name")
	flag.Parse()

	if *sessionToken == "" {
		fmt.Fprintln(os.Stderr, "no session token: sign in at "+*apiURL+"/auth/google and pass the cookie value via --session or TICKBOX_SESSION")
		os.Exit(1)
	}

	api := client.New(*apiURL, *cookieName, *sessionToken)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	user, err := api.Me(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not reach API: %v\n", err)
		os.Exit(1)
	}
	if user == nil {
		fmt.Fprintln(os.Stderr, "session is expired or invalid; sign in again at "+*apiURL+"/auth/google")
		os.Exit(1)
	}

	p := tea.NewProgram(tui.New(api, *user), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "tui error: %v\n", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
