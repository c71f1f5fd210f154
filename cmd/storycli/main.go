// Package main provides the story CLI entry point for testing.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"connectrpc.com/connect"
	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"

	apiconnect "github.com/osa030/storybox/internal/api/connect"
	"github.com/osa030/storybox/internal/app/session"
)

var (
	app    = kingpin.New("storybox-cli", "storybox client for testing")
	server = app.Flag("server", "Server address").Default("http://localhost:8080").String()
	token  = app.Flag("token", "API token").Envar("STORYBOX_API_TOKEN").String()

	openCmd   = app.Command("open", "Open the player on a group (toggle)")
	openGroup = openCmd.Arg("group-id", "Group ID").Required().String()

	closeCmd = app.Command("close", "Close the player")

	switchCmd   = app.Command("switch", "Switch the player to a group")
	switchGroup = switchCmd.Arg("group-id", "Group ID").Required().String()

	nextCmd   = app.Command("next", "Tap next")
	prevCmd   = app.Command("prev", "Tap previous")
	pauseCmd  = app.Command("pause", "Pause the timer")
	resumeCmd = app.Command("resume", "Resume the timer")
	buttonCmd = app.Command("button", "Tap the page button")

	swipeCmd       = app.Command("swipe", "Swipe to the neighbouring group")
	swipeDirection = swipeCmd.Arg("direction", "next or previous").Default("next").Enum("next", "previous", "prev")

	pageCmd   = app.Command("page", "Jump to a page of the current group")
	pageIndex = pageCmd.Arg("index", "Page index").Required().Int()

	linkCmd = app.Command("link", "Tap a link")
	linkURL = linkCmd.Arg("url", "Link URL").Required().String()

	dismissCmd = app.Command("dismiss", "Dismiss the player")

	statusCmd = app.Command("status", "Show the current status")
	watchCmd  = app.Command("watch", "Watch status and host events")
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	// Parse command
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	// Create client
	client := apiconnect.NewStoryServiceClient(
		http.DefaultClient,
		*server,
		connect.WithInterceptors(apiconnect.NewTokenInterceptor(*token)),
	)

	ctx := context.Background()

	// Execute command
	switch command {
	case statusCmd.FullCommand():
		status, err := client.GetStatus(ctx)
		exitOnError(err)
		printStatus(status)
	case watchCmd.FullCommand():
		watch(ctx, client)
	default:
		req, ok := intentFor(command)
		if !ok {
			app.FatalUsage("unknown command %q", command)
		}
		status, err := client.SendIntent(ctx, req)
		exitOnError(err)
		printStatus(status)
	}
}

func intentFor(command string) (session.IntentRequest, bool) {
	switch command {
	case openCmd.FullCommand():
		return session.IntentRequest{Type: session.IntentToggleGroup, GroupID: *openGroup}, true
	case closeCmd.FullCommand():
		return session.IntentRequest{Type: session.IntentClose}, true
	case switchCmd.FullCommand():
		return session.IntentRequest{Type: session.IntentSwitchGroup, GroupID: *switchGroup}, true
	case nextCmd.FullCommand():
		return session.IntentRequest{Type: "tapped_next"}, true
	case prevCmd.FullCommand():
		return session.IntentRequest{Type: "tapped_previous"}, true
	case pauseCmd.FullCommand():
		return session.IntentRequest{Type: "paused_timer"}, true
	case resumeCmd.FullCommand():
		return session.IntentRequest{Type: "resumed_timer"}, true
	case buttonCmd.FullCommand():
		return session.IntentRequest{Type: "tapped_button"}, true
	case swipeCmd.FullCommand():
		return session.IntentRequest{Type: "switched_group", Direction: *swipeDirection}, true
	case pageCmd.FullCommand():
		return session.IntentRequest{Type: "switched_page", PageIndex: *pageIndex}, true
	case linkCmd.FullCommand():
		return session.IntentRequest{Type: "tapped_link", URL: *linkURL}, true
	case dismissCmd.FullCommand():
		return session.IntentRequest{Type: "dismissed"}, true
	}
	return session.IntentRequest{}, false
}

func exitOnError(err error) {
	if err == nil {
		return
	}
	fmt.Printf("Error: %v\n", err)
	os.Exit(1)
}

func watch(ctx context.Context, client *apiconnect.StoryServiceClient) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Handle shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nUnsubscribing...")
		cancel()
	}()

	fmt.Println("Watching session. Press Ctrl+C to exit.")

	err := client.Subscribe(ctx, func(typ string, payload map[string]any) error {
		switch typ {
		case apiconnect.MessageStatus:
			fmt.Println("\n=== STATUS ===")
			printStatus(payload)
		case apiconnect.MessageEvent:
			fmt.Printf("\n=== EVENT %v === group=%v page=%v url=%v\n",
				payload["type"], payload["group_id"], payload["page_id"], payload["url"])
		default:
			fmt.Printf("\n=== UNKNOWN MESSAGE (%s) ===\n", typ)
		}
		return nil
	})
	if err != nil && ctx.Err() == nil {
		fmt.Printf("Stream error: %v\n", err)
	}
}

func printStatus(s map[string]any) {
	fmt.Printf("Session: %v\n", s["session_id"])
	fmt.Printf("  Open: %v  Selected: %v  Presentation: %v\n", s["open"], s["selected"], s["presentation"])

	if groups, ok := s["groups"].([]any); ok {
		fmt.Println("  Groups:")
		for _, item := range groups {
			g, _ := item.(map[string]any)
			mark := " "
			if g["viewed"] == true {
				mark = "✓"
			}
			pages, _ := g["pages"].([]any)
			fmt.Printf("    [%s] %-16v %d pages\n", mark, g["id"], len(pages))
		}
	}

	pb, ok := s["playback"].(map[string]any)
	if !ok {
		fmt.Println("  Player: closed")
		return
	}
	fmt.Printf("  Player: %v  group=%v page=%v (%v/%v)  progress=%.2f\n",
		pb["state"], pb["group_id"], pb["page_id"], pageNumber(pb["page_index"]), pb["page_count"], pb["progress"])

	if active, ok := pb["active_pages"].(map[string]any); ok && len(active) > 0 {
		keys := make([]string, 0, len(active))
		for k := range active {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fmt.Println("  Resume points:")
		for _, k := range keys {
			fmt.Printf("    %-16s %v\n", k, active[k])
		}
	}
}

func pageNumber(v any) any {
	if f, ok := v.(float64); ok {
		return int(f) + 1
	}
	return v
}
