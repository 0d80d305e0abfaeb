// relay CLI - command line client for the relay messaging server.
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/mindhaven/relay/clients/go/relay"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	baseURL := os.Getenv("RELAY_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	cmd := os.Args[1]
	switch cmd {
	case "health":
		getJSON(baseURL + "/healthz")

	case "rooms":
		getJSON(baseURL + "/rooms")

	case "stats":
		getJSON(baseURL + "/stats")

	case "chat":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: relay chat <room>")
			os.Exit(1)
		}
		chat(baseURL, os.Args[2])

	case "bot":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: relay bot <message>")
			os.Exit(1)
		}
		bot(baseURL, os.Args[2])

	case "help", "--help", "-h":
		usage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}
}

// chat joins a room and bridges stdin/stdout to it.
func chat(baseURL, room string) {
	c := dial(baseURL)
	defer c.Close()

	exitOnError(c.Join(room))
	fmt.Printf("joined %s as %s (type to send, ^D to quit)\n", room, c.UserID)

	go func() {
		for ev := range c.Events {
			switch ev.Type {
			case "receive_message":
				ts := time.UnixMilli(ev.Message.ServerTimestamp).Format("15:04:05")
				fmt.Printf("[%s] %s: %s\n", ts, ev.Message.SenderID, ev.Message.Body)
			case "error":
				fmt.Fprintf(os.Stderr, "error: %s: %s\n", ev.Err.Code, ev.Err.Detail)
			}
		}
	}()

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if _, err := c.SendText(room, line); err != nil {
			fmt.Fprintln(os.Stderr, "send failed:", err)
		}
	}
}

// bot sends one message to the caller's assistant room and prints the
// reply.
func bot(baseURL, message string) {
	c := dial(baseURL)
	defer c.Close()

	id, err := c.SendBot(message)
	exitOnError(err)

	deadline := time.After(30 * time.Second)
	for {
		select {
		case ev, ok := <-c.Events:
			if !ok {
				fmt.Fprintln(os.Stderr, "connection closed")
				os.Exit(1)
			}
			switch ev.Type {
			case "receive_message":
				if ev.Message.CorrelationID == id && ev.Message.SenderID == "assistant" {
					fmt.Println(ev.Message.Body)
					return
				}
			case "error":
				if ev.Err.CorrelationID == id {
					fmt.Fprintf(os.Stderr, "error: %s: %s\n", ev.Err.Code, ev.Err.Detail)
					os.Exit(1)
				}
			}
		case <-deadline:
			fmt.Fprintln(os.Stderr, "timed out waiting for reply")
			os.Exit(1)
		}
	}
}

func dial(baseURL string) *relay.Client {
	c, err := relay.Dial(baseURL, relay.Options{
		Token:  os.Getenv("RELAY_TOKEN"),
		UserID: os.Getenv("RELAY_USER"),
	})
	exitOnError(err)
	// Drain the connected event.
	<-c.Events
	return c
}

func getJSON(url string) {
	resp, err := http.Get(url)
	exitOnError(err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	exitOnError(err)

	var pretty interface{}
	if err := json.Unmarshal(data, &pretty); err != nil {
		fmt.Println(string(data))
		return
	}
	out, _ := json.MarshalIndent(pretty, "", "  ")
	fmt.Println(string(out))
}

func usage() {
	fmt.Println(`relay CLI - real-time messaging client

Usage: relay <command> [options]

Commands:
  chat <room>     Join a room and chat interactively
  bot <message>   Ask the assistant and print its reply
  rooms           List community rooms
  stats           Show live server stats
  health          Check server health

Environment:
  RELAY_URL     Server URL (default: http://localhost:8080)
  RELAY_TOKEN   Bearer JWT (anonymous without one)
  RELAY_USER    Anonymous user id (ignored with a token)`)
}

func exitOnError(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
