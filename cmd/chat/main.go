// Command chat is a terminal client for the chat API.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	logx "github.com/aws-samples/sample-ai-agent-accelerator/internal/logger"
)

func main() {
	addr := flag.String("addr", "http://localhost:8080", "web tier address")
	conversation := flag.String("conversation", "", "conversation id to resume")
	user := flag.String("user", "", "actor id for /history")
	timeout := flag.Duration("timeout", 5*time.Minute, "request timeout")
	flag.Parse()

	if err := logx.Init(logx.Config{Level: "info", Format: logx.FormatConsole}, "chat"); err != nil {
		panic(err)
	}

	client := NewClient(*addr, *timeout)
	if *conversation != "" {
		client.Resume(*conversation)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Printf("Connected to %s\n", *addr)
	fmt.Println("Type a question and press Enter.")
	fmt.Println("Commands: /new to start over, /history to list conversations, /quit to exit")
	fmt.Println()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		fmt.Print("> ")
		var input string
		select {
		case <-ctx.Done():
			fmt.Println("\nInterrupted")
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			input = strings.TrimSpace(line)
		}

		switch input {
		case "":
			continue
		case "/quit":
			fmt.Println("Bye!")
			return
		case "/new":
			client.Reset()
			fmt.Println("Started a new conversation.")
			continue
		case "/history":
			printHistory(ctx, client, *user)
			continue
		}

		resp, err := client.Ask(ctx, input)
		if err != nil {
			log.Error().Err(err).Msg("ask failed")
			continue
		}
		fmt.Printf("\n%s\n\n[conversation %s]\n", resp.Answer, resp.ConversationID)
	}
}

func printHistory(ctx context.Context, client *Client, user string) {
	if user == "" {
		fmt.Println("Pass -user to list conversations.")
		return
	}
	history, err := client.History(ctx, user)
	if err != nil {
		log.Error().Err(err).Msg("history failed")
		return
	}
	for _, item := range history {
		fmt.Printf("%s  %s  %s\n", item.ConversationID, item.Created.Local().Format("2006-01-02 15:04"), item.InitialQuestion)
	}
}
