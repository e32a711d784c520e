// Command ircsmoke is a minimal line client for poking a running
// gateway by hand: it logs in, prints every line the server sends, and
// forwards stdin lines verbatim.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ircsmoke: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "localhost:6667", "gateway TCP address")
	pass := flag.String("pass", "", "credential, email:password or token")
	nick := flag.String("nick", "smoke", "requested nickname")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := net.Dial("tcp", *addr)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	send := func(line string) error {
		_, err := conn.Write([]byte(line + "\r\n"))
		return err
	}

	if *pass != "" {
		if err := send("PASS " + *pass); err != nil {
			return fmt.Errorf("send PASS: %w", err)
		}
	}
	if err := send("NICK " + *nick); err != nil {
		return fmt.Errorf("send NICK: %w", err)
	}

	fmt.Printf("Connected to %s as %s\n", *addr, *nick)
	fmt.Println("Type raw lines (e.g. PRIVMSG #general :hi) and press Enter. Ctrl+C to exit.")

	done := make(chan struct{})
	go func() {
		defer close(done)
		scanner := bufio.NewScanner(conn)
		for scanner.Scan() {
			fmt.Println(strings.TrimRight(scanner.Text(), "\r"))
		}
		if err := scanner.Err(); err != nil {
			log.Printf("read error: %v", err)
		}
	}()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			send("QUIT :bye")
			return nil
		case <-done:
			return nil
		case line, ok := <-lines:
			if !ok {
				send("QUIT :bye")
				<-done
				return nil
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}
			if err := send(text); err != nil {
				return fmt.Errorf("send: %w", err)
			}
		}
	}
}
