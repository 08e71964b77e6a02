package main

import (
	"bufio"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"

	"github.com/fatih/color"
	"github.com/pSapien/udp/oracle"
	"github.com/pSapien/udp/persist"
	"github.com/pSapien/udp/socket"
	"github.com/spf13/cobra"
)

var connectCmd = &cobra.Command{
	Use:   "connect [addr]",
	Short: "Connect to a listening udpctl and chat with it",
	Long:  "Open a stream to addr, announcing as --name, then relay stdin lines to the peer until interrupted.",
	Run:   wrap(connectcmd),
}

func connectcmd(addr string) {
	s := socket.New(newOracle(), socket.Config{}, persist.NewLogger(log.New(os.Stderr, "", log.Ltime)))
	defer s.Close()

	if err := s.RegisterStream(typeChatLine, func(userData interface{}, msg oracle.Message, from net.Addr) {
		fmt.Println(color.CyanString("%v", from), msg.(*ChatLine).Body)
	}); err != nil {
		die("could not register stream handler:", err)
	}

	closed := make(chan error, 1)
	if err := s.RegisterClose(func(userData interface{}, from net.Addr, err error) {
		closed <- err
	}); err != nil {
		die("could not register close handler:", err)
	}

	st, err := s.Connect(addr, JoinRequest{Name: listenName})
	if err != nil {
		die("could not connect:", err)
	}
	fmt.Printf("connecting to %v as %q, type to chat, Ctrl-D to close\n", addr, listenName)

	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			st.Enqueue(ChatLine{Body: scanner.Text()})
		}
		st.Close()
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)

	select {
	case err := <-closed:
		if err != nil {
			color.Red("connection ended: %v", err)
			return
		}
		fmt.Println("connection closed")
	case <-sig:
		st.Close()
		<-closed
		fmt.Println("connection closed")
	}
}
