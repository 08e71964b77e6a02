package main

import (
	"fmt"
	"log"
	"os"

	"github.com/pSapien/udp/persist"
	"github.com/pSapien/udp/socket"
	"github.com/pSapien/udp/transport"
	"github.com/spf13/cobra"
)

var sendCmd = &cobra.Command{
	Use:   "send [addr] [message]",
	Short: "Send one connectionless message to addr",
	Long:  "Send a single general (non-stream) datagram to addr and exit.",
	Run:   wrap(sendcmd),
}

func sendcmd(addr, message string) {
	s := socket.New(newOracle(), socket.Config{}, persist.NewLogger(log.New(os.Stderr, "", log.Ltime)))
	defer s.Close()

	if err := s.Bind(); err != nil {
		die("could not bind:", err)
	}

	to, err := transport.ResolveEndpoint(addr)
	if err != nil {
		die("could not resolve address:", err)
	}
	if err := s.Send(to, ChatLine{Body: message}); err != nil {
		die("could not send:", err)
	}
	fmt.Println("sent")
}
