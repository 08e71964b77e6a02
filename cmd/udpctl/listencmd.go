package main

import (
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

var listenCmd = &cobra.Command{
	Use:   "listen [addr]",
	Short: "Accept inbound connections on addr",
	Long:  "Bind a socket at addr, accept every caller, and print the lines they send until interrupted.",
	Run:   wrap(listencmd),
}

func listencmd(addr string) {
	s := socket.New(newOracle(), socket.Config{MaxServerStreams: 64}, persist.NewLogger(log.New(os.Stderr, "", log.Ltime)))

	mustRegisterListenHandlers(s)

	if err := s.Listen(addr); err != nil {
		die("could not listen:", err)
	}
	defer s.Close()

	fmt.Printf("listening on %v (socket %v)\n", s.LocalAddr(), s.ID)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	<-sig
	fmt.Println("\nshutting down")
}

func mustRegisterListenHandlers(s *socket.Socket) {
	if err := s.RegisterConnect(typeJoinRequest, func(first oracle.Message, from net.Addr) (interface{}, bool) {
		name := first.(*JoinRequest).Name
		color.Green("connect %v wants to join as %q", from, name)
		return name, true
	}); err != nil {
		die("could not register connect handler:", err)
	}

	if err := s.RegisterOpen(func(userData interface{}, from net.Addr) {
		color.Green("open %v (%v)", from, userData)
	}); err != nil {
		die("could not register open handler:", err)
	}

	if err := s.RegisterClose(func(userData interface{}, from net.Addr, err error) {
		if err != nil {
			color.Red("close %v (%v): %v", from, userData, err)
			return
		}
		color.Red("close %v (%v)", from, userData)
	}); err != nil {
		die("could not register close handler:", err)
	}

	if err := s.RegisterStream(typeChatLine, func(userData interface{}, msg oracle.Message, from net.Addr) {
		fmt.Println(color.CyanString("%v", userData), from, ":", msg.(*ChatLine).Body)
	}); err != nil {
		die("could not register stream handler:", err)
	}
}
