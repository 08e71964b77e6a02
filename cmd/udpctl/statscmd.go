package main

import (
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pSapien/udp/oracle"
	"github.com/pSapien/udp/persist"
	"github.com/pSapien/udp/socket"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats [addr]",
	Short: "Connect to addr and print live traffic counters",
	Long:  "Open a stream to addr and print humanized traffic counters once a second until interrupted.",
	Run:   wrap(statscmd),
}

func statscmd(addr string) {
	s := socket.New(newOracle(), socket.Config{}, persist.NewLogger(log.New(os.Stderr, "", log.Ltime)))
	defer s.Close()

	if err := s.RegisterStream(typeChatLine, func(userData interface{}, msg oracle.Message, from net.Addr) {}); err != nil {
		die("could not register stream handler:", err)
	}

	st, err := s.Connect(addr, JoinRequest{Name: listenName})
	if err != nil {
		die("could not connect:", err)
	}
	defer st.End(nil)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			printStats(s.Stats())
		case <-sig:
			return
		}
	}
}

func printStats(stats socket.Stats) {
	fmt.Printf("sent %s (%s)  received %s (%s)  streams open %d  ended %d  retransmits %d\n",
		humanize.Comma(int64(stats.DatagramsSent)),
		humanize.Bytes(stats.BytesSent),
		humanize.Comma(int64(stats.DatagramsReceived)),
		humanize.Bytes(stats.BytesReceived),
		stats.StreamsOpen,
		stats.StreamsEnded,
		stats.RetransmitCount,
	)
}
