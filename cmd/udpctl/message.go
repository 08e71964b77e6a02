package main

import "github.com/pSapien/udp/oracle"

// ChatLine is the one application message type udpctl exchanges once a
// stream is open. A real integration would register its own Oracle types;
// this tool only needs one to exercise the wire protocol end to end.
type ChatLine struct {
	Body string
}

// JoinRequest is the first item a udpctl connect sends, letting a udpctl
// listen peer's connect handler log who is calling before accepting.
type JoinRequest struct {
	Name string
}

const (
	typeJoinRequest oracle.TypeID = 1
	typeChatLine    oracle.TypeID = 2
)

// newOracle returns the Registry shared by every udpctl subcommand.
func newOracle() oracle.Oracle {
	r := oracle.NewRegistry()
	mustRegister(r, typeJoinRequest, JoinRequest{})
	mustRegister(r, typeChatLine, ChatLine{})
	return r
}

func mustRegister(r oracle.Oracle, id oracle.TypeID, sample oracle.Message) {
	if err := r.Register(id, sample); err != nil {
		die("could not initialize message registry:", err)
	}
}
