// Package sap builds SDP session descriptions for active slots and
// periodically announces them over the Session Announcement Protocol.
package sap

import (
	"fmt"
	"strings"
)

// SDPParams carries everything needed to render one slot's SDP text. It is
// deliberately a flat struct of strings/numbers rather than importing the
// slot package's config type, keeping sap free of a dependency on slot.
type SDPParams struct {
	SSRC            uint32
	SourceIP        string
	AES67StreamName string
	McastIP         string
	McastPort       int
	PTPDomain       int
	PTPGMID         string // empty means omit the ts-refclk line
}

// BuildAES67SDP renders the announced SDP for a slot's primary L24 flow.
func BuildAES67SDP(p SDPParams) string {
	var b strings.Builder
	fmt.Fprintf(&b, "v=0\r\n")
	fmt.Fprintf(&b, "o=- %d 0 IN IP4 %s\r\n", p.SSRC, p.SourceIP)
	fmt.Fprintf(&b, "s=%s\r\n", p.AES67StreamName)
	fmt.Fprintf(&b, "c=IN IP4 %s/32\r\n", p.McastIP)
	fmt.Fprintf(&b, "t=0 0\r\n")
	fmt.Fprintf(&b, "a=recvonly\r\n")
	fmt.Fprintf(&b, "a=clock-domain:PTPv2 %d\r\n", p.PTPDomain)
	fmt.Fprintf(&b, "m=audio %d RTP/AVP 98\r\n", p.McastPort)
	fmt.Fprintf(&b, "a=rtpmap:98 L24/48000/2\r\n")
	fmt.Fprintf(&b, "a=ptime:1\r\n")
	fmt.Fprintf(&b, "a=mediaclk:direct=0\r\n")
	if p.PTPGMID != "" {
		fmt.Fprintf(&b, "a=ts-refclk:ptp=IEEE1588-2008:%s:%d\r\n", p.PTPGMID, p.PTPDomain)
	}
	return b.String()
}

// BuildMonitorSDP renders the on-demand-only SDP for a slot's L16 monitor
// flow, bound two ports above the primary flow.
func BuildMonitorSDP(p SDPParams) string {
	var b strings.Builder
	fmt.Fprintf(&b, "v=0\r\n")
	fmt.Fprintf(&b, "o=- %d 0 IN IP4 %s\r\n", p.SSRC, p.SourceIP)
	fmt.Fprintf(&b, "s=%s\r\n", p.AES67StreamName)
	fmt.Fprintf(&b, "c=IN IP4 %s/32\r\n", p.McastIP)
	fmt.Fprintf(&b, "t=0 0\r\n")
	fmt.Fprintf(&b, "a=recvonly\r\n")
	fmt.Fprintf(&b, "a=clock-domain:PTPv2 %d\r\n", p.PTPDomain)
	fmt.Fprintf(&b, "m=audio %d RTP/AVP 11\r\n", p.McastPort+2)
	fmt.Fprintf(&b, "a=rtpmap:11 L16/48000/2\r\n")
	fmt.Fprintf(&b, "a=ptime:1\r\n")
	fmt.Fprintf(&b, "a=mediaclk:direct=0\r\n")
	if p.PTPGMID != "" {
		fmt.Fprintf(&b, "a=ts-refclk:ptp=IEEE1588-2008:%s:%d\r\n", p.PTPGMID, p.PTPDomain)
	}
	return b.String()
}
