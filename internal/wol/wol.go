// Package wol builds and sends Wake-on-LAN magic packets for hosts known
// to the kernel's configuration. It is a supplemented feature: spec.md's
// distillation dropped it, but the original kernel exposed it and
// SPEC_FULL.md restores it as an agent-management operation.
package wol

import (
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"

	"github.com/owulveryck/symbion-kernel/internal/kernelerrors"
)

var hexDigit = regexp.MustCompile(`[0-9a-fA-F]`)

// ParseMAC normalizes a MAC address string (colon, dash, or bare hex) into
// its 6 raw bytes.
func ParseMAC(mac string) ([6]byte, error) {
	var out [6]byte
	hex := strings.Join(hexDigit.FindAllString(mac, -1), "")
	if len(hex) != 12 {
		return out, kernelerrors.InvalidPayload("parsing MAC address", fmt.Errorf("expected 12 hex digits, got %q", mac))
	}
	for i := 0; i < 6; i++ {
		b, err := strconv.ParseUint(hex[i*2:i*2+2], 16, 8)
		if err != nil {
			return out, kernelerrors.InvalidPayload("parsing MAC address", err)
		}
		out[i] = byte(b)
	}
	return out, nil
}

// MagicPacket builds the 102-byte Wake-on-LAN payload: six 0xFF bytes
// followed by the target MAC address repeated sixteen times.
func MagicPacket(mac [6]byte) []byte {
	packet := make([]byte, 102)
	for i := 0; i < 6; i++ {
		packet[i] = 0xFF
	}
	for i := 0; i < 16; i++ {
		copy(packet[6+i*6:6+i*6+6], mac[:])
	}
	return packet
}

// broadcastPorts are the two UDP ports Wake-on-LAN conventionally uses;
// a sender tries both since different NICs listen on different ones.
var broadcastPorts = []int{9, 7}

// Send broadcasts a magic packet for mac to broadcastAddr (or the
// limited broadcast address 255.255.255.255 if broadcastAddr is empty),
// trying both conventional WoL ports. It succeeds if at least one send
// goes through.
func Send(mac [6]byte, broadcastAddr string) error {
	if broadcastAddr == "" {
		broadcastAddr = "255.255.255.255"
	}

	conn, err := net.ListenPacket("udp4", ":0")
	if err != nil {
		return kernelerrors.BusUnavailable("opening wake-on-lan socket", err)
	}
	defer conn.Close()

	if udpConn, ok := conn.(*net.UDPConn); ok {
		if err := setBroadcast(udpConn); err != nil {
			return kernelerrors.BusUnavailable("enabling udp broadcast", err)
		}
	}

	packet := MagicPacket(mac)

	var lastErr error
	sent := false
	for _, port := range broadcastPorts {
		addr, err := net.ResolveUDPAddr("udp4", fmt.Sprintf("%s:%d", broadcastAddr, port))
		if err != nil {
			lastErr = err
			continue
		}
		if _, err := conn.WriteTo(packet, addr); err != nil {
			lastErr = err
			continue
		}
		sent = true
	}

	if !sent {
		return kernelerrors.BusUnavailable("sending wake-on-lan packet", lastErr)
	}
	return nil
}

// WakeHost resolves a configured host's MAC and broadcast hint and sends
// its magic packet.
func WakeHost(mac, broadcastHint string) error {
	parsed, err := ParseMAC(mac)
	if err != nil {
		return err
	}
	return Send(parsed, broadcastHint)
}
