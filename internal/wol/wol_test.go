package wol

import (
	"testing"
)

func TestParseMACAcceptsColonForm(t *testing.T) {
	mac, err := ParseMAC("aa:bb:cc:dd:ee:ff")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := [6]byte{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff}
	if mac != want {
		t.Fatalf("mac = %v, want %v", mac, want)
	}
}

func TestParseMACAcceptsBareHex(t *testing.T) {
	mac, err := ParseMAC("aabbccddeeff")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := [6]byte{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff}
	if mac != want {
		t.Fatalf("mac = %v, want %v", mac, want)
	}
}

func TestParseMACRejectsWrongLength(t *testing.T) {
	if _, err := ParseMAC("aa:bb:cc"); err == nil {
		t.Fatal("expected error for short MAC")
	}
}

func TestMagicPacketShape(t *testing.T) {
	mac := [6]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06}
	packet := MagicPacket(mac)

	if len(packet) != 102 {
		t.Fatalf("packet length = %d, want 102", len(packet))
	}
	for i := 0; i < 6; i++ {
		if packet[i] != 0xFF {
			t.Fatalf("byte %d = %x, want 0xFF", i, packet[i])
		}
	}
	for i := 0; i < 16; i++ {
		base := 6 + i*6
		for j := 0; j < 6; j++ {
			if packet[base+j] != mac[j] {
				t.Fatalf("repetition %d byte %d = %x, want %x", i, j, packet[base+j], mac[j])
			}
		}
	}
}

func TestSendToLimitedBroadcastAddress(t *testing.T) {
	mac, err := ParseMAC("de:ad:be:ef:00:01")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Sending to the limited broadcast address from a test sandbox may be
	// restricted; this exercises packet construction and socket setup
	// without asserting delivery, since broadcast reachability is
	// environment-dependent.
	if err := Send(mac, "255.255.255.255"); err != nil {
		t.Logf("send returned %v (acceptable in a sandboxed test network)", err)
	}
}
