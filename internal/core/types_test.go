package core

import "testing"

func TestFlexRayLinkID(t *testing.T) {
	cases := []struct {
		id, cycle, channel uint32
		want               uint32
	}{
		{0x0005, 0x03, 0x01, 0x00050301},
		{0x07FF, 0x3F, 0x02, 0x07FF3F02},
		{0, 0, 0, 0},
	}
	for _, c := range cases {
		if got := FlexRayLinkID(c.id, c.cycle, c.channel); got != c.want {
			t.Errorf("FlexRayLinkID(0x%x, 0x%x, 0x%x) = 0x%x, want 0x%x",
				c.id, c.cycle, c.channel, got, c.want)
		}
	}
}

func TestLinkKindString(t *testing.T) {
	cases := map[LinkKind]string{
		LinkCAN:          "can",
		LinkCANFD:        "canfd",
		LinkLIN:          "lin",
		LinkFlexRay:      "flexray",
		LinkIPduM:        "ipdum",
		LinkPduTransport: "pdu_transport",
		LinkKind(99):     "unknown",
	}
	for kind, want := range cases {
		if got := kind.String(); got != want {
			t.Errorf("LinkKind(%d).String() = %q, want %q", kind, got, want)
		}
	}
}
