package kbd

import "testing"

func TestDecode(t *testing.T) {
	specs := []struct {
		scanCodes []byte
		exp       string
	}{
		// "hi\n"
		{[]byte{0x23, 0xa3, 0x17, 0x97, 0x1c}, "hi\n"},
		// shift+h, i
		{[]byte{0x2a, 0x23, 0xa3, 0xaa, 0x17}, "Hi"},
		// right shift + 1
		{[]byte{0x36, 0x02, 0xb6, 0x02}, "!1"},
		// unmapped codes are ignored
		{[]byte{0x01, 0x3b, 0x39}, " "},
	}

	for specIndex, spec := range specs {
		d := probeForKeyboard().(*Device)
		d.Press(spec.scanCodes...)
		d.HandleIRQ()

		buf := make([]byte, 16)
		if got := string(buf[:d.Read(buf)]); got != spec.exp {
			t.Errorf("[spec %d] expected input %q; got %q", specIndex, spec.exp, got)
		}
	}
}

func TestReadBeforeIRQ(t *testing.T) {
	var d Device
	d.Press(0x1e)

	buf := make([]byte, 4)
	if n := d.Read(buf); n != 0 {
		t.Fatalf("expected no input before the interrupt is serviced; got %q", buf[:n])
	}

	d.HandleIRQ()
	if n := d.Read(buf); string(buf[:n]) != "a" {
		t.Fatalf("expected input %q; got %q", "a", buf[:n])
	}
}
