package wire_test

import (
	"bytes"
	"testing"

	"github.com/slimcoin-project/slimcoin/foundation/consensus/wire"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func Test_CompactSize(t *testing.T) {
	values := []uint64{0, 1, 252, 253, 254, 65_535, 65_536, 1_000_000}

	t.Log("Given the need to round-trip compact-size values.")
	{
		for testID, value := range values {
			t.Logf("\tTest %d:\tWhen handling the value %d.", testID, value)
			{
				var buf bytes.Buffer
				if err := wire.WriteCompactSize(&buf, value); err != nil {
					t.Fatalf("\t%s\tTest %d:\tShould be able to write the value: %v", failed, testID, err)
				}
				t.Logf("\t%s\tTest %d:\tShould be able to write the value.", success, testID)

				got, err := wire.ReadCompactSize(&buf)
				if err != nil {
					t.Fatalf("\t%s\tTest %d:\tShould be able to read the value back: %v", failed, testID, err)
				}
				if got != value {
					t.Errorf("\t%s\tTest %d:\tShould read the same value back.", failed, testID)
					t.Logf("\t\tTest %d:\tgot: %d", testID, got)
					t.Logf("\t\tTest %d:\texp: %d", testID, value)
				} else {
					t.Logf("\t%s\tTest %d:\tShould read the same value back.", success, testID)
				}
			}
		}
	}
}

func Test_CompactSizeBounds(t *testing.T) {
	t.Log("Given the need to reject oversized length prefixes.")
	{
		var buf bytes.Buffer
		if err := wire.WriteCompactSize(&buf, wire.MaxPayload+1); err != nil {
			t.Fatalf("\t%s\tShould be able to write the value: %v", failed, err)
		}

		if _, err := wire.ReadCompactSize(&buf); err == nil {
			t.Fatalf("\t%s\tShould reject a length above MaxPayload.", failed)
		}
		t.Logf("\t%s\tShould reject a length above MaxPayload.", success)
	}
}

func Test_HashRoundTrip(t *testing.T) {
	t.Log("Given the need to round-trip hashes through the display form.")
	{
		var h wire.Hash
		for i := range h {
			h[i] = byte(i * 7)
		}

		got, err := wire.HashFromString(h.String())
		if err != nil {
			t.Fatalf("\t%s\tShould be able to parse the display form: %v", failed, err)
		}
		if got != h {
			t.Fatalf("\t%s\tShould get the original hash back.", failed)
		}
		t.Logf("\t%s\tShould get the original hash back.", success)
	}
}

func Test_HashCompare(t *testing.T) {
	t.Log("Given the need to compare hashes as big unsigned integers.")
	{
		var small, large wire.Hash
		small[0] = 1
		large[31] = 1

		if small.Cmp(large) != -1 {
			t.Fatalf("\t%s\tShould order by the most significant byte.", failed)
		}
		if large.Cmp(small) != 1 {
			t.Fatalf("\t%s\tShould order symmetrically.", failed)
		}
		if small.Cmp(small) != 0 {
			t.Fatalf("\t%s\tShould compare equal to itself.", failed)
		}
		t.Logf("\t%s\tShould order by the most significant byte.", success)
	}
}

func Test_Bytes(t *testing.T) {
	t.Log("Given the need to write and read length-prefixed bytes.")
	{
		payloads := [][]byte{nil, {0x01}, bytes.Repeat([]byte{0xab}, 300)}

		for testID, payload := range payloads {
			var buf bytes.Buffer
			if err := wire.WriteBytes(&buf, payload); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to write the payload: %v", failed, testID, err)
			}

			got, err := wire.ReadBytes(&buf)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to read the payload: %v", failed, testID, err)
			}
			if !bytes.Equal(got, payload) {
				t.Fatalf("\t%s\tTest %d:\tShould read the same payload back.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould read the same payload back.", success, testID)
		}
	}
}
