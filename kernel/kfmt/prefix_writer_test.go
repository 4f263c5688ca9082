package kfmt

import (
	"bytes"
	"errors"
	"testing"
)

func TestPrefixWriter(t *testing.T) {
	specs := []struct {
		prefix string
		writes []string
		exp    string
	}{
		{
			"[device] ide(0.0.1): ",
			nil,
			"",
		},
		{
			"[device] ide(0.0.1): ",
			[]string{"disk 1: 1024 blocks, ", "initialized\n"},
			"[device] ide(0.0.1): disk 1: 1024 blocks, initialized\n",
		},
		{
			"[device] ide(0.0.1): ",
			[]string{"port 0x1f0\nchannel 0, ", "initialized\n"},
			"[device] ide(0.0.1): port 0x1f0\n[device] ide(0.0.1): channel 0, initialized\n",
		},
		{
			"[sim] ",
			[]string{"\n", "\n"},
			"[sim] \n[sim] \n",
		},
		{
			"[sim] ",
			[]string{"[machine] 2 cpus", ", clock driven by cpu0\n[pmm] frames: 960 total"},
			"[sim] [machine] 2 cpus, clock driven by cpu0\n[sim] [pmm] frames: 960 total",
		},
	}

	for specIndex, spec := range specs {
		var (
			buf bytes.Buffer
			w   = PrefixWriter{Sink: &buf, Prefix: []byte(spec.prefix)}
		)

		for _, input := range spec.writes {
			wrote, err := w.Write([]byte(input))
			if err != nil {
				t.Errorf("[spec %d] unexpected error: %v", specIndex, err)
			}
			if wrote != len(input) {
				t.Errorf("[spec %d] expected writer to report %d bytes; got %d", specIndex, len(input), wrote)
			}
		}

		if got := buf.String(); got != spec.exp {
			t.Errorf("[spec %d] expected output:\n%q\ngot:\n%q", specIndex, spec.exp, got)
		}
	}
}

func TestPrefixWriterAsOutputSink(t *testing.T) {
	defer func() {
		outputSink = nil
	}()

	var buf bytes.Buffer
	SetOutputSink(&PrefixWriter{Sink: &buf, Prefix: []byte("[sim] ")})

	Printf("tick %d: alarm fired", 3)
	Printf(", return address pushed at 0x%x\n", 0x7ef8)
	Printf("pid %d %s: exited\n", 1, "alarmtest")

	exp := "[sim] tick 3: alarm fired, return address pushed at 0x7ef8\n[sim] pid 1 alarmtest: exited\n"
	if got := buf.String(); got != exp {
		t.Fatalf("expected output:\n%q\ngot:\n%q", exp, got)
	}
}

func TestPrefixWriterErrors(t *testing.T) {
	expErr := errors.New("sink closed")

	specs := []struct {
		failAfter int
		input     string
		expWrote  int
	}{
		// Prefix write fails.
		{0, "initialized\n", 0},
		// First line goes through, the second prefix fails.
		{2, "port 0x1f0\nchannel 0\n", len("port 0x1f0\n")},
	}

	for specIndex, spec := range specs {
		w := PrefixWriter{
			Sink:   &failingWriter{left: spec.failAfter, err: expErr},
			Prefix: []byte("[device] ide(0.0.1): "),
		}

		wrote, err := w.Write([]byte(spec.input))
		if err != expErr {
			t.Errorf("[spec %d] expected error %v; got %v", specIndex, expErr, err)
		}
		if wrote != spec.expWrote {
			t.Errorf("[spec %d] expected %d bytes to be reported; got %d", specIndex, spec.expWrote, wrote)
		}
	}
}

// failingWriter accepts a number of writes and then fails.
type failingWriter struct {
	left int
	err  error
}

func (w *failingWriter) Write(p []byte) (int, error) {
	if w.left == 0 {
		return 0, w.err
	}
	w.left--
	return len(p), nil
}
