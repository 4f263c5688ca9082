package kfmt

import (
	"io"

	"xv6trap/kernel/sync"
)

var (
	errMissingArg   = []byte("(MISSING)")
	errWrongArgType = []byte("%!(WRONGTYPE)")
	errNoVerb       = []byte("%!(NOVERB)")
	errExtraArg     = []byte("%!(EXTRA)")
	trueValue       = []byte("true")
	falseValue      = []byte("false")

	// outputLock serializes writes coming from different cores so that
	// lines produced by concurrent traps do not interleave.
	outputLock sync.Spinlock

	// earlyPrintBuffer is a ring buffer that stores Printf output before an
	// output sink is attached.
	earlyPrintBuffer ringBuffer

	// outputSink is a io.Writer where Printf will send its output. If set
	// to nil, then the output will be redirected to the earlyPrintBuffer.
	outputSink io.Writer
)

// SetOutputSink sets the default target for calls to Printf to w and copies
// any data accumulated in the earlyPrintBuffer to it.
func SetOutputSink(w io.Writer) {
	outputLock.Acquire()
	defer outputLock.Release()

	outputSink = w
	if w != nil {
		_, _ = io.Copy(w, &earlyPrintBuffer)
	}
}

// GetOutputSink returns the default target for calls to Printf.
func GetOutputSink() io.Writer {
	outputLock.Acquire()
	defer outputLock.Release()
	return outputSink
}

// Printf provides a minimal Printf implementation supporting the following
// subset of formatting verbs:
//
// Strings:
//		%s the uninterpreted bytes of the string or byte slice
//
// Integers:
//		%o base 8
//		%d base 10
//		%x base 16, with lower-case letters for a-f
//
// Booleans:
//		%t "true" or "false"
//
// Width is specified by an optional decimal number immediately preceding the
// verb. Strings and base-10 integers are left-padded with spaces; base-8 and
// base-16 integers are left-padded with zeroes.
//
// The output of Printf is written to the active output sink. If no sink is
// attached, the output is buffered into a ring buffer which is flushed to the
// next sink registered via SetOutputSink.
func Printf(format string, args ...interface{}) {
	Fprintf(nil, format, args...)
}

// Fprintf behaves exactly like Printf but it writes the formatted output to
// the specified io.Writer. Passing a nil writer selects the active output
// sink. Writes to an explicit writer are not serialized; the writer may
// itself forward to Printf.
func Fprintf(w io.Writer, format string, args ...interface{}) {
	line := appendFormat(make([]byte, 0, len(format)+16), format, args)

	if w != nil {
		_, _ = w.Write(line)
		return
	}

	outputLock.Acquire()
	defer outputLock.Release()

	switch {
	case outputSink != nil:
		_, _ = outputSink.Write(line)
	default:
		_, _ = earlyPrintBuffer.Write(line)
	}
}

// appendFormat appends the formatted version of format to buf.
func appendFormat(buf []byte, format string, args []interface{}) []byte {
	var nextArg int

	for i := 0; i < len(format); i++ {
		if format[i] != '%' {
			buf = append(buf, format[i])
			continue
		}

		width := 0
		for i++; i < len(format) && format[i] >= '0' && format[i] <= '9'; i++ {
			width = width*10 + int(format[i]-'0')
		}

		if i == len(format) {
			buf = append(buf, errNoVerb...)
			break
		}

		verb := format[i]
		switch verb {
		case '%':
			buf = append(buf, '%')
			continue
		case 'd', 'x', 'o', 's', 't':
		default:
			buf = append(buf, errNoVerb...)
			continue
		}

		if nextArg >= len(args) {
			buf = append(buf, errMissingArg...)
			continue
		}

		arg := args[nextArg]
		nextArg++

		switch verb {
		case 'd':
			buf = appendInt(buf, arg, 10, width)
		case 'x':
			buf = appendInt(buf, arg, 16, width)
		case 'o':
			buf = appendInt(buf, arg, 8, width)
		case 's':
			buf = appendString(buf, arg, width)
		case 't':
			buf = appendBool(buf, arg)
		}
	}

	for ; nextArg < len(args); nextArg++ {
		buf = append(buf, errExtraArg...)
	}

	return buf
}

func appendBool(buf []byte, v interface{}) []byte {
	b, ok := v.(bool)
	switch {
	case !ok:
		return append(buf, errWrongArgType...)
	case b:
		return append(buf, trueValue...)
	default:
		return append(buf, falseValue...)
	}
}

func appendString(buf []byte, v interface{}, width int) []byte {
	var s []byte
	switch castedVal := v.(type) {
	case string:
		s = []byte(castedVal)
	case []byte:
		s = castedVal
	default:
		return append(buf, errWrongArgType...)
	}

	buf = appendRepeat(buf, ' ', width-len(s))
	return append(buf, s...)
}

func appendRepeat(buf []byte, ch byte, count int) []byte {
	for ; count > 0; count-- {
		buf = append(buf, ch)
	}
	return buf
}

// appendInt appends a formatted version of v in the requested base, applying
// the padding specified by width. All built-in signed and unsigned integer
// types are supported.
func appendInt(buf []byte, v interface{}, base uint64, width int) []byte {
	var (
		uval     uint64
		negative bool
	)

	switch castedVal := v.(type) {
	case uint8:
		uval = uint64(castedVal)
	case uint16:
		uval = uint64(castedVal)
	case uint32:
		uval = uint64(castedVal)
	case uint64:
		uval = castedVal
	case uint:
		uval = uint64(castedVal)
	case uintptr:
		uval = uint64(castedVal)
	case int8:
		uval, negative = abs(int64(castedVal))
	case int16:
		uval, negative = abs(int64(castedVal))
	case int32:
		uval, negative = abs(int64(castedVal))
	case int64:
		uval, negative = abs(castedVal)
	case int:
		uval, negative = abs(int64(castedVal))
	default:
		return append(buf, errWrongArgType...)
	}

	var (
		digits [64]byte
		pos    = len(digits)
	)
	for {
		pos--
		digits[pos] = "0123456789abcdef"[uval%base]
		uval /= base
		if uval == 0 {
			break
		}
	}

	numLen := len(digits) - pos
	if negative {
		numLen++
	}

	if base == 10 {
		buf = appendRepeat(buf, ' ', width-numLen)
		if negative {
			buf = append(buf, '-')
		}
	} else {
		if negative {
			buf = append(buf, '-')
		}
		buf = appendRepeat(buf, '0', width-numLen)
	}

	return append(buf, digits[pos:]...)
}

func abs(v int64) (uint64, bool) {
	if v < 0 {
		return uint64(-v), true
	}
	return uint64(v), false
}
