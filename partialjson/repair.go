// Package partialjson repairs truncated JSON text into the closest
// syntactically valid document.
//
// Repair is lexical only. It closes open strings and containers, completes
// literal prefixes (t, fa, nul, ...) whose completion is unique, cuts
// partial numbers back to their last digit and drops keys that have no value
// yet. Feeding a longer prefix of the same document never changes the type
// of a value that was already present.
//
// Malformed input is cut at the first byte that cannot continue a JSON
// document, and the value built up to that point is closed. A literal or
// number that cannot be completed is dropped.
package partialjson

import (
	"strings"

	"github.com/tidwall/gjson"
)

type state uint8

const (
	stateRoot state = iota
	stateFinish
	stateString
	stateStringEscape
	stateStringUnicode
	stateKey
	stateKeyEscape
	stateLiteral
	stateNumber
	stateObjectStart
	stateObjectAfterKey
	stateObjectBeforeValue
	stateObjectAfterValue
	stateObjectAfterComma
	stateArrayStart
	stateArrayAfterValue
	stateArrayAfterComma
)

var literals = [...]string{"true", "false", "null"}

// numPhase tracks the position inside a number token.
type numPhase uint8

const (
	numSign numPhase = iota
	numZero
	numInt
	numDot
	numFrac
	numExp
	numExpSign
	numExpDigits
)

// complete reports whether a number may end in this phase.
func (p numPhase) complete() bool {
	return p == numZero || p == numInt || p == numFrac || p == numExpDigits
}

// next returns the phase after c, or false when c cannot continue the number.
func (p numPhase) next(c byte) (numPhase, bool) {
	digit := c >= '0' && c <= '9'
	switch p {
	case numSign:
		if c == '0' {
			return numZero, true
		}
		if digit {
			return numInt, true
		}
	case numZero, numInt:
		switch {
		case digit && p == numInt:
			return numInt, true
		case c == '.':
			return numDot, true
		case c == 'e' || c == 'E':
			return numExp, true
		}
	case numDot:
		if digit {
			return numFrac, true
		}
	case numFrac:
		if digit {
			return numFrac, true
		}
		if c == 'e' || c == 'E' {
			return numExp, true
		}
	case numExp:
		if c == '+' || c == '-' {
			return numExpSign, true
		}
		if digit {
			return numExpDigits, true
		}
	case numExpSign, numExpDigits:
		if digit {
			return numExpDigits, true
		}
	}
	return p, false
}

// repairer holds the scan state for one Repair call.
type repairer struct {
	input     string
	stack     []state
	lastValid int
	// halted is set on the first byte that cannot continue the document.
	halted bool

	literalStart  int
	literalBefore int
	num           numPhase
	hexLeft       int
}

// Repair returns the closest syntactically valid JSON text for prefix.
// A complete document is returned unchanged. When the prefix does not yet
// contain any value (empty, whitespace, a lone "-"), Repair returns "".
func Repair(prefix string) string {
	if gjson.Valid(prefix) {
		return prefix
	}
	r := &repairer{
		input:     prefix,
		stack:     []state{stateRoot},
		lastValid: -1,
	}
	for i := 0; i < len(prefix) && !r.halted; i++ {
		r.step(prefix[i], i)
	}
	return r.result()
}

func (r *repairer) top() state {
	return r.stack[len(r.stack)-1]
}

func (r *repairer) push(s state) {
	r.stack = append(r.stack, s)
}

func (r *repairer) pop() {
	r.stack = r.stack[:len(r.stack)-1]
}

func (r *repairer) swap(s state) {
	r.stack[len(r.stack)-1] = s
}

func (r *repairer) step(c byte, i int) {
	switch r.top() {
	case stateRoot:
		r.valueStart(c, i, stateFinish)

	case stateFinish:
		// Trailing bytes after the root value are ignored.

	case stateObjectStart:
		switch c {
		case '"':
			r.swap(stateKey)
		case '}':
			r.lastValid = i
			r.pop()
		default:
			r.expectSpace(c)
		}

	case stateObjectAfterComma:
		if c == '"' {
			r.swap(stateKey)
			return
		}
		r.expectSpace(c)

	case stateKey:
		switch {
		case c == '"':
			r.swap(stateObjectAfterKey)
		case c == '\\':
			r.push(stateKeyEscape)
		case c < 0x20:
			r.halted = true
		}

	case stateKeyEscape:
		if !isEscape(c) {
			r.halted = true
			return
		}
		if c == 'u' {
			r.swap(stateStringUnicode)
			r.hexLeft = 4
			return
		}
		r.pop()

	case stateObjectAfterKey:
		if c == ':' {
			r.swap(stateObjectBeforeValue)
			return
		}
		r.expectSpace(c)

	case stateObjectBeforeValue:
		r.valueStart(c, i, stateObjectAfterValue)

	case stateObjectAfterValue:
		r.afterObjectValue(c, i)

	case stateArrayStart:
		if c == ']' {
			r.lastValid = i
			r.pop()
			return
		}
		r.valueStart(c, i, stateArrayAfterValue)

	case stateArrayAfterComma:
		r.valueStart(c, i, stateArrayAfterValue)

	case stateArrayAfterValue:
		r.afterArrayValue(c, i)

	case stateString:
		switch {
		case c == '"':
			r.pop()
			r.lastValid = i
		case c == '\\':
			r.push(stateStringEscape)
		case c < 0x20:
			r.halted = true
		default:
			r.lastValid = i
		}

	case stateStringEscape:
		if !isEscape(c) {
			r.halted = true
			return
		}
		if c == 'u' {
			r.swap(stateStringUnicode)
			r.hexLeft = 4
			return
		}
		r.pop()
		r.lastValid = i

	case stateStringUnicode:
		if !isHex(c) {
			r.halted = true
			return
		}
		r.hexLeft--
		if r.hexLeft > 0 {
			return
		}
		r.pop()
		// Keys never move lastValid.
		if r.top() == stateString {
			r.lastValid = i
		}

	case stateNumber:
		if next, ok := r.num.next(c); ok {
			r.num = next
			if next.complete() {
				r.lastValid = i
			}
			return
		}
		if !r.num.complete() {
			r.halted = true
			return
		}
		r.pop()
		r.afterValue(c, i)

	case stateLiteral:
		partial := r.input[r.literalStart : i+1]
		if literalCompletion(partial) != "" || isLiteral(partial) {
			r.lastValid = i
			return
		}
		if !isLiteral(partial[:len(partial)-1]) {
			r.lastValid = r.literalBefore
			r.pop()
			r.halted = true
			return
		}
		r.pop()
		r.afterValue(c, i)
	}
}

// valueStart handles the first byte of a value. next replaces the current
// state so that the enclosing container resumes there once the value ends.
func (r *repairer) valueStart(c byte, i int, next state) {
	switch {
	case c == '"':
		r.lastValid = i
		r.swap(next)
		r.push(stateString)
	case c == 't' || c == 'f' || c == 'n':
		r.literalBefore = r.lastValid
		r.lastValid = i
		r.literalStart = i
		r.swap(next)
		r.push(stateLiteral)
	case c == '-':
		r.num = numSign
		r.swap(next)
		r.push(stateNumber)
	case c == '0':
		r.lastValid = i
		r.num = numZero
		r.swap(next)
		r.push(stateNumber)
	case c >= '1' && c <= '9':
		r.lastValid = i
		r.num = numInt
		r.swap(next)
		r.push(stateNumber)
	case c == '{':
		r.lastValid = i
		r.swap(next)
		r.push(stateObjectStart)
	case c == '[':
		r.lastValid = i
		r.swap(next)
		r.push(stateArrayStart)
	default:
		r.expectSpace(c)
	}
}

// afterValue dispatches a byte that terminated a number or literal to the
// enclosing container.
func (r *repairer) afterValue(c byte, i int) {
	switch r.top() {
	case stateObjectAfterValue:
		r.afterObjectValue(c, i)
	case stateArrayAfterValue:
		r.afterArrayValue(c, i)
	}
}

func (r *repairer) afterObjectValue(c byte, i int) {
	switch c {
	case ',':
		r.swap(stateObjectAfterComma)
	case '}':
		r.lastValid = i
		r.pop()
	default:
		r.expectSpace(c)
	}
}

func (r *repairer) afterArrayValue(c byte, i int) {
	switch c {
	case ',':
		r.swap(stateArrayAfterComma)
	case ']':
		r.lastValid = i
		r.pop()
	default:
		r.expectSpace(c)
	}
}

// expectSpace halts the scan on anything but insignificant whitespace.
func (r *repairer) expectSpace(c byte) {
	switch c {
	case ' ', '\t', '\n', '\r':
	default:
		r.halted = true
	}
}

func (r *repairer) result() string {
	var sb strings.Builder
	sb.WriteString(r.input[:r.lastValid+1])

	for i := len(r.stack) - 1; i >= 0; i-- {
		switch r.stack[i] {
		case stateString:
			sb.WriteByte('"')
		case stateKey, stateObjectAfterKey, stateObjectAfterComma, stateObjectStart,
			stateObjectBeforeValue, stateObjectAfterValue:
			sb.WriteByte('}')
		case stateArrayStart, stateArrayAfterComma, stateArrayAfterValue:
			sb.WriteByte(']')
		case stateLiteral:
			sb.WriteString(literalCompletion(r.input[r.literalStart:]))
		}
	}
	return sb.String()
}

// literalCompletion returns the missing suffix of a literal prefix, or ""
// when partial is not a proper prefix of any literal.
func literalCompletion(partial string) string {
	for _, lit := range literals {
		if len(partial) < len(lit) && strings.HasPrefix(lit, partial) {
			return lit[len(partial):]
		}
	}
	return ""
}

func isLiteral(s string) bool {
	for _, lit := range literals {
		if s == lit {
			return true
		}
	}
	return false
}

func isEscape(c byte) bool {
	return strings.IndexByte(`"\\/bfnrtu`, c) >= 0
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}
