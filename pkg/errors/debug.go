package errors

import (
	"errors"
	"fmt"
	"strings"
)

type ErrorDump struct {
	TopMessage string   `json:"top_message"`
	Code       Code     `json:"code,omitempty"`
	Chain      []string `json:"chain,omitempty"`
}

// Dump flattens an error chain into loggable diagnostic detail. The settlement
// worker attaches this to debug-channel alerts.
func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}

	d := ErrorDump{
		TopMessage: err.Error(),
	}

	if te := As(err); te != nil {
		d.Code = te.Code()
	}

	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}

	return d
}

// String renders the dump as a single human-readable block.
func (d ErrorDump) String() string {
	var b strings.Builder
	b.WriteString(d.TopMessage)
	if d.Code != "" {
		fmt.Fprintf(&b, " [%s]", d.Code)
	}
	for _, link := range d.Chain {
		b.WriteString("\n  ")
		b.WriteString(link)
	}
	return b.String()
}
