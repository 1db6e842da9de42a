// Package twiml renders the TwiML voice-response documents returned to
// Twilio from webhook handlers. It models only the verbs this service
// emits (Say, Pause, Gather, Redirect, Hangup) and is purely
// deterministic: the same action sequence always marshals to the same
// document.
package twiml

import (
	"bytes"
	"encoding/xml"
	"fmt"
)

// ContentType is the response content type Twilio expects.
const ContentType = "text/xml; charset=utf-8"

// Response is the root TwiML document. Verbs render in the order they
// were appended.
type Response struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any
}

// Say speaks text to the caller.
type Say struct {
	XMLName  xml.Name `xml:"Say"`
	Voice    string   `xml:"voice,attr,omitempty"`
	Language string   `xml:"language,attr,omitempty"`
	Text     string   `xml:",chardata"`
}

// Pause is a silent delay in whole seconds.
type Pause struct {
	XMLName xml.Name `xml:"Pause"`
	Length  int      `xml:"length,attr"`
}

// Gather opens a speech listen window. Nested Say/Pause verbs play while
// gathering, which is what gives the caller barge-in: speech during the
// prompt is captured and posted to Action immediately.
type Gather struct {
	XMLName       xml.Name `xml:"Gather"`
	Input         string   `xml:"input,attr"`
	Action        string   `xml:"action,attr"`
	Method        string   `xml:"method,attr,omitempty"`
	Timeout       int      `xml:"timeout,attr,omitempty"`
	SpeechTimeout string   `xml:"speechTimeout,attr,omitempty"`
	Language      string   `xml:"language,attr,omitempty"`
	Verbs         []any
}

// Redirect sends call control to another webhook when the enclosing verb
// completes without input.
type Redirect struct {
	XMLName xml.Name `xml:"Redirect"`
	Method  string   `xml:"method,attr,omitempty"`
	URL     string   `xml:",chardata"`
}

// Hangup disconnects the call.
type Hangup struct {
	XMLName xml.Name `xml:"Hangup"`
}

// GatherParams holds the listen-window settings shared by every Gather
// this service opens.
type GatherParams struct {
	// Action is the absolute callback URL speech results are posted to.
	Action string

	// TimeoutSeconds is how long Twilio waits for speech to begin.
	TimeoutSeconds int

	// SpeechTimeout is "auto" or a fixed number of seconds of trailing
	// silence that ends the capture.
	SpeechTimeout string

	// Language is the speech recognition language tag (e.g. "en-US").
	Language string
}

// NewGather builds a speech Gather from the shared parameters.
func NewGather(p GatherParams) *Gather {
	return &Gather{
		Input:         "speech",
		Action:        p.Action,
		Method:        "POST",
		Timeout:       p.TimeoutSeconds,
		SpeechTimeout: p.SpeechTimeout,
		Language:      p.Language,
	}
}

// Append adds a verb to the response.
func (r *Response) Append(verbs ...any) *Response {
	r.Verbs = append(r.Verbs, verbs...)
	return r
}

// Append adds a nested verb to the gather.
func (g *Gather) Append(verbs ...any) *Gather {
	g.Verbs = append(g.Verbs, verbs...)
	return g
}

// MarshalXML implements xml.Marshaler so the heterogeneous verb list
// renders in insertion order.
func (r *Response) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	start.Name = xml.Name{Local: "Response"}
	if err := e.EncodeToken(start); err != nil {
		return err
	}
	for _, v := range r.Verbs {
		if err := e.Encode(v); err != nil {
			return err
		}
	}
	return e.EncodeToken(start.End())
}

// MarshalXML renders the gather element with its nested verbs.
func (g *Gather) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	start.Name = xml.Name{Local: "Gather"}
	start.Attr = start.Attr[:0]
	attr := func(name, value string) {
		if value != "" {
			start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: name}, Value: value})
		}
	}
	attr("input", g.Input)
	attr("action", g.Action)
	attr("method", g.Method)
	if g.Timeout > 0 {
		attr("timeout", fmt.Sprintf("%d", g.Timeout))
	}
	attr("speechTimeout", g.SpeechTimeout)
	attr("language", g.Language)

	if err := e.EncodeToken(start); err != nil {
		return err
	}
	for _, v := range g.Verbs {
		if err := e.Encode(v); err != nil {
			return err
		}
	}
	return e.EncodeToken(start.End())
}

// Render marshals the response with the XML declaration prepended.
func (r *Response) Render() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(r); err != nil {
		return nil, fmt.Errorf("twiml: marshal response: %w", err)
	}
	if err := enc.Flush(); err != nil {
		return nil, fmt.Errorf("twiml: flush encoder: %w", err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// MustRender renders the response and panics on marshal failure. The
// document model contains no user-controlled structure, so a marshal
// error indicates a programming bug, not an input condition.
func (r *Response) MustRender() []byte {
	out, err := r.Render()
	if err != nil {
		panic(err)
	}
	return out
}
