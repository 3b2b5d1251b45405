package voice

import (
	"encoding/xml"
	"net/http"
	"strconv"
)

// TwiML models the subset of Twilio markup the dialogue needs.
type TwiML struct {
	XMLName xml.Name  `xml:"Response"`
	Say     *Say      `xml:"Say,omitempty"`
	Gather  *Gather   `xml:"Gather,omitempty"`
	Hangup  *struct{} `xml:"Hangup,omitempty"`
}

type Say struct {
	Voice string `xml:"voice,attr,omitempty"`
	Text  string `xml:",chardata"`
}

type Gather struct {
	Input               string `xml:"input,attr"`
	Action              string `xml:"action,attr"`
	Method              string `xml:"method,attr"`
	ActionOnEmptyResult bool   `xml:"actionOnEmptyResult,attr"`
	Timeout             string `xml:"timeout,attr,omitempty"`
}

type TwiMLOptions struct {
	SayVoice      string
	SpeechTimeout int
}

// NewTurnResponse says prompt and either gathers the next utterance or ends the call.
// Silence still posts to GatherPath, as an empty answer.
func NewTurnResponse(prompt string, hangup bool, opts TwiMLOptions) *TwiML {
	response := &TwiML{}

	if prompt != "" {
		response.Say = &Say{Voice: opts.SayVoice, Text: prompt}
	}

	if hangup {
		response.Hangup = &struct{}{}
		return response
	}

	response.Gather = &Gather{
		Input:               "speech",
		Action:              GatherPath,
		Method:              http.MethodPost,
		ActionOnEmptyResult: true,
	}

	if opts.SpeechTimeout > 0 {
		response.Gather.Timeout = strconv.Itoa(opts.SpeechTimeout)
	}

	return response
}

func (response *TwiML) Render() ([]byte, error) {
	body, err := xml.Marshal(response)
	if err != nil {
		return nil, err
	}

	return append([]byte(xml.Header), body...), nil
}
