package wslink

import (
	"encoding/json"
	"unicode/utf8"
)

// Message is one logical unit delivered off the wire: a JSON object, a bare
// string, or raw bytes. Exactly one of the three fields is populated.
//
// Decode failures are not fatal. A text payload that is not valid UTF-8
// degrades to Binary; valid UTF-8 that does not parse as a JSON object
// degrades to Text. The message is delivered as-is either way.
type Message struct {
	Object map[string]interface{}
	Text   string
	Binary []byte
}

func newMessage(op opcode, payload []byte) Message {
	if op == opBinary {
		return Message{Binary: payload}
	}
	if !utf8.Valid(payload) {
		return Message{Binary: payload}
	}

	var obj map[string]interface{}
	if err := json.Unmarshal(payload, &obj); err != nil || obj == nil {
		return Message{Text: string(payload)}
	}
	return Message{Object: obj}
}

// ID returns the correlation token carried by the message, if any.
func (m Message) ID() string {
	s, _ := m.Object["id"].(string)
	return s
}

// Action returns the command name carried by the message, if any.
func (m Message) Action() string {
	s, _ := m.Object["action"].(string)
	return s
}

// Params returns the command parameters carried by the message, if any.
func (m Message) Params() map[string]interface{} {
	p, _ := m.Object["params"].(map[string]interface{})
	return p
}
