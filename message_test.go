package wslink

import (
	"testing"

	"github.com/lightfast-io/wslink/internal/test/assert"
)

func TestMessage(t *testing.T) {
	t.Parallel()

	t.Run("jsonObject", func(t *testing.T) {
		t.Parallel()

		m := newMessage(opText, []byte(`{"id":"a1","action":"run","params":{"code":"1+1"}}`))
		assert.Equal(t, "Object", map[string]interface{}{
			"id":     "a1",
			"action": "run",
			"params": map[string]interface{}{"code": "1+1"},
		}, m.Object)
		assert.Equal(t, "ID", "a1", m.ID())
		assert.Equal(t, "Action", "run", m.Action())
		assert.Equal(t, "Params", map[string]interface{}{"code": "1+1"}, m.Params())
	})

	t.Run("bareString", func(t *testing.T) {
		t.Parallel()

		m := newMessage(opText, []byte("hello there"))
		assert.Equal(t, "Text", "hello there", m.Text)
		assert.Equal(t, "Object", map[string]interface{}(nil), m.Object)
		assert.Equal(t, "ID", "", m.ID())
	})

	t.Run("jsonArrayDegradesToText", func(t *testing.T) {
		t.Parallel()

		m := newMessage(opText, []byte(`[1,2,3]`))
		assert.Equal(t, "Text", "[1,2,3]", m.Text)
		assert.Equal(t, "Object", map[string]interface{}(nil), m.Object)
	})

	t.Run("invalidUTF8DegradesToBinary", func(t *testing.T) {
		t.Parallel()

		p := []byte{0xff, 0xfe, 0xfd}
		m := newMessage(opText, p)
		assert.Equal(t, "Binary", p, m.Binary)
		assert.Equal(t, "Text", "", m.Text)
	})

	t.Run("binaryOpcode", func(t *testing.T) {
		t.Parallel()

		// Binary frames are never decoded, even when the bytes parse.
		p := []byte(`{"id":"a1"}`)
		m := newMessage(opBinary, p)
		assert.Equal(t, "Binary", p, m.Binary)
		assert.Equal(t, "Object", map[string]interface{}(nil), m.Object)
		assert.Equal(t, "ID", "", m.ID())
	})

	t.Run("nonStringID", func(t *testing.T) {
		t.Parallel()

		m := newMessage(opText, []byte(`{"id":42}`))
		assert.Equal(t, "ID", "", m.ID())
	})
}
