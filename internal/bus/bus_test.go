package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEndpointFiltering(t *testing.T) {
	b := New()
	panel := b.Endpoint(SourcePanel)
	content := b.Endpoint(SourceContent)

	var panelGot, contentGot []Type
	panel.On(ApplyText, func(m Message) { panelGot = append(panelGot, m.Type) })
	content.On(ApplyText, func(m Message) { contentGot = append(contentGot, m.Type) })

	require.NoError(t, panel.Send(ApplyText, ApplyTextPayload{ElementID: "e1", Text: "hi"}))

	assert.Empty(t, panelGot, "sender must not receive its own message")
	assert.Equal(t, []Type{ApplyText}, contentGot)
}

func TestUnknownTypesDropped(t *testing.T) {
	b := New()
	content := b.Endpoint(SourceContent)

	var got int
	content.On(Wildcard, func(Message) { got++ })

	b.Publish(Message{Type: "SOMETHING_ELSE", Source: SourcePanel})
	assert.Zero(t, got)

	err := b.Endpoint(SourcePanel).Send("SOMETHING_ELSE", nil)
	assert.Error(t, err)
}

func TestWildcardAndUnsubscribe(t *testing.T) {
	b := New()
	panel := b.Endpoint(SourcePanel)
	content := b.Endpoint(SourceContent)

	var all []Type
	unsub := panel.On(Wildcard, func(m Message) { all = append(all, m.Type) })

	require.NoError(t, content.Send(ElementDeselected, nil))
	require.NoError(t, content.Send(Ready, nil))
	assert.Equal(t, []Type{ElementDeselected, Ready}, all)

	unsub()
	require.NoError(t, content.Send(Ready, nil))
	assert.Len(t, all, 2, "no delivery after unsubscribe")
}

func TestPerSenderOrdering(t *testing.T) {
	b := New()
	content := b.Endpoint(SourceContent)

	var texts []string
	content.On(ApplyText, func(m Message) {
		var p ApplyTextPayload
		require.NoError(t, m.Decode(&p))
		texts = append(texts, p.Text)
	})

	panel := b.Endpoint(SourcePanel)
	for _, s := range []string{"a", "b", "c"} {
		require.NoError(t, panel.Send(ApplyText, ApplyTextPayload{ElementID: "e", Text: s}))
	}
	assert.Equal(t, []string{"a", "b", "c"}, texts)
}
