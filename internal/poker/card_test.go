package poker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDeck_Default(t *testing.T) {
	d, err := NewDeck(DefaultDeckLabels())
	require.NoError(t, err)
	assert.Equal(t, len(DefaultDeck), d.Len())
	assert.Equal(t, DefaultDeck, d.Cards())
	assert.True(t, d.Contains("☕"))
	assert.True(t, d.Contains("?"))
	assert.False(t, d.Contains("4"))
}

func TestNewDeck_Rejects(t *testing.T) {
	_, err := NewDeck(nil)
	assert.Error(t, err)

	_, err = NewDeck([]string{"1", " ", "2", "1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "card 1 is blank")
	assert.Contains(t, err.Error(), `card "1" is duplicated`)
}

func TestDeck_CardsIsCopy(t *testing.T) {
	d, err := NewDeck([]string{"1", "2"})
	require.NoError(t, err)
	cards := d.Cards()
	cards[0] = "x"
	assert.Equal(t, Card("1"), d.Cards()[0])
}
