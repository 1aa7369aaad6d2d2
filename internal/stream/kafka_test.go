package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agromarket/internal/models"
)

func TestDecodeUpdateFromFeed(t *testing.T) {
	u, err := DecodeUpdate([]byte(`{"source":"mandi-feed","crop":"Onion","region":"Salem","price":17.5,"timestamp":"2026-03-01T09:00:00Z"}`))
	require.NoError(t, err)
	assert.Equal(t, models.PriceUpdate{Source: "mandi-feed", Crop: "Onion", Region: "Salem", Price: 17.5, Timestamp: "2026-03-01T09:00:00Z"}, u)
}

func TestDecodeUpdateRejectsGarbage(t *testing.T) {
	_, err := DecodeUpdate([]byte("not json"))
	assert.Error(t, err)
}
