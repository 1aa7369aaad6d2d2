package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"agromarket/internal/models"
)

func TestToPriceUpdate(t *testing.T) {
	got, ok := toPriceUpdate(FeedMessage{Type: "price", Crop: "Onion", Market: "Salem", Price: "17.50", Time: "2026-03-01T09:00:00Z"})
	assert.True(t, ok)
	assert.Equal(t, models.PriceUpdate{Source: "mandi-feed", Crop: "Onion", Region: "Salem", Price: 17.5, Timestamp: "2026-03-01T09:00:00Z"}, got)

	for _, msg := range []FeedMessage{
		{Type: "heartbeat"},
		{Type: "price", Crop: "Onion", Price: "n/a"},
		{Type: "price", Crop: "Onion", Price: "0"},
		{Type: "price", Price: "12"},
	} {
		_, ok := toPriceUpdate(msg)
		assert.False(t, ok, "%+v", msg)
	}
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"Tomato", "Onion"}, splitList(" Tomato, ,Onion,"))
	assert.Nil(t, splitList(""))
}
