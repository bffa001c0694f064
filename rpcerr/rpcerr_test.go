package rpcerr

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKindMatching(t *testing.T) {
	err := InvalidConnection("http://node-a:8545", errors.New("connection refused"))

	assert.ErrorIs(t, err, ErrConnection)
	assert.NotErrorIs(t, err, ErrTimeout)
	assert.Contains(t, err.Error(), "http://node-a:8545")

	// Wrapping keeps the kind visible
	wrapped := fmt.Errorf("send eth_call: %w", err)
	assert.ErrorIs(t, wrapped, ErrConnection)

	var rerr *Error
	assert.True(t, errors.As(wrapped, &rerr))
	assert.Equal(t, "http://node-a:8545", rerr.Endpoint)
}

func TestInvalidResponseTruncatesBody(t *testing.T) {
	body := make([]byte, 1024)
	for i := range body {
		body[i] = 'x'
	}
	err := InvalidResponse("http://node-a:8545", body, nil)

	assert.ErrorIs(t, err, ErrInvalidResponse)
	assert.Less(t, len(err.Error()), 300)
}

func TestConnectionTimeoutMessage(t *testing.T) {
	err := ConnectionTimeout("http://node-a:8545", 250*time.Millisecond, nil)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Contains(t, err.Error(), "250ms")

	assert.Equal(t, "CONNECTION ERROR: no valid endpoints", NoValidEndpoints().Error())
	assert.Equal(t, "pool length must be greater than zero", Configuration("pool length must be greater than zero").Error())
}
