package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConnBoundsStandaloneStatements(t *testing.T) {
	_, ctx, cancel := conn(context.Background(), nil, 50*time.Millisecond)
	defer cancel()
	deadline, ok := ctx.Deadline()
	assert.True(t, ok, "a caller without a deadline still gets one")
	assert.WithinDuration(t, time.Now().Add(50*time.Millisecond), deadline, 40*time.Millisecond)

	_, ctx, cancel = conn(context.Background(), nil, 0)
	defer cancel()
	deadline, ok = ctx.Deadline()
	assert.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(defaultStatementTimeout), deadline, time.Second)
}
