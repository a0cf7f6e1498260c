package audit

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendChainsEntries(t *testing.T) {
	trail := NewTrail()

	first := trail.Append("DEPOSIT", "account=a code=0")
	second := trail.Append("WITHDRAW", "account=a code=4")

	assert.Equal(t, uint64(1), first.Seq)
	assert.Equal(t, strings.Repeat("0", 64), first.PreviousHash)
	assert.Equal(t, first.Hash, second.PreviousHash)
	assert.Len(t, first.Hash, 64)
}

func TestVerifyDetectsTampering(t *testing.T) {
	trail := NewTrail()
	for i := 0; i < 5; i++ {
		trail.Append("TRANSFER", "code=0")
	}

	entries := trail.Entries()
	require.True(t, Verify(entries))
	require.True(t, Verify(nil))

	tampered := trail.Entries()
	tampered[2].Detail = "code=255"
	assert.False(t, Verify(tampered))

	dropped := append(trail.Entries()[:1], trail.Entries()[3:]...)
	assert.False(t, Verify(dropped))
}

func TestEntriesReturnsCopy(t *testing.T) {
	trail := NewTrail()
	trail.Append("REGISTER", "code=0")

	entries := trail.Entries()
	entries[0].Op = "mutated"

	assert.Equal(t, "REGISTER", trail.Entries()[0].Op)
}
