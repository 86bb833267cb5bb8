package kek

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFFCDHParams_Pack(t *testing.T) {
	params := RFC5114MODP2048With256()
	b := params.Pack(2048)

	require.Len(t, b, 8+2*256)
	assert.Equal(t, "DHPM", string(b[4:8]))

	fieldOrder := b[8 : 8+256]
	generator := b[8+256:]
	assert.Equal(t, leftPad(params.P.Bytes(), 256), fieldOrder)
	assert.Equal(t, leftPad(params.G.Bytes(), 256), generator)
}

func TestLeftPad(t *testing.T) {
	assert.Equal(t, []byte{0, 0, 1, 2}, leftPad([]byte{1, 2}, 4))
	assert.Equal(t, []byte{1, 2, 3}, leftPad([]byte{1, 2, 3}, 3))
	assert.Equal(t, []byte{2, 3}, leftPad([]byte{1, 2, 3}, 2))
}
